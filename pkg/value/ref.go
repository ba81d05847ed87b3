// Package value implements the ValueRef tagged-union model and its
// evaluator against a Runtime Root.
package value

import "encoding/json"

// Kind discriminates the single populated variant of a Ref.
type Kind string

const (
	KindLit    Kind = "lit"
	KindRef    Kind = "ref"
	KindCel    Kind = "cel"
	KindDetect Kind = "detect"
	KindObject Kind = "object"
	KindArray  Kind = "array"
)

// Detect describes a deferred provider-driven value selection.
type Detect struct {
	Kind                 string        `json:"kind"`
	Provider             string        `json:"provider,omitempty"`
	Candidates           []interface{} `json:"candidates,omitempty"`
	Constraints          interface{}   `json:"constraints,omitempty"`
	RequiresCapabilities []string      `json:"requires_capabilities,omitempty"`
}

// Ref is the ValueRef tagged variant. Exactly one of the fields below is
// populated at a time; Kind reports which.
type Ref struct {
	Kind Kind

	Lit interface{}

	Path string

	Cel string

	Detect *Detect

	Object map[string]*Ref
	Array  []*Ref
}

// Lit constructs a literal ValueRef.
func Lit(v interface{}) *Ref { return &Ref{Kind: KindLit, Lit: v} }

// RefPath constructs a dotted-path ValueRef.
func RefPath(path string) *Ref { return &Ref{Kind: KindRef, Path: path} }

// Cel constructs an expression ValueRef.
func Cel(expr string) *Ref { return &Ref{Kind: KindCel, Cel: expr} }

// DetectRef constructs a detect ValueRef.
func DetectRef(d *Detect) *Ref { return &Ref{Kind: KindDetect, Detect: d} }

// Obj constructs a composite object ValueRef.
func Obj(fields map[string]*Ref) *Ref { return &Ref{Kind: KindObject, Object: fields} }

// Arr constructs a composite array ValueRef.
func Arr(items []*Ref) *Ref { return &Ref{Kind: KindArray, Array: items} }

// rawRef mirrors the wire shape: exactly one key present.
type rawRef struct {
	Lit    *json.RawMessage  `json:"lit,omitempty"`
	Ref    *string           `json:"ref,omitempty"`
	Cel    *string           `json:"cel,omitempty"`
	Detect *Detect           `json:"detect,omitempty"`
	Object map[string]*Ref   `json:"object,omitempty"`
	Array  []*Ref            `json:"array,omitempty"`
}

// UnmarshalJSON decodes the tagged-union wire form into exactly one variant.
func (r *Ref) UnmarshalJSON(data []byte) error {
	var raw rawRef
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Lit != nil:
		var v interface{}
		if err := json.Unmarshal(*raw.Lit, &v); err != nil {
			return err
		}
		r.Kind, r.Lit = KindLit, v
	case raw.Ref != nil:
		r.Kind, r.Path = KindRef, *raw.Ref
	case raw.Cel != nil:
		r.Kind, r.Cel = KindCel, *raw.Cel
	case raw.Detect != nil:
		r.Kind, r.Detect = KindDetect, raw.Detect
	case raw.Object != nil:
		r.Kind, r.Object = KindObject, raw.Object
	case raw.Array != nil:
		r.Kind, r.Array = KindArray, raw.Array
	default:
		return errVariantEmpty
	}
	return nil
}

// MarshalJSON encodes back to the single-key tagged-union wire form.
func (r *Ref) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case KindLit:
		return json.Marshal(map[string]interface{}{"lit": r.Lit})
	case KindRef:
		return json.Marshal(map[string]string{"ref": r.Path})
	case KindCel:
		return json.Marshal(map[string]string{"cel": r.Cel})
	case KindDetect:
		return json.Marshal(map[string]*Detect{"detect": r.Detect})
	case KindObject:
		return json.Marshal(map[string]map[string]*Ref{"object": r.Object})
	case KindArray:
		return json.Marshal(map[string][]*Ref{"array": r.Array})
	default:
		return nil, errVariantEmpty
	}
}
