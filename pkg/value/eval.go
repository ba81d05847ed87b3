package value

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/owliabot/ais-sub001/pkg/aiserr"
)

// errNonIntegerCelResult is returned when a cel expression evaluates to a
// non-integral float64: integer-first cel rejects JS-style fractional
// numbers, so only whole-valued results are allowed through.
var errNonIntegerCelResult = errors.New("cel expression produced a non-integer number")

// DetectResolver picks a concrete value for a detect ValueRef. It is
// supplied by the caller (engine/solver); built-in handling only covers
// kind=choose_one (deterministic first-candidate selection).
type DetectResolver interface {
	// Resolve returns either a concrete value or another *Ref to be
	// re-evaluated (async evaluation only).
	Resolve(ctx context.Context, d *Detect) (interface{}, error)
}

// Options configures one evaluation call.
type Options struct {
	// RootOverrides are shallow-merged on top of the Runtime Root's
	// top-level children before resolution (typically {params: ...}).
	RootOverrides map[string]interface{}
	Capabilities  []string
	Detect        DetectResolver
}

func (o Options) hasCapability(name string) bool {
	for _, c := range o.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// buildEnv builds the flat lookup map used both for ref-path traversal and as
// the cel expression environment: the root's top-level children, with
// RootOverrides shallow-merged on top, plus the builtin function set.
func buildEnv(root *Root, opts Options) map[string]interface{} {
	snapshot := root.Snapshot()
	out := make(map[string]interface{}, len(snapshot)+len(opts.RootOverrides)+8)
	for k, v := range snapshot {
		out[k] = v
	}
	for k, v := range opts.RootOverrides {
		out[k] = v
	}
	for k, v := range builtinFuncs() {
		out[k] = v
	}
	return out
}

// Resolve evaluates ref synchronously. A detect variant whose resolver
// would need to await (async resolver) is rejected with a typed error —
// callers needing async detect must use ResolveAsync.
func Resolve(root *Root, ref *Ref, opts Options) (interface{}, error) {
	return resolve(context.Background(), root, ref, opts, false)
}

// ResolveAsync evaluates ref, awaiting the detect resolver if supplied,
// and re-evaluates the result if it is itself a *Ref.
func ResolveAsync(ctx context.Context, root *Root, ref *Ref, opts Options) (interface{}, error) {
	return resolve(ctx, root, ref, opts, true)
}

func resolve(ctx context.Context, root *Root, ref *Ref, opts Options, async bool) (interface{}, error) {
	if ref == nil {
		return nil, nil
	}
	switch ref.Kind {
	case KindLit:
		return ref.Lit, nil

	case KindRef:
		env := buildEnv(root, opts)
		v, ok := traverse(env, splitPath(ref.Path))
		if !ok {
			return nil, &aiserr.MissingRefError{RefPath: ref.Path}
		}
		return v, nil

	case KindCel:
		env := buildEnv(root, opts)
		out, err := compileAndRunCel(ref.Cel, env)
		if err != nil {
			return nil, &aiserr.CelEvalError{Expr: ref.Cel, Err: err}
		}
		if f, ok := out.(float64); ok && f != math.Trunc(f) {
			return nil, &aiserr.CelEvalError{Expr: ref.Cel, Err: errNonIntegerCelResult}
		}
		return out, nil

	case KindDetect:
		return resolveDetect(ctx, root, ref.Detect, opts, async)

	case KindObject:
		out := make(map[string]interface{}, len(ref.Object))
		for k, sub := range ref.Object {
			v, err := resolve(ctx, root, sub, opts, async)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil

	case KindArray:
		out := make([]interface{}, len(ref.Array))
		for i, sub := range ref.Array {
			v, err := resolve(ctx, root, sub, opts, async)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	default:
		return nil, &aiserr.MissingRefError{RefPath: "<unknown ValueRef kind>"}
	}
}

func resolveDetect(ctx context.Context, root *Root, d *Detect, opts Options, async bool) (interface{}, error) {
	ctxCaps := rootCapabilities(root)
	for _, capability := range d.RequiresCapabilities {
		if !opts.hasCapability(capability) && !containsString(ctxCaps, capability) {
			return nil, &aiserr.MissingRefError{RefPath: "detect.requires_capabilities." + capability}
		}
	}

	if d.Kind == "choose_one" {
		if len(d.Candidates) == 0 {
			return nil, aiserr.ErrDetectUnsupported
		}
		return d.Candidates[0], nil
	}

	if opts.Detect == nil {
		return nil, aiserr.ErrDetectUnsupported
	}

	if !async {
		// Sync evaluation cannot await; only proceed if the resolver
		// happens to be synchronous in practice is indistinguishable at
		// the interface level, so sync callers must not route detect
		// kinds needing resolution through Resolve.
		return nil, &aiserr.MissingRefError{RefPath: "detect:" + d.Kind + " (requires async resolution)"}
	}

	out, err := opts.Detect.Resolve(ctx, d)
	if err != nil {
		return nil, err
	}
	if sub, ok := out.(*Ref); ok {
		return resolve(ctx, root, sub, opts, async)
	}
	return out, nil
}

// rootCapabilities reads ctx.capabilities off the Runtime Root, the
// pack-declared capability set, as a fallback to the per-call
// opts.Capabilities an engine/solver caller supplies explicitly.
func rootCapabilities(root *Root) []string {
	if root == nil {
		return nil
	}
	v, ok := root.Get("ctx.capabilities")
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		if s, ok := c.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// HasTemplateRefs reports whether a raw string looks like a bare dotted
// path reference (used by callers deciding whether to wrap a literal in
// a ref ValueRef versus a lit one). Not part of the wire format; no
// loader in this module calls it.
func HasTemplateRefs(s string) bool {
	return strings.Contains(s, ".")
}
