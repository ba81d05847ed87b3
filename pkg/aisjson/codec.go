// Package aisjson implements the tagged JSON codec shared by events,
// checkpoints, and commands: it preserves big.Int and []byte values
// across JSON round-trips via tagged wrapper objects, the way the
// source's stringifyAisJson/parseAisJson pair does. Marshal/Unmarshal
// walk arbitrary Go values (structs, maps, slices) by reflection so
// typed envelopes can be routed through the same codec as their
// dynamic payload fields.
package aisjson

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"time"
)

const (
	typeTagKey = "__ais_json_type"
	bigintTag  = "bigint"
	bytesTag   = "bytes"
)

var (
	bigIntType    = reflect.TypeOf((*big.Int)(nil))
	bytesType     = reflect.TypeOf([]byte(nil))
	rawMsgType    = reflect.TypeOf(json.RawMessage(nil))
	timeType      = reflect.TypeOf(time.Time{})
	jsonMarshaler = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

// Marshal encodes v to JSON, tagging *big.Int and []byte values
// (wherever they appear, including nested inside structs) so Unmarshal
// can reconstruct them exactly.
func Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(tagValue(reflect.ValueOf(v)))
}

// Unmarshal decodes data into out, which must be a non-nil pointer. A
// *interface{} target receives the generic untagged tree (maps,
// slices, *big.Int, []byte); any other pointer target is populated
// field-by-field via its json struct tags.
func Unmarshal(data []byte, out interface{}) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	untagged := untagValue(raw)

	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("aisjson: Unmarshal target must be a non-nil pointer, got %T", out)
	}
	return assign(untagged, rv.Elem())
}

func tagValue(v reflect.Value) interface{} {
	if !v.IsValid() {
		return nil
	}
	if v.Type() == bigIntType {
		if v.IsNil() {
			return nil
		}
		return map[string]interface{}{typeTagKey: bigintTag, "value": v.Interface().(*big.Int).String()}
	}
	if v.Type() == bytesType {
		if v.IsNil() {
			return nil
		}
		return map[string]interface{}{typeTagKey: bytesTag, "value": base64.StdEncoding.EncodeToString(v.Interface().([]byte))}
	}
	if v.Type().Implements(jsonMarshaler) {
		return v.Interface()
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		return tagValue(v.Elem())
	case reflect.Map:
		out := make(map[string]interface{}, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = tagValue(iter.Value())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = tagValue(v.Index(i))
		}
		return out
	case reflect.Struct:
		out := make(map[string]interface{})
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" {
				continue // unexported
			}
			name, omitempty, skip := jsonFieldName(f)
			if skip {
				continue
			}
			fv := v.Field(i)
			if omitempty && isEmptyValue(fv) {
				continue
			}
			out[name] = tagValue(fv)
		}
		return out
	default:
		return v.Interface()
	}
}

func untagValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		if tag, ok := t[typeTagKey].(string); ok {
			switch tag {
			case bigintTag:
				if s, ok := t["value"].(string); ok {
					if n, ok := new(big.Int).SetString(s, 10); ok {
						return n
					}
				}
				return nil
			case bytesTag:
				if s, ok := t["value"].(string); ok {
					if b, err := base64.StdEncoding.DecodeString(s); err == nil {
						return b
					}
				}
				return nil
			}
		}
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = untagValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = untagValue(e)
		}
		return out
	default:
		return v
	}
}

// assign populates dest (addressable) from src, the generic tree
// produced by untagValue (maps/slices/strings/float64/bool/nil plus
// already-reconstructed *big.Int/[]byte leaves).
func assign(src interface{}, dest reflect.Value) error {
	if src == nil {
		return nil
	}
	if dest.Type() == bigIntType {
		if n, ok := src.(*big.Int); ok {
			dest.Set(reflect.ValueOf(n))
			return nil
		}
		if f, ok := src.(float64); ok {
			dest.Set(reflect.ValueOf(big.NewInt(int64(f))))
			return nil
		}
		return fmt.Errorf("aisjson: cannot assign %T to *big.Int", src)
	}
	if dest.Type() == bytesType {
		if b, ok := src.([]byte); ok {
			dest.SetBytes(b)
			return nil
		}
		return fmt.Errorf("aisjson: cannot assign %T to []byte", src)
	}
	if dest.Type() == rawMsgType {
		raw, err := json.Marshal(src)
		if err != nil {
			return err
		}
		dest.SetBytes(raw)
		return nil
	}
	if dest.Type() == timeType {
		s, ok := src.(string)
		if !ok {
			return fmt.Errorf("aisjson: cannot assign %T to time.Time", src)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		dest.Set(reflect.ValueOf(t))
		return nil
	}

	switch dest.Kind() {
	case reflect.Ptr:
		dest.Set(reflect.New(dest.Type().Elem()))
		return assign(src, dest.Elem())
	case reflect.Interface:
		dest.Set(reflect.ValueOf(src))
		return nil
	case reflect.Struct:
		m, ok := src.(map[string]interface{})
		if !ok {
			return fmt.Errorf("aisjson: cannot assign %T to struct %s", src, dest.Type())
		}
		t := dest.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" {
				continue
			}
			name, _, skip := jsonFieldName(f)
			if skip {
				continue
			}
			raw, ok := m[name]
			if !ok {
				continue
			}
			if err := assign(raw, dest.Field(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		m, ok := src.(map[string]interface{})
		if !ok {
			return fmt.Errorf("aisjson: cannot assign %T to map %s", src, dest.Type())
		}
		out := reflect.MakeMapWithSize(dest.Type(), len(m))
		for k, raw := range m {
			ev := reflect.New(dest.Type().Elem()).Elem()
			if err := assign(raw, ev); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(dest.Type().Key()), ev)
		}
		dest.Set(out)
		return nil
	case reflect.Slice:
		s, ok := src.([]interface{})
		if !ok {
			return fmt.Errorf("aisjson: cannot assign %T to slice %s", src, dest.Type())
		}
		out := reflect.MakeSlice(dest.Type(), len(s), len(s))
		for i, raw := range s {
			if err := assign(raw, out.Index(i)); err != nil {
				return err
			}
		}
		dest.Set(out)
		return nil
	case reflect.String:
		s, ok := src.(string)
		if !ok {
			return fmt.Errorf("aisjson: cannot assign %T to string", src)
		}
		dest.SetString(s)
		return nil
	case reflect.Bool:
		b, ok := src.(bool)
		if !ok {
			return fmt.Errorf("aisjson: cannot assign %T to bool", src)
		}
		dest.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f, ok := src.(float64)
		if !ok {
			return fmt.Errorf("aisjson: cannot assign %T to %s", src, dest.Type())
		}
		dest.SetInt(int64(f))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f, ok := src.(float64)
		if !ok {
			return fmt.Errorf("aisjson: cannot assign %T to %s", src, dest.Type())
		}
		dest.SetUint(uint64(f))
		return nil
	case reflect.Float32, reflect.Float64:
		f, ok := src.(float64)
		if !ok {
			return fmt.Errorf("aisjson: cannot assign %T to %s", src, dest.Type())
		}
		dest.SetFloat(f)
		return nil
	default:
		return fmt.Errorf("aisjson: unsupported destination kind %s", dest.Kind())
	}
}

// jsonFieldName mirrors the subset of encoding/json's struct tag rules
// this codec relies on: "-" skips the field, a first tag segment
// renames it, and a trailing ",omitempty" is honored by tagValue.
func jsonFieldName(f reflect.StructField) (name string, omitempty bool, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name = f.Name
	if tag == "" {
		return name, false, false
	}
	parts := splitTag(tag)
	if parts[0] != "" {
		name = parts[0]
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty, false
}

func splitTag(tag string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			parts = append(parts, tag[start:i])
			start = i + 1
		}
	}
	parts = append(parts, tag[start:])
	return parts
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return false
}
