package tandem

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind identifies the variant held by a Value.
type ValueKind int

const (
	// KindNull is the zero Value.
	KindNull ValueKind = iota
	// KindString holds a string.
	KindString
	// KindInt holds an int64.
	KindInt
	// KindFloat holds a float64.
	KindFloat
	// KindBool holds a bool.
	KindBool
	// KindList holds an ordered sequence of Values.
	KindList
	// KindMap holds a string-keyed map of Values.
	KindMap
)

// Value is a dynamically-typed datum carried in input contexts and output
// structured data. It is a tagged union over string, integer, float, bool,
// list, and map, and round-trips losslessly through JSON. Consumers switch
// on Kind() or use the As* accessors; there are no runtime casts to chase.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
	list []Value
	obj  map[string]Value
}

// String creates a string Value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Int creates an integer Value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float creates a floating-point Value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Bool creates a boolean Value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// List creates a sequence Value.
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }

// Map creates a map Value. The map is held by reference; callers must not
// mutate it after construction.
func Map(m map[string]Value) Value { return Value{kind: KindMap, obj: m} }

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is the zero Value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string variant. ok is false for any other kind.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsInt returns the integer variant. ok is false for any other kind.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the numeric value as float64. Both integer and float
// variants qualify; ok is false otherwise.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsBool returns the boolean variant. ok is false for any other kind.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsList returns the sequence variant. ok is false for any other kind.
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// AsMap returns the map variant. ok is false for any other kind.
func (v Value) AsMap() (map[string]Value, bool) { return v.obj, v.kind == KindMap }

// Text renders the value for prompt interpolation: primitives render bare
// (no quotes), composites render as compact JSON.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// Equal reports deep equality of two Values. Integer and float variants are
// distinct even when numerically equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == o.s
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, vv := range v.obj {
			ov, ok := o.obj[k]
			if !ok || !vv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.s)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("unsupported float value %v", v.f)
		}
		// Integral floats keep a decimal point so they decode back as floats.
		b := strconv.AppendFloat(nil, v.f, 'g', -1, 64)
		if !bytes.ContainsAny(b, ".eE") {
			b = append(b, '.', '0')
		}
		return b, nil
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindMap:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.obj)
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

// UnmarshalJSON implements json.Unmarshaler. Numbers without a fractional
// part or exponent decode as integers; everything else as floats.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromAny converts a decoded-JSON value (string, bool, json.Number, float64,
// int variants, []any, map[string]any, nil) into a Value. Returns an error
// for unsupported Go types.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Value{}, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case float64:
		return Float(x), nil
	case json.Number:
		if !strings.ContainsAny(x.String(), ".eE") {
			if i, err := x.Int64(); err == nil {
				return Int(i), nil
			}
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case []any:
		list := make([]Value, len(x))
		for i, e := range x {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			list[i] = ev
		}
		return List(list...), nil
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = ev
		}
		return Map(m), nil
	case Value:
		return x, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

// ToAny converts a Value back to plain Go types (string, int64, float64,
// bool, []any, map[string]any, nil). Useful for json.Marshal interop.
func (v Value) ToAny() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.ToAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.ToAny()
		}
		return out
	}
	return nil
}
