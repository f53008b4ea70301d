package types

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/rotisserie/eris"
)

// Kind discriminates the primitive carried by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
)

// String returns the JSON-visible kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a form field value: exactly one of null, string, number or bool.
// The zero Value is Null, the neutral empty value.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

// Null returns the neutral empty value.
func Null() Value { return Value{} }

// String wraps s.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps f. JSON has no NaN or infinity, so a non-finite f yields Null.
func Number(f float64) Value {
	if !IsFinite(f) {
		return Null()
	}
	return Value{kind: KindNumber, num: f}
}

// IsFinite reports whether f can be carried by a number Value.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Bool wraps b.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind reports which primitive v carries.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the neutral empty value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload and whether v is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the numeric payload and whether v is a number.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Bool returns the boolean payload and whether v is a bool.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Equal compares kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	default:
		return true
	}
}

// Interface returns the payload as nil, string, float64 or bool.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// String renders v for logs and summaries.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "null"
	}
}

// FromAny converts a decoded JSON primitive (or a Go numeric type) to a Value.
// Objects, arrays, other types and non-finite floats are rejected.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return finiteNumber(t)
	case float32:
		return finiteNumber(float64(t))
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, eris.Wrapf(err, "invalid number %q", t.String())
		}
		return finiteNumber(f)
	default:
		return Value{}, eris.Errorf("unsupported field value type %T", x)
	}
}

func finiteNumber(f float64) (Value, error) {
	if !IsFinite(f) {
		return Value{}, eris.Errorf("non-finite number %g", f)
	}
	return Number(f), nil
}

// MarshalJSON encodes v as a bare JSON primitive.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON accepts null, strings, numbers and booleans.
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

// ValuesToAny flattens a value map for callers that speak plain JSON.
func ValuesToAny(m map[string]Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}
