package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindUnsupported Kind = iota
	KindFloat
	KindString
	KindBoolean
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "FLOAT"
	case KindString:
		return "STRING"
	case KindBoolean:
		return "BOOLEAN"
	default:
		return "UNSUPPORTED"
	}
}

// Value is a typed topic value. The zero Value is Unsupported(nil).
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
	raw  any
}

// Float returns a Float value.
func Float(f float64) Value {
	return Value{kind: KindFloat, num: f}
}

// String returns a String value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Boolean returns a Boolean value.
func Boolean(b bool) Value {
	return Value{kind: KindBoolean, b: b}
}

// Unsupported wraps a payload that cannot be published.
func Unsupported(raw any) Value {
	return Value{kind: KindUnsupported, raw: raw}
}

// FromAny converts a dynamically typed payload (as produced by JSON or CBOR
// decoding) into a Value, normalizing every numeric kind to Float.
func FromAny(v any) Value {
	switch x := v.(type) {
	case Value:
		return x
	case bool:
		return Boolean(x)
	case string:
		return String(x)
	case float64:
		return Float(x)
	case float32:
		return Float(float64(x))
	case int:
		return Float(float64(x))
	case int8:
		return Float(float64(x))
	case int16:
		return Float(float64(x))
	case int32:
		return Float(float64(x))
	case int64:
		return Float(float64(x))
	case uint:
		return Float(float64(x))
	case uint8:
		return Float(float64(x))
	case uint16:
		return Float(float64(x))
	case uint32:
		return Float(float64(x))
	case uint64:
		return Float(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Unsupported(x)
		}
		return Float(f)
	default:
		return Unsupported(v)
	}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind {
	return v.kind
}

// AsFloat returns the number held by a Float value.
func (v Value) AsFloat() (float64, bool) {
	return v.num, v.kind == KindFloat
}

// AsString returns the text held by a String value.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsBool returns the flag held by a Boolean value.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBoolean
}

// Interface returns the payload as a plain Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindFloat:
		return v.num
	case KindString:
		return v.str
	case KindBoolean:
		return v.b
	default:
		return v.raw
	}
}

// Equal reports whether two values hold the same variant and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	if v.kind == KindUnsupported {
		return reflect.DeepEqual(v.raw, o.raw)
	}
	return v.num == o.num && v.str == o.str && v.b == o.b
}

// String formats the payload for logs.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return fmt.Sprintf("%q", v.str)
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// MarshalJSON encodes the bare payload.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes any JSON payload, normalizing numbers.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return err
	}
	*v = FromAny(x)
	return nil
}

// MarshalCBOR encodes the bare payload.
func (v Value) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(v.Interface())
}

// UnmarshalCBOR decodes any CBOR payload, normalizing numbers.
func (v *Value) UnmarshalCBOR(data []byte) error {
	var x any
	if err := cbor.Unmarshal(data, &x); err != nil {
		return err
	}
	*v = FromAny(x)
	return nil
}
