package value

import (
	"errors"
	"fmt"
)

// ErrUnsupportedValueType is returned when a value cannot be published.
var ErrUnsupportedValueType = errors.New("not a valid topic value type")

// Type is the wire type of a topic.
type Type string

const (
	TypeBoolean      Type = "boolean"
	TypeDouble       Type = "double"
	TypeInt          Type = "int"
	TypeFloat        Type = "float"
	TypeString       Type = "string"
	TypeRaw          Type = "raw"
	TypeBooleanArray Type = "boolean[]"
	TypeDoubleArray  Type = "double[]"
	TypeIntArray     Type = "int[]"
	TypeFloatArray   Type = "float[]"
	TypeStringArray  Type = "string[]"
)

// String returns the wire name of the type.
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if t is a known wire type.
func (t Type) IsValid() bool {
	switch t {
	case TypeBoolean, TypeDouble, TypeInt, TypeFloat, TypeString, TypeRaw,
		TypeBooleanArray, TypeDoubleArray, TypeIntArray, TypeFloatArray, TypeStringArray:
		return true
	default:
		return false
	}
}

// ParseType validates a wire type name.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown topic type %q", s)
	}
	return t, nil
}

// TypeOf returns the wire type a value is published as.
func TypeOf(v Value) (Type, error) {
	switch v.kind {
	case KindFloat:
		return TypeDouble, nil
	case KindString:
		return TypeString, nil
	case KindBoolean:
		return TypeBoolean, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedValueType, v.raw)
	}
}
