package value

import (
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAnyNormalizesNumbers(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
	}{
		{"int", 4, 4},
		{"int64", int64(-7), -7},
		{"uint8", uint8(200), 200},
		{"uint64", uint64(1 << 40), 1 << 40},
		{"float32", float32(1.5), 1.5},
		{"float64", 4.0, 4},
		{"json.Number", json.Number("4"), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := FromAny(tt.in)
			f, ok := v.AsFloat()
			require.True(t, ok, "kind = %s", v.Kind())
			assert.Equal(t, tt.want, f)
		})
	}
}

func TestFromAnyOtherKinds(t *testing.T) {
	assert.Equal(t, KindString, FromAny("ok").Kind())
	assert.Equal(t, KindBoolean, FromAny(true).Kind())
	assert.Equal(t, KindUnsupported, FromAny(nil).Kind())
	assert.Equal(t, KindUnsupported, FromAny([]any{1, 2}).Kind())
	assert.Equal(t, KindUnsupported, FromAny([]byte{0x01}).Kind())
	assert.Equal(t, KindUnsupported, FromAny(json.Number("nope")).Kind())

	// A Value passes through unchanged.
	assert.True(t, FromAny(String("x")).Equal(String("x")))
}

func TestIntegerAndFloatAreIdentical(t *testing.T) {
	assert.True(t, FromAny(4).Equal(FromAny(4.0)))
	assert.True(t, FromAny(uint16(4)).Equal(Float(4)))
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		name    string
		v       Value
		want    Type
		wantErr bool
	}{
		{"Float", Float(4), TypeDouble, false},
		{"String", String("ok"), TypeString, false},
		{"Boolean", Boolean(false), TypeBoolean, false},
		{"Array", Unsupported([]any{true}), "", true},
		{"Zero", Value{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TypeOf(tt.v)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedValueType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("double[]")
	require.NoError(t, err)
	assert.Equal(t, TypeDoubleArray, typ)

	_, err = ParseType("complex")
	assert.Error(t, err)
}

func TestJSON(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte(`4`), &v))
	f, ok := v.AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 4.0, f)

	require.NoError(t, json.Unmarshal([]byte(`"ready"`), &v))
	s, ok := v.AsString()
	assert.True(t, ok)
	assert.Equal(t, "ready", s)

	require.NoError(t, json.Unmarshal([]byte(`[1,2]`), &v))
	assert.Equal(t, KindUnsupported, v.Kind())

	data, err := json.Marshal(Boolean(true))
	require.NoError(t, err)
	assert.JSONEq(t, `true`, string(data))
}

func TestCBORIntegerDecodesAsFloat(t *testing.T) {
	data, err := cbor.Marshal(uint64(4))
	require.NoError(t, err)

	var v Value
	require.NoError(t, cbor.Unmarshal(data, &v))
	assert.True(t, v.Equal(Float(4)))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "FLOAT", KindFloat.String())
	assert.Equal(t, "UNSUPPORTED", Kind(42).String())
}
