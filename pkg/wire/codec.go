package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrUnknownKind is returned when decoding a frame with an unknown kind.
var ErrUnknownKind = errors.New("unknown frame kind")

// encMode is the CBOR encoder mode for frames.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for frames.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient for forward compatibility: unknown keys are ignored.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Frame is the envelope around every message.
type Frame struct {
	Kind Kind            `cbor:"1,keyasint"`
	Body cbor.RawMessage `cbor:"2,keyasint,omitempty"`
}

// Encode wraps body in a frame of the given kind. body may be nil.
func Encode(kind Kind, body any) ([]byte, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}

	f := Frame{Kind: kind}
	if body != nil {
		raw, err := Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", kind, err)
		}
		f.Body = raw
	}
	return Marshal(f)
}

// Decode parses a frame envelope. The body is left encoded; use Frame.Into
// or DecodeBody to read it.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	if !f.Kind.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, f.Kind)
	}
	return &f, nil
}

// Into decodes the frame body into v.
func (f *Frame) Into(v any) error {
	if len(f.Body) == 0 {
		return fmt.Errorf("%s frame has no body", f.Kind)
	}
	if err := Unmarshal(f.Body, v); err != nil {
		return fmt.Errorf("failed to decode %s body: %w", f.Kind, err)
	}
	return nil
}

// DecodeBody decodes the body of f as T.
func DecodeBody[T any](f *Frame) (T, error) {
	var body T
	err := f.Into(&body)
	return body, err
}

// PeekKind returns the kind of an encoded frame without decoding its body.
func PeekKind(data []byte) (Kind, error) {
	var peek struct {
		Kind Kind `cbor:"1,keyasint"`
	}
	if err := Unmarshal(data, &peek); err != nil {
		return 0, fmt.Errorf("failed to peek frame: %w", err)
	}
	return peek.Kind, nil
}
