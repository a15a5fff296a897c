package log

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// codec pairs the encoder and decoder modes used for capture files.
//
// Events are written with canonical key order and definite lengths so
// identical events always produce identical bytes, and timestamps are
// stored as RFC 3339 strings to keep nanosecond precision. Reading is
// lenient: duplicate keys resolve to the last value and unknown keys are
// skipped, so files written by newer builds still open.
type codec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCodec() (codec, error) {
	enc, err := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		return codec{}, fmt.Errorf("capture encoder: %w", err)
	}

	dec, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		return codec{}, fmt.Errorf("capture decoder: %w", err)
	}
	return codec{enc: enc, dec: dec}, nil
}

// events is built once; the options above are static, so a failure here is
// a programming error.
var events = func() codec {
	c, err := newCodec()
	if err != nil {
		panic(err)
	}
	return c
}()

// EncodeEvent encodes a single capture event.
func EncodeEvent(event Event) ([]byte, error) {
	return events.enc.Marshal(event)
}

// DecodeEvent decodes a single capture event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := events.dec.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// NewEncoder returns a stream encoder that appends events to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return events.enc.NewEncoder(w)
}

// NewDecoder returns a stream decoder that reads consecutive events from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return events.dec.NewDecoder(r)
}
