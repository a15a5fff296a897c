package transport

import (
	"time"

	"github.com/ntbridge/ntbridge-go/pkg/wire"
)

// EncodePing encodes a ping frame.
func EncodePing(seq uint32) ([]byte, error) {
	return wire.Encode(wire.KindPing, wire.Ping{Sequence: seq, Timestamp: time.Now().UnixMicro()})
}

// EncodePong encodes a pong frame answering seq.
func EncodePong(seq uint32) ([]byte, error) {
	return wire.Encode(wire.KindPong, wire.Pong{Sequence: seq, Timestamp: time.Now().UnixMicro()})
}

// EncodeClose encodes a close frame.
func EncodeClose(reason string) ([]byte, error) {
	return wire.Encode(wire.KindClose, wire.Close{Reason: reason})
}

// DecodeControl decodes a control frame. ok is false for non-control
// frames and undecodable data.
func DecodeControl(data []byte) (kind wire.Kind, seq uint32, ok bool) {
	kind, err := wire.PeekKind(data)
	if err != nil || !kind.IsControl() {
		return kind, 0, false
	}

	f, err := wire.Decode(data)
	if err != nil {
		return kind, 0, false
	}

	switch kind {
	case wire.KindPing:
		if p, err := wire.DecodeBody[wire.Ping](f); err == nil {
			seq = p.Sequence
		}
	case wire.KindPong:
		if p, err := wire.DecodeBody[wire.Pong](f); err == nil {
			seq = p.Sequence
		}
	}
	return kind, seq, true
}
