package wire

import (
	"github.com/ntbridge/ntbridge-go/pkg/protocol"
	"github.com/ntbridge/ntbridge-go/pkg/value"
)

// Subscribe requests updates for topics matching Patterns.
type Subscribe struct {
	SubUID   int32                        `cbor:"1,keyasint"`
	Patterns []string                     `cbor:"2,keyasint"`
	Options  protocol.SubscriptionOptions `cbor:"3,keyasint"`
}

// Unsubscribe ends a subscription.
type Unsubscribe struct {
	SubUID int32 `cbor:"1,keyasint"`
}

// Publish announces that the client will write Name with Type.
type Publish struct {
	PubUID int32      `cbor:"1,keyasint"`
	Name   string     `cbor:"2,keyasint"`
	Type   value.Type `cbor:"3,keyasint"`
}

// Unpublish withdraws a publisher.
type Unpublish struct {
	PubUID int32 `cbor:"1,keyasint"`
}

// Announce tells a subscriber that a topic exists.
//
// PubUID is set only on the announcement sent to the client whose Publish
// created the topic.
type Announce struct {
	Name   string     `cbor:"1,keyasint"`
	ID     int32      `cbor:"2,keyasint"`
	Type   value.Type `cbor:"3,keyasint"`
	PubUID *int32     `cbor:"4,keyasint,omitempty"`
}

// Unannounce tells a subscriber that a topic was removed.
type Unannounce struct {
	Name string `cbor:"1,keyasint"`
	ID   int32  `cbor:"2,keyasint"`
}

// Value carries one topic update. ID is a publisher UID from clients and
// a topic ID from the server. Timestamp is in microseconds.
type Value struct {
	ID        int32       `cbor:"1,keyasint"`
	Timestamp int64       `cbor:"2,keyasint"`
	Type      value.Type  `cbor:"3,keyasint"`
	Value     value.Value `cbor:"4,keyasint"`
}

// Ping is a keep-alive probe.
type Ping struct {
	Sequence  uint32 `cbor:"1,keyasint"`
	Timestamp int64  `cbor:"2,keyasint,omitempty"`
}

// Pong answers a Ping with the same sequence.
type Pong struct {
	Sequence  uint32 `cbor:"1,keyasint"`
	Timestamp int64  `cbor:"2,keyasint,omitempty"`
}

// Close announces a graceful shutdown.
type Close struct {
	Reason string `cbor:"1,keyasint,omitempty"`
}
