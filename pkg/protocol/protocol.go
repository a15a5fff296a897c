package protocol

import (
	"context"
	"errors"
	"time"

	"github.com/ntbridge/ntbridge-go/pkg/value"
)

// Protocol errors.
var (
	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("client closed")

	// ErrSubscriptionClosed is returned by Next once a subscription has ended.
	ErrSubscriptionClosed = errors.New("subscription closed")

	// ErrUnknownPublisher is returned when a publisher handle does not belong
	// to the client it is used with.
	ErrUnknownPublisher = errors.New("unknown publisher")
)

// Message is a topic update received from the server.
type Message struct {
	// Timestamp is the server time of the update in microseconds.
	// Local echoes of writes use 0.
	Timestamp int64 `json:"timestamp" cbor:"1,keyasint"`

	// Value is the payload.
	Value value.Value `json:"data" cbor:"2,keyasint"`

	// TopicName is the full topic name.
	TopicName string `json:"topic_name" cbor:"3,keyasint"`

	// Type is the announced wire type of the topic.
	Type value.Type `json:"type" cbor:"4,keyasint"`
}

// SubscriptionOptions controls what the server delivers for a subscription.
type SubscriptionOptions struct {
	// Prefix matches every topic whose name starts with a pattern.
	Prefix bool `cbor:"1,keyasint,omitempty"`

	// All delivers every value change instead of only the latest per period.
	All bool `cbor:"2,keyasint,omitempty"`

	// Periodic is the requested update period. Zero leaves the server default.
	Periodic time.Duration `cbor:"3,keyasint,omitempty"`

	// TopicsOnly delivers announcements without values.
	TopicsOnly bool `cbor:"4,keyasint,omitempty"`
}

// Dialer opens client connections.
type Dialer interface {
	// Dial connects to address (host:port), giving up after timeout.
	Dial(ctx context.Context, address string, timeout time.Duration) (Client, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, address string, timeout time.Duration) (Client, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, address string, timeout time.Duration) (Client, error) {
	return f(ctx, address, timeout)
}

// Client is an open protocol session.
type Client interface {
	// Subscribe starts a subscription to the given topic patterns.
	Subscribe(ctx context.Context, patterns []string, opts SubscriptionOptions) (Subscription, error)

	// PublishTopic announces that this client publishes name with type typ.
	PublishTopic(ctx context.Context, name string, typ value.Type) (Publisher, error)

	// PublishValue sends a value through a publisher obtained from this client.
	PublishValue(ctx context.Context, pub Publisher, v value.Value) error

	// Close terminates the session. Pending subscriptions end.
	Close() error
}

// Subscription is a lazy stream of messages.
type Subscription interface {
	// Next blocks until the next message arrives. It returns
	// ErrSubscriptionClosed once the stream ended (unsubscribed or the
	// connection dropped) and ctx.Err() when ctx is cancelled.
	Next(ctx context.Context) (Message, error)

	// Unsubscribe ends the subscription on the server.
	Unsubscribe(ctx context.Context) error
}

// Publisher is a handle for writing values to one topic.
type Publisher interface {
	// Topic returns the published topic name.
	Topic() string

	// Type returns the published topic type.
	Type() value.Type
}
