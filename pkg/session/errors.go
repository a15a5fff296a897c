package session

import (
	"errors"

	"github.com/ntbridge/ntbridge-go/pkg/subscription"
	"github.com/ntbridge/ntbridge-go/pkg/value"
	"github.com/ntbridge/ntbridge-go/pkg/writecache"
)

// Session errors.
var (
	// ErrInvalidAddress is returned when a connect target is not host:port.
	// No network attempt is made.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrConnectionFailed wraps dial timeouts and handshake failures.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNotify is returned when an event could not be delivered to the sink.
	ErrNotify = errors.New("notify failed")

	// ErrClosed is returned by operations on a closed Manager.
	ErrClosed = errors.New("session closed")

	// ErrPublish wraps protocol failures creating a publisher or sending a value.
	ErrPublish = writecache.ErrPublish

	// ErrNotSubscribed is returned by Unsubscribe for a topic with no subscribers.
	ErrNotSubscribed = subscription.ErrNotSubscribed

	// ErrUnsupportedValueType is returned when writing a value that is not a
	// number, string or boolean.
	ErrUnsupportedValueType = value.ErrUnsupportedValueType
)
