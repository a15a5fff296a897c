// Package protocoltest provides test doubles for the protocol capability.
package protocoltest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ntbridge/ntbridge-go/pkg/protocol"
	"github.com/ntbridge/ntbridge-go/pkg/value"
)

// Client is a testify mock of protocol.Client.
type Client struct{ mock.Mock }

// NewClient creates a mock client whose expectations are asserted on cleanup.
func NewClient(t *testing.T) *Client {
	c := &Client{}
	c.Test(t)
	t.Cleanup(func() { c.AssertExpectations(t) })
	return c
}

func (c *Client) Subscribe(ctx context.Context, patterns []string, opts protocol.SubscriptionOptions) (protocol.Subscription, error) {
	ret := c.Called(ctx, patterns, opts)
	var sub protocol.Subscription
	if ret.Get(0) != nil {
		sub = ret.Get(0).(protocol.Subscription)
	}
	return sub, ret.Error(1)
}

func (c *Client) PublishTopic(ctx context.Context, name string, typ value.Type) (protocol.Publisher, error) {
	ret := c.Called(ctx, name, typ)
	var pub protocol.Publisher
	switch r := ret.Get(0).(type) {
	case func(context.Context, string, value.Type) protocol.Publisher:
		pub = r(ctx, name, typ)
	case protocol.Publisher:
		pub = r
	}
	return pub, ret.Error(1)
}

func (c *Client) PublishValue(ctx context.Context, pub protocol.Publisher, v value.Value) error {
	return c.Called(ctx, pub, v).Error(0)
}

func (c *Client) Close() error {
	return c.Called().Error(0)
}

// Dialer is a testify mock of protocol.Dialer.
type Dialer struct{ mock.Mock }

// NewDialer creates a mock dialer whose expectations are asserted on cleanup.
func NewDialer(t *testing.T) *Dialer {
	d := &Dialer{}
	d.Test(t)
	t.Cleanup(func() { d.AssertExpectations(t) })
	return d
}

func (d *Dialer) Dial(ctx context.Context, address string, timeout time.Duration) (protocol.Client, error) {
	ret := d.Called(ctx, address, timeout)
	var c protocol.Client
	if ret.Get(0) != nil {
		c = ret.Get(0).(protocol.Client)
	}
	return c, ret.Error(1)
}

// Publisher is a plain publisher handle.
type Publisher struct {
	Name string
	Typ  value.Type
}

func (p *Publisher) Topic() string    { return p.Name }
func (p *Publisher) Type() value.Type { return p.Typ }

// Stream is a channel-driven protocol.Subscription. Close the Messages
// channel to end the stream.
type Stream struct {
	Messages chan protocol.Message

	// UnsubscribeErr is returned by Unsubscribe.
	UnsubscribeErr error

	mu           sync.Mutex
	unsubscribed int
}

// NewStream creates a stream with a buffered message channel.
func NewStream() *Stream {
	return &Stream{Messages: make(chan protocol.Message, 16)}
}

// Next returns the next message, ErrSubscriptionClosed once Messages is
// closed, or ctx.Err().
func (s *Stream) Next(ctx context.Context) (protocol.Message, error) {
	select {
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	case msg, ok := <-s.Messages:
		if !ok {
			return protocol.Message{}, protocol.ErrSubscriptionClosed
		}
		return msg, nil
	}
}

// Unsubscribe records the call.
func (s *Stream) Unsubscribe(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed++
	return s.UnsubscribeErr
}

// Unsubscribed returns how many times Unsubscribe was called.
func (s *Stream) Unsubscribed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribed
}

var (
	_ protocol.Client       = (*Client)(nil)
	_ protocol.Dialer       = (*Dialer)(nil)
	_ protocol.Publisher    = (*Publisher)(nil)
	_ protocol.Subscription = (*Stream)(nil)
)
