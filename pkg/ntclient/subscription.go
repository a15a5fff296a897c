package ntclient

import (
	"context"
	"sync"

	"github.com/ntbridge/ntbridge-go/pkg/protocol"
	"github.com/ntbridge/ntbridge-go/pkg/wire"
)

type subscription struct {
	client   *Client
	uid      int32
	patterns []string
	opts     protocol.SubscriptionOptions
	signal   chan struct{}

	mu     sync.Mutex
	queue  []protocol.Message
	closed bool
}

var _ protocol.Subscription = (*subscription)(nil)

// Next blocks until a message is queued or the subscription ends. Queued
// messages are still returned after the end.
func (s *subscription) Next(ctx context.Context) (protocol.Message, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			msg := s.queue[0]
			s.queue[0] = protocol.Message{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return msg, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return protocol.Message{}, protocol.ErrSubscriptionClosed
		}

		select {
		case <-ctx.Done():
			return protocol.Message{}, ctx.Err()
		case <-s.signal:
		}
	}
}

// Unsubscribe ends the subscription. It is a no-op once the subscription
// has ended.
func (s *subscription) Unsubscribe(ctx context.Context) error {
	if _, ok := s.client.removeSub(s.uid); !ok {
		s.close()
		return nil
	}
	s.close()

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.client.send(wire.KindUnsubscribe, wire.Unsubscribe{SubUID: s.uid})
}

// push queues msg and reports whether an old message was dropped.
func (s *subscription) push(msg protocol.Message) (dropped bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if len(s.queue) >= MaxQueuedMessages {
		s.queue = s.queue[1:]
		dropped = true
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	s.notify()
	return dropped
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.notify()
}

func (s *subscription) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}
