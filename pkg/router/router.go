package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ntbridge/ntbridge-go/pkg/connection"
	"github.com/ntbridge/ntbridge-go/pkg/metrics"
	"github.com/ntbridge/ntbridge-go/pkg/protocol"
)

// ErrRetriesExhausted is reported when the broad subscription could not be
// re-established within the configured number of attempts.
var ErrRetriesExhausted = errors.New("broad subscription retries exhausted")

// DefaultUnsubscribeTimeout bounds the cleanup unsubscribe after a cancel.
const DefaultUnsubscribeTimeout = 500 * time.Millisecond

// State is the router's position in its state machine.
type State uint8

const (
	StateSubscribing State = iota
	StateListening
	StateUnsubscribing
	StateCancelled
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateSubscribing:
		return "SUBSCRIBING"
	case StateListening:
		return "LISTENING"
	case StateUnsubscribing:
		return "UNSUBSCRIBING"
	case StateCancelled:
		return "CANCELLED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Sink receives forwarded updates.
type Sink interface {
	Emit(event string, payload any) error
}

// Filter decides whether an update has a local subscriber.
type Filter interface {
	IsSubscribed(topic string) bool
}

// Config tunes retry behavior.
type Config struct {
	Backoff            connection.BackoffConfig
	UnsubscribeTimeout time.Duration
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records routing counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithOnFailure registers a callback invoked from the router goroutine when
// it enters StateFailed. It is not called on cancellation.
func WithOnFailure(fn func(err error)) Option {
	return func(r *Router) {
		r.onFailure = fn
	}
}

// Router is the background listener bound to one client.
type Router struct {
	client protocol.Client
	filter Filter
	sink   Sink
	cfg    Config

	logger    *slog.Logger
	metrics   *metrics.Metrics
	onFailure func(error)

	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state State
	err   error
}

// Start launches a Router for client. It runs until Stop is called, ctx is
// cancelled, or retries are exhausted.
func Start(ctx context.Context, client protocol.Client, filter Filter, sink Sink, cfg Config, opts ...Option) *Router {
	if cfg.UnsubscribeTimeout <= 0 {
		cfg.UnsubscribeTimeout = DefaultUnsubscribeTimeout
	}

	r := &Router{
		client: client,
		filter: filter,
		sink:   sink,
		cfg:    cfg,
		logger: slog.Default(),
		done:   make(chan struct{}),
		state:  StateSubscribing,
	}
	for _, opt := range opts {
		opt(r)
	}

	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx)
	return r
}

// Stop signals the router to exit and returns immediately.
func (r *Router) Stop() {
	r.cancel()
}

// Done is closed when the router goroutine has exited.
func (r *Router) Done() <-chan struct{} {
	return r.done
}

// State returns the current state.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns why the router stopped, or nil while it runs.
func (r *Router) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Router) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}

func (r *Router) finish(s State, err error) {
	r.mu.Lock()
	r.state = s
	r.err = err
	r.mu.Unlock()
}

func (r *Router) run(ctx context.Context) {
	defer close(r.done)
	defer r.cancel()

	backoff := connection.NewBackoffWithConfig(r.cfg.Backoff)
	attempt := 0

	for {
		r.setState(StateSubscribing)
		if attempt > 0 {
			r.metrics.Resubscribe()
		}
		attempt++

		sub, err := r.client.Subscribe(ctx, []string{""}, protocol.SubscriptionOptions{Prefix: true, All: true})
		if err != nil {
			if ctx.Err() != nil {
				r.finish(StateCancelled, ctx.Err())
				return
			}
			r.logger.Warn("broad subscribe failed", "error", err, "attempt", attempt)
			if !r.pause(ctx, backoff, err) {
				return
			}
			continue
		}

		r.setState(StateListening)
		received := r.listen(ctx, sub)

		r.setState(StateUnsubscribing)
		r.unsubscribe(ctx, sub)

		if ctx.Err() != nil {
			r.finish(StateCancelled, ctx.Err())
			return
		}

		if received {
			backoff.Reset()
			continue
		}
		if !r.pause(ctx, backoff, protocol.ErrSubscriptionClosed) {
			return
		}
	}
}

// pause waits before the next attempt. It returns false when the router
// must exit, having recorded the terminal state.
func (r *Router) pause(ctx context.Context, backoff *connection.Backoff, cause error) bool {
	err := backoff.Wait(ctx)
	switch {
	case err == nil:
		return true
	case errors.Is(err, connection.ErrBackoffExhausted):
		failure := fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, backoff.Attempts()+1, cause)
		r.finish(StateFailed, failure)
		r.metrics.RouterFailed()
		r.logger.Error("router giving up", "error", failure)
		if r.onFailure != nil {
			r.onFailure(failure)
		}
		return false
	default:
		r.finish(StateCancelled, err)
		return false
	}
}

// listen forwards messages until the stream ends. It reports whether any
// message was received.
func (r *Router) listen(ctx context.Context, sub protocol.Subscription) bool {
	received := false
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Debug("broad subscription ended", "error", err)
			}
			return received
		}
		received = true

		if !r.filter.IsSubscribed(msg.TopicName) {
			r.metrics.MessageDropped()
			continue
		}

		if err := r.sink.Emit(msg.TopicName, msg); err != nil {
			r.logger.Warn("forward failed", "topic", msg.TopicName, "error", err)
			continue
		}
		r.metrics.MessageForwarded()
	}
}

func (r *Router) unsubscribe(ctx context.Context, sub protocol.Subscription) {
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.UnsubscribeTimeout)
	defer cancel()

	if err := sub.Unsubscribe(uctx); err != nil {
		r.logger.Debug("unsubscribe failed", "error", err)
	}
}
