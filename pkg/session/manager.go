package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ntbridge/ntbridge-go/pkg/connection"
	"github.com/ntbridge/ntbridge-go/pkg/metrics"
	"github.com/ntbridge/ntbridge-go/pkg/protocol"
	"github.com/ntbridge/ntbridge-go/pkg/router"
	"github.com/ntbridge/ntbridge-go/pkg/value"
	"github.com/ntbridge/ntbridge-go/pkg/writecache"
)

// EventConnected is emitted with a boolean payload when a connection is
// installed (true) or lost because its router gave up (false).
const EventConnected = "Connect-client"

// DefaultConnectTimeout bounds a connect attempt.
const DefaultConnectTimeout = 3 * time.Second

// LevelTrace is below slog.LevelDebug and used for per-call registry logs.
const LevelTrace = slog.Level(-8)

// EventSink receives events for the presentation layer.
type EventSink interface {
	Emit(event string, payload any) error
}

// Config configures a Manager.
type Config struct {
	ConnectTimeout time.Duration
	Router         router.Config
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records session and router metrics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithState injects shared state. By default the Manager creates its own.
func WithState(s *State) Option {
	return func(m *Manager) {
		if s != nil {
			m.state = s
		}
	}
}

// conn is an installed client paired with its router.
type conn struct {
	id      string
	address string
	since   time.Time
	client  protocol.Client
	router  *router.Router
}

// Manager owns the connection slot.
type Manager struct {
	cfg    Config
	dialer protocol.Dialer
	sink   EventSink
	state  *State

	logger  *slog.Logger
	metrics *metrics.Metrics

	// Connection slot. Write holds it shared for its whole duration.
	mu         sync.RWMutex
	current    *conn
	connecting int
	closed     bool

	// Parent of every router context.
	ctx    context.Context
	cancel context.CancelFunc

	// Tracks goroutines that close clients after their router exits.
	wg sync.WaitGroup
}

// NewManager creates a disconnected Manager.
func NewManager(cfg Config, dialer protocol.Dialer, sink EventSink, opts ...Option) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	m := &Manager{
		cfg:    cfg,
		dialer: dialer,
		sink:   sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.state == nil {
		m.state = NewState()
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// State returns the shared state.
func (m *Manager) State() *State {
	return m.state
}

// StartClient connects to address and installs the connection, replacing
// any previous one. A cache replay error is returned after the connection
// is installed.
func (m *Manager) StartClient(ctx context.Context, address string) error {
	if err := ValidateAddress(address); err != nil {
		m.metrics.Connect(metrics.ResultInvalid)
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.connecting++
	m.mu.Unlock()

	client, err := m.dialer.Dial(ctx, address, m.cfg.ConnectTimeout)

	m.mu.Lock()
	m.connecting--
	m.mu.Unlock()

	if err != nil {
		m.metrics.Connect(metrics.ResultFailed)
		return fmt.Errorf("%w: %s: %v", ErrConnectionFailed, address, err)
	}

	return m.install(ctx, address, client)
}

// install announces and activates a dialed client. The closed check and the
// Connect-client notification share the slot lock, so a manager closed
// during the dial never reports a connection.

func (m *Manager) install(ctx context.Context, address string, client protocol.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		_ = client.Close()
		return ErrClosed
	}

	m.logger.Info("connected", "address", address)
	if err := m.sink.Emit(EventConnected, true); err != nil {
		m.metrics.Connect(metrics.ResultFailed)
		_ = client.Close()
		return fmt.Errorf("%w: %s: %v", ErrNotify, EventConnected, err)
	}

	if old := m.current; old != nil {
		m.logger.Debug("stopping previous router", "conn_id", old.id, "address", old.address)
		old.router.Stop()
	}

	c := &conn{
		id:      uuid.New().String(),
		address: address,
		since:   time.Now(),
		client:  client,
	}
	logger := m.logger.With("conn_id", c.id, "address", address)
	c.router = router.Start(m.ctx, client, m.state.Subscriptions, m.sink, m.cfg.Router,
		router.WithLogger(logger),
		router.WithMetrics(m.metrics),
		router.WithOnFailure(func(err error) { m.routerFailed(c, err) }),
	)
	m.wg.Add(1)
	go m.closeWhenDone(c)

	m.state.Publishers.Reset()

	logger.Info("writing cache", "pending", m.state.Cache.Entries())
	published, flushErr := writecache.Flush(ctx, client, m.state.Cache, m.state.Publishers)
	logger.Info("writing cache done", "published", published, "pending", m.state.Cache.Len())

	m.current = c
	m.metrics.Connect(metrics.ResultOK)
	m.metrics.SetConnected(true)
	m.metrics.SetPendingWrites(0)

	if flushErr != nil {
		m.metrics.FlushFailures(countJoined(flushErr))
		logger.Warn("cached writes failed", "error", flushErr)
		return fmt.Errorf("connected to %s with failed cached writes: %w", address, flushErr)
	}
	return nil
}

// closeWhenDone closes the client once its router has exited.
func (m *Manager) closeWhenDone(c *conn) {
	defer m.wg.Done()
	<-c.router.Done()
	if err := c.client.Close(); err != nil {
		m.logger.Debug("close client", "conn_id", c.id, "error", err)
	}
}

// routerFailed uninstalls c after its router gave up.
func (m *Manager) routerFailed(c *conn, err error) {
	m.mu.Lock()
	if m.current != c {
		m.mu.Unlock()
		return
	}
	m.current = nil
	m.state.Publishers.Reset()
	m.mu.Unlock()

	m.metrics.SetConnected(false)
	m.logger.Error("connection lost", "conn_id", c.id, "address", c.address, "error", err)
	if err := m.sink.Emit(EventConnected, false); err != nil {
		m.logger.Warn("notify disconnect", "error", err)
	}
}

// Write publishes v to topic, or caches it while disconnected. Every
// accepted write is echoed to the sink with timestamp 0.
func (m *Manager) Write(ctx context.Context, topic string, v value.Value) error {
	typ, err := value.TypeOf(v)
	if err != nil {
		m.metrics.Write(metrics.PathRejected)
		return fmt.Errorf("write %q: %w", topic, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	echo := protocol.Message{Timestamp: 0, Value: v, TopicName: topic, Type: typ}
	if err := m.sink.Emit(topic, echo); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotify, topic, err)
	}

	if m.current == nil {
		m.logger.Log(ctx, LevelTrace, "cache writing", "topic", topic, "value", v)
		m.state.Cache.Put(topic, v)
		m.metrics.Write(metrics.PathCached)
		m.metrics.SetPendingWrites(m.state.Cache.Len())
		return nil
	}

	m.logger.Debug("writing", "topic", topic, "value", v)
	created, err := m.state.Publishers.Publish(ctx, m.current.client, topic, v, typ)
	if created {
		m.metrics.PublisherCreated()
	}
	if err != nil {
		return err
	}
	m.metrics.Write(metrics.PathLive)
	return nil
}

// Subscribe registers interest in topic and returns its new count.
func (m *Manager) Subscribe(topic string) int {
	n := m.state.Subscriptions.Subscribe(topic)
	m.logger.Log(context.Background(), LevelTrace, "subscribing", "topic", topic, "count", n)
	m.metrics.SetSubscriptions(m.state.Subscriptions.Len())
	return n
}

// Unsubscribe drops one interest in topic.
func (m *Manager) Unsubscribe(topic string) error {
	n, err := m.state.Subscriptions.Unsubscribe(topic)
	if err != nil {
		return fmt.Errorf("unsubscribe %q: %w", topic, err)
	}
	m.logger.Log(context.Background(), LevelTrace, "unsubscribing", "topic", topic, "count", n)
	m.metrics.SetSubscriptions(m.state.Subscriptions.Len())
	return nil
}

// Status is a point-in-time snapshot of the session.
type Status struct {
	State         connection.State `json:"state"`
	Address       string           `json:"address,omitempty"`
	ConnectionID  string           `json:"connection_id,omitempty"`
	Since         time.Time        `json:"since,omitzero"`
	Router        string           `json:"router,omitempty"`
	Subscriptions []string         `json:"subscriptions"`
	PendingWrites int              `json:"pending_writes"`
	Publishers    int              `json:"publishers"`
}

// Status returns a snapshot of the session.
func (m *Manager) Status() Status {
	m.mu.RLock()
	st := Status{State: connection.StateDisconnected}
	switch {
	case m.closed:
		st.State = connection.StateClosed
	case m.current != nil:
		st.State = connection.StateConnected
		st.Address = m.current.address
		st.ConnectionID = m.current.id
		st.Since = m.current.since
		st.Router = m.current.router.State().String()
	case m.connecting > 0:
		st.State = connection.StateConnecting
	}
	m.mu.RUnlock()

	st.Subscriptions = m.state.Subscriptions.Topics()
	st.PendingWrites = m.state.Cache.Len()
	st.Publishers = m.state.Publishers.Len()
	return st
}

// Connected reports whether a connection is installed.
func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil
}

// Close stops the current router, closes every client and waits for the
// background goroutines to exit. Pending cached writes are discarded.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.current = nil
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.metrics.SetConnected(false)
	return nil
}

// countJoined returns how many errors an errors.Join result carries.
func countJoined(err error) int {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return len(joined.Unwrap())
	}
	return 1
}
