package ntclient

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ntbridge/ntbridge-go/pkg/log"
	"github.com/ntbridge/ntbridge-go/pkg/protocol"
	"github.com/ntbridge/ntbridge-go/pkg/transport"
)

type options struct {
	logger           *slog.Logger
	capture          log.Logger
	keepAlive        transport.KeepAliveConfig
	disableKeepAlive bool
	maxMessageSize   uint32
}

// Option configures a Dialer.
type Option func(*options)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCapture records every frame sent and received to l.
func WithCapture(l log.Logger) Option {
	return func(o *options) { o.capture = l }
}

// WithKeepAlive sets the keep-alive configuration. Zero fields take defaults.
func WithKeepAlive(cfg transport.KeepAliveConfig) Option {
	return func(o *options) { o.keepAlive = cfg }
}

// WithoutKeepAlive disables keep-alive probing.
func WithoutKeepAlive() Option {
	return func(o *options) { o.disableKeepAlive = true }
}

// WithMaxMessageSize limits frame payloads.
func WithMaxMessageSize(n uint32) Option {
	return func(o *options) { o.maxMessageSize = n }
}

// Dialer opens Clients. It implements protocol.Dialer.
type Dialer struct {
	opts options
}

var _ protocol.Dialer = (*Dialer)(nil)

// NewDialer creates a dialer.
func NewDialer(opts ...Option) *Dialer {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Dialer{opts: o}
}

// Dial connects to address (host:port).
func (d *Dialer) Dial(ctx context.Context, address string, timeout time.Duration) (protocol.Client, error) {
	return d.DialClient(ctx, address, timeout)
}

// DialClient is Dial returning the concrete client.
func (d *Dialer) DialClient(ctx context.Context, address string, timeout time.Duration) (*Client, error) {
	tc := transport.NewClient(transport.ClientConfig{
		MaxMessageSize:   d.opts.maxMessageSize,
		ConnectTimeout:   timeout,
		KeepAlive:        d.opts.keepAlive,
		DisableKeepAlive: d.opts.disableKeepAlive,
		Logger:           d.opts.capture,
	})

	conn, err := tc.Connect(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", address, err)
	}

	d.opts.logger.Debug("connected", "address", address, "conn_id", conn.ConnID())
	return newClient(conn, d.opts), nil
}
