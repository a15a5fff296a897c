package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ntbridge/ntbridge-go/pkg/log"
	"github.com/ntbridge/ntbridge-go/pkg/wire"
)

// DefaultPort is the server port used when an address has none.
const DefaultPort = 5810

// DefaultConnectTimeout bounds the TCP dial when the context has no deadline.
const DefaultConnectTimeout = 3 * time.Second

// ErrConnectionClosed is returned for operations on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// WithDefaultPort appends DefaultPort to a bare host.
func WithDefaultPort(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, strconv.Itoa(DefaultPort))
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// MaxMessageSize is the maximum frame payload (default: 256 KB).
	MaxMessageSize uint32

	// ConnectTimeout is the dial timeout (default: 3s).
	ConnectTimeout time.Duration

	// KeepAlive configures liveness probing. Zero fields take defaults.
	KeepAlive KeepAliveConfig

	// DisableKeepAlive turns liveness probing off.
	DisableKeepAlive bool

	// Logger records frames and state changes (optional).
	Logger log.Logger
}

// Client dials framed TCP connections.
type Client struct {
	config ClientConfig
}

// NewClient creates a client.
func NewClient(config ClientConfig) *Client {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	return &Client{config: config}
}

// Connect dials address and starts keep-alive probing.
func (c *Client) Connect(ctx context.Context, address string) (*ClientConn, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	connID := uuid.New().String()
	framer := NewFramerWithMaxSize(conn, c.config.MaxMessageSize)
	if c.config.Logger != nil {
		framer.SetLogger(c.config.Logger, connID, log.RoleClient)
	}

	cc := &ClientConn{
		conn:    conn,
		framer:  framer,
		connID:  connID,
		logger:  c.config.Logger,
		closeCh: make(chan struct{}),
	}
	cc.logState("", "CONNECTED", "")

	if !c.config.DisableKeepAlive {
		cc.keepAlive = NewKeepAlive(c.config.KeepAlive, cc.SendPing, func() {
			cc.closeWithReason("keep-alive timeout")
		})
		cc.keepAlive.Start(context.Background())
	}

	return cc, nil
}

// ClientConn is a connection from client to server.
type ClientConn struct {
	conn      net.Conn
	framer    *Framer
	connID    string
	logger    log.Logger
	keepAlive *KeepAlive
	closeCh   chan struct{}

	closeOnce sync.Once
	readMu    sync.Mutex
}

// ConnID returns the unique connection identifier.
func (c *ClientConn) ConnID() string {
	return c.connID
}

// LocalAddr returns the local network address.
func (c *ClientConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// KeepAliveStats returns keep-alive statistics. ok is false when keep-alive
// is disabled.
func (c *ClientConn) KeepAliveStats() (stats KeepAliveStats, ok bool) {
	if c.keepAlive == nil {
		return KeepAliveStats{}, false
	}
	return c.keepAlive.Stats(), true
}

// Send writes one frame to the server.
func (c *ClientConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Receive returns the next non-control frame. Pings are answered, pongs feed
// the keep-alive and a close frame ends the connection.
func (c *ClientConn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
	}

	for {
		select {
		case <-c.closeCh:
			return nil, ErrConnectionClosed
		default:
		}

		data, err := c.framer.ReadFrame()
		if err != nil {
			select {
			case <-c.closeCh:
				return nil, ErrConnectionClosed
			default:
			}
			return nil, err
		}

		kind, seq, ok := DecodeControl(data)
		if !ok {
			return data, nil
		}
		switch kind {
		case wire.KindPing:
			if pong, err := EncodePong(seq); err == nil {
				_ = c.Send(pong)
			}
		case wire.KindPong:
			if c.keepAlive != nil {
				c.keepAlive.PongReceived(seq)
			}
		case wire.KindClose:
			c.closeWithReason("closed by peer")
			return nil, ErrConnectionClosed
		}
	}
}

// SendPing sends a ping with the given sequence.
func (c *ClientConn) SendPing(seq uint32) error {
	msg, err := EncodePing(seq)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// SendClose sends a close frame.
func (c *ClientConn) SendClose(reason string) error {
	msg, err := EncodeClose(reason)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// Close closes the connection. It is safe to call more than once.
func (c *ClientConn) Close() error {
	return c.closeWithReason("")
}

func (c *ClientConn) closeWithReason(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
		if c.keepAlive != nil {
			// The timeout callback runs on the keep-alive goroutine.
			go c.keepAlive.Stop()
		}
		c.logState("CONNECTED", "DISCONNECTED", reason)
	})
	return err
}

func (c *ClientConn) logState(oldState, newState, reason string) {
	if c.logger == nil {
		return
	}
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    log.RoleClient,
		RemoteAddr:   c.conn.RemoteAddr().String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}
