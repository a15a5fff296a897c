package transport

import (
	"context"
	"net"
	"time"
)

// ServerConnection is the server side of one client connection.
type ServerConnection interface {
	// ConnID returns the identifier assigned when the connection was
	// accepted. It is stable for the life of the connection.
	ConnID() string

	// RemoteAddr returns the client's address.
	RemoteAddr() net.Addr

	// Send writes one data frame to the client.
	Send(data []byte) error

	// Close shuts the connection down. Further sends fail.
	Close() error
}

// ClientConnection is a connection to a server.
type ClientConnection interface {
	// ConnID returns the identifier assigned when the connection was
	// dialed.
	ConnID() string

	// LocalAddr returns the local end of the connection.
	LocalAddr() net.Addr

	// RemoteAddr returns the server's address.
	RemoteAddr() net.Addr

	// Send writes one data frame to the server.
	Send(data []byte) error

	// Receive returns the next non-control frame. A zero timeout waits
	// until a frame arrives or the connection closes.
	Receive(timeout time.Duration) ([]byte, error)

	// SendPing writes a ping control frame carrying seq. The server answers
	// with a pong holding the same sequence number.
	SendPing(seq uint32) error

	// SendClose tells the server the client is leaving and why. It does not
	// close the underlying connection.
	SendClose(reason string) error

	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// TransportServer accepts framed connections.
type TransportServer interface {
	// Start begins listening and accepting connections. It returns once the
	// listener is bound; accepting continues until ctx is done or Stop is
	// called.
	Start(ctx context.Context) error

	// Stop closes the listener and every open connection.
	Stop() error

	// Addr returns the bound listener address, or nil before Start.
	Addr() net.Addr

	// ConnectionCount returns the number of open connections.
	ConnectionCount() int
}

// FrameReadWriter provides length-prefixed frame I/O.
type FrameReadWriter interface {
	// ReadFrame reads one frame and returns its payload without the
	// length prefix.
	ReadFrame() ([]byte, error)

	// WriteFrame writes data as one frame.
	WriteFrame(data []byte) error
}

var (
	_ ServerConnection = (*ServerConn)(nil)
	_ ClientConnection = (*ClientConn)(nil)
	_ TransportServer  = (*Server)(nil)
	_ FrameReadWriter  = (*Framer)(nil)
)
