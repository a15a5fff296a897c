// Package protocol defines the client capability the session layer consumes.
//
// A Dialer opens a Client against a server address. A Client subscribes to
// topic patterns, yielding a Subscription whose Next method blocks until the
// next Message arrives, and publishes values through per-topic Publisher
// handles that stay valid for the lifetime of that Client only.
//
// The session layer depends on these interfaces alone; pkg/ntclient provides
// the implementation that speaks the ntbridge wire protocol.
package protocol
