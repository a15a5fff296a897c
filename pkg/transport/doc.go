// Package transport carries ntbridge frames over TCP.
//
// Each frame is a 4-byte big-endian length followed by a CBOR payload
// (see package wire). The transport answers Ping with Pong and Close with
// Close on the server side; every other frame is handed to the caller.
//
// Clients run a KeepAlive that pings the server periodically and closes
// the connection after MaxMissedPongs unanswered pings, so a dead peer is
// detected even when no topic traffic flows.
//
// A protocol capture logger (package log) can be attached to both sides to
// record raw frames and connection state changes.
package transport
