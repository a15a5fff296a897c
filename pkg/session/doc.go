// Package session owns the single active server connection and the state
// shared by connect, write and routing.
//
// A Manager holds the connection slot and an injected State with three
// independently guarded parts: the subscription registry, the publisher
// registry and the write cache. Locks are always taken in the order
//
//	connection slot -> publishers -> write cache
//
// and the subscription registry is never locked together with the others.
//
// StartClient installs a new connection: it notifies the sink, stops the
// previous Message Router without waiting for it, starts a router for the
// new client, clears the publisher registry and replays cached writes.
// Cache replay is at-most-once and a replay error does not prevent the new
// connection from being installed.
//
// Write holds the connection slot in shared mode for its whole duration, so
// a write racing a connect is either cached before the replay drains the
// cache or sent live on the new connection. It is never lost or duplicated.
package session
