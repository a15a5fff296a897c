// Package writecache buffers topic writes made while disconnected and keeps
// the per-connection publisher handles used to send them.
//
// The Cache holds at most one pending value per topic; a later write to the
// same topic replaces the earlier one. Publishers maps topic names to the
// publication handles of the current connection and is Reset whenever the
// connection is replaced, since handles do not survive a reconnect.
//
// Flush replays the cache through a freshly connected client. Replay is
// at-most-once: the cache is drained before anything is sent, so an entry
// whose publish fails is reported and dropped, not re-queued.
package writecache
