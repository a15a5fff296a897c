// Package router implements the per-connection Message Router.
//
// A Router holds one broad subscription (prefix match on the empty name)
// against its client and forwards every incoming update whose topic has a
// local subscriber to the event sink, keyed by topic name. Updates for
// topics nobody subscribed to are dropped.
//
// State machine:
//
//	Subscribing -> Listening -> Unsubscribing -> Subscribing ...
//	     |             |              |
//	     +-------------+--------------+--> Cancelled (Stop or parent ctx)
//	     |
//	     +--> Failed (MaxAttempts consecutive failures)
//
// Failed subscribe attempts, and streams that end before delivering
// anything, wait a bounded exponential backoff before the next attempt.
//
// Stop is fire-and-forget. The best-effort unsubscribe that follows a
// cancel runs on its own short deadline and may overlap the startup of the
// Router that replaces this one.
package router
