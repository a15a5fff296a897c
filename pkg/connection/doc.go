// Package connection provides retry pacing and connection state for the
// session manager.
//
// # Retry Strategy
//
// When the Message Router's broad subscription fails, it waits before the
// next attempt using exponential backoff:
//
//  1. Initial delay: 100 milliseconds
//  2. Exponential increase: 200ms, 400ms, 800ms, ...
//  3. Maximum delay: 5 seconds
//  4. After MaxAttempts consecutive failures the backoff is exhausted
//  5. Reset to the initial delay after a successful subscribe
//
// MaxAttempts of zero never exhausts.
//
// # Jitter
//
// To keep several bridges from retrying in lockstep against one server:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
package connection
