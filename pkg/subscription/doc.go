// Package subscription tracks which topics the presentation layer is
// interested in.
//
// Interest is reference counted by literal topic name: every Subscribe call
// increments the count and every Unsubscribe call decrements it, so several
// independent widgets can watch the same topic and one of them going away
// does not silence the others. A topic is present in the Registry exactly
// while its count is at least one.
//
// The Registry is consulted by the message router for every incoming
// message, so IsSubscribed takes only a read lock.
package subscription
