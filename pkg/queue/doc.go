// Package queue implements the Redis-backed structures that sit alongside
// the Job Store: the submission log (a Stream with a consumer group), per
// worker inboxes (Lists), the membership set, and heartbeat keys. None of
// these are authoritative — losing any of them is recoverable because the
// Job Store retains enough state for the reconciler to rebuild from.
package queue
