// Package statemachine centralizes the Job status transition graph so that
// every caller (scheduler, reconciler, worker, acceptor) validates edges the
// same way. A disallowed edge is reported, not panicked on: callers treat it
// as an idempotent no-op per the at-least-once delivery model.
package statemachine

import "github.com/ridgeline/foreman/pkg/types"

// Event names the reason for a requested transition.
type Event string

const (
	EventAssign      Event = "assign"       // PENDING -> QUEUED
	EventStart       Event = "start"        // QUEUED -> RUNNING
	EventSucceed     Event = "succeed"      // RUNNING -> SUCCEEDED
	EventFail        Event = "fail"         // RUNNING -> FAILED
	EventRetry       Event = "retry"        // FAILED -> PENDING
	EventWorkerLost  Event = "worker_lost"  // RUNNING or QUEUED -> PENDING
	EventRetriesGone Event = "retries_gone" // RUNNING or QUEUED -> FAILED (terminal)
	EventCancel      Event = "cancel"       // any non-terminal -> CANCELED
)

// edges enumerates every (from, event) pair this system allows.
var edges = map[types.Status]map[Event]types.Status{
	types.StatusPending: {
		EventAssign: types.StatusQueued,
		EventCancel: types.StatusCanceled,
	},
	types.StatusQueued: {
		EventStart:       types.StatusRunning,
		EventWorkerLost:  types.StatusPending,
		EventRetriesGone: types.StatusFailed,
		EventCancel:      types.StatusCanceled,
	},
	types.StatusRunning: {
		EventSucceed:     types.StatusSucceeded,
		EventFail:        types.StatusFailed,
		EventWorkerLost:  types.StatusPending,
		EventRetriesGone: types.StatusFailed,
		EventCancel:      types.StatusCanceled,
	},
	types.StatusFailed: {
		EventRetry: types.StatusPending,
	},
}

// Apply validates the (from, event) edge and returns the resulting status.
// ok is false when the edge is not in the graph; callers must treat that as
// a no-op rather than an error, since redelivery of a stale event is expected.
func Apply(from types.Status, ev Event) (to types.Status, ok bool) {
	to, ok = edges[from][ev]
	return to, ok
}
