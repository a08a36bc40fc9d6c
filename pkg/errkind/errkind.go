// Package errkind classifies errors that cross a component boundary into
// the kinds the error handling design distinguishes: TransientStore,
// LeadershipLost, BadState, ExecutionFailure, and Poison. Callers wrap a
// cause with one of the constructors and dispatch on kind with Is, rather
// than inspecting error strings.
package errkind

import "errors"

// Kind is a sentinel identifying one of the error categories.
type Kind error

var (
	// Transient marks a retryable failure talking to Raft, Redis, or the
	// Job Store. Retried with bounded backoff at the nearest loop boundary.
	Transient Kind = errors.New("transient store error")

	// LeadershipLost marks the end of a leader epoch. Leader-only tasks
	// must be cancelled and the process must resume observing for
	// reacquisition.
	LeadershipLost Kind = errors.New("leadership lost")

	// BadState marks a row found in an unexpected status — a duplicate or
	// late delivery. Treated as an idempotent no-op, never retried.
	BadState Kind = errors.New("job in unexpected state")

	// ExecutionFailure marks a non-zero container exit or executor error.
	// Reported as FAILED with captured output; the reconciler decides on
	// retry.
	ExecutionFailure Kind = errors.New("execution failure")

	// Poison marks a job that has exhausted every retry attempt.
	Poison Kind = errors.New("job exhausted retries")
)

type wrapped struct {
	kind Kind
	err  error
}

func (w *wrapped) Error() string { return w.kind.Error() + ": " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }
func (w *wrapped) Is(target error) bool {
	return target == w.kind
}

// Wrap associates cause with kind so that Is(err, kind) reports true while
// errors.Unwrap(err) still reaches cause.
func Wrap(kind Kind, cause error) error {
	if cause == nil {
		return nil
	}
	return &wrapped{kind: kind, err: cause}
}

// Is reports whether err (or something it wraps) was produced by Wrap with
// the given kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}
