// Package storage defines the Job Store: the durable source of truth for
// job state, and the only cross-process mutable resource in the system.
// Every state-changing method loads the row, validates the transition via
// pkg/statemachine, and writes back in a single transaction — the
// load-check-write pattern that makes at-least-once delivery safe without
// distributed locks.
package storage

import "github.com/ridgeline/foreman/pkg/types"

// Store is the Job Store contract. Implementations must make each method
// atomic with respect to concurrent callers on the same job ID.
type Store interface {
	// CreateJob inserts job as given; the store does not set or check its
	// fields. The caller sets ID, Status (PENDING for a new submission),
	// Image, Command, Script, MaxRetries, and CreatedAt before calling.
	CreateJob(job *types.Job) error

	// GetJob returns the current row, or ErrNotFound if absent.
	GetJob(id string) (*types.Job, error)

	// ListJobs returns every job ordered by ascending CreatedAt.
	ListJobs() ([]*types.Job, error)

	// ListJobsByStatus returns jobs in the given status, ordered by
	// ascending CreatedAt.
	ListJobsByStatus(status types.Status) ([]*types.Job, error)

	// AssignJob transitions PENDING -> QUEUED and sets AssignedWorker.
	// If the row is not PENDING (already assigned, or missing), this is a
	// no-op and returns (false, nil) so the caller can ack and move on.
	AssignJob(id, workerID string) (bool, error)

	// StartJob transitions QUEUED -> RUNNING and sets StartedAt. A row
	// that is missing or not QUEUED is a no-op: (false, nil).
	StartJob(id string) (bool, error)

	// CompleteJob transitions RUNNING -> SUCCEEDED or RUNNING -> FAILED,
	// sets FinishedAt and Result (truncated to types.ResultCap). status must be
	// StatusSucceeded or StatusFailed.
	CompleteJob(id string, status types.Status, result string) (bool, error)

	// RecoverOrphan handles a RUNNING or QUEUED job whose assigned worker
	// has no live heartbeat: increments RetryCount and resets to PENDING,
	// or — if that would exceed MaxRetries — marks the job terminally
	// FAILED with a synthetic result. Returns the resulting status.
	RecoverOrphan(id, syntheticResult string) (types.Status, bool, error)

	// RetryFailed transitions FAILED -> PENDING for a job with retry
	// budget remaining, incrementing RetryCount. No-op if the row is not
	// FAILED or has no budget left.
	RetryFailed(id string) (bool, error)

	// CancelJob transitions any non-terminal job to CANCELED.
	CancelJob(id string) (bool, error)

	Close() error
}
