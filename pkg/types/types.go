package types

import "time"

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCanceled  Status = "CANCELED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// DefaultMaxRetries is applied to jobs submitted without an explicit value.
const DefaultMaxRetries = 3

// ResultCap is the byte cap a job's combined output is truncated to.
const ResultCap = 64 * 1024

// Job is the durable record of a single submitted unit of work.
type Job struct {
	ID             string    `json:"id"`
	Status         Status    `json:"status"`
	Command        []string  `json:"command,omitempty"`
	Image          string    `json:"image"`
	Script         string    `json:"script,omitempty"`
	AssignedWorker string    `json:"assigned_worker,omitempty"`
	RetryCount     int       `json:"retry_count"`
	MaxRetries     int       `json:"max_retries"`
	Result         string    `json:"result,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	FinishedAt     time.Time `json:"finished_at,omitempty"`
}

// Clone returns a deep-enough copy safe for a caller to mutate independently.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Command != nil {
		cp.Command = append([]string(nil), j.Command...)
	}
	return &cp
}

// CanRetry reports whether a FAILED job still has budget for another attempt.
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}
