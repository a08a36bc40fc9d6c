// Package types defines foreman's domain model: the Job record and its
// Status lifecycle (PENDING -> QUEUED -> RUNNING -> {SUCCEEDED, FAILED},
// with FAILED/RUNNING able to reset to PENDING and CANCELED terminal from
// any non-terminal state). Submission log entries, inbox entries, and
// membership/heartbeat keys are plain strings owned by pkg/queue; this
// package only holds what every other package needs to agree on.
package types
