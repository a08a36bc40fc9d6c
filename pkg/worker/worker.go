// Package worker implements the agent loop that pulls assigned jobs from
// its own inbox and executes them via the containerd executor.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridgeline/foreman/pkg/log"
	"github.com/ridgeline/foreman/pkg/metrics"
	"github.com/ridgeline/foreman/pkg/queue"
	"github.com/ridgeline/foreman/pkg/storage"
	"github.com/ridgeline/foreman/pkg/types"
)

const popTimeout = 5 * time.Second

// inboxPopper is the subset of *queue.Inbox the worker needs.
type inboxPopper interface {
	Pop(ctx context.Context, workerID string, block time.Duration) (string, error)
}

// membershipClient is the subset of *queue.Membership the worker needs.
type membershipClient interface {
	Register(ctx context.Context, workerID string) error
	Deregister(ctx context.Context, workerID string) error
	Heartbeat(ctx context.Context, workerID string, ttl time.Duration) error
}

// jobRunner is the subset of *executor.Executor the worker needs. Narrowed
// to an interface so intake can be tested without a containerd socket.
type jobRunner interface {
	Run(ctx context.Context, image string, command []string, script string) (int, string, error)
}

// jobController is the subset of *api.Client the worker needs to observe and
// transition job state. Workers never open the Job Store directly: bbolt
// takes an exclusive per-process file lock, so the serve replica holding the
// scheduler and reconciler is the only process that may open it. Every
// transition a worker makes is instead an RPC to that replica, which is how
// the scheduler and reconciler see it.
type jobController interface {
	GetJob(ctx context.Context, id string) (*types.Job, error)
	StartJob(ctx context.Context, id string) (bool, error)
	CompleteJob(ctx context.Context, id string, status types.Status, result string) (bool, error)
}

// Worker pulls jobs assigned to id and runs them to completion.
type Worker struct {
	id         string
	jobs       jobController
	inbox      inboxPopper
	membership membershipClient
	exec       jobRunner

	heartbeatTTL time.Duration
	logger       zerolog.Logger
}

func New(id string, jobs jobController, inbox inboxPopper, membership membershipClient, exec jobRunner, heartbeatTTL time.Duration) *Worker {
	return &Worker{
		id:           id,
		jobs:         jobs,
		inbox:        inbox,
		membership:   membership,
		exec:         exec,
		heartbeatTTL: heartbeatTTL,
		logger:       log.WithComponent("worker").With().Str("worker_id", id).Logger(),
	}
}

// Run registers this worker's identity, starts its heartbeat loop, and then
// pulls and executes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.membership.Register(ctx, w.id); err != nil {
		return err
	}
	defer func() {
		deregCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.membership.Deregister(deregCtx, w.id)
	}()

	go w.heartbeatLoop(ctx)

	w.logger.Info().Msg("worker loop starting")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("worker loop stopping")
			return nil
		default:
		}

		if err := w.intakeOne(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error().Err(err).Msg("intake cycle failed")
		}
	}
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.heartbeatTTL / 2)
	defer ticker.Stop()

	if err := w.membership.Heartbeat(ctx, w.id, w.heartbeatTTL); err != nil {
		w.logger.Error().Err(err).Msg("initial heartbeat failed")
	}

	for {
		select {
		case <-ticker.C:
			if err := w.membership.Heartbeat(ctx, w.id, w.heartbeatTTL); err != nil {
				w.logger.Error().Err(err).Msg("heartbeat failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// intakeOne pops the next job ID from this worker's inbox and executes it.
func (w *Worker) intakeOne(ctx context.Context) error {
	jobID, err := w.inbox.Pop(ctx, w.id, popTimeout)
	if errors.Is(err, queue.ErrInboxEmpty) {
		return nil
	}
	if err != nil {
		return err
	}

	job, err := w.jobs.GetJob(ctx, jobID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}

	started, err := w.jobs.StartJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !started {
		return nil
	}

	timer := metrics.NewTimer()
	exitCode, output, runErr := w.exec.Run(ctx, job.Image, job.Command, job.Script)
	timer.ObserveDuration(metrics.ExecutionDuration)

	if runErr != nil {
		// Run reserves a non-nil error for context cancellation; the job
		// stays RUNNING and the reconciler recovers it once this worker's
		// heartbeat lapses, rather than marking a shutdown as FAILED.
		return runErr
	}

	status := types.StatusSucceeded
	if exitCode != 0 {
		status = types.StatusFailed
	}

	outcome := "succeeded"
	if status == types.StatusFailed {
		outcome = "failed"
	}
	metrics.JobsExecutedTotal.WithLabelValues(outcome).Inc()

	if _, err := w.jobs.CompleteJob(ctx, jobID, status, output); err != nil {
		return err
	}

	w.logger.Info().Str("job_id", jobID).Str("status", string(status)).Int("exit_code", exitCode).Msg("job finished")
	return nil
}
