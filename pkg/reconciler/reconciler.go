// Package reconciler implements the leader-only two-pass sweep that
// recovers jobs orphaned by dead workers and re-queues failed jobs that
// still have retry budget.
package reconciler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridgeline/foreman/pkg/log"
	"github.com/ridgeline/foreman/pkg/metrics"
	"github.com/ridgeline/foreman/pkg/storage"
	"github.com/ridgeline/foreman/pkg/types"
)

const (
	// DefaultInterval is the default reconciliation cycle period R.
	DefaultInterval = 10 * time.Second
	// queuedGraceFactor is the multiplier on the heartbeat TTL H that
	// defines the grace period G = queuedGraceFactor * H for QUEUED rows.
	queuedGraceFactor = 3
)

// submissionPublisher is the subset of *queue.SubmissionLog the reconciler
// needs. Narrowed to an interface so pass B can be tested without Redis.
type submissionPublisher interface {
	Publish(ctx context.Context, jobID string) error
}

// livenessChecker is the subset of *queue.Membership the reconciler needs.
type livenessChecker interface {
	IsAlive(ctx context.Context, workerID string) (bool, error)
}

// Reconciler recovers orphaned jobs and re-queues failed jobs within their
// retry budget.
type Reconciler struct {
	store      storage.Store
	subLog     submissionPublisher
	membership livenessChecker

	interval    time.Duration
	queuedGrace time.Duration
	logger      zerolog.Logger
}

func New(store storage.Store, subLog submissionPublisher, membership livenessChecker, heartbeatTTL time.Duration) *Reconciler {
	interval := DefaultInterval
	return &Reconciler{
		store:       store,
		subLog:      subLog,
		membership:  membership,
		interval:    interval,
		queuedGrace: queuedGraceFactor * heartbeatTTL,
		logger:      log.WithComponent("reconciler"),
	}
}

// Run ticks every interval until ctx is cancelled, which happens the instant
// this process loses leadership.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciler loop starting")
	for {
		select {
		case <-ticker.C:
			if err := r.reconcile(ctx); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-ctx.Done():
			r.logger.Info().Msg("reconciler loop stopping")
			return
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	if err := r.passA(ctx); err != nil {
		r.logger.Error().Err(err).Msg("pass A failed")
	}
	if err := r.passB(ctx); err != nil {
		r.logger.Error().Err(err).Msg("pass B failed")
	}
	return nil
}

// passA recovers jobs whose assigned worker has no live heartbeat: RUNNING
// jobs unconditionally, and QUEUED jobs older than the grace period (this
// covers a scheduler crash between assignment commit and inbox push).
func (r *Reconciler) passA(ctx context.Context) error {
	running, err := r.store.ListJobsByStatus(types.StatusRunning)
	if err != nil {
		return err
	}
	queued, err := r.store.ListJobsByStatus(types.StatusQueued)
	if err != nil {
		return err
	}

	now := time.Now()
	candidates := make([]*types.Job, 0, len(running)+len(queued))
	candidates = append(candidates, running...)
	for _, j := range queued {
		if now.Sub(j.CreatedAt) >= r.queuedGrace {
			candidates = append(candidates, j)
		}
	}

	for _, job := range candidates {
		alive, err := r.workerAlive(ctx, job.AssignedWorker)
		if err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("membership check failed")
			continue
		}
		if alive {
			continue
		}

		to, recovered, err := r.store.RecoverOrphan(job.ID, "worker lost")
		if err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("recover orphan failed")
			continue
		}
		if !recovered {
			continue
		}

		pass := "a_pending"
		if to == types.StatusFailed {
			pass = "a_exhausted"
		}
		metrics.JobsRecoveredTotal.WithLabelValues(pass).Inc()
		r.logger.Info().Str("job_id", job.ID).Str("new_status", string(to)).Msg("recovered orphaned job")
	}
	return nil
}

// passB re-queues FAILED jobs that still have retry budget.
func (r *Reconciler) passB(ctx context.Context) error {
	failed, err := r.store.ListJobsByStatus(types.StatusFailed)
	if err != nil {
		return err
	}

	for _, job := range failed {
		if !job.CanRetry() {
			continue
		}

		changed, err := r.store.RetryFailed(job.ID)
		if err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("retry failed job failed")
			continue
		}
		if !changed {
			continue
		}

		if err := r.subLog.Publish(ctx, job.ID); err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("re-publish to submission log failed")
			continue
		}

		metrics.JobsRecoveredTotal.WithLabelValues("b_retry").Inc()
		r.logger.Info().Str("job_id", job.ID).Msg("re-queued failed job")
	}
	return nil
}

func (r *Reconciler) workerAlive(ctx context.Context, workerID string) (bool, error) {
	if workerID == "" {
		return false, nil
	}
	return r.membership.IsAlive(ctx, workerID)
}
