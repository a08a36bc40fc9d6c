// Package scheduler implements the leader-only loop that turns submission
// log deliveries into worker inbox assignments.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridgeline/foreman/pkg/log"
	"github.com/ridgeline/foreman/pkg/metrics"
	"github.com/ridgeline/foreman/pkg/queue"
	"github.com/ridgeline/foreman/pkg/storage"
	"github.com/ridgeline/foreman/pkg/types"
)

const (
	readBlock       = 2 * time.Second
	noWorkerBackoff = 2 * time.Second
)

// submissionReader is the subset of *queue.SubmissionLog the scheduler
// needs. Narrowed to an interface so the loop can be tested without Redis.
type submissionReader interface {
	Read(ctx context.Context, consumer string, block time.Duration) (queue.Delivery, error)
	Ack(ctx context.Context, deliveryID string) error
}

// liveWorkerLister is the subset of *queue.Membership the scheduler needs.
type liveWorkerLister interface {
	LiveWorkers(ctx context.Context) ([]string, error)
}

// inboxPusher is the subset of *queue.Inbox the scheduler needs.
type inboxPusher interface {
	Push(ctx context.Context, workerID, jobID string) error
}

// Scheduler assigns pending jobs to live workers.
type Scheduler struct {
	store      storage.Store
	subLog     submissionReader
	membership liveWorkerLister
	inbox      inboxPusher

	consumer string
	logger   zerolog.Logger
}

func New(store storage.Store, subLog submissionReader, membership liveWorkerLister, inbox inboxPusher, consumer string) *Scheduler {
	return &Scheduler{
		store:      store,
		subLog:     subLog,
		membership: membership,
		inbox:      inbox,
		consumer:   consumer,
		logger:     log.WithComponent("scheduler"),
	}
}

// Run drives scheduleOne in a loop until ctx is cancelled, which happens the
// instant this process loses leadership.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().Msg("scheduler loop starting")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler loop stopping")
			return
		default:
		}

		if err := s.scheduleOne(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("scheduling cycle failed")
		}
	}
}

// scheduleOne performs one cycle: read the next undelivered submission,
// assign it to a live worker, push it to that worker's inbox, and ack.
func (s *Scheduler) scheduleOne(ctx context.Context) error {
	delivery, err := s.subLog.Read(ctx, s.consumer, readBlock)
	if errors.Is(err, queue.ErrNoDelivery) {
		return nil
	}
	if err != nil {
		return err
	}

	timer := metrics.NewTimer()

	live, err := s.membership.LiveWorkers(ctx)
	if err != nil {
		return err
	}
	if len(live) == 0 {
		s.logger.Warn().Msg("no live workers, deferring delivery")
		select {
		case <-time.After(noWorkerBackoff):
		case <-ctx.Done():
		}
		return nil
	}
	sort.Strings(live)
	worker := live[0]

	job, err := s.store.GetJob(delivery.JobID)
	if errors.Is(err, storage.ErrNotFound) {
		return s.subLog.Ack(ctx, delivery.ID)
	}
	if err != nil {
		return err
	}
	if job.Status != types.StatusPending {
		return s.subLog.Ack(ctx, delivery.ID)
	}

	changed, err := s.store.AssignJob(job.ID, worker)
	if err != nil {
		return err
	}
	if !changed {
		return s.subLog.Ack(ctx, delivery.ID)
	}

	if err := s.inbox.Push(ctx, worker, job.ID); err != nil {
		return err
	}

	if err := s.subLog.Ack(ctx, delivery.ID); err != nil {
		return err
	}

	timer.ObserveDuration(metrics.SchedulingLatency)
	metrics.JobsScheduledTotal.Inc()
	s.logger.Info().Str("job_id", job.ID).Str("worker_id", worker).Msg("assigned job")
	return nil
}
