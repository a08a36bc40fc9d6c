package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	// JobsStream is the durable ordered stream of accepted job IDs.
	JobsStream = "jobs_stream"
	// SchedulerGroup is the consumer group the active leader reads from.
	SchedulerGroup = "scheduler_group"

	jobIDField = "job_id"
)

// Delivery is one undelivered entry read from the submission log's consumer
// group: an opaque delivery identity and the job ID it carries.
type Delivery struct {
	ID    string
	JobID string
}

// SubmissionLog is the durable, append-only, at-least-once log of newly
// accepted job IDs, consumed by the active leader's scheduler loop.
type SubmissionLog struct {
	rdb *goredis.Client
}

func NewSubmissionLog(rdb *goredis.Client) *SubmissionLog {
	return &SubmissionLog{rdb: rdb}
}

// EnsureGroup creates the scheduler consumer group if it does not already
// exist. Safe to call from every replica and every restart.
func (l *SubmissionLog) EnsureGroup(ctx context.Context) error {
	err := l.rdb.XGroupCreateMkStream(ctx, JobsStream, SchedulerGroup, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Publish appends a job ID to the stream. Called by the acceptor on
// submission and by the reconciler's failed-retry pass.
func (l *SubmissionLog) Publish(ctx context.Context, jobID string) error {
	return l.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: JobsStream,
		Values: map[string]interface{}{jobIDField: jobID},
	}).Err()
}

// ErrNoDelivery is returned by Read when the block window elapses with
// nothing delivered.
var ErrNoDelivery = errors.New("no delivery")

// Read blocks up to block for the next undelivered entry for consumer.
func (l *SubmissionLog) Read(ctx context.Context, consumer string, block time.Duration) (Delivery, error) {
	res, err := l.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    SchedulerGroup,
		Consumer: consumer,
		Streams:  []string{JobsStream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, goredis.Nil) {
		return Delivery{}, ErrNoDelivery
	}
	if err != nil {
		return Delivery{}, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return Delivery{}, ErrNoDelivery
	}

	msg := res[0].Messages[0]
	jobID, _ := msg.Values[jobIDField].(string)
	return Delivery{ID: msg.ID, JobID: jobID}, nil
}

// Ack acknowledges a delivery, signaling it was handled (possibly as a
// no-op) and should not be redelivered.
func (l *SubmissionLog) Ack(ctx context.Context, deliveryID string) error {
	return l.rdb.XAck(ctx, JobsStream, SchedulerGroup, deliveryID).Err()
}
