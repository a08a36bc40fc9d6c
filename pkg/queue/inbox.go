package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrInboxEmpty is returned by Pop when the blocking window elapses with
// nothing pushed.
var ErrInboxEmpty = errors.New("inbox empty")

// Inbox is a worker's own durable FIFO of assigned job IDs.
type Inbox struct {
	rdb *goredis.Client
}

func NewInbox(rdb *goredis.Client) *Inbox {
	return &Inbox{rdb: rdb}
}

func inboxKey(workerID string) string {
	return "worker_queue:" + workerID
}

// Push appends jobID to workerID's inbox. Called by the scheduler after an
// assignment commits.
func (i *Inbox) Push(ctx context.Context, workerID, jobID string) error {
	return i.rdb.RPush(ctx, inboxKey(workerID), jobID).Err()
}

// Pop blocks up to timeout for the next job ID in workerID's inbox.
func (i *Inbox) Pop(ctx context.Context, workerID string, timeout time.Duration) (string, error) {
	res, err := i.rdb.BLPop(ctx, timeout, inboxKey(workerID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrInboxEmpty
	}
	if err != nil {
		return "", fmt.Errorf("blpop: %w", err)
	}
	if len(res) != 2 {
		return "", ErrInboxEmpty
	}
	return res[1], nil
}
