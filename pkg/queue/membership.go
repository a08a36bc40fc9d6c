package queue

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// AvailableWorkersSet is the membership set: workers register themselves
// here, and both the scheduler and the reconciler lazily remove identities
// whose heartbeat key has expired.
const AvailableWorkersSet = "available_workers"

func heartbeatKey(workerID string) string {
	return "worker:heartbeat:" + workerID
}

// Membership tracks worker identities and their heartbeat liveness.
type Membership struct {
	rdb *goredis.Client
}

func NewMembership(rdb *goredis.Client) *Membership {
	return &Membership{rdb: rdb}
}

// Register adds workerID to the membership set. Idempotent.
func (m *Membership) Register(ctx context.Context, workerID string) error {
	return m.rdb.SAdd(ctx, AvailableWorkersSet, workerID).Err()
}

// Deregister removes workerID from the membership set, e.g. on graceful
// shutdown.
func (m *Membership) Deregister(ctx context.Context, workerID string) error {
	return m.rdb.SRem(ctx, AvailableWorkersSet, workerID).Err()
}

// Heartbeat refreshes workerID's liveness key with the given TTL. Call on
// an interval of ttl/2.
func (m *Membership) Heartbeat(ctx context.Context, workerID string, ttl time.Duration) error {
	return m.rdb.Set(ctx, heartbeatKey(workerID), "1", ttl).Err()
}

// IsAlive reports whether workerID's heartbeat key currently exists.
func (m *Membership) IsAlive(ctx context.Context, workerID string) (bool, error) {
	n, err := m.rdb.Exists(ctx, heartbeatKey(workerID)).Result()
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return n > 0, nil
}

// LiveWorkers returns the members of the set whose heartbeat is still
// alive, removing (lazy cleanup) any member it finds dead along the way.
func (m *Membership) LiveWorkers(ctx context.Context) ([]string, error) {
	members, err := m.rdb.SMembers(ctx, AvailableWorkersSet).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers: %w", err)
	}

	live := make([]string, 0, len(members))
	for _, w := range members {
		alive, err := m.IsAlive(ctx, w)
		if err != nil {
			return nil, err
		}
		if alive {
			live = append(live, w)
			continue
		}
		_ = m.Deregister(ctx, w)
	}
	return live, nil
}
