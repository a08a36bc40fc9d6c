package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgeline/foreman/pkg/queue"
	"github.com/ridgeline/foreman/pkg/storage"
	"github.com/ridgeline/foreman/pkg/types"
)

type fakeSubLog struct {
	deliveries []queue.Delivery
	acked      []string
	published  []string
}

func (f *fakeSubLog) Read(ctx context.Context, consumer string, block time.Duration) (queue.Delivery, error) {
	if len(f.deliveries) == 0 {
		return queue.Delivery{}, queue.ErrNoDelivery
	}
	d := f.deliveries[0]
	f.deliveries = f.deliveries[1:]
	return d, nil
}

func (f *fakeSubLog) Ack(ctx context.Context, deliveryID string) error {
	f.acked = append(f.acked, deliveryID)
	return nil
}

func (f *fakeSubLog) Publish(ctx context.Context, jobID string) error {
	f.published = append(f.published, jobID)
	return nil
}

type fakeMembership struct {
	workers []string
}

func (f *fakeMembership) LiveWorkers(ctx context.Context) ([]string, error) {
	return f.workers, nil
}

type fakeInbox struct {
	pushed map[string][]string
}

func newFakeInbox() *fakeInbox { return &fakeInbox{pushed: make(map[string][]string)} }

func (f *fakeInbox) Push(ctx context.Context, workerID, jobID string) error {
	f.pushed[workerID] = append(f.pushed[workerID], jobID)
	return nil
}

func TestScheduleOne_AssignsToLowestSortedWorker(t *testing.T) {
	store := storage.NewMemoryStore()
	job := &types.Job{ID: "job-1", Status: types.StatusPending, Image: "alpine", MaxRetries: 3, CreatedAt: time.Now()}
	require.NoError(t, store.CreateJob(job))

	subLog := &fakeSubLog{deliveries: []queue.Delivery{{ID: "d-1", JobID: "job-1"}}}
	membership := &fakeMembership{workers: []string{"worker-b", "worker-a"}}
	inbox := newFakeInbox()

	s := New(store, subLog, membership, inbox, "consumer-1")
	require.NoError(t, s.scheduleOne(context.Background()))

	got, err := store.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusQueued, got.Status)
	assert.Equal(t, "worker-a", got.AssignedWorker)
	assert.Equal(t, []string{"job-1"}, inbox.pushed["worker-a"])
	assert.Equal(t, []string{"d-1"}, subLog.acked)
}

func TestScheduleOne_NoLiveWorkersDefersWithoutAck(t *testing.T) {
	store := storage.NewMemoryStore()
	job := &types.Job{ID: "job-1", Status: types.StatusPending, Image: "alpine", MaxRetries: 3, CreatedAt: time.Now()}
	require.NoError(t, store.CreateJob(job))

	subLog := &fakeSubLog{deliveries: []queue.Delivery{{ID: "d-1", JobID: "job-1"}}}
	membership := &fakeMembership{}
	inbox := newFakeInbox()

	s := New(store, subLog, membership, inbox, "consumer-1")
	require.NoError(t, s.scheduleOne(context.Background()))

	assert.Empty(t, subLog.acked)
	got, err := store.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)
}

func TestScheduleOne_DuplicateDeliveryIsAckedAsNoOp(t *testing.T) {
	store := storage.NewMemoryStore()
	job := &types.Job{ID: "job-1", Status: types.StatusRunning, Image: "alpine", MaxRetries: 3, CreatedAt: time.Now()}
	require.NoError(t, store.CreateJob(job))

	subLog := &fakeSubLog{deliveries: []queue.Delivery{{ID: "d-1", JobID: "job-1"}}}
	membership := &fakeMembership{workers: []string{"worker-a"}}
	inbox := newFakeInbox()

	s := New(store, subLog, membership, inbox, "consumer-1")
	require.NoError(t, s.scheduleOne(context.Background()))

	assert.Equal(t, []string{"d-1"}, subLog.acked)
	assert.Empty(t, inbox.pushed)
}

func TestScheduleOne_MissingJobIsAckedAsNoOp(t *testing.T) {
	store := storage.NewMemoryStore()
	subLog := &fakeSubLog{deliveries: []queue.Delivery{{ID: "d-1", JobID: "does-not-exist"}}}
	membership := &fakeMembership{workers: []string{"worker-a"}}
	inbox := newFakeInbox()

	s := New(store, subLog, membership, inbox, "consumer-1")
	require.NoError(t, s.scheduleOne(context.Background()))

	assert.Equal(t, []string{"d-1"}, subLog.acked)
}
