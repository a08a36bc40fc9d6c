package worker

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

type fakeInbox struct {
	jobIDs []string
}

func (f *fakeInbox) Pop(ctx context.Context, workerID string, block time.Duration) (string, error) {
	if len(f.jobIDs) == 0 {
		return "", queue.ErrInboxEmpty
	}
	id := f.jobIDs[0]
	f.jobIDs = f.jobIDs[1:]
	return id, nil
}

type fakeMembership struct{}

func (fakeMembership) Register(ctx context.Context, workerID string) error   { return nil }
func (fakeMembership) Deregister(ctx context.Context, workerID string) error { return nil }
func (fakeMembership) Heartbeat(ctx context.Context, workerID string, ttl time.Duration) error {
	return nil
}

// fakeJobs backs jobController with an in-memory store, the same role
// *api.Client plays against a live serve replica.
type fakeJobs struct {
	store *storage.MemoryStore
}

func newFakeJobs() *fakeJobs { return &fakeJobs{store: storage.NewMemoryStore()} }

func (f *fakeJobs) GetJob(ctx context.Context, id string) (*types.Job, error) {
	return f.store.GetJob(id)
}

func (f *fakeJobs) StartJob(ctx context.Context, id string) (bool, error) {
	return f.store.StartJob(id)
}

func (f *fakeJobs) CompleteJob(ctx context.Context, id string, status types.Status, result string) (bool, error) {
	return f.store.CompleteJob(id, status, result)
}

type fakeRunner struct {
	exitCode int
	output   string
	err      error
}

func (f *fakeRunner) Run(ctx context.Context, image string, command []string, script string) (int, string, error) {
	return f.exitCode, f.output, f.err
}

func TestIntakeOne_SuccessfulRunMarksSucceeded(t *testing.T) {
	jobs := newFakeJobs()
	job := &types.Job{ID: "job-1", Status: types.StatusQueued, Image: "alpine", MaxRetries: 3, CreatedAt: time.Now()}
	require.NoError(t, jobs.store.CreateJob(job))

	w := New("worker-a", jobs, &fakeInbox{jobIDs: []string{"job-1"}}, fakeMembership{}, &fakeRunner{exitCode: 0, output: "ok"}, 15*time.Second)
	require.NoError(t, w.intakeOne(context.Background()))

	got, err := jobs.store.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSucceeded, got.Status)
	assert.Equal(t, "ok", got.Result)
}

func TestIntakeOne_NonZeroExitMarksFailed(t *testing.T) {
	jobs := newFakeJobs()
	job := &types.Job{ID: "job-1", Status: types.StatusQueued, Image: "alpine", MaxRetries: 3, CreatedAt: time.Now()}
	require.NoError(t, jobs.store.CreateJob(job))

	w := New("worker-a", jobs, &fakeInbox{jobIDs: []string{"job-1"}}, fakeMembership{}, &fakeRunner{exitCode: 1, output: "boom"}, 15*time.Second)
	require.NoError(t, w.intakeOne(context.Background()))

	got, err := jobs.store.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, "boom", got.Result)
}

func TestIntakeOne_RuntimeFailureIsReportedAsTextNotError(t *testing.T) {
	jobs := newFakeJobs()
	job := &types.Job{ID: "job-1", Status: types.StatusQueued, Image: "alpine", MaxRetries: 3, CreatedAt: time.Now()}
	require.NoError(t, jobs.store.CreateJob(job))

	w := New("worker-a", jobs, &fakeInbox{jobIDs: []string{"job-1"}}, fakeMembership{}, &fakeRunner{exitCode: 1, output: "create container: boom", err: nil}, 15*time.Second)
	require.NoError(t, w.intakeOne(context.Background()))

	got, err := jobs.store.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, "create container: boom", got.Result)
}

func TestIntakeOne_ContextCancellationLeavesJobRunning(t *testing.T) {
	jobs := newFakeJobs()
	job := &types.Job{ID: "job-1", Status: types.StatusQueued, Image: "alpine", MaxRetries: 3, CreatedAt: time.Now()}
	require.NoError(t, jobs.store.CreateJob(job))

	w := New("worker-a", jobs, &fakeInbox{jobIDs: []string{"job-1"}}, fakeMembership{}, &fakeRunner{err: context.Canceled}, 15*time.Second)
	err := w.intakeOne(context.Background())
	assert.ErrorIs(t, err, context.Canceled)

	got, getErr := jobs.store.GetJob("job-1")
	require.NoError(t, getErr)
	assert.Equal(t, types.StatusRunning, got.Status)
}

func TestIntakeOne_TerminalJobIsSkipped(t *testing.T) {
	jobs := newFakeJobs()
	job := &types.Job{ID: "job-1", Status: types.StatusSucceeded, Image: "alpine", MaxRetries: 3, CreatedAt: time.Now()}
	require.NoError(t, jobs.store.CreateJob(job))

	runner := &fakeRunner{}
	w := New("worker-a", jobs, &fakeInbox{jobIDs: []string{"job-1"}}, fakeMembership{}, runner, 15*time.Second)
	require.NoError(t, w.intakeOne(context.Background()))

	got, err := jobs.store.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSucceeded, got.Status)
}

func TestIntakeOne_MissingJobIsSkipped(t *testing.T) {
	jobs := newFakeJobs()
	w := New("worker-a", jobs, &fakeInbox{jobIDs: []string{"does-not-exist"}}, fakeMembership{}, &fakeRunner{}, 15*time.Second)
	require.NoError(t, w.intakeOne(context.Background()))
}

func TestIntakeOne_EmptyInboxIsNoOp(t *testing.T) {
	jobs := newFakeJobs()
	w := New("worker-a", jobs, &fakeInbox{}, fakeMembership{}, &fakeRunner{}, 15*time.Second)
	require.NoError(t, w.intakeOne(context.Background()))
}
