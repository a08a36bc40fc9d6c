package storage

import (
	"sync"
	"time"

	"github.com/ridgeline/foreman/pkg/statemachine"
	"github.com/ridgeline/foreman/pkg/types"
)

// MemoryStore is an in-memory Store used by package tests in pkg/scheduler,
// pkg/reconciler, and pkg/worker, so those packages don't need a BoltDB file
// on disk to exercise their loops. It applies the same load-check-write
// discipline as BoltStore.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*types.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*types.Job)}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateJob(job *types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) GetJob(id string) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) ListJobs() ([]*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]*types.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j.Clone())
	}
	sortByCreatedAt(jobs)
	return jobs, nil
}

func (s *MemoryStore) ListJobsByStatus(status types.Status) ([]*types.Job, error) {
	all, err := s.ListJobs()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Job
	for _, j := range all {
		if j.Status == status {
			filtered = append(filtered, j)
		}
	}
	return filtered, nil
}

func (s *MemoryStore) mutate(id string, fn func(job *types.Job) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, nil
	}
	cp := job.Clone()
	changed := fn(cp)
	if changed {
		s.jobs[id] = cp
	}
	return changed, nil
}

func (s *MemoryStore) AssignJob(id, workerID string) (bool, error) {
	return s.mutate(id, func(job *types.Job) bool {
		to, ok := statemachine.Apply(job.Status, statemachine.EventAssign)
		if !ok {
			return false
		}
		job.Status = to
		job.AssignedWorker = workerID
		return true
	})
}

func (s *MemoryStore) StartJob(id string) (bool, error) {
	return s.mutate(id, func(job *types.Job) bool {
		to, ok := statemachine.Apply(job.Status, statemachine.EventStart)
		if !ok {
			return false
		}
		job.Status = to
		job.StartedAt = time.Now().UTC()
		return true
	})
}

func (s *MemoryStore) CompleteJob(id string, status types.Status, result string) (bool, error) {
	ev := statemachine.EventSucceed
	if status == types.StatusFailed {
		ev = statemachine.EventFail
	}
	return s.mutate(id, func(job *types.Job) bool {
		to, ok := statemachine.Apply(job.Status, ev)
		if !ok {
			return false
		}
		job.Status = to
		job.FinishedAt = time.Now().UTC()
		job.Result = truncate(result, types.ResultCap)
		return true
	})
}

func (s *MemoryStore) RecoverOrphan(id, syntheticResult string) (types.Status, bool, error) {
	var resulting types.Status
	changed, err := s.mutate(id, func(job *types.Job) bool {
		if job.RetryCount+1 > job.MaxRetries {
			to, ok := statemachine.Apply(job.Status, statemachine.EventRetriesGone)
			if !ok {
				return false
			}
			job.Status = to
			job.FinishedAt = time.Now().UTC()
			job.Result = truncate(syntheticResult, types.ResultCap)
			resulting = to
			return true
		}
		to, ok := statemachine.Apply(job.Status, statemachine.EventWorkerLost)
		if !ok {
			return false
		}
		job.Status = to
		job.AssignedWorker = ""
		job.StartedAt = time.Time{}
		job.RetryCount++
		resulting = to
		return true
	})
	return resulting, changed, err
}

func (s *MemoryStore) RetryFailed(id string) (bool, error) {
	return s.mutate(id, func(job *types.Job) bool {
		if !job.CanRetry() {
			return false
		}
		to, ok := statemachine.Apply(job.Status, statemachine.EventRetry)
		if !ok {
			return false
		}
		job.Status = to
		job.AssignedWorker = ""
		job.RetryCount++
		return true
	})
}

func (s *MemoryStore) CancelJob(id string) (bool, error) {
	return s.mutate(id, func(job *types.Job) bool {
		to, ok := statemachine.Apply(job.Status, statemachine.EventCancel)
		if !ok {
			return false
		}
		job.Status = to
		job.FinishedAt = time.Now().UTC()
		return true
	})
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*BoltStore)(nil)
