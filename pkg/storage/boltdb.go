package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/ridgeline/foreman/pkg/statemachine"
	"github.com/ridgeline/foreman/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned by GetJob when no row exists for the given id.
var ErrNotFound = errors.New("job not found")

var bucketJobs = []byte("jobs")

// BoltStore implements Store using a BoltDB file, one bucket keyed by job ID.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the Job Store at dataDir/foreman.db.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "foreman.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketJobs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create jobs bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) CreateJob(job *types.Job) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		return b.Put([]byte(job.ID), data)
	})
}

func (s *BoltStore) GetJob(id string) (*types.Job, error) {
	var job types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *BoltStore) ListJobs() ([]*types.Job, error) {
	var jobs []*types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		return b.ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			jobs = append(jobs, &job)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortByCreatedAt(jobs)
	return jobs, nil
}

func (s *BoltStore) ListJobsByStatus(status types.Status) ([]*types.Job, error) {
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

func sortByCreatedAt(jobs []*types.Job) {
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
}

// loadCheckWrite loads the job, lets mutate decide whether/how to change it,
// and writes back inside the same transaction. mutate returns changed=false
// to signal a no-op (the write is skipped, and the call reports (false, nil)
// to the caller).
func (s *BoltStore) loadCheckWrite(id string, mutate func(job *types.Job) (changed bool)) (bool, error) {
	var changed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data := b.Get([]byte(id))
		if data == nil {
			return nil // missing row: idempotent no-op
		}
		var job types.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		changed = mutate(&job)
		if !changed {
			return nil
		}
		out, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), out)
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (s *BoltStore) AssignJob(id, workerID string) (bool, error) {
	return s.loadCheckWrite(id, func(job *types.Job) bool {
		to, ok := statemachine.Apply(job.Status, statemachine.EventAssign)
		if !ok {
			return false
		}
		job.Status = to
		job.AssignedWorker = workerID
		return true
	})
}

func (s *BoltStore) StartJob(id string) (bool, error) {
	return s.loadCheckWrite(id, func(job *types.Job) bool {
		to, ok := statemachine.Apply(job.Status, statemachine.EventStart)
		if !ok {
			return false
		}
		job.Status = to
		job.StartedAt = time.Now().UTC()
		return true
	})
}

func (s *BoltStore) CompleteJob(id string, status types.Status, result string) (bool, error) {
	ev := statemachine.EventSucceed
	if status == types.StatusFailed {
		ev = statemachine.EventFail
	}
	return s.loadCheckWrite(id, func(job *types.Job) bool {
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

func (s *BoltStore) RecoverOrphan(id, syntheticResult string) (types.Status, bool, error) {
	var resulting types.Status
	changed, err := s.loadCheckWrite(id, func(job *types.Job) bool {
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

func (s *BoltStore) RetryFailed(id string) (bool, error) {
	return s.loadCheckWrite(id, func(job *types.Job) bool {
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

func (s *BoltStore) CancelJob(id string) (bool, error) {
	return s.loadCheckWrite(id, func(job *types.Job) bool {
		to, ok := statemachine.Apply(job.Status, statemachine.EventCancel)
		if !ok {
			return false
		}
		job.Status = to
		job.FinishedAt = time.Now().UTC()
		return true
	})
}

func truncate(s string, capBytes int) string {
	if len(s) <= capBytes {
		return s
	}
	return s[:capBytes]
}
