package queue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"content-publisher/domain/model"
)

// MemoryStore is an in-process IJobStore for tests and database-less runs.
// Jobs do not survive a restart.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[string]*model.Job
	unique map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: map[string]*model.Job{}, unique: map[string]string{}}
}

func clone(j *model.Job) *model.Job {
	c := *j
	return &c
}

func (s *MemoryStore) Create(ctx context.Context, job *model.Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.UniqueKey != nil {
		if _, taken := s.unique[*job.UniqueKey]; taken {
			return false, nil
		}
		s.unique[*job.UniqueKey] = job.ID
	}
	s.jobs[job.ID] = clone(job)
	return true, nil
}

func (s *MemoryStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	due := make([]*model.Job, 0)
	for _, j := range s.jobs {
		if j.Status == model.JobWaiting && !j.RunAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(a, b int) bool { return due[a].RunAt.Before(due[b].RunAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]*model.Job, 0, len(due))
	for _, j := range due {
		j.Status = model.JobActive
		j.Attempts++
		j.UpdatedAt = now
		out = append(out, clone(j))
	}
	return out, nil
}

func (s *MemoryStore) update(id string, fn func(j *model.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.ErrJobNotFound
	}
	fn(j)
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Complete(ctx context.Context, id string, result json.RawMessage) error {
	return s.update(id, func(j *model.Job) {
		now := time.Now().UTC()
		j.Status, j.Result, j.LastError, j.FinishedAt = model.JobCompleted, result, nil, &now
	})
}

func (s *MemoryStore) Retry(ctx context.Context, id string, runAt time.Time, lastErr string) error {
	return s.update(id, func(j *model.Job) {
		j.Status, j.RunAt, j.LastError = model.JobWaiting, runAt, &lastErr
	})
}

func (s *MemoryStore) Fail(ctx context.Context, id string, lastErr string, result json.RawMessage) error {
	return s.update(id, func(j *model.Job) {
		now := time.Now().UTC()
		j.Status, j.LastError, j.Result, j.FinishedAt = model.JobFailed, &lastErr, result, &now
	})
}

func (s *MemoryStore) Reset(ctx context.Context, id string, runAt time.Time) error {
	return s.update(id, func(j *model.Job) {
		j.Status, j.Attempts, j.RunAt, j.FinishedAt = model.JobWaiting, 0, runAt, nil
	})
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	return clone(j), nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Job, 0)
	for _, j := range s.jobs {
		if j.Status == status {
			out = append(out, clone(j))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.After(out[b].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (model.JobStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st model.JobStats
	for _, j := range s.jobs {
		switch j.Status {
		case model.JobWaiting:
			st.Waiting++
		case model.JobActive:
			st.Active++
		case model.JobCompleted:
			st.Completed++
		case model.JobFailed:
			st.Failed++
		}
	}
	return st, nil
}

func (s *MemoryStore) Touch(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.ErrJobNotFound
	}
	if j.Status == model.JobActive {
		j.UpdatedAt = now
	}
	return nil
}

func (s *MemoryStore) RequeueStale(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, j := range s.jobs {
		if j.Status == model.JobActive && j.UpdatedAt.Before(before) {
			j.Status = model.JobWaiting
			n++
		}
	}
	return n, nil
}
