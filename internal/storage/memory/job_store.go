// Package memory provides an in-memory job store. It backs unit tests and
// single-process setups that do not need durability; the postgres store is
// the production implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tariffdesk/jobengine/internal/config"
	"github.com/tariffdesk/jobengine/internal/job"
	"github.com/tariffdesk/jobengine/internal/models"
)

type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*models.Job)}
}

var _ job.JobRepoInterface = (*JobStore)(nil)

func (s *JobStore) Create(ctx context.Context, j *models.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now

	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *JobStore) Get(ctx context.Context, tenantID, id string) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok || j.TenantID != tenantID {
		return nil, job.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *JobStore) GetByID(ctx context.Context, id string) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, job.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *JobStore) List(ctx context.Context, tenantID string, filter job.ListFilter) ([]models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []models.Job
	for _, j := range s.jobs {
		if j.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.Type != "" && j.Type != filter.Type {
			continue
		}
		if filter.Priority != "" && j.Priority != filter.Priority {
			continue
		}
		jobs = append(jobs, *j)
	}

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})

	return jobs, nil
}

func (s *JobStore) Update(ctx context.Context, j *models.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[j.ID]
	if !ok {
		return job.ErrNotFound
	}
	if current.LockVersion != j.LockVersion {
		return job.ErrVersionConflict
	}

	j.LockVersion++
	j.UpdatedAt = time.Now().UTC()
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *JobStore) Delete(ctx context.Context, tenantID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.TenantID != tenantID {
		return job.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *JobStore) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []models.Job
	for _, j := range s.jobs {
		if j.Status == config.JobStatusPending && !j.RunAt.After(now) {
			due = append(due, *j)
		}
	}

	sort.Slice(due, func(i, k int) bool {
		if due[i].PriorityRank != due[k].PriorityRank {
			return due[i].PriorityRank > due[k].PriorityRank
		}
		return due[i].CreatedAt.Before(due[k].CreatedAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *JobStore) CountByStatus(ctx context.Context, tenantID string) (map[config.JobStatus]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[config.JobStatus]int)
	for _, j := range s.jobs {
		if j.TenantID == tenantID {
			counts[j.Status]++
		}
	}
	return counts, nil
}

func (s *JobStore) ResetOrphanedRunning(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var reset int64
	now := time.Now().UTC()
	for _, j := range s.jobs {
		if j.Status == config.JobStatusRunning {
			j.Status = config.JobStatusPending
			j.RunAt = now
			j.LockVersion++
			reset++
		}
	}
	return reset, nil
}
