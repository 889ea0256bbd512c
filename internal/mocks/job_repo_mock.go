package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/tariffdesk/jobengine/internal/config"
	"github.com/tariffdesk/jobengine/internal/job"
	"github.com/tariffdesk/jobengine/internal/models"
)

type JobRepoMock struct {
	mock.Mock
}

func (m *JobRepoMock) Create(ctx context.Context, j *models.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *JobRepoMock) Get(ctx context.Context, tenantID, id string) (*models.Job, error) {
	args := m.Called(ctx, tenantID, id)

	j, _ := args.Get(0).(*models.Job)
	return j, args.Error(1)
}

func (m *JobRepoMock) GetByID(ctx context.Context, id string) (*models.Job, error) {
	args := m.Called(ctx, id)

	j, _ := args.Get(0).(*models.Job)
	return j, args.Error(1)
}

func (m *JobRepoMock) List(ctx context.Context, tenantID string, filter job.ListFilter) ([]models.Job, error) {
	args := m.Called(ctx, tenantID, filter)

	jobs, _ := args.Get(0).([]models.Job)
	return jobs, args.Error(1)
}

func (m *JobRepoMock) Update(ctx context.Context, j *models.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *JobRepoMock) Delete(ctx context.Context, tenantID, id string) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

func (m *JobRepoMock) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Job, error) {
	args := m.Called(ctx, now, limit)

	jobs, _ := args.Get(0).([]models.Job)
	return jobs, args.Error(1)
}

func (m *JobRepoMock) CountByStatus(ctx context.Context, tenantID string) (map[config.JobStatus]int, error) {
	args := m.Called(ctx, tenantID)

	counts, _ := args.Get(0).(map[config.JobStatus]int)
	return counts, args.Error(1)
}

func (m *JobRepoMock) ResetOrphanedRunning(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
