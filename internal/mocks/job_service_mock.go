package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tariffdesk/jobengine/internal/config"
	"github.com/tariffdesk/jobengine/internal/dto"
	"github.com/tariffdesk/jobengine/internal/job"
)

type JobServiceMock struct {
	mock.Mock
}

func (m *JobServiceMock) CreateJob(ctx context.Context, tenantID string, req *dto.JobCreateDTO) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, tenantID, req)

	resp, _ := args.Get(0).(*dto.JobResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) GetJob(ctx context.Context, tenantID, id string) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, tenantID, id)

	resp, _ := args.Get(0).(*dto.JobResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) ListJobs(ctx context.Context, tenantID string, filter job.ListFilter) (*dto.JobListResponseDTO, error) {
	args := m.Called(ctx, tenantID, filter)

	resp, _ := args.Get(0).(*dto.JobListResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) ControlJob(ctx context.Context, tenantID, id string, action config.ControlAction) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, tenantID, id, action)

	resp, _ := args.Get(0).(*dto.JobResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) DeleteJob(ctx context.Context, tenantID, id string) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}
