package job_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tariffdesk/jobengine/common"
	"github.com/tariffdesk/jobengine/internal/config"
	"github.com/tariffdesk/jobengine/internal/dto"
	"github.com/tariffdesk/jobengine/internal/job"
	"github.com/tariffdesk/jobengine/internal/mocks"
	"github.com/tariffdesk/jobengine/internal/models"
)

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, string, *models.Job) {}

// handlerSet stands in for the handler registry at enqueue time.
type handlerSet map[string]bool

func (h handlerSet) Has(jobType string) bool { return h[jobType] }

func allHandlers() handlerSet {
	return handlerSet{
		"classification":  true,
		"fee_calculation": true,
		"import":          true,
		"export":          true,
	}
}

func newService(repo *mocks.JobRepoMock, handlers handlerSet) *job.JobService {
	return job.NewJobService(repo, handlers, nopEmitter{}, 3, 3)
}

func validCreateDTO() *dto.JobCreateDTO {
	return &dto.JobCreateDTO{
		Type:    "classification",
		ItemIDs: []string{"p1", "p2", "p3"},
		OwnerID: "user-1",
		Parameters: map[string]any{
			"hs_revision": "2022",
			"country":     "DE",
		},
	}
}

func asAPIError(t *testing.T, err error) common.APIError {
	t.Helper()
	var apiErr common.APIError
	require.ErrorAs(t, err, &apiErr)
	return apiErr
}

func TestJobService_CreateJob(t *testing.T) {
	tests := []struct {
		name       string
		tenantID   string
		mutate     func(*dto.JobCreateDTO)
		handlers   handlerSet
		setupMock  func(*mocks.JobRepoMock)
		wantStatus int
		wantCode   string
		check      func(*testing.T, *dto.JobResponseDTO)
	}{
		{
			name:     "successful enqueue with defaults",
			tenantID: "acme",
			mutate:   func(d *dto.JobCreateDTO) {},
			handlers: allHandlers(),
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Create", mock.Anything, mock.MatchedBy(func(j *models.Job) bool {
					return j.TenantID == "acme" &&
						j.Type == "classification" &&
						j.Status == config.JobStatusPending &&
						j.Priority == config.PriorityMedium &&
						j.PriorityRank == config.PriorityMedium.Rank() &&
						j.Total == 3 &&
						j.MaxRetries == 3 &&
						j.ID != "" &&
						!j.RunAt.IsZero()
				})).Return(nil)
			},
			check: func(t *testing.T, resp *dto.JobResponseDTO) {
				assert.Equal(t, "pending", resp.Status)
				assert.Equal(t, "medium", resp.Priority)
				assert.Equal(t, 3, resp.Progress.Total)
				assert.Equal(t, 0, resp.Progress.Completed)
				assert.Nil(t, resp.Error)
			},
		},
		{
			name:     "explicit priority and retry budget",
			tenantID: "acme",
			mutate: func(d *dto.JobCreateDTO) {
				d.Priority = "high"
				budget := 5
				d.MaxRetries = &budget
			},
			handlers: allHandlers(),
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Create", mock.Anything, mock.MatchedBy(func(j *models.Job) bool {
					return j.Priority == config.PriorityHigh &&
						j.PriorityRank == config.PriorityHigh.Rank() &&
						j.MaxRetries == 5
				})).Return(nil)
			},
			check: func(t *testing.T, resp *dto.JobResponseDTO) {
				assert.Equal(t, "high", resp.Priority)
				assert.Equal(t, 5, resp.MaxRetries)
			},
		},
		{
			name:       "missing tenant",
			tenantID:   "",
			mutate:     func(d *dto.JobCreateDTO) {},
			handlers:   allHandlers(),
			setupMock:  func(m *mocks.JobRepoMock) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   common.CodeValidation,
		},
		{
			name:       "unknown job type",
			tenantID:   "acme",
			mutate:     func(d *dto.JobCreateDTO) { d.Type = "mine_bitcoin" },
			handlers:   allHandlers(),
			setupMock:  func(m *mocks.JobRepoMock) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no handler registered for the type",
			tenantID:   "acme",
			mutate:     func(d *dto.JobCreateDTO) {},
			handlers:   handlerSet{},
			setupMock:  func(m *mocks.JobRepoMock) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   common.CodeValidation,
		},
		{
			name:     "malformed classification parameters",
			tenantID: "acme",
			mutate: func(d *dto.JobCreateDTO) {
				d.Parameters = map[string]any{"country": "Germany"} // no hs_revision, bad length
			},
			handlers:   allHandlers(),
			setupMock:  func(m *mocks.JobRepoMock) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   common.CodeValidation,
		},
		{
			name:     "malformed import parameters",
			tenantID: "acme",
			mutate: func(d *dto.JobCreateDTO) {
				d.Type = "import"
				d.Parameters = map[string]any{"source_uri": "s3://x", "format": "parquet"}
			},
			handlers:   allHandlers(),
			setupMock:  func(m *mocks.JobRepoMock) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   common.CodeValidation,
		},
		{
			name:     "store failure",
			tenantID: "acme",
			mutate:   func(d *dto.JobCreateDTO) {},
			handlers: allHandlers(),
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection refused"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   common.CodeStore,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.JobRepoMock)
			tt.setupMock(repo)

			req := validCreateDTO()
			tt.mutate(req)

			resp, err := newService(repo, tt.handlers).CreateJob(context.Background(), tt.tenantID, req)

			if tt.wantStatus != 0 {
				require.Error(t, err)
				apiErr := asAPIError(t, err)
				assert.Equal(t, tt.wantStatus, apiErr.Status)
				if tt.wantCode != "" {
					assert.Equal(t, tt.wantCode, apiErr.Code)
				}
			} else {
				require.NoError(t, err)
				require.NotNil(t, resp)
				if tt.check != nil {
					tt.check(t, resp)
				}
			}

			repo.AssertExpectations(t)
		})
	}
}

func TestJobService_GetJob(t *testing.T) {
	repo := new(mocks.JobRepoMock)
	svc := newService(repo, allHandlers())
	ctx := context.Background()

	stored := &models.Job{
		ID:       "j1",
		TenantID: "acme",
		Type:     "export",
		Status:   config.JobStatusRunning,
		Total:    10,
	}
	repo.On("Get", mock.Anything, "acme", "j1").Return(stored, nil)
	repo.On("Get", mock.Anything, "globex", "j1").Return(nil, job.ErrNotFound)

	resp, err := svc.GetJob(ctx, "acme", "j1")
	require.NoError(t, err)
	assert.Equal(t, "j1", resp.ID)
	assert.Equal(t, "running", resp.Status)

	_, err = svc.GetJob(ctx, "globex", "j1")
	apiErr := asAPIError(t, err)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, common.CodeNotFound, apiErr.Code)
}

func TestJobService_GetJob_ExposesRetryStateAndETA(t *testing.T) {
	repo := new(mocks.JobRepoMock)
	svc := newService(repo, allHandlers())

	started := time.Now().UTC().Add(-10 * time.Second)
	retriedAt := time.Now().UTC().Add(-5 * time.Second)
	stored := &models.Job{
		ID:           "j1",
		TenantID:     "acme",
		Type:         "import",
		Status:       config.JobStatusRunning,
		Total:        10,
		Completed:    4,
		Failed:       1,
		CurrentItem:  "row-5",
		ErrorMessage: "import source s3://x is unreachable",
		ErrorCode:    common.CodeFatal,
		RetryCount:   2,
		LastRetryAt:  &retriedAt,
		StartedAt:    &started,
	}
	repo.On("Get", mock.Anything, "acme", "j1").Return(stored, nil)

	resp, err := svc.GetJob(context.Background(), "acme", "j1")
	require.NoError(t, err)

	assert.Equal(t, 4, resp.Progress.Completed)
	assert.Equal(t, 1, resp.Progress.Failed)
	assert.Equal(t, "row-5", resp.Progress.CurrentItem)

	require.NotNil(t, resp.Error)
	assert.Equal(t, 2, resp.Error.RetryCount)
	assert.Equal(t, common.CodeFatal, resp.Error.Code)

	assert.NotEmpty(t, resp.EstimatedTimeRemaining, "a running job with progress gets an ETA")
}

func TestJobService_ListJobs(t *testing.T) {
	repo := new(mocks.JobRepoMock)
	svc := newService(repo, allHandlers())

	jobs := []models.Job{
		{ID: "j1", TenantID: "acme", Status: config.JobStatusRunning},
		{ID: "j2", TenantID: "acme", Status: config.JobStatusPending},
	}
	counts := map[config.JobStatus]int{
		config.JobStatusPending:   4,
		config.JobStatusRunning:   2,
		config.JobStatusCompleted: 10,
	}
	repo.On("List", mock.Anything, "acme", job.ListFilter{}).Return(jobs, nil)
	repo.On("CountByStatus", mock.Anything, "acme").Return(counts, nil)

	resp, err := svc.ListJobs(context.Background(), "acme", job.ListFilter{})
	require.NoError(t, err)

	assert.Len(t, resp.Jobs, 2)
	assert.Equal(t, 4, resp.QueueStatus.Pending)
	assert.Equal(t, 2, resp.QueueStatus.Running)
	assert.Equal(t, 3, resp.QueueStatus.Capacity)
	assert.Equal(t, 16, resp.QueueStatus.TotalJobs)
}

func TestJobService_ControlJob(t *testing.T) {
	tests := []struct {
		name       string
		action     config.ControlAction
		current    config.JobStatus
		wantStatus config.JobStatus
		wantErr    int
		check      func(*testing.T, *models.Job)
	}{
		{
			name:       "pause a running job",
			action:     config.ActionPause,
			current:    config.JobStatusRunning,
			wantStatus: config.JobStatusPaused,
		},
		{
			name:    "pause a pending job is rejected",
			action:  config.ActionPause,
			current: config.JobStatusPending,
			wantErr: http.StatusConflict,
		},
		{
			name:       "resume re-enters the queue as pending",
			action:     config.ActionResume,
			current:    config.JobStatusPaused,
			wantStatus: config.JobStatusPending,
			check: func(t *testing.T, j *models.Job) {
				assert.False(t, j.RunAt.IsZero(), "resume must make the job immediately due")
			},
		},
		{
			name:    "resume a running job is rejected",
			action:  config.ActionResume,
			current: config.JobStatusRunning,
			wantErr: http.StatusConflict,
		},
		{
			name:       "cancel a pending job",
			action:     config.ActionCancel,
			current:    config.JobStatusPending,
			wantStatus: config.JobStatusCancelled,
			check: func(t *testing.T, j *models.Job) {
				assert.NotNil(t, j.CompletedAt)
			},
		},
		{
			name:       "cancel a paused job",
			action:     config.ActionCancel,
			current:    config.JobStatusPaused,
			wantStatus: config.JobStatusCancelled,
		},
		{
			name:    "cancel a completed job is rejected",
			action:  config.ActionCancel,
			current: config.JobStatusCompleted,
			wantErr: http.StatusConflict,
		},
		{
			name:    "cancel a cancelled job is rejected",
			action:  config.ActionCancel,
			current: config.JobStatusCancelled,
			wantErr: http.StatusConflict,
		},
		{
			name:       "manual retry resets the budget",
			action:     config.ActionRetry,
			current:    config.JobStatusFailed,
			wantStatus: config.JobStatusPending,
			check: func(t *testing.T, j *models.Job) {
				assert.Equal(t, 0, j.RetryCount)
				assert.Empty(t, j.ErrorMessage)
				assert.Empty(t, j.ErrorCode)
				assert.Nil(t, j.CompletedAt)
			},
		},
		{
			name:    "retry a running job is rejected",
			action:  config.ActionRetry,
			current: config.JobStatusRunning,
			wantErr: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.JobRepoMock)
			svc := newService(repo, allHandlers())

			now := time.Now().UTC()
			stored := &models.Job{
				ID:           "j1",
				TenantID:     "acme",
				Type:         "classification",
				Status:       tt.current,
				RetryCount:   2,
				ErrorMessage: "previous failure",
				ErrorCode:    common.CodeFatal,
				CompletedAt:  &now,
			}
			repo.On("Get", mock.Anything, "acme", "j1").Return(stored, nil)
			if tt.wantErr == 0 {
				repo.On("Update", mock.Anything, mock.Anything).Return(nil)
			}

			resp, err := svc.ControlJob(context.Background(), "acme", "j1", tt.action)

			if tt.wantErr != 0 {
				apiErr := asAPIError(t, err)
				assert.Equal(t, tt.wantErr, apiErr.Status)
				assert.Equal(t, common.CodeInvalidTransition, apiErr.Code)
				repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, string(tt.wantStatus), resp.Status)
			if tt.check != nil {
				tt.check(t, stored)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestJobService_ControlJob_RetriesOnVersionConflict(t *testing.T) {
	repo := new(mocks.JobRepoMock)
	svc := newService(repo, allHandlers())

	// first read races a progress tick; the re-read sees the same state and wins
	first := &models.Job{ID: "j1", TenantID: "acme", Status: config.JobStatusRunning}
	second := &models.Job{ID: "j1", TenantID: "acme", Status: config.JobStatusRunning, Completed: 1, LockVersion: 1}

	repo.On("Get", mock.Anything, "acme", "j1").Return(first, nil).Once()
	repo.On("Get", mock.Anything, "acme", "j1").Return(second, nil).Once()
	repo.On("Update", mock.Anything, first).Return(job.ErrVersionConflict).Once()
	repo.On("Update", mock.Anything, second).Return(nil).Once()

	resp, err := svc.ControlJob(context.Background(), "acme", "j1", config.ActionPause)
	require.NoError(t, err)

	assert.Equal(t, string(config.JobStatusPaused), resp.Status)
	assert.Equal(t, 1, resp.Progress.Completed, "the re-read picks up the tick that won the race")
	repo.AssertExpectations(t)
}

func TestJobService_ControlJob_UnknownAction(t *testing.T) {
	repo := new(mocks.JobRepoMock)
	svc := newService(repo, allHandlers())

	repo.On("Get", mock.Anything, "acme", "j1").
		Return(&models.Job{ID: "j1", TenantID: "acme", Status: config.JobStatusRunning}, nil)

	_, err := svc.ControlJob(context.Background(), "acme", "j1", config.ControlAction("explode"))
	apiErr := asAPIError(t, err)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, common.CodeValidation, apiErr.Code)
}

func TestJobService_DeleteJob(t *testing.T) {
	tests := []struct {
		name      string
		status    config.JobStatus
		getErr    error
		deleteErr error
		wantErr   int
		wantCode  string
	}{
		{name: "delete a completed job", status: config.JobStatusCompleted},
		{name: "delete a pending job", status: config.JobStatusPending},
		{
			name:     "running jobs must be cancelled first",
			status:   config.JobStatusRunning,
			wantErr:  http.StatusConflict,
			wantCode: common.CodeInvalidTransition,
		},
		{
			name:     "unknown job",
			getErr:   job.ErrNotFound,
			wantErr:  http.StatusNotFound,
			wantCode: common.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.JobRepoMock)
			svc := newService(repo, allHandlers())

			if tt.getErr != nil {
				repo.On("Get", mock.Anything, "acme", "j1").Return(nil, tt.getErr)
			} else {
				repo.On("Get", mock.Anything, "acme", "j1").
					Return(&models.Job{ID: "j1", TenantID: "acme", Status: tt.status}, nil)
				if tt.wantErr == 0 {
					repo.On("Delete", mock.Anything, "acme", "j1").Return(tt.deleteErr)
				}
			}

			err := svc.DeleteJob(context.Background(), "acme", "j1")

			if tt.wantErr != 0 {
				apiErr := asAPIError(t, err)
				assert.Equal(t, tt.wantErr, apiErr.Status)
				assert.Equal(t, tt.wantCode, apiErr.Code)
				repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
			} else {
				require.NoError(t, err)
			}
			repo.AssertExpectations(t)
		})
	}
}
