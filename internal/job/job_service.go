package job

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/tariffdesk/jobengine/common"
	"github.com/tariffdesk/jobengine/internal/config"
	"github.com/tariffdesk/jobengine/internal/dto"
	"github.com/tariffdesk/jobengine/internal/models"
	"github.com/tariffdesk/jobengine/internal/notify"
)

// controlConflictRetries bounds how often a control request re-reads the job
// after losing an optimistic update race against a worker's progress tick.
const controlConflictRetries = 3

type JobService struct {
	repo              JobRepoInterface
	handlers          HandlerLookup
	emitter           LifecycleEmitter
	capacity          int
	defaultMaxRetries int
}

func NewJobService(
	repo JobRepoInterface,
	handlers HandlerLookup,
	emitter LifecycleEmitter,
	capacity int,
	defaultMaxRetries int,
) *JobService {
	return &JobService{
		repo:              repo,
		handlers:          handlers,
		emitter:           emitter,
		capacity:          capacity,
		defaultMaxRetries: defaultMaxRetries,
	}
}

var _ JobServiceInterface = (*JobService)(nil)

// CreateJob validates enqueue input, applies business rules, constructs a
// Job record and persists it as pending. The job type must have a registered
// handler and the per-type parameters must pass validation before anything
// touches the store.
func (s *JobService) CreateJob(ctx context.Context, tenantID string, req *dto.JobCreateDTO) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	if tenantID == "" {
		return nil, common.CodedErrf(http.StatusBadRequest, common.CodeValidation, "tenant id is required")
	}

	if !slices.Contains(config.AllowedJobTypes, req.Type) {
		return nil, common.NewAPIError(
			http.StatusBadRequest,
			"invalid job type",
			map[string]any{
				"provided": req.Type,
				"allowed":  config.AllowedJobTypes,
			},
		)
	}

	if !s.handlers.Has(req.Type) {
		return nil, common.CodedErrf(http.StatusBadRequest, common.CodeValidation,
			"no handler registered for job type %q", req.Type)
	}

	switch req.Type {
	case "classification":
		if err := validateParams[dto.ClassificationParams](req.Parameters); err != nil {
			return nil, err
		}
	case "fee_calculation":
		if err := validateParams[dto.FeeCalculationParams](req.Parameters); err != nil {
			return nil, err
		}
	case "import":
		if err := validateParams[dto.ImportParams](req.Parameters); err != nil {
			return nil, err
		}
	case "export":
		if err := validateParams[dto.ExportParams](req.Parameters); err != nil {
			return nil, err
		}
	}

	priority := config.JobPriority(req.Priority)
	if priority == "" {
		priority = config.PriorityMedium
	}

	maxRetries := s.defaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	now := time.Now().UTC()
	j := models.Job{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		OwnerID:      req.OwnerID,
		Type:         req.Type,
		Status:       config.JobStatusPending,
		Priority:     priority,
		PriorityRank: priority.Rank(),
		ItemIDs:      datatypes.NewJSONSlice(req.ItemIDs),
		Parameters:   datatypes.JSONMap(req.Parameters),
		Total:        len(req.ItemIDs),
		MaxRetries:   maxRetries,
		RunAt:        now,
	}

	if err := s.repo.Create(ctx, &j); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			return nil, common.Errf(http.StatusRequestTimeout, "request was canceled")
		case errors.Is(err, context.DeadlineExceeded):
			return nil, common.Errf(http.StatusRequestTimeout, "request timeout")
		default:
			return nil, common.CodedErrf(http.StatusInternalServerError, common.CodeStore,
				"failed to add job to database")
		}
	}

	s.emitter.Emit(ctx, notify.EventEnqueued, &j)

	return toResponseDTO(&j), nil
}

// GetJob retrieves a job by its ID within the caller's tenant.
func (s *JobService) GetJob(ctx context.Context, tenantID, id string) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	j, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, mapRepoError(err, "failed to get job")
	}

	return toResponseDTO(j), nil
}

// ListJobs returns the tenant's jobs matching the filter together with a
// queue summary for polling clients.
func (s *JobService) ListJobs(ctx context.Context, tenantID string, filter ListFilter) (*dto.JobListResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	jobs, err := s.repo.List(ctx, tenantID, filter)
	if err != nil {
		return nil, mapRepoError(err, "failed to list jobs")
	}

	counts, err := s.repo.CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, mapRepoError(err, "failed to count jobs")
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	resp := dto.JobListResponseDTO{
		Jobs: make([]dto.JobResponseDTO, len(jobs)),
		QueueStatus: dto.QueueStatusDTO{
			Pending:   counts[config.JobStatusPending],
			Running:   counts[config.JobStatusRunning],
			Capacity:  s.capacity,
			TotalJobs: total,
		},
	}
	for i := range jobs {
		resp.Jobs[i] = *toResponseDTO(&jobs[i])
	}

	return &resp, nil
}

// ControlJob applies a pause/resume/cancel/retry request. The mutation is an
// optimistic update; on a version conflict the job is re-read and the action
// re-validated, so a control request racing a progress tick never clobbers
// either write.
func (s *JobService) ControlJob(ctx context.Context, tenantID, id string, action config.ControlAction) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	for attempt := 0; ; attempt++ {
		j, err := s.repo.Get(ctx, tenantID, id)
		if err != nil {
			return nil, mapRepoError(err, "failed to get job")
		}

		event, err := applyAction(j, action)
		if err != nil {
			var invalid *InvalidTransitionError
			if errors.As(err, &invalid) {
				return nil, common.CodedErrf(http.StatusConflict, common.CodeInvalidTransition,
					"cannot %s a %s job", action, invalid.From)
			}
			return nil, err
		}

		if err := s.repo.Update(ctx, j); err != nil {
			if errors.Is(err, ErrVersionConflict) && attempt < controlConflictRetries {
				continue
			}
			return nil, mapRepoError(err, "failed to update job")
		}

		s.emitter.Emit(ctx, event, j)
		return toResponseDTO(j), nil
	}
}

// DeleteJob removes a job record. Running jobs must be cancelled first so an
// executor is never left writing progress for a deleted row.
func (s *JobService) DeleteJob(ctx context.Context, tenantID, id string) error {
	if err := ctx.Err(); err != nil {
		return common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	j, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return mapRepoError(err, "failed to get job")
	}

	if j.Status == config.JobStatusRunning {
		return common.CodedErrf(http.StatusConflict, common.CodeInvalidTransition,
			"cannot delete a running job; cancel it first")
	}

	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return mapRepoError(err, "failed to delete job")
	}

	return nil
}

// applyAction mutates the job in place for the requested control action and
// returns the lifecycle event to emit. Each action is valid from exactly the
// statuses the state machine allows for it.
func applyAction(j *models.Job, action config.ControlAction) (string, error) {
	now := time.Now().UTC()

	switch action {
	case config.ActionPause:
		if j.Status != config.JobStatusRunning {
			return "", &InvalidTransitionError{From: j.Status, To: config.JobStatusPaused}
		}
		j.Status = config.JobStatusPaused
		return notify.EventPaused, nil

	case config.ActionResume:
		if j.Status != config.JobStatusPaused {
			return "", &InvalidTransitionError{From: j.Status, To: config.JobStatusRunning}
		}
		// Resume re-enters the admission queue rather than jumping straight
		// to running, so resumed jobs cannot bypass the capacity limit.
		j.Status = config.JobStatusPending
		j.RunAt = now
		return notify.EventResumed, nil

	case config.ActionCancel:
		if err := ValidateTransition(j.Status, config.JobStatusCancelled); err != nil {
			return "", err
		}
		j.Status = config.JobStatusCancelled
		j.CompletedAt = &now
		return notify.EventCancelled, nil

	case config.ActionRetry:
		if j.Status != config.JobStatusFailed {
			return "", &InvalidTransitionError{From: j.Status, To: config.JobStatusPending}
		}
		// Operator intent: a manual retry starts a fresh retry budget.
		j.Status = config.JobStatusPending
		j.RetryCount = 0
		j.ErrorMessage = ""
		j.ErrorCode = ""
		j.LastRetryAt = nil
		j.CompletedAt = nil
		j.RunAt = now
		return notify.EventRetrying, nil

	default:
		return "", common.CodedErrf(http.StatusBadRequest, common.CodeValidation,
			"unknown control action %q", action)
	}
}

func mapRepoError(err error, fallback string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return common.Errf(http.StatusRequestTimeout, "request timed out")
	case errors.Is(err, ErrNotFound):
		return common.CodedErrf(http.StatusNotFound, common.CodeNotFound, "job not found")
	case errors.Is(err, ErrVersionConflict):
		return common.CodedErrf(http.StatusConflict, common.CodeVersionConflict,
			"job was modified concurrently, retry the request")
	default:
		return common.CodedErrf(http.StatusInternalServerError, common.CodeStore, "%s", fallback)
	}
}

func toResponseDTO(j *models.Job) *dto.JobResponseDTO {
	resp := dto.JobResponseDTO{
		ID:       j.ID,
		TenantID: j.TenantID,
		OwnerID:  j.OwnerID,
		Type:     j.Type,
		Status:   string(j.Status),
		Priority: string(j.Priority),
		Progress: dto.JobProgressDTO{
			Total:       j.Total,
			Completed:   j.Completed,
			Failed:      j.Failed,
			CurrentItem: j.CurrentItem,
		},
		Parameters:  map[string]any(j.Parameters),
		MaxRetries:  j.MaxRetries,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}

	if j.ErrorMessage != "" || j.RetryCount > 0 {
		resp.Error = &dto.JobErrorDTO{
			Message:     j.ErrorMessage,
			Code:        j.ErrorCode,
			RetryCount:  j.RetryCount,
			LastRetryAt: j.LastRetryAt,
		}
	}

	if eta := j.EstimatedTimeRemaining(time.Now().UTC()); eta > 0 {
		resp.EstimatedTimeRemaining = eta.Round(time.Second).String()
	}

	return &resp
}
