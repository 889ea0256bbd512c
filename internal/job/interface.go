package job

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tariffdesk/jobengine/internal/config"
	"github.com/tariffdesk/jobengine/internal/dto"
	"github.com/tariffdesk/jobengine/internal/models"
)

// ListFilter narrows List results. Empty fields match everything.
type ListFilter struct {
	Status   config.JobStatus
	Type     string
	Priority config.JobPriority
}

// JobRepoInterface defines the contract for job persistence. Caller-facing
// methods are tenant-scoped; the engine-internal methods (GetByID, ListDue,
// ResetOrphanedRunning) operate across tenants because the dispatcher orders
// all tenants' pending work in one queue.
type JobRepoInterface interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, tenantID, id string) (*models.Job, error)
	List(ctx context.Context, tenantID string, filter ListFilter) ([]models.Job, error)
	// Update is a compare-and-swap on LockVersion. It returns
	// ErrVersionConflict when another writer got there first, and bumps
	// LockVersion on the passed job on success.
	Update(ctx context.Context, job *models.Job) error
	Delete(ctx context.Context, tenantID, id string) error

	GetByID(ctx context.Context, id string) (*models.Job, error)
	// ListDue returns dispatchable jobs: pending, run_at <= now, ordered by
	// priority rank descending then created_at ascending.
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Job, error)
	CountByStatus(ctx context.Context, tenantID string) (map[config.JobStatus]int, error)
	// ResetOrphanedRunning returns jobs stranded in running by a crash to
	// pending so they are picked up again (at-least-once recovery).
	ResetOrphanedRunning(ctx context.Context) (int64, error)
}

// HandlerLookup is the slice of the handler registry the service needs to
// validate a job type at enqueue time.
type HandlerLookup interface {
	Has(jobType string) bool
}

// LifecycleEmitter publishes job lifecycle events for external consumers and
// for the scheduler's wake signal.
type LifecycleEmitter interface {
	Emit(ctx context.Context, event string, job *models.Job)
}

// JobServiceInterface defines the contract for job business logic operations.
type JobServiceInterface interface {
	CreateJob(ctx context.Context, tenantID string, req *dto.JobCreateDTO) (*dto.JobResponseDTO, error)
	GetJob(ctx context.Context, tenantID, id string) (*dto.JobResponseDTO, error)
	ListJobs(ctx context.Context, tenantID string, filter ListFilter) (*dto.JobListResponseDTO, error)
	ControlJob(ctx context.Context, tenantID, id string, action config.ControlAction) (*dto.JobResponseDTO, error)
	DeleteJob(ctx context.Context, tenantID, id string) error
}

// JobHandlerInterface defines the contract for HTTP request handlers.
type JobHandlerInterface interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	List(c *gin.Context)
	Control(c *gin.Context)
	Delete(c *gin.Context)
}
