package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tariffdesk/jobengine/internal/config"
	"github.com/tariffdesk/jobengine/internal/job"
	"github.com/tariffdesk/jobengine/internal/models"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

var _ job.JobRepoInterface = (*JobRepository)(nil)

// Create inserts a new job record. Returns an error if the database
// operation fails.
func (r *JobRepository) Create(ctx context.Context, j *models.Job) error {
	if err := r.db.WithContext(ctx).Create(j).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID within the given tenant. A tenant mismatch is
// reported as not-found, never as a permission error.
func (r *JobRepository) Get(ctx context.Context, tenantID, id string) (*models.Job, error) {
	var j models.Job
	err := r.db.WithContext(ctx).
		First(&j, "id = ? AND tenant_id = ?", id, tenantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, job.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// GetByID retrieves a job by ID across tenants. Engine-internal: only the
// executor and progress tracker use it.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	var j models.Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, job.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// List retrieves the tenant's jobs matching the filter, newest first.
func (r *JobRepository) List(ctx context.Context, tenantID string, filter job.ListFilter) ([]models.Job, error) {
	q := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Priority != "" {
		q = q.Where("priority = ?", filter.Priority)
	}

	var jobs []models.Job
	if err := q.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Update writes the job's mutable fields guarded by a compare-and-swap on
// lock_version. On success the in-memory LockVersion is bumped to match the
// row; a stale version returns job.ErrVersionConflict.
func (r *JobRepository) Update(ctx context.Context, j *models.Job) error {
	updates := map[string]any{
		"status":        j.Status,
		"completed":     j.Completed,
		"failed":        j.Failed,
		"current_item":  j.CurrentItem,
		"error_message": j.ErrorMessage,
		"error_code":    j.ErrorCode,
		"retry_count":   j.RetryCount,
		"last_retry_at": j.LastRetryAt,
		"run_at":        j.RunAt,
		"started_at":    j.StartedAt,
		"completed_at":  j.CompletedAt,
		"lock_version":  j.LockVersion + 1,
		"updated_at":    time.Now().UTC(),
	}

	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND lock_version = ?", j.ID, j.LockVersion).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update job: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Job{}).
			Where("id = ?", j.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		if count == 0 {
			return job.ErrNotFound
		}
		return job.ErrVersionConflict
	}

	j.LockVersion++
	return nil
}

// Delete removes a job row within the given tenant.
func (r *JobRepository) Delete(ctx context.Context, tenantID, id string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Delete(&models.Job{})
	if res.Error != nil {
		return fmt.Errorf("delete job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return job.ErrNotFound
	}
	return nil
}

// ListDue returns up to limit dispatchable jobs: pending and past their
// run_at gate, highest priority first, oldest first within a priority.
func (r *JobRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.WithContext(ctx).
		Where("status = ? AND run_at <= ?", config.JobStatusPending, now).
		Order("priority_rank DESC, created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	return jobs, nil
}

// CountByStatus returns the tenant's job counts grouped by status.
func (r *JobRepository) CountByStatus(ctx context.Context, tenantID string) (map[config.JobStatus]int, error) {
	var rows []struct {
		Status config.JobStatus
		Count  int
	}
	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Select("status, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	counts := make(map[config.JobStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ResetOrphanedRunning returns every running job to pending. Called once at
// startup, before the dispatcher starts: any job still marked running at
// that point was stranded by a crash and must be re-dispatched
// (at-least-once recovery; the checkpoint keeps recorded progress).
func (r *JobRepository) ResetOrphanedRunning(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("status = ?", config.JobStatusRunning).
		Updates(map[string]any{
			"status":       config.JobStatusPending,
			"run_at":       time.Now().UTC(),
			"lock_version": gorm.Expr("lock_version + 1"),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("reset orphaned jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
