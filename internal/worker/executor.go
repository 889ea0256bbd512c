// Package worker executes dispatched jobs unit by unit. Between units the
// executor re-reads the job so pause and cancel requests are observed at the
// next checkpoint, and each unit runs under the stall threshold so a handler
// that stops reporting progress fails the job instead of holding a slot
// forever.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"

	"github.com/tariffdesk/jobengine/common"
	"github.com/tariffdesk/jobengine/internal/config"
	"github.com/tariffdesk/jobengine/internal/job"
	"github.com/tariffdesk/jobengine/internal/models"
	"github.com/tariffdesk/jobengine/internal/notify"
	"github.com/tariffdesk/jobengine/internal/progress"
	"github.com/tariffdesk/jobengine/internal/registry"
	"github.com/tariffdesk/jobengine/internal/retry"
)

const terminalConflictRetries = 3

type Executor struct {
	repo           job.JobRepoInterface
	registry       *registry.Registry
	tracker        *progress.Tracker
	retries        *retry.Manager
	emitter        job.LifecycleEmitter
	stallThreshold time.Duration
	logger         logr.Logger
}

func NewExecutor(
	repo job.JobRepoInterface,
	reg *registry.Registry,
	tracker *progress.Tracker,
	retries *retry.Manager,
	emitter job.LifecycleEmitter,
	stallThreshold time.Duration,
	logger logr.Logger,
) *Executor {
	return &Executor{
		repo:           repo,
		registry:       reg,
		tracker:        tracker,
		retries:        retries,
		emitter:        emitter,
		stallThreshold: stallThreshold,
		logger:         logger.WithName("executor"),
	}
}

// Run executes one dispatched job to completion, pause, cancellation or
// failure. The job must already be in running state; the caller owns the
// capacity slot until Run returns. Item processing resumes from the
// checkpoint (completed+failed), so paused, retried and crash-recovered
// jobs never replay recorded progress.
func (e *Executor) Run(ctx context.Context, jobID string) {
	j, err := e.repo.GetByID(ctx, jobID)
	if err != nil {
		e.logger.Error(err, "load dispatched job", "job_id", jobID)
		return
	}

	log := e.logger.WithValues("job_id", j.ID, "type", j.Type, "tenant_id", j.TenantID)

	handler, ok := e.registry.Get(j.Type)
	if !ok {
		// Enqueue validates against the registry, so this only happens when
		// a handler was deregistered between restarts.
		e.finishFatal(ctx, j, common.CodeFatal, "no handler registered for job type "+j.Type)
		return
	}

	items := []string(j.ItemIDs)

	for idx := j.Processed(); idx < j.Total && idx < len(items); idx++ {
		// Checkpoint: a pause or cancel that landed since the last unit is
		// observed here, before any more work happens.
		fresh, err := e.repo.GetByID(ctx, j.ID)
		if err != nil {
			log.Error(err, "reload job at checkpoint; leaving job in last persisted state")
			return
		}
		j = fresh
		if j.Status != config.JobStatusRunning {
			log.Info("stopping at checkpoint", "status", j.Status, "completed", j.Completed, "failed", j.Failed)
			return
		}

		itemID := items[idx]
		itemErr := e.processItem(ctx, handler, j, idx, itemID)

		var fatal *job.FatalError
		if errors.As(itemErr, &fatal) {
			e.finishFatal(ctx, j, fatal.Code, fatal.Error())
			return
		}

		if itemErr != nil {
			log.Info("item failed", "item_id", itemID, "error", itemErr.Error())
		}

		if err := e.tracker.Record(ctx, j, itemID, itemErr != nil); err != nil {
			if errors.Is(err, progress.ErrInterrupted) {
				log.Info("control request raced progress tick, stopping")
				return
			}
			log.Error(err, "record progress; leaving job in last persisted state")
			return
		}

		e.emitter.Emit(ctx, notify.EventProgress, j)
	}

	e.finishCompleted(ctx, j)
}

// processItem runs the handler for one unit under the stall threshold.
// A deadline hit is escalated to a fatal stall; the retry manager then
// decides whether the job gets another attempt.
func (e *Executor) processItem(ctx context.Context, handler registry.HandlerFunc, j *models.Job, idx int, itemID string) error {
	itemCtx, cancel := context.WithTimeout(ctx, e.stallThreshold)
	defer cancel()

	err := handler(itemCtx, registry.Item{
		JobID:      j.ID,
		TenantID:   j.TenantID,
		JobType:    j.Type,
		ItemID:     itemID,
		Index:      idx,
		Total:      j.Total,
		Parameters: map[string]any(j.Parameters),
	})

	if err != nil && errors.Is(itemCtx.Err(), context.DeadlineExceeded) {
		return job.Fatalf(common.CodeStalled,
			"handler made no progress on item %s within %s", itemID, e.stallThreshold)
	}

	return err
}

// finishCompleted marks the job completed. Units that failed individually
// stay counted in progress.failed; the job itself still completed.
func (e *Executor) finishCompleted(ctx context.Context, j *models.Job) {
	e.finish(ctx, j, func(j *models.Job) string {
		now := time.Now().UTC()
		j.Status = config.JobStatusCompleted
		j.CompletedAt = &now
		j.CurrentItem = ""
		return notify.EventCompleted
	})

	e.logger.Info("job completed", "job_id", j.ID, "completed", j.Completed, "failed", j.Failed)
}

// finishFatal routes a fatal error through the retry manager.
func (e *Executor) finishFatal(ctx context.Context, j *models.Job, code, message string) {
	e.finish(ctx, j, func(j *models.Job) string {
		if e.retries.Apply(j, code, message) {
			return notify.EventRetrying
		}
		return notify.EventFailed
	})

	switch j.Status {
	case config.JobStatusPending:
		e.logger.Info("job scheduled for retry",
			"job_id", j.ID, "attempt", j.RetryCount, "max_retries", j.MaxRetries, "run_at", j.RunAt)
	case config.JobStatusFailed:
		e.logger.Info("job failed permanently",
			"job_id", j.ID, "error_code", code, "error", message)
	}
}

// finish applies a terminal mutation with conflict retries. When a reload
// shows the job already left running (a cancel won the race), the mutation
// is abandoned: terminal states accept no further transitions.
func (e *Executor) finish(ctx context.Context, j *models.Job, mutate func(*models.Job) string) {
	for attempt := 0; ; attempt++ {
		if j.Status != config.JobStatusRunning {
			return
		}

		event := mutate(j)

		err := e.repo.Update(ctx, j)
		if err == nil {
			e.emitter.Emit(ctx, event, j)
			return
		}

		if !errors.Is(err, job.ErrVersionConflict) || attempt >= terminalConflictRetries {
			e.logger.Error(err, "persist terminal state; leaving job in last persisted state", "job_id", j.ID)
			return
		}

		fresh, getErr := e.repo.GetByID(ctx, j.ID)
		if getErr != nil {
			e.logger.Error(getErr, "reload job after conflict", "job_id", j.ID)
			return
		}
		*j = *fresh
	}
}
