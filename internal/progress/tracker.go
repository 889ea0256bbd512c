// Package progress applies per-unit outcomes to a job record. Every tick is
// validated against the progress invariant and written with an optimistic
// compare-and-swap, so a tick can never overwrite a concurrent pause or
// cancel request.
package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/tariffdesk/jobengine/internal/config"
	"github.com/tariffdesk/jobengine/internal/job"
	"github.com/tariffdesk/jobengine/internal/models"
)

// ErrInterrupted reports that the job left the running state while a tick
// was in flight. The executor treats it as the pause/cancel checkpoint.
var ErrInterrupted = errors.New("job is no longer running")

// conflict retries per tick; each retry re-reads the row first.
const tickConflictRetries = 2

type Tracker struct {
	repo job.JobRepoInterface
}

func NewTracker(repo job.JobRepoInterface) *Tracker {
	return &Tracker{repo: repo}
}

// Record applies the outcome of one work unit to the job and persists it.
// failed=true increments progress.failed, otherwise progress.completed;
// current_item is set to the unit just processed. The mutation is retried
// against a fresh read on version conflict, and j is refreshed in place on
// success.
func (t *Tracker) Record(ctx context.Context, j *models.Job, itemID string, failed bool) error {
	for attempt := 0; ; attempt++ {
		if j.Status != config.JobStatusRunning {
			return ErrInterrupted
		}

		if j.Processed() >= j.Total {
			return fmt.Errorf("progress overflow on job %s: %d of %d units already recorded",
				j.ID, j.Processed(), j.Total)
		}

		if failed {
			j.Failed++
		} else {
			j.Completed++
		}
		j.CurrentItem = itemID

		err := t.repo.Update(ctx, j)
		if err == nil {
			return nil
		}

		if !errors.Is(err, job.ErrVersionConflict) || attempt >= tickConflictRetries {
			return fmt.Errorf("record progress for job %s: %w", j.ID, err)
		}

		fresh, getErr := t.repo.GetByID(ctx, j.ID)
		if getErr != nil {
			return fmt.Errorf("reload job %s after conflict: %w", j.ID, getErr)
		}
		*j = *fresh
	}
}
