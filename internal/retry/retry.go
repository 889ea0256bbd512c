// Package retry decides what happens to a job after a fatal failure:
// re-admission with backoff while the retry budget lasts, terminal failure
// once it is exhausted.
package retry

import (
	"time"

	"github.com/tariffdesk/jobengine/internal/backoff"
	"github.com/tariffdesk/jobengine/internal/config"
	"github.com/tariffdesk/jobengine/internal/models"
)

type Manager struct {
	strategy backoff.Strategy
}

func NewManager(strategy backoff.Strategy) *Manager {
	return &Manager{strategy: strategy}
}

// Apply mutates the job for its post-failure state and returns true when
// the job will be retried. The error is preserved on the record either way.
// The retry gate keeps the invariant retry_count <= max_retries: the count
// is only incremented while strictly below the budget, and the job is
// terminally failed the moment the budget is spent.
func (m *Manager) Apply(j *models.Job, code, message string) bool {
	now := time.Now().UTC()
	j.ErrorCode = code
	j.ErrorMessage = message

	if j.RetryCount < j.MaxRetries {
		j.RetryCount++
		j.LastRetryAt = &now
		j.RunAt = now.Add(m.strategy.Delay(j.RetryCount))
		j.Status = config.JobStatusPending
		return true
	}

	j.Status = config.JobStatusFailed
	j.CompletedAt = &now
	return false
}
