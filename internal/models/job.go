package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/tariffdesk/jobengine/internal/config"
)

// Job is the durable record of one background operation. Every mutation goes
// through an optimistic compare-and-swap on LockVersion so a worker's
// progress tick and a concurrent control request cannot clobber each other.
type Job struct {
	ID       string             `gorm:"primaryKey;type:varchar(36)"`
	TenantID string             `gorm:"type:varchar(255);not null;index"`
	OwnerID  string             `gorm:"type:varchar(255)"`
	Type     string             `gorm:"type:varchar(64);not null"`
	Status   config.JobStatus   `gorm:"type:varchar(32);not null;default:'pending';index"`
	Priority config.JobPriority `gorm:"type:varchar(16);not null;default:'medium'"`

	// PriorityRank mirrors Priority as an integer so the dispatch query can
	// ORDER BY it directly.
	PriorityRank int `gorm:"not null;default:2"`

	ItemIDs    datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	Parameters datatypes.JSONMap           `gorm:"type:jsonb"`

	Total       int `gorm:"not null;default:0"`
	Completed   int `gorm:"not null;default:0"`
	Failed      int `gorm:"not null;default:0"`
	CurrentItem string

	ErrorMessage string `gorm:"type:text"`
	ErrorCode    string `gorm:"type:varchar(32)"`
	RetryCount   int    `gorm:"not null;default:0"`
	MaxRetries   int    `gorm:"not null;default:3"`
	LastRetryAt  *time.Time

	// RunAt gates dispatch eligibility; retries push it into the future.
	RunAt time.Time `gorm:"index"`

	LockVersion int `gorm:"not null;default:0"`

	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Processed returns the number of items that reached an outcome.
func (j *Job) Processed() int {
	return j.Completed + j.Failed
}

// EstimatedTimeRemaining extrapolates the observed per-item rate over the
// unprocessed remainder. Advisory only; zero until at least one item is done.
func (j *Job) EstimatedTimeRemaining(now time.Time) time.Duration {
	if j.Status != config.JobStatusRunning || j.StartedAt == nil {
		return 0
	}
	done := j.Processed()
	if done == 0 || done >= j.Total {
		return 0
	}
	elapsed := now.Sub(*j.StartedAt)
	if elapsed <= 0 {
		return 0
	}
	perItem := elapsed / time.Duration(done)
	return perItem * time.Duration(j.Total-done)
}
