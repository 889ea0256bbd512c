package dto

import (
	"time"

	"github.com/tariffdesk/jobengine/internal/config"
)

type JobCreateDTO struct {
	Type       string         `json:"type" validate:"required"`
	ItemIDs    []string       `json:"item_ids" validate:"required,min=1,dive,required"`
	Priority   string         `json:"priority" validate:"omitempty,oneof=low medium high"`
	Parameters map[string]any `json:"parameters"`
	OwnerID    string         `json:"owner_id" validate:"required"`
	MaxRetries *int           `json:"max_retries,omitempty" validate:"omitempty,gte=0,lte=20"`
}

type JobControlDTO struct {
	Action config.ControlAction `json:"action" validate:"required,oneof=pause resume cancel retry"`
}

type JobProgressDTO struct {
	Total       int    `json:"total"`
	Completed   int    `json:"completed"`
	Failed      int    `json:"failed"`
	CurrentItem string `json:"current_item,omitempty"`
}

type JobErrorDTO struct {
	Message     string     `json:"message"`
	Code        string     `json:"code,omitempty"`
	RetryCount  int        `json:"retry_count"`
	LastRetryAt *time.Time `json:"last_retry_at,omitempty"`
}

type JobResponseDTO struct {
	ID                     string         `json:"id"`
	TenantID               string         `json:"tenant_id"`
	OwnerID                string         `json:"owner_id,omitempty"`
	Type                   string         `json:"type"`
	Status                 string         `json:"status"`
	Priority               string         `json:"priority"`
	Progress               JobProgressDTO `json:"progress"`
	Parameters             map[string]any `json:"parameters,omitempty"`
	Error                  *JobErrorDTO   `json:"error,omitempty"`
	MaxRetries             int            `json:"max_retries"`
	EstimatedTimeRemaining string         `json:"estimated_time_remaining,omitempty"`
	CreatedAt              time.Time      `json:"created_at"`
	StartedAt              *time.Time     `json:"started_at,omitempty"`
	CompletedAt            *time.Time     `json:"completed_at,omitempty"`
}

// QueueStatusDTO summarises the dispatch queue for list responses.
type QueueStatusDTO struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Capacity  int `json:"capacity"`
	TotalJobs int `json:"total_jobs"`
}

type JobListResponseDTO struct {
	Jobs        []JobResponseDTO `json:"jobs"`
	QueueStatus QueueStatusDTO   `json:"queue_status"`
}
