package config

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether a job in this status accepts no further
// transitions (deletion excepted).
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

type JobPriority string

const (
	PriorityLow    JobPriority = "low"
	PriorityMedium JobPriority = "medium"
	PriorityHigh   JobPriority = "high"
)

// Rank orders priorities for dispatch; higher dispatches first.
func (p JobPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

type ControlAction string

const (
	ActionPause  ControlAction = "pause"
	ActionResume ControlAction = "resume"
	ActionCancel ControlAction = "cancel"
	ActionRetry  ControlAction = "retry"
)

var (
	AllowedJobTypes = []string{
		"classification",
		"fee_calculation",
		"import",
		"export",
	}
	AllowedPriorities = []JobPriority{PriorityLow, PriorityMedium, PriorityHigh}
	AllowedActions    = []ControlAction{ActionPause, ActionResume, ActionCancel, ActionRetry}
)
