package job

import "github.com/tariffdesk/jobengine/internal/config"

// allowedTransitions is the full transition table, including the
// engine-internal hops: running→pending (automatic retry), paused→pending
// (resume re-enters the admission queue) and failed→pending (manual retry,
// which resets the retry budget). Terminal states have no outgoing edges.
var allowedTransitions = map[config.JobStatus][]config.JobStatus{
	config.JobStatusPending: {
		config.JobStatusRunning,
		config.JobStatusCancelled,
	},
	config.JobStatusRunning: {
		config.JobStatusPaused,
		config.JobStatusCompleted,
		config.JobStatusFailed,
		config.JobStatusPending,
		config.JobStatusCancelled,
	},
	config.JobStatusPaused: {
		config.JobStatusPending,
		config.JobStatusCancelled,
	},
	config.JobStatusFailed: {
		config.JobStatusPending,
	},
}

// CanTransition reports whether from→to is an allowed status change.
func CanTransition(from, to config.JobStatus) bool {
	if from == to {
		return false
	}
	for _, allowed := range allowedTransitions[from] {
		if to == allowed {
			return true
		}
	}
	return false
}

// ValidateTransition returns an InvalidTransitionError when from→to is not
// in the transition table.
func ValidateTransition(from, to config.JobStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}
