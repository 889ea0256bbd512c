package job

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tariffdesk/jobengine/internal/config"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from config.JobStatus
		to   config.JobStatus
		want bool
	}{
		{"pending to running", config.JobStatusPending, config.JobStatusRunning, true},
		{"pending to cancelled", config.JobStatusPending, config.JobStatusCancelled, true},
		{"pending to paused", config.JobStatusPending, config.JobStatusPaused, false},
		{"pending to completed", config.JobStatusPending, config.JobStatusCompleted, false},

		{"running to paused", config.JobStatusRunning, config.JobStatusPaused, true},
		{"running to completed", config.JobStatusRunning, config.JobStatusCompleted, true},
		{"running to failed", config.JobStatusRunning, config.JobStatusFailed, true},
		{"running to cancelled", config.JobStatusRunning, config.JobStatusCancelled, true},
		{"running to pending for automatic retry", config.JobStatusRunning, config.JobStatusPending, true},

		{"paused to pending on resume", config.JobStatusPaused, config.JobStatusPending, true},
		{"paused to cancelled", config.JobStatusPaused, config.JobStatusCancelled, true},
		{"paused to running directly", config.JobStatusPaused, config.JobStatusRunning, false},
		{"paused to completed", config.JobStatusPaused, config.JobStatusCompleted, false},

		{"failed to pending on manual retry", config.JobStatusFailed, config.JobStatusPending, true},
		{"failed to running", config.JobStatusFailed, config.JobStatusRunning, false},
		{"failed to cancelled", config.JobStatusFailed, config.JobStatusCancelled, false},

		{"self transition is rejected", config.JobStatusRunning, config.JobStatusRunning, false},
		{"unknown status has no transitions", config.JobStatus("bogus"), config.JobStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatesHaveNoOutgoingTransitions(t *testing.T) {
	all := []config.JobStatus{
		config.JobStatusPending,
		config.JobStatusRunning,
		config.JobStatusPaused,
		config.JobStatusCompleted,
		config.JobStatusFailed,
		config.JobStatusCancelled,
	}

	for _, from := range []config.JobStatus{config.JobStatusCompleted, config.JobStatusCancelled} {
		for _, to := range all {
			assert.Falsef(t, CanTransition(from, to),
				"terminal status %s must not transition to %s", from, to)
		}
	}
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(config.JobStatusPending, config.JobStatusRunning))

	err := ValidateTransition(config.JobStatusCompleted, config.JobStatusRunning)
	assert.Error(t, err)

	var invalid *InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
	assert.Equal(t, config.JobStatusCompleted, invalid.From)
	assert.Equal(t, config.JobStatusRunning, invalid.To)
	assert.Contains(t, invalid.Error(), "invalid transition")
}
