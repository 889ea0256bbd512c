package job

import (
	"errors"
	"fmt"

	"github.com/tariffdesk/jobengine/internal/config"
)

var (
	// ErrNotFound is returned when a job id does not exist within the
	// caller's tenant. A tenant mismatch is indistinguishable from a
	// missing row on purpose.
	ErrNotFound = errors.New("job not found")

	// ErrVersionConflict is returned when an optimistic update lost the
	// race against another writer for the same job row.
	ErrVersionConflict = errors.New("job version conflict")
)

// InvalidTransitionError rejects a status change not allowed by the job
// state machine.
type InvalidTransitionError struct {
	From config.JobStatus
	To   config.JobStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q", e.From, e.To)
}

// FatalError aborts a whole job run, as opposed to a per-item error which is
// absorbed into progress.failed. Handlers return it (or wrap with Fatalf)
// when continuing with the remaining items is pointless.
type FatalError struct {
	Code    string
	Message string
	Err     error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatalf builds a FatalError with the given engine error code.
func Fatalf(code, format string, args ...any) *FatalError {
	return &FatalError{Code: code, Message: fmt.Sprintf(format, args...)}
}
