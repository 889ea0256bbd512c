// Package notify publishes job lifecycle events on a watermill topic.
// Delivery is advisory: the engine's contract with callers is the queryable
// job state, and consumers (UI polling bridges, ops tooling, the scheduler's
// wake signal) subscribe to the topic as they see fit.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-logr/logr"

	"github.com/tariffdesk/jobengine/internal/models"
)

// Topic carries every lifecycle event for every job.
const Topic = "jobs.lifecycle"

const (
	EventEnqueued   = "enqueued"
	EventDispatched = "dispatched"
	EventProgress   = "progress"
	EventPaused     = "paused"
	EventResumed    = "resumed"
	EventCancelled  = "cancelled"
	EventCompleted  = "completed"
	EventFailed     = "failed"
	EventRetrying   = "retrying"
)

// Event is the wire form of a lifecycle notification.
type Event struct {
	JobID     string    `json:"job_id"`
	TenantID  string    `json:"tenant_id"`
	JobType   string    `json:"job_type"`
	Event     string    `json:"event"`
	Status    string    `json:"status"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

type Emitter struct {
	publisher message.Publisher
	logger    logr.Logger
}

func NewEmitter(publisher message.Publisher, logger logr.Logger) *Emitter {
	return &Emitter{publisher: publisher, logger: logger.WithName("notify")}
}

// Emit publishes a lifecycle event for the job. Publish failures are logged
// and swallowed: notifications must never fail the mutation they describe.
func (e *Emitter) Emit(_ context.Context, event string, j *models.Job) {
	payload, err := json.Marshal(Event{
		JobID:     j.ID,
		TenantID:  j.TenantID,
		JobType:   j.Type,
		Event:     event,
		Status:    string(j.Status),
		Total:     j.Total,
		Completed: j.Completed,
		Failed:    j.Failed,
		Error:     j.ErrorMessage,
		At:        time.Now().UTC(),
	})
	if err != nil {
		e.logger.Error(err, "marshal lifecycle event", "job_id", j.ID, "event", event)
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := e.publisher.Publish(Topic, msg); err != nil {
		e.logger.Error(err, "publish lifecycle event", "job_id", j.ID, "event", event)
	}
}
