// Package scheduler is the engine's admission controller. A single
// goroutine owns every dispatch decision: it selects due pending jobs by
// priority then age, starts executors up to the configured capacity, and
// refills slots as runs finish. Serialising dispatch through one loop is
// what makes the capacity bound and the ordering guarantees hold without
// any cross-goroutine accounting.
package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-logr/logr"

	"github.com/tariffdesk/jobengine/internal/config"
	"github.com/tariffdesk/jobengine/internal/job"
	"github.com/tariffdesk/jobengine/internal/models"
	"github.com/tariffdesk/jobengine/internal/notify"
	"github.com/tariffdesk/jobengine/internal/worker"
)

type Scheduler struct {
	repo     job.JobRepoInterface
	executor *worker.Executor
	emitter  job.LifecycleEmitter
	// subscriber, when set, delivers lifecycle events whose enqueue/resume/
	// retry variants wake the loop; the periodic tick remains the safety net.
	subscriber message.Subscriber
	capacity   int
	tick       time.Duration
	logger     logr.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	// slotFreed is buffered to capacity so a finishing executor never
	// blocks after the loop has exited.
	slotFreed chan string
	wg        sync.WaitGroup
	mu        sync.Mutex
	started   bool

	// active is touched only by the dispatch loop goroutine.
	active int
}

func NewScheduler(
	repo job.JobRepoInterface,
	executor *worker.Executor,
	emitter job.LifecycleEmitter,
	subscriber message.Subscriber,
	capacity int,
	tick time.Duration,
	logger logr.Logger,
) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		repo:       repo,
		executor:   executor,
		emitter:    emitter,
		subscriber: subscriber,
		capacity:   capacity,
		tick:       tick,
		logger:     logger.WithName("scheduler"),
		ctx:        ctx,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
		slotFreed:  make(chan string, capacity),
	}
}

// Capacity returns the configured concurrency bound.
func (s *Scheduler) Capacity() int { return s.capacity }

// Start recovers orphaned running jobs, launches the dispatch loop and,
// when a subscriber is configured, the wake listener. Idempotent.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.started = true

	// Jobs still marked running at startup were stranded by a crash; they
	// re-enter the queue and resume from their checkpoint.
	reset, err := s.repo.ResetOrphanedRunning(s.ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		s.logger.Info("recovered orphaned running jobs", "count", reset)
	}

	if s.subscriber != nil {
		msgs, err := s.subscriber.Subscribe(s.ctx, notify.Topic)
		if err != nil {
			return err
		}
		s.wg.Add(1)
		go s.listen(msgs)
	}

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("scheduler started", "capacity", s.capacity, "tick", s.tick)
	return nil
}

// Stop halts dispatching and waits for in-flight executors to reach their
// next checkpoint and return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Wake requests a dispatch pass. Non-blocking; coalesces with any pass
// already requested.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		s.dispatch()

		select {
		case <-ticker.C:
		case <-s.wake:
		case <-s.slotFreed:
			s.active--
		case <-s.ctx.Done():
			return
		}
	}
}

// dispatch fills the free capacity with due jobs. It runs only on the loop
// goroutine, so two passes can never interleave.
func (s *Scheduler) dispatch() {
	free := s.capacity - s.active
	if free <= 0 {
		return
	}

	now := time.Now().UTC()
	due, err := s.repo.ListDue(s.ctx, now, free)
	if err != nil {
		s.logger.Error(err, "list due jobs")
		return
	}

	for i := range due {
		if s.active >= s.capacity {
			return
		}
		s.launch(&due[i], now)
	}
}

// launch claims one pending job via CAS and starts its executor. A conflict
// means the job changed under us (a cancel, typically); it is skipped, not
// an error.
func (s *Scheduler) launch(j *models.Job, now time.Time) {
	if err := job.ValidateTransition(j.Status, config.JobStatusRunning); err != nil {
		s.logger.Error(err, "due job not dispatchable", "job_id", j.ID, "status", j.Status)
		return
	}

	j.Status = config.JobStatusRunning
	if j.StartedAt == nil {
		started := now
		j.StartedAt = &started
	}

	if err := s.repo.Update(s.ctx, j); err != nil {
		s.logger.Info("skipping job claimed or changed concurrently", "job_id", j.ID, "reason", err.Error())
		return
	}

	s.active++
	s.emitter.Emit(s.ctx, notify.EventDispatched, j)
	s.logger.Info("dispatched job",
		"job_id", j.ID, "type", j.Type, "priority", j.Priority, "active", s.active)

	s.wg.Add(1)
	go func(id string) {
		defer s.wg.Done()
		s.executor.Run(s.ctx, id)
		s.slotFreed <- id
	}(j.ID)
}

// listen turns enqueue/resume/retry lifecycle events into wake signals so
// new work is dispatched without waiting for the next tick.
func (s *Scheduler) listen(msgs <-chan *message.Message) {
	defer s.wg.Done()

	for msg := range msgs {
		var event notify.Event
		if err := json.Unmarshal(msg.Payload, &event); err == nil {
			switch event.Event {
			case notify.EventEnqueued, notify.EventResumed, notify.EventRetrying:
				s.Wake()
			}
		}
		msg.Ack()
	}
}
