// Package registry maps job types to the handlers that process their work
// units. Types are validated against the registry at enqueue time, so an
// unregistered type can never reach the dispatcher.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Item describes one work unit handed to a handler.
type Item struct {
	JobID      string
	TenantID   string
	JobType    string
	ItemID     string
	Index      int
	Total      int
	Parameters map[string]any
}

// HandlerFunc processes a single work unit. A plain error marks the unit
// failed and processing continues; a job.FatalError aborts the whole run.
type HandlerFunc func(ctx context.Context, item Item) error

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to a job type, replacing any previous binding.
func (r *Registry) Register(jobType string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

// Get returns the handler for the given job type.
func (r *Registry) Get(jobType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Has reports whether a handler is registered for the job type.
func (r *Registry) Has(jobType string) bool {
	_, ok := r.Get(jobType)
	return ok
}

// Types returns all registered job types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// RegisterTyped registers a handler that receives the job parameters
// unmarshalled into P. Package-level because Go does not allow generic
// methods on non-generic receiver types.
func RegisterTyped[P any](r *Registry, jobType string, handler func(ctx context.Context, item Item, params P) error) {
	r.Register(jobType, func(ctx context.Context, item Item) error {
		raw, err := json.Marshal(item.Parameters)
		if err != nil {
			return fmt.Errorf("marshal parameters for job type %q: %w", jobType, err)
		}
		var p P
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				return fmt.Errorf("unmarshal parameters for job type %q: %w", jobType, err)
			}
		}
		return handler(ctx, item, p)
	})
}
