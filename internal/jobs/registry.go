package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler processes one job. The returned value is stored as the job result.
type Handler func(ctx context.Context, job *Job) (any, error)

// Registry maps job names to handlers. Domains register their handlers
// during fx construction, before the worker starts.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds name to h. Registering the same name twice panics.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("jobs: handler %q already registered", name))
	}
	r.handlers[name] = h
}

// Lookup returns the handler for name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered job names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the handler registered for job.Name. Unknown names fail permanently.
func (r *Registry) Dispatch(ctx context.Context, job *Job) (any, error) {
	h, ok := r.Lookup(job.Name)
	if !ok {
		return nil, Permanent(fmt.Errorf("%w: %s", ErrUnknownJob, job.Name))
	}
	return h(ctx, job)
}
