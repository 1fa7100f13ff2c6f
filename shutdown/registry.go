package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Func releases one resource during shutdown. It should return promptly
// once ctx is done.
type Func func(ctx context.Context) error

// Priorities used by the dashboard. Lower runs first: stop taking requests,
// settle the pages, flush history, then close the store and the logger.
const (
	PriorityHTTPServer = 10
	PriorityPages      = 20
	PriorityWorkers    = 25
	PriorityHistory    = 30
	PriorityDatabase   = 40
	PriorityLogger     = 90
)

type entry struct {
	name     string
	priority int
	fn       Func
}

// Registry runs cleanup functions in priority order. Entries sharing a
// priority run in registration order.
type Registry struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds fn. Registrations after Run are ignored.
func (r *Registry) Register(name string, priority int, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.entries = append(r.entries, entry{name: name, priority: priority, fn: fn})
}

func (r *Registry) sortedLocked() []entry {
	sorted := append([]entry(nil), r.entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].priority < sorted[j].priority
	})
	return sorted
}

// Run calls every function once, even after failures, and joins the
// errors. Later calls return nil.
func (r *Registry) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sorted := r.sortedLocked()
	r.mu.Unlock()

	var errs []error
	for _, e := range sorted {
		if err := e.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return errors.Join(errs...)
}

// Names returns the registered names in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := r.sortedLocked()
	names := make([]string, len(sorted))
	for i, e := range sorted {
		names[i] = e.name
	}
	return names
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
