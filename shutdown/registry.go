// Package shutdown closes the service's components in a fixed order when the
// process is asked to stop.
package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Func releases one component. It should honor ctx's deadline.
type Func func(ctx context.Context) error

// Priorities used by the service. Lower runs first: stop accepting work,
// drain it, then release what the work depended on.
const (
	PriorityHTTP     = 10
	PriorityJobs     = 20
	PriorityBrowser  = 30
	PriorityJobStore = 40
	PriorityDatabase = 50
	PriorityFiles    = 60
	PriorityLogger   = 90
)

type entry struct {
	name     string
	fn       Func
	priority int
}

// Registry holds cleanup functions ordered by priority. Entries with equal
// priority run in registration order.
type Registry struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds fn. Registration after Shutdown is ignored.
func (r *Registry) Register(name string, priority int, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.entries = append(r.entries, entry{name: name, fn: fn, priority: priority})
}

// Shutdown runs every function even when some fail and returns the
// failures, each prefixed with its name. Later calls return nil.
func (r *Registry) Shutdown(ctx context.Context) []error {
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
	return errs
}

// Names lists entries in execution order.
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

// Count returns the number of registered functions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) sortedLocked() []entry {
	sorted := make([]entry, len(r.entries))
	copy(sorted, r.entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].priority < sorted[j].priority })
	return sorted
}
