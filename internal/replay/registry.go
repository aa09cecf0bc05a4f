// internal/replay/registry.go
package replay

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	errPause = errors.New("replay: pause requested")
	errStop  = errors.New("replay: stop requested")
)

// Handle is the control side of one running worker
type Handle struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

func newHandle(parent context.Context) (*Handle, context.Context) {
	ctx, cancel := context.WithCancelCause(parent)
	return &Handle{cancel: cancel, done: make(chan struct{})}, ctx
}

// Pause asks the worker to persist its cursor and exit
func (h *Handle) Pause() { h.cancel(errPause) }

// Stop asks the worker to complete the session and exit
func (h *Handle) Stop() { h.cancel(errStop) }

// Done is closed once the worker has written its final state
func (h *Handle) Done() <-chan struct{} { return h.done }

// Registry maps session ids to the handles of their active workers.
// At most one worker per session is ever registered.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Add registers a handle, failing when the session already has a worker
func (r *Registry) Add(id string, h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[id]; exists {
		return ErrAlreadyRunning
	}
	r.handles[id] = h
	return nil
}

// Remove drops a session's handle
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.handles, id)
	r.mu.Unlock()
}

// Lookup returns a session's handle
func (r *Registry) Lookup(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// Len returns the number of active workers
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// IDs returns the sessions with active workers, sorted
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}
