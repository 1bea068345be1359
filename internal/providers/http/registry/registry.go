package registry

import (
	"sync"

	"github.com/GriffinCanCode/netctl/internal/shared/types"
)

// Entry pairs a submitted request with the delegate that receives its outcome
type Entry[D any] struct {
	Request  *types.Request
	Delegate D
}

// Registry maps in-flight task ids to their entries. Entries live from
// submission until the task's terminal event.
type Registry[D any] struct {
	mu      sync.RWMutex
	entries map[types.TaskID]Entry[D]
}

// New creates an empty registry
func New[D any]() *Registry[D] {
	return &Registry[D]{
		entries: make(map[types.TaskID]Entry[D]),
	}
}

// Add records an entry, replacing any stale entry under the same id
func (r *Registry[D]) Add(id types.TaskID, req *types.Request, delegate D) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = Entry[D]{Request: req, Delegate: delegate}
}

// Lookup returns the entry for id. A missing entry means the task already
// terminated or was never submitted here; callers drop the event.
func (r *Registry[D]) Lookup(id types.TaskID) (Entry[D], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	return entry, ok
}

// Owns reports whether id was submitted through this registry and is live
func (r *Registry[D]) Owns(id types.TaskID) bool {
	_, ok := r.Lookup(id)
	return ok
}

// Remove deletes the entry for id and returns it. Removing twice is a no-op.
func (r *Registry[D]) Remove(id types.TaskID) (Entry[D], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return entry, ok
}

// IDs returns the ids of every live entry
func (r *Registry[D]) IDs() []types.TaskID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]types.TaskID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of live entries
func (r *Registry[D]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
