package ingest

import "sync"

// Registry is the set of entities the agent has subscribed to. It lives for
// the whole process and survives reconnects.
type Registry struct {
	mu    sync.Mutex
	index map[string]struct{}
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]struct{})}
}

// Contains reports whether id has been registered.
func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.index[id]
	return ok
}

// InsertIfAbsent adds id and reports true when it was not present before.
// The check and insert happen under one lock.
func (r *Registry) InsertIfAbsent(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[id]; ok {
		return false
	}
	if r.index == nil {
		r.index = make(map[string]struct{})
	}
	r.index[id] = struct{}{}
	r.order = append(r.order, id)
	return true
}

// Len is the number of known entities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Snapshot returns the registered ids in insertion order.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return nil
	}
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
