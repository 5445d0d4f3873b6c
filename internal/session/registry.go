package session

import (
	"sync"
)

// Registry maps confirmed session ids to their engines. Engines are inserted
// when the agent confirms a session id and removed when the engine is closed
// or the session deleted. Collaborators receive the registry by reference;
// there is no ambient global.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Engine
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]*Engine)}
}

// Insert registers an engine under a confirmed session id.
func (r *Registry) Insert(id string, e *Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[id] = e
}

// Get returns the engine for a session id, or nil.
func (r *Registry) Get(id string) *Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines[id]
}

// Remove drops an engine, but only if the id still maps to it. A re-pointed
// session id must not be clobbered by the old engine's teardown.
func (r *Registry) Remove(id string, e *Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.engines[id] == e {
		delete(r.engines, id)
	}
}

// Rename re-points an engine from oldID to newID.
func (r *Registry) Rename(oldID, newID string, e *Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.engines[oldID] == e {
		delete(r.engines, oldID)
	}
	r.engines[newID] = e
}

// Len reports the number of registered engines.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}
