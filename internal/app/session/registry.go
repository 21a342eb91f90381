package session

import (
	"sync"
)

// Canceler is anything that can be cancelled with a cause. It reports false
// when the target had already finished.
type Canceler interface {
	Cancel(cause error) bool
}

// Registry tracks live sessions by id so they can be cancelled out of band.
// A session is present from admission until its terminal transition.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Canceler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Canceler)}
}

// Register adds the handle under id, replacing nothing: ids are unique.
func (r *Registry) Register(id string, c Canceler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = c
}

// Unregister removes id. Removing an unknown id is a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Cancel cancels the session registered under id. It returns false when id is
// unknown or the session already reached a terminal state.
func (r *Registry) Cancel(id string, cause error) bool {
	r.mu.RLock()
	c, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	// Called without the lock; Cancel may take time to propagate.
	return c.Cancel(cause)
}

// CancelAll cancels every registered session and returns how many accepted.
func (r *Registry) CancelAll(cause error) int {
	r.mu.RLock()
	handles := make([]Canceler, 0, len(r.sessions))
	for _, c := range r.sessions {
		handles = append(handles, c)
	}
	r.mu.RUnlock()

	n := 0
	for _, c := range handles {
		if c.Cancel(cause) {
			n++
		}
	}
	return n
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}
