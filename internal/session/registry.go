package session

import (
	"sort"
	"sync"
)

// Registry stores the live session and the latest pairing code per profile.
// It guards its maps but does not serialize multi-step operations; the
// Manager does that per profile id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	codes    map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		codes:    make(map[string]string),
	}
}

func (r *Registry) Put(id string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = s
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops both the session and its cached code in one step.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	delete(r.codes, id)
}

func (r *Registry) SetCode(id, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[id] = code
}

func (r *Registry) GetCode(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.codes[id]
	return code, ok
}

func (r *Registry) ClearCode(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codes, id)
}

// SetCodeFor caches code only while s is still the registered session for id.
func (r *Registry) SetCodeFor(id string, s *Session, code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[id] != s {
		return false
	}
	r.codes[id] = code
	return true
}

// ClearCodeFor clears the cached code only while s is still registered for id.
func (r *Registry) ClearCodeFor(id string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[id] != s {
		return false
	}
	delete(r.codes, id)
	return true
}

// RemoveIfCurrent purges id only when it still maps to s.
func (r *Registry) RemoveIfCurrent(id string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[id] != s {
		return false
	}
	delete(r.sessions, id)
	delete(r.codes, id)
	return true
}

// IDs returns the registered profile ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
