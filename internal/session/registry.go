package session

import (
	"sync"
	"time"

	"github.com/dgallion1/inkport/internal/surface"
)

// Registry is a thread-safe in-memory session registry with TTL eviction.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// Create adds a new session.
func (r *Registry) Create(bounds surface.Bounds) *Session {
	s := New(bounds)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return s
}

// Get returns a session by ID and marks it used, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	s := r.sessions[id]
	r.mu.Unlock()
	if s != nil {
		s.Touch()
	}
	return s
}

// Delete removes a session and reports whether it existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Cleanup removes expired sessions and returns how many it removed.
func (r *Registry) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ttl <= 0 {
		return 0
	}
	now := time.Now()
	removed := 0
	for id, s := range r.sessions {
		if now.Sub(s.LastUsed()) > r.ttl {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}
