package live

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the concurrent-safe map of runtime sessions. It holds no
// business logic; the Orchestrator applies every mutation to the sessions it
// looks up here.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]*Session)}
}

// Put inserts a session keyed by its session id.
func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Get returns the session with the given id, or nil.
func (r *Registry) Get(id uuid.UUID) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// GetByStreamID returns the session backing the given durable stream, or nil.
func (r *Registry) GetByStreamID(streamID uuid.UUID) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.StreamID == streamID {
			return s
		}
	}
	return nil
}

// GetByStreamKey returns the session with the given ingest key, or nil.
// Linear scan; the registry holds live sessions only.
func (r *Registry) GetByStreamKey(key string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.StreamKey == key {
			return s
		}
	}
	return nil
}

// Delete removes a session from the registry. Durable records are untouched.
func (r *Registry) Delete(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// List returns a snapshot of all sessions, safe to iterate while sessions
// are concurrently added or removed.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
