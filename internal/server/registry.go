// Package server coordinates the shared client registry and the exclusive
// admin binding. The registry is the single source of truth for which
// sessions are connected; every handler goroutine mutates it through the
// mutex held here.
package server

import "sync"

// Registry maps session ids to live sessions. A session id is present iff
// its connection is open and not yet torn down. The admin binding lives
// alongside the map so bind/unbind and membership stay consistent under one
// lock.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	adminID  string
}

// NewRegistry creates an empty registry with no admin bound.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session. The caller guarantees the id is fresh.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Remove deregisters the session and clears the admin binding when the
// departing session held it. It reports whether the session was present, so
// racing teardown paths can tell who actually removed it.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	if r.adminID == id {
		r.adminID = ""
	}
	return true
}

// Get looks a session up by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	return s, ok
}

// FindByName resolves a session by display name, falling back to the id for
// sessions that never set one.
func (r *Registry) FindByName(name string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.DisplayName == name || s.ID == name {
			return s, true
		}
	}
	return nil, false
}

// Names returns the display names of every connected session.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.sessions))
	for _, s := range r.sessions {
		names = append(names, s.DisplayName)
	}
	return names
}

// Count returns the number of connected sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// MessageTotal sums the inbound message counters of all connected sessions.
func (r *Registry) MessageTotal() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
	for _, s := range r.sessions {
		total += s.MessageTotal()
	}
	return total
}

// BindAdmin makes the session the process-wide admin, replacing any
// previous binding.
func (r *Registry) BindAdmin(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adminID = id
}

// IsAdmin reports whether the session is authorized for server commands:
// it must be the currently bound admin AND carry the admin flag. Either
// alone is not enough.
func (r *Registry) IsAdmin(s *Session) bool {
	r.mu.Lock()
	bound := r.adminID == s.ID
	r.mu.Unlock()

	return bound && s.Permissions.Admin()
}

// Snapshot returns all connected sessions. Used by shutdown so teardown can
// run outside the lock.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Receivers returns the sessions eligible to receive a broadcast from the
// given sender: receive permission set and a different id. The lock is held
// only to take the snapshot; delivery happens outside it so one stalled
// peer cannot stall registration.
func (r *Registry) Receivers(senderID string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		if id == senderID {
			continue
		}
		if s.Permissions.Receive() {
			out = append(out, s)
		}
	}
	return out
}
