// Package hub tracks the set of live sessions. The dispatch side adds and
// removes sessions as connections come and go; the fan-out engines read
// snapshots when deciding where an update must be delivered.
package hub

import (
	"log/slog"
	"sync"

	"github.com/nfrund/tickstream/internal/session"
)

// Roster is the concurrent registry of live sessions.
type Roster struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{sessions: make(map[string]*session.Session)}
}

// Add registers a session.
func (r *Roster) Add(s *session.Session) {
	r.mu.Lock()
	r.sessions[s.ID()] = s
	total := len(r.sessions)
	r.mu.Unlock()
	slog.Info("Session registered", "sessionID", s.ID(), "total_sessions", total)
}

// Remove unregisters a session by id. Removing an unknown id is a no-op.
func (r *Roster) Remove(id string) {
	r.mu.Lock()
	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		slog.Info("Session unregistered", "sessionID", id, "total_sessions", len(r.sessions))
	}
	r.mu.Unlock()
}

// Snapshot returns the sessions live at the time of the call.
func (r *Roster) Snapshot() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
