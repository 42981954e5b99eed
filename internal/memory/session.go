package memory

import (
	"log"
	"strings"
	"sync"
	"time"
)

const (
	// MaxSessionQueries bounds the per-session ring. The oldest entry is
	// evicted on overflow.
	MaxSessionQueries = 10

	// DefaultSessionTTL is how long an idle session survives before the
	// cleanup task reaps it.
	DefaultSessionTTL = time.Hour

	// contextEntries is how many recent entries feed the conversational
	// context string.
	contextEntries = 3
)

// Session is one conversation's ring of recorded entries. All access goes
// through the per-session mutex.
type Session struct {
	ID             string
	CreatedAt      time.Time
	LastAccessedAt time.Time

	mu      sync.Mutex
	entries []MemoryEntry
}

// SessionManager owns every live session. Sessions are created lazily on
// first reference and reaped after their TTL of inactivity.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewSessionManager creates a manager with the given idle TTL; zero means
// DefaultSessionTTL.
func NewSessionManager(ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// get returns the session, creating it if needed, and touches its access
// time.
func (m *SessionManager) get(sessionID string) *Session {
	now := time.Now().UTC()

	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		s.mu.Lock()
		s.LastAccessedAt = now
		s.mu.Unlock()
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.mu.Lock()
		s.LastAccessedAt = now
		s.mu.Unlock()
		return s
	}
	s = &Session{ID: sessionID, CreatedAt: now, LastAccessedAt: now}
	m.sessions[sessionID] = s
	return s
}

// Context builds the conversational-context string from the session's last
// entries. It returns "" for a session with no history.
func (m *SessionManager) Context(sessionID string) string {
	s := m.get(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return ""
	}

	start := len(s.entries) - contextEntries
	if start < 0 {
		start = 0
	}
	recent := s.entries[start:]

	var b strings.Builder
	b.WriteString("Previous conversation context:\n")
	for i, e := range recent {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Q: " + e.Question + "\n")
		b.WriteString("A: " + e.Answer + "\n")
	}
	return b.String()
}

// Record appends an entry to the session ring, evicting the oldest entry
// when the ring is full.
func (m *SessionManager) Record(sessionID string, entry MemoryEntry) {
	s := m.get(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)
	if len(s.entries) > MaxSessionQueries {
		s.entries = s.entries[len(s.entries)-MaxSessionQueries:]
	}
}

// History returns a copy of the session's entries in insertion order, or
// nil for an unknown session. It does not create the session.
func (m *SessionManager) History(sessionID string) []MemoryEntry {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MemoryEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Reap removes sessions idle longer than the TTL and returns how many were
// dropped.
func (m *SessionManager) Reap() int {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	var reaped int
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := now.Sub(s.LastAccessedAt)
		s.mu.Unlock()
		if idle > m.ttl {
			delete(m.sessions, id)
			reaped++
		}
	}
	if reaped > 0 {
		log.Printf("session reaper removed %d idle sessions, %d remain", reaped, len(m.sessions))
	}
	return reaped
}

// SessionStats summarises the live short-term state.
type SessionStats struct {
	ActiveSessions int `json:"active_sessions"`
	TotalEntries   int `json:"total_entries"`
}

// Stats snapshots the manager.
func (m *SessionManager) Stats() SessionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := SessionStats{ActiveSessions: len(m.sessions)}
	for _, s := range m.sessions {
		s.mu.Lock()
		stats.TotalEntries += len(s.entries)
		s.mu.Unlock()
	}
	return stats
}
