package api

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soaringjerry/evibench/internal/services"
)

// sessionEntry serializes the requests of one session.
type sessionEntry struct {
	mu    sync.Mutex
	state *services.Session
}

// SessionManager owns every live wizard session of this process.
type SessionManager struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	now     func() time.Time
	idGen   func() string
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		entries: map[string]*sessionEntry{},
		now:     func() time.Time { return time.Now().UTC() },
		idGen:   func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// Acquire returns the locked entry for id, creating a fresh anonymous
// session when id is unknown. The caller must call release.
func (m *SessionManager) Acquire(id string) (sess *services.Session, created bool, release func()) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok || id == "" {
		now := m.now()
		id = m.idGen()
		e = &sessionEntry{state: services.NewSession(id, now)}
		m.entries[id] = e
		created = true
	}
	m.mu.Unlock()

	e.mu.Lock()
	e.state.LastSeen = m.now()
	return e.state, created, e.mu.Unlock
}

// Drop forgets a session entirely.
func (m *SessionManager) Drop(id string) {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// SweepIdle removes sessions not seen since cutoff and reports how many went.
func (m *SessionManager) SweepIdle(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.entries {
		if !e.mu.TryLock() {
			continue
		}
		idle := e.state.LastSeen.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}
