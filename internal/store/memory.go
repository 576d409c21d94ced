// internal/store/memory.go
//
// In-memory implementation of the Store interface.
// Sessions only live as long as the process; nothing is written to disk.
//
// Characteristics:
//   - Stores *Session objects keyed by ID in a map.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Idle sessions are swept by RunJanitor; their engines are closed so no
//     reveal timer outlives its session.
//   - Errors are returned for missing session IDs on Get() and Delete().

package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/robalobadob/colormemory/internal/game"
)

// ErrNotFound is returned when no session has the requested ID.
var ErrNotFound = errors.New("session not found")

// Session is one player's engine plus bookkeeping.
type Session struct {
	ID        string
	Engine    *game.Engine
	CreatedAt time.Time

	lastSeen atomic.Int64 // unix nanos
}

// NewID returns a fresh random session ID.
func NewID() string { return uuid.NewString() }

// NewSession wraps an engine under id.
func NewSession(id string, e *game.Engine) *Session {
	s := &Session{
		ID:        id,
		Engine:    e,
		CreatedAt: time.Now().UTC(),
	}
	s.Touch()
	return s
}

// Touch records activity on the session.
func (s *Session) Touch() { s.lastSeen.Store(time.Now().UnixNano()) }

// LastSeen reports the last Touch.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// Store defines the persistence interface for game sessions.
type Store interface {
	// Save inserts or replaces a session.
	Save(ctx context.Context, s *Session) error

	// Get retrieves a session by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete closes and removes a session, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Sweep closes and removes sessions idle for longer than idle.
	// Returns the number removed.
	Sweep(ctx context.Context, idle time.Duration) int

	// Len reports the number of live sessions.
	Len() int
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu       sync.RWMutex        // guards sessions map
	sessions map[string]*Session // keyed by Session.ID
	now      func() time.Time
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{sessions: make(map[string]*Session), now: time.Now}
}

// Save adds or updates the session in the map.
func (m *memory) Save(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.sessions[s.ID]; ok && old != s {
		old.Engine.Close()
	}
	m.sessions[s.ID] = s
	return nil
}

// Get looks up a session by ID.
func (m *memory) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, ErrNotFound
}

// Delete closes the session's engine and drops it.
func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.Engine.Close()
	return nil
}

// Sweep removes every session whose last activity is older than idle.
func (m *memory) Sweep(ctx context.Context, idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Engine.Close()
	}
	return len(stale)
}

// Len reports the number of stored sessions.
func (m *memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RunJanitor sweeps st every interval until ctx is cancelled.
func RunJanitor(ctx context.Context, st Store, every, idle time.Duration, logger zerolog.Logger) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	logger.Info().Dur("every", every).Dur("idle", idle).Msg("session janitor started")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("session janitor stopped")
			return nil
		case <-ticker.C:
			if n := st.Sweep(ctx, idle); n > 0 {
				logger.Info().Int("evicted", n).Int("live", st.Len()).Msg("idle sessions evicted")
			}
		}
	}
}
