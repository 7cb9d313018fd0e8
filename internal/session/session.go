// Package session owns the "current game session" context and the
// session-scoped recording cache.
//
// A session is created when the coach starts a game and torn down when the
// game ends. It carries the roster snapshot (immutable for the session's
// lifetime) and the [RecordingCache] the UI reads for immediate feedback.
// The [Manager] is the single owner of the current-session handle; all other
// packages receive sessions by reference and never hold ambient state.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/sidelinehq/sideline/pkg/types"
)

var (
	// ErrNoActiveSession is returned by [Manager.End] when no game session
	// is running.
	ErrNoActiveSession = errors.New("session: no active game session")

	// ErrSessionActive is returned by [Manager.Start] when a game session is
	// already running. Sessions do not nest; the previous game must be ended
	// first.
	ErrSessionActive = errors.New("session: a game session is already active")
)

// Session is the per-game context the ingestion pipeline attributes and
// persists under. The roster is a read-only snapshot and needs no locking;
// the cache has its own synchronisation.
type Session struct {
	// GameID identifies the game in the remote store.
	GameID string

	// UploadedBy is the user id recorded as the uploader of every key
	// moment ingested during this session.
	UploadedBy string

	startedAt time.Time
	roster    []types.RosterMember
	cache     *RecordingCache
}

// Roster returns a copy of the roster snapshot taken when the session
// started.
func (s *Session) Roster() []types.RosterMember {
	out := make([]types.RosterMember, len(s.roster))
	copy(out, s.roster)
	return out
}

// Cache returns the session's recording cache.
func (s *Session) Cache() *RecordingCache { return s.cache }

// StartedAt returns when the session began.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Manager is the lock-guarded owner of the current game session. All methods
// are safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	current *Session
}

// NewManager returns a Manager with no active session.
func NewManager() *Manager {
	return &Manager{}
}

// Start begins a new game session with its own copy of roster and a fresh,
// empty recording cache. Returns [ErrSessionActive] when a session is
// already running.
func (m *Manager) Start(gameID, uploadedBy string, roster []types.RosterMember) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return nil, ErrSessionActive
	}

	snapshot := make([]types.RosterMember, len(roster))
	copy(snapshot, roster)

	m.current = &Session{
		GameID:     gameID,
		UploadedBy: uploadedBy,
		startedAt:  time.Now().UTC(),
		roster:     snapshot,
		cache:      NewRecordingCache(),
	}
	return m.current, nil
}

// Current returns the active session, or false when none is running.
func (m *Manager) Current() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != nil
}

// End tears the current session down. The cache dies with the session; the
// next session starts with an empty cache and localIndex 0.
func (m *Manager) End() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ErrNoActiveSession
	}
	m.current = nil
	return nil
}
