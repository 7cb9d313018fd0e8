package session_test

import (
	"errors"
	"testing"

	"github.com/sidelinehq/sideline/internal/session"
	"github.com/sidelinehq/sideline/pkg/types"
)

func TestManager_Lifecycle(t *testing.T) {
	t.Parallel()

	m := session.NewManager()

	if _, ok := m.Current(); ok {
		t.Fatal("Current() reported an active session before Start")
	}

	roster := []types.RosterMember{{PlayerID: "p1", FirstName: "Alice", LastName: "Smith"}}
	s, err := m.Start("game-1", "coach-1", roster)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.GameID != "game-1" || s.UploadedBy != "coach-1" {
		t.Errorf("session identity = (%q, %q), want (game-1, coach-1)", s.GameID, s.UploadedBy)
	}

	if _, err := m.Start("game-2", "coach-1", nil); !errors.Is(err, session.ErrSessionActive) {
		t.Errorf("second Start: err = %v, want ErrSessionActive", err)
	}

	if err := m.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := m.End(); !errors.Is(err, session.ErrNoActiveSession) {
		t.Errorf("End with no session: err = %v, want ErrNoActiveSession", err)
	}
}

func TestManager_RosterIsSnapshot(t *testing.T) {
	t.Parallel()

	m := session.NewManager()
	roster := []types.RosterMember{{PlayerID: "p1", FirstName: "Alice"}}

	s, err := m.Start("game-1", "coach-1", roster)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Mutating the caller's slice after Start must not reach the session.
	roster[0].FirstName = "Mallory"
	if got := s.Roster()[0].FirstName; got != "Alice" {
		t.Errorf("roster snapshot mutated: FirstName = %q, want Alice", got)
	}

	// Mutating a returned roster copy must not reach the session either.
	r := s.Roster()
	r[0].FirstName = "Eve"
	if got := s.Roster()[0].FirstName; got != "Alice" {
		t.Errorf("Roster() returned a live reference: FirstName = %q, want Alice", got)
	}
}

func TestManager_NewSessionResetsCache(t *testing.T) {
	t.Parallel()

	m := session.NewManager()

	s1, err := m.Start("game-1", "coach-1", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	s1.Cache().Append(session.Entry{Text: "from game 1"})
	s1.Cache().Append(session.Entry{Text: "also game 1"})

	if err := m.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	s2, err := m.Start("game-2", "coach-1", nil)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if got := s2.Cache().Len(); got != 0 {
		t.Fatalf("new session cache has %d entries, want 0", got)
	}
	if idx := s2.Cache().Append(session.Entry{Text: "from game 2"}); idx != 0 {
		t.Errorf("first append of new session assigned index %d, want 0", idx)
	}
}
