// Package types defines the shared domain types used across all sideline
// packages.
//
// These types form the lingua franca between the transport layer, the
// attribution matcher, the ingestion controller, and the persistence stores.
// They carry no behaviour beyond validation and simple derivations, so every
// package can depend on them without import cycles.
package types

import (
	"errors"
	"time"
)

// RosterMember is one team member in the roster snapshot taken at the start
// of a game session. The snapshot is immutable for the life of the session;
// mid-game roster edits only take effect on the next session.
type RosterMember struct {
	// PlayerID is the remote store's identifier for this player.
	PlayerID string

	// FirstName and LastName are the player's given names as entered by the
	// coach. Either may be empty, but not both.
	FirstName string
	LastName  string

	// Nickname is an optional call name ("Smithy", "Cap"). Coaches tend to
	// shout nicknames rather than legal names, so it participates in
	// attribution with the same weight as the real names.
	Nickname string
}

// Window is the in-game time span a clip covers.
type Window struct {
	Start time.Time
	End   time.Time
}

// ErrInvalidWindow is returned by [Window.Validate] when End precedes Start.
var ErrInvalidWindow = errors.New("types: window end precedes start")

// Validate reports whether the window is well formed (End >= Start).
func (w Window) Validate() error {
	if w.End.Before(w.Start) {
		return ErrInvalidWindow
	}
	return nil
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Attribution is the outcome of matching a transcript against the roster.
// It is created once per clip and never mutated.
type Attribution struct {
	// Matched is the roster member the feedback applies to, or nil when no
	// member scored above the confidence threshold. nil means the feedback
	// applies to every roster member, not that it should be discarded.
	Matched *RosterMember

	// Score is the best similarity score observed, even when it fell below
	// the threshold and Matched is nil.
	Score float64
}

// Targets resolves the attribution to the roster members the feedback is
// for: the single matched member, or the whole roster in roster order when
// no member was matched.
func (a Attribution) Targets(roster []RosterMember) []RosterMember {
	if a.Matched != nil {
		return []RosterMember{*a.Matched}
	}
	out := make([]RosterMember, len(roster))
	copy(out, roster)
	return out
}

// TargetIDs is like [Attribution.Targets] but returns the player-id list as
// persisted on a key moment's feedback_for column.
func (a Attribution) TargetIDs(roster []RosterMember) []string {
	targets := a.Targets(roster)
	ids := make([]string, len(targets))
	for i, m := range targets {
		ids[i] = m.PlayerID
	}
	return ids
}

// KeyMoment is the durable record of a clip's time window and final
// feedback-target list. The ID is assigned by the persistence store.
type KeyMoment struct {
	ID         string
	GameID     string
	UploadedBy string

	// AudioPath is the uploaded clip's remote URL. Empty for clips ingested
	// via the direct-message path, which carry no audio.
	AudioPath string

	Window Window

	// FeedbackFor is the resolved player-id list: the single matched id, or
	// every roster id in roster order.
	FeedbackFor []string
}

// Transcript is the durable record of the text recognised from a clip. It
// must never exist without a previously persisted [KeyMoment]; the ingestion
// controller enforces that ordering.
type Transcript struct {
	ID          string
	KeyMomentID string
	Text        string

	// Language is a BCP-47 language tag ("en", "de").
	Language string

	// Confidence grades the transcript's attribution on a 1..5 scale, where
	// 1 means no member was matched and 5 means an exact name hit.
	Confidence int
}
