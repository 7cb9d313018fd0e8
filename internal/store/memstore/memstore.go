// Package memstore provides an in-memory implementation of the store
// contracts for tests and development. Failure injection lets pipeline
// tests simulate the remote store failing at either step of the two-step
// write.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/sidelinehq/sideline/internal/store"
	"github.com/sidelinehq/sideline/pkg/types"
)

// Compile-time interface checks.
var (
	_ store.KeyMomentStore  = (*Store)(nil)
	_ store.TranscriptStore = (*Store)(nil)
)

// Store holds persisted records in memory. Safe for concurrent use.
type Store struct {
	mu              sync.Mutex
	moments         []types.KeyMoment
	transcripts     []types.Transcript
	failMoments     error
	failTranscripts error
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// FailKeyMoments makes every subsequent CreateKeyMoment return err.
// Pass nil to clear.
func (s *Store) FailKeyMoments(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failMoments = err
}

// FailTranscripts makes every subsequent CreateTranscript return err.
// Pass nil to clear.
func (s *Store) FailTranscripts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTranscripts = err
}

// CreateKeyMoment implements [store.KeyMomentStore].
func (s *Store) CreateKeyMoment(_ context.Context, km types.KeyMoment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failMoments != nil {
		return "", s.failMoments
	}
	km.ID = uuid.NewString()
	km.FeedbackFor = append([]string(nil), km.FeedbackFor...)
	s.moments = append(s.moments, km)
	return km.ID, nil
}

// CreateTranscript implements [store.TranscriptStore].
func (s *Store) CreateTranscript(_ context.Context, tr types.Transcript) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failTranscripts != nil {
		return "", s.failTranscripts
	}
	tr.ID = uuid.NewString()
	s.transcripts = append(s.transcripts, tr)
	return tr.ID, nil
}

// KeyMoments returns a copy of every persisted key moment in creation order.
func (s *Store) KeyMoments() []types.KeyMoment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.KeyMoment, len(s.moments))
	copy(out, s.moments)
	return out
}

// Transcripts returns a copy of every persisted transcript in creation order.
func (s *Store) Transcripts() []types.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Transcript, len(s.transcripts))
	copy(out, s.transcripts)
	return out
}
