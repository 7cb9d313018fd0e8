// Package postgres is the PostgreSQL-backed persistence layer for key
// moments and transcripts. The referential invariant — a transcript never
// exists without its key moment — is enforced twice: by the ingestion
// controller's write ordering and by the foreign key in the schema.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sidelinehq/sideline/internal/store"
	"github.com/sidelinehq/sideline/pkg/types"
)

// Compile-time interface checks.
var (
	_ store.KeyMomentStore  = (*Store)(nil)
	_ store.TranscriptStore = (*Store)(nil)
)

// Store persists key moments and transcripts in PostgreSQL through a single
// [pgxpool.Pool]. All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store, establishes a connection pool to the database at dsn,
// pings it, and runs [Migrate] so all required tables exist.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping checks database reachability; used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// CreateKeyMoment implements [store.KeyMomentStore].
func (s *Store) CreateKeyMoment(ctx context.Context, km types.KeyMoment) (string, error) {
	const q = `
		INSERT INTO key_moments
		    (id, game_id, uploaded_by, audio_path, window_start, window_end, feedback_for)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, q,
		id,
		km.GameID,
		km.UploadedBy,
		km.AudioPath,
		km.Window.Start,
		km.Window.End,
		km.FeedbackFor,
	)
	if err != nil {
		return "", fmt.Errorf("postgres store: create key moment: %w", err)
	}
	return id, nil
}

// CreateTranscript implements [store.TranscriptStore].
func (s *Store) CreateTranscript(ctx context.Context, tr types.Transcript) (string, error) {
	const q = `
		INSERT INTO transcripts
		    (id, key_moment_id, text, language, confidence)
		VALUES ($1, $2, $3, $4, $5)`

	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, q,
		id,
		tr.KeyMomentID,
		tr.Text,
		tr.Language,
		tr.Confidence,
	)
	if err != nil {
		return "", fmt.Errorf("postgres store: create transcript: %w", err)
	}
	return id, nil
}

// ListKeyMoments returns every key moment of a game, oldest first. Used for
// post-game review outside the live session cache.
func (s *Store) ListKeyMoments(ctx context.Context, gameID string) ([]types.KeyMoment, error) {
	const q = `
		SELECT id, game_id, uploaded_by, audio_path, window_start, window_end, feedback_for
		FROM   key_moments
		WHERE  game_id = $1
		ORDER  BY created_at`

	rows, err := s.pool.Query(ctx, q, gameID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list key moments: %w", err)
	}
	moments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.KeyMoment, error) {
		var (
			km         types.KeyMoment
			start, end time.Time
		)
		if err := row.Scan(&km.ID, &km.GameID, &km.UploadedBy, &km.AudioPath, &start, &end, &km.FeedbackFor); err != nil {
			return types.KeyMoment{}, err
		}
		km.Window = types.Window{Start: start, End: end}
		return km, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan key moments: %w", err)
	}
	return moments, nil
}

// GetTranscript returns the transcript linked to a key moment, or
// [pgx.ErrNoRows] when none exists (an orphaned key moment).
func (s *Store) GetTranscript(ctx context.Context, keyMomentID string) (types.Transcript, error) {
	const q = `
		SELECT id, key_moment_id, text, language, confidence
		FROM   transcripts
		WHERE  key_moment_id = $1`

	var tr types.Transcript
	err := s.pool.QueryRow(ctx, q, keyMomentID).
		Scan(&tr.ID, &tr.KeyMomentID, &tr.Text, &tr.Language, &tr.Confidence)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("postgres store: get transcript: %w", err)
	}
	return tr, nil
}
