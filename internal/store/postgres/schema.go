package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations are applied in order on startup. Each statement is idempotent
// so repeated startups are safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS key_moments (
		id           UUID PRIMARY KEY,
		game_id      TEXT NOT NULL,
		uploaded_by  TEXT NOT NULL,
		audio_path   TEXT NOT NULL DEFAULT '',
		window_start TIMESTAMPTZ NOT NULL,
		window_end   TIMESTAMPTZ NOT NULL,
		feedback_for TEXT[] NOT NULL DEFAULT '{}',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS key_moments_game_idx
		ON key_moments (game_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS transcripts (
		id            UUID PRIMARY KEY,
		key_moment_id UUID NOT NULL REFERENCES key_moments (id),
		text          TEXT NOT NULL,
		language      TEXT NOT NULL DEFAULT 'en',
		confidence    INT  NOT NULL CHECK (confidence BETWEEN 1 AND 5),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS transcripts_moment_idx
		ON transcripts (key_moment_id)`,
}

// Migrate ensures all required tables and indexes exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
