// Package store defines the persistence contracts the ingestion pipeline
// writes through.
//
// The remote document store has no cross-document transaction, so the
// two-step write (key moment, then transcript) is an explicit saga owned by
// the ingestion controller; this package only promises that each individual
// Create either fully persists the record and returns its id, or returns an
// error and persists nothing.
package store

import (
	"context"

	"github.com/sidelinehq/sideline/pkg/types"
)

// KeyMomentStore persists key moments. Implementations assign the record id.
type KeyMomentStore interface {
	// CreateKeyMoment persists km (whose ID field is ignored) and returns
	// the assigned id.
	CreateKeyMoment(ctx context.Context, km types.KeyMoment) (string, error)
}

// TranscriptStore persists transcripts. A transcript references the key
// moment it belongs to; callers must only pass ids returned by a successful
// [KeyMomentStore.CreateKeyMoment].
type TranscriptStore interface {
	// CreateTranscript persists tr (whose ID field is ignored) and returns
	// the assigned id.
	CreateTranscript(ctx context.Context, tr types.Transcript) (string, error)
}
