// Package stt defines the Transcriber interface for batch speech-to-text
// backends.
//
// The ingestion pipeline works on short, already-recorded clips, so the
// abstraction is a single blocking call rather than a streaming session: the
// provider receives a local audio file and returns the recognised text. An
// empty Text is a valid "no speech detected" result, not an error — silent
// clips still flow through attribution and persistence.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Result is the outcome of transcribing one clip.
type Result struct {
	// Text is the recognised speech, possibly empty.
	Text string

	// Language is the BCP-47 tag of the recognised language when the
	// provider reports one; empty otherwise.
	Language string
}

// Transcriber is the abstraction over any batch STT backend.
type Transcriber interface {
	// Transcribe converts the audio file at path to text. It blocks until
	// the provider answers or ctx is done; implementations bound each
	// request with their own HTTP timeout so a dead provider cannot hang a
	// pipeline run forever.
	Transcribe(ctx context.Context, path string) (Result, error)
}
