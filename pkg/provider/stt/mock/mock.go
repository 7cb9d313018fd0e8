// Package mock provides a test double for the stt.Transcriber interface.
//
// Use Transcriber to feed controlled transcription results into pipeline
// tests and to inspect which files were submitted:
//
//	tr := &mock.Transcriber{Result: stt.Result{Text: "nice pass bob"}}
//	res, _ := tr.Transcribe(ctx, "/tmp/clip.wav")
package mock

import (
	"context"
	"sync"

	"github.com/sidelinehq/sideline/pkg/provider/stt"
)

// Compile-time interface check.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned by every Transcribe call when TranscribeFunc is nil.
	Result stt.Result

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// TranscribeFunc, if set, overrides Result/Err entirely.
	TranscribeFunc func(ctx context.Context, path string) (stt.Result, error)

	// Calls records the path of every Transcribe invocation.
	Calls []string
}

// Transcribe records the call and returns the configured result.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (stt.Result, error) {
	t.mu.Lock()
	t.Calls = append(t.Calls, path)
	fn := t.TranscribeFunc
	res, err := t.Result, t.Err
	t.mu.Unlock()

	if fn != nil {
		return fn(ctx, path)
	}
	return res, err
}

// CallCount returns how many times Transcribe was invoked.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}
