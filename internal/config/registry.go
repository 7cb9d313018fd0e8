package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sidelinehq/sideline/pkg/provider/stt"
)

// TranscriberFactory constructs a speech-to-text backend from its config
// entry.
type TranscriberFactory func(entry ProviderEntry) (stt.Transcriber, error)

var (
	registryMu   sync.RWMutex
	transcribers = map[string]TranscriberFactory{}
)

// RegisterTranscriber makes a transcriber constructor available under name.
// Registering the same name twice panics; that is a programming error, not
// a configuration one.
func RegisterTranscriber(name string, f TranscriberFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, dup := transcribers[name]; dup {
		panic(fmt.Sprintf("config: transcriber %q registered twice", name))
	}
	transcribers[name] = f
}

// NewTranscriber builds the transcriber selected by entry.Name. The names
// "" and "none" yield a no-op transcriber that reports every clip as
// silent; such clips still flow through attribution and persistence.
func NewTranscriber(entry ProviderEntry) (stt.Transcriber, error) {
	if entry.Name == "" || entry.Name == "none" {
		return noopTranscriber{}, nil
	}

	registryMu.RLock()
	f, ok := transcribers[entry.Name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("config: no transcriber registered as %q (have %v)", entry.Name, registeredTranscribers())
	}
	return f(entry)
}

func registeredTranscribers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(transcribers))
	for name := range transcribers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// noopTranscriber is the "none" backend.
type noopTranscriber struct{}

func (noopTranscriber) Transcribe(context.Context, string) (stt.Result, error) {
	return stt.Result{}, nil
}
