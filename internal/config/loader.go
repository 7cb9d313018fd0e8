package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidTranscriberNames lists known transcriber names. [Validate] warns
// about unrecognised names; they may be typos or third-party registrations.
var ValidTranscriberNames = []string{"whisper", "openai", "none"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Attribution
	if cfg.Attribution.Threshold < 0 || cfg.Attribution.Threshold > 1 {
		errs = append(errs, fmt.Errorf("attribution.threshold %.2f is out of range [0, 1]", cfg.Attribution.Threshold))
	}
	if cfg.Attribution.Scorer != "" && !cfg.Attribution.Scorer.IsValid() {
		errs = append(errs, fmt.Errorf("attribution.scorer %q is invalid; valid values: dice, phonetic", cfg.Attribution.Scorer))
	}

	// Transcription
	if name := cfg.Transcription.Name; name != "" && !slices.Contains(ValidTranscriberNames, name) {
		slog.Warn("unknown transcriber name — may be a typo or third-party provider",
			"name", name,
			"known", ValidTranscriberNames,
		)
	}
	if cfg.Transcription.Name == "" {
		slog.Warn("transcription.name is empty; clips from the file-transfer path will persist with empty text")
	}

	// Companion — without both inbound paths the daemon has nothing to do.
	if cfg.Companion.WSURL == "" && cfg.Companion.DropDir == "" {
		errs = append(errs, errors.New("companion: at least one of ws_url and drop_dir is required"))
	}

	// Media — exactly one destination.
	if cfg.Media.UploadURL != "" && cfg.Media.LocalDir != "" {
		errs = append(errs, errors.New("media: upload_url and local_dir are mutually exclusive"))
	}

	// Store availability warning, not an error: the in-memory store is a
	// valid development mode.
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; key moments and transcripts will not survive a restart")
	}

	return errors.Join(errs...)
}
