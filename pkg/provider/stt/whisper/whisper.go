// Package whisper provides a whisper.cpp-backed Transcriber.
//
// It talks to a running whisper-server binary, which exposes a REST API at
// POST /inference accepting a multipart upload of the audio file. Because
// the server runs on the local network (or the device itself), this is the
// fully offline transcription option.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	res, err := p.Transcribe(ctx, "/var/lib/sidelined/work/clip.wav")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sidelinehq/sideline/pkg/provider/stt"
)

const defaultLanguage = "en"

// Compile-time assertion that Provider implements stt.Transcriber.
var _ stt.Transcriber = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper-server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the server (e.g., "en",
// "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		if lang != "" {
			p.language = lang
		}
	}
}

// WithTimeout sets the per-request HTTP timeout. Default: 30 seconds. This
// is the only bound on a hung transcription, so keep it finite.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

// Provider implements stt.Transcriber backed by a whisper-server HTTP
// endpoint. Safe for concurrent use; each Transcribe call is an independent
// request.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Provider that connects to the whisper-server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// inferenceResponse is the JSON body returned by POST /inference.
type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Transcribe implements [stt.Transcriber]. It uploads the file at path as a
// multipart form and returns the recognised text with surrounding
// whitespace trimmed.
func (p *Provider) Transcribe(ctx context.Context, path string) (stt.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: open %q: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: read %q: %w", path, err)
	}

	fields := map[string]string{
		"response_format": "json",
		"language":        p.language,
	}
	if p.model != "" {
		fields["model"] = p.model
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write field %q: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: finalise form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return stt.Result{}, fmt.Errorf("whisper: inference status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: decode response: %w", err)
	}
	if decoded.Error != "" {
		return stt.Result{}, fmt.Errorf("whisper: server error: %s", decoded.Error)
	}

	return stt.Result{
		Text:     strings.TrimSpace(decoded.Text),
		Language: p.language,
	}, nil
}
