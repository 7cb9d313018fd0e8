package whisper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sidelinehq/sideline/pkg/provider/stt/whisper"
)

func tempClip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("RIFFaudio"), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
	return path
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("path = %q, want /inference", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("language"); got != "de" {
			t.Errorf("language field = %q, want de", got)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":" nice pass bob \n"}`))
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL, whisper.WithLanguage("de"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Transcribe(context.Background(), tempClip(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "nice pass bob" {
		t.Errorf("Text = %q, want trimmed %q", res.Text, "nice pass bob")
	}
	if res.Language != "de" {
		t.Errorf("Language = %q, want de", res.Language)
	}
}

func TestTranscribe_EmptyTextIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"text":""}`))
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Transcribe(context.Background(), tempClip(t))
	if err != nil {
		t.Fatalf("Transcribe on silent clip: %v", err)
	}
	if res.Text != "" {
		t.Errorf("Text = %q, want empty", res.Text)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), tempClip(t)); err == nil {
		t.Fatal("Transcribe on 500 returned nil error")
	}
}

func TestNew_RequiresServerURL(t *testing.T) {
	t.Parallel()

	if _, err := whisper.New(""); err == nil {
		t.Fatal("New(\"\") returned nil error")
	}
}
