package media_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sidelinehq/sideline/internal/media"
)

func writeTempClip(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp clip: %v", err)
	}
	return path
}

func TestHTTPUploader_Upload(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	u, err := media.NewHTTPUploader(srv.URL, media.WithAuthToken("tok"))
	if err != nil {
		t.Fatalf("NewHTTPUploader: %v", err)
	}

	clip := writeTempClip(t, "RIFFaudio")
	url, err := u.Upload(context.Background(), clip, "games/g1/clip.wav")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if gotPath != "/games/g1/clip.wav" {
		t.Errorf("request path = %q, want /games/g1/clip.wav", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("auth header = %q, want Bearer tok", gotAuth)
	}
	if string(gotBody) != "RIFFaudio" {
		t.Errorf("uploaded body = %q", gotBody)
	}
	if !strings.HasSuffix(url, "/games/g1/clip.wav") {
		t.Errorf("returned url = %q, want it to end in the remote path", url)
	}
}

func TestHTTPUploader_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	u, err := media.NewHTTPUploader(srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPUploader: %v", err)
	}

	clip := writeTempClip(t, "x")
	if _, err := u.Upload(context.Background(), clip, "games/g1/clip.wav"); err == nil {
		t.Fatal("Upload on 403 returned nil error")
	}
}

func TestDirUploader_Upload(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	u, err := media.NewDirUploader(root)
	if err != nil {
		t.Fatalf("NewDirUploader: %v", err)
	}

	clip := writeTempClip(t, "RIFFaudio")
	url, err := u.Upload(context.Background(), clip, "games/g1/clip.wav")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	want := filepath.Join(root, "games", "g1", "clip.wav")
	if url != "file://"+want {
		t.Errorf("url = %q, want %q", url, "file://"+want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read copied clip: %v", err)
	}
	if string(data) != "RIFFaudio" {
		t.Errorf("copied contents = %q", data)
	}
}
