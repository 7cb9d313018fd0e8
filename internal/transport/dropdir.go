package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sidelinehq/sideline/pkg/types"
)

// sidecar is the JSON manifest the capture device writes next to each clip
// it drops into the inbox. The device writes the audio file first and the
// sidecar last, so a sidecar's presence means the clip is complete.
type sidecar struct {
	Audio       string    `json:"audio"`
	SourcePath  string    `json:"source_path"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// DropWatcher implements the file-transfer ingestion path. It watches an
// inbox directory for sidecar manifests and hands the referenced clips to
// the [Handler]. Handled sidecars are removed; the clip file itself is
// owned (and eventually deleted) by the pipeline.
type DropWatcher struct {
	dir     string
	handler Handler
}

// NewDropWatcher creates a watcher over the inbox directory dir. The
// directory is created if it does not exist.
func NewDropWatcher(dir string, handler Handler) (*DropWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("dropdir: create inbox %q: %w", dir, err)
	}
	return &DropWatcher{dir: dir, handler: handler}, nil
}

// Run watches the inbox until ctx is done. Sidecars already present when
// Run starts (e.g. dropped while the daemon was down) are processed first.
func (w *DropWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("dropdir: start watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("dropdir: watch %q: %w", w.dir, err)
	}

	if err := w.sweep(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			w.process(ctx, ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("inbox watch error", "err", err)
		}
	}
}

// sweep processes sidecars that predate the watcher.
func (w *DropWatcher) sweep(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("dropdir: read inbox: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		w.process(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

// process reads one sidecar and dispatches its clip. Duplicate fsnotify
// events for the same sidecar are harmless: the second read fails with
// fs.ErrNotExist and is skipped silently.
func (w *DropWatcher) process(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		slog.Error("reading sidecar failed", "path", path, "err", err)
		return
	}

	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		slog.Error("discarding malformed sidecar", "path", path, "err", err)
		_ = os.Remove(path)
		return
	}

	audio := sc.Audio
	if !filepath.IsAbs(audio) {
		audio = filepath.Join(w.dir, audio)
	}

	d := ClipDelivery{
		Path:       audio,
		SourcePath: sc.SourcePath,
		Window:     types.Window{Start: sc.WindowStart, End: sc.WindowEnd},
	}
	if err := w.handler.HandleClip(ctx, d); err != nil {
		slog.Error("clip delivery failed", "audio", audio, "err", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("removing handled sidecar failed", "path", path, "err", err)
	}
}
