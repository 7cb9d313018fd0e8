// Package ingest runs the clip pipeline: receive a recording, transcribe it,
// attribute the feedback to a roster member, persist the key moment and
// transcript, and cache the result for the session UI.
//
// The pipeline is a linear state machine per clip:
//
//	Received -> Transcribing -> Matching -> PersistingKeyMoment ->
//	PersistingTranscript -> Cached
//
// with Failed terminal from any stage. The two persistence steps are a saga
// against a remote store without cross-document transactions: the key moment
// always goes first, so a transcript can never reference a missing moment. A
// failure after the key moment write leaves an orphaned moment behind; that
// is accepted and reported via [ErrOrphanedKeyMoment] rather than papered
// over with a best-effort delete that could itself fail.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sidelinehq/sideline/internal/attribute"
	"github.com/sidelinehq/sideline/internal/media"
	"github.com/sidelinehq/sideline/internal/observe"
	"github.com/sidelinehq/sideline/internal/session"
	"github.com/sidelinehq/sideline/internal/store"
	"github.com/sidelinehq/sideline/internal/transport"
	"github.com/sidelinehq/sideline/pkg/provider/stt"
	"github.com/sidelinehq/sideline/pkg/types"
)

// ErrOrphanedKeyMoment marks a pipeline run that persisted its key moment
// but failed to persist the transcript. The moment stays in the remote
// store; the clip gets no cache entry and consumes no local index.
var ErrOrphanedKeyMoment = errors.New("ingest: key moment persisted without transcript")

// Stage names one step of the per-clip state machine. Stages appear in logs
// and in the status attribute of failure metrics.
type Stage string

const (
	StageReceived             Stage = "received"
	StageTranscribing         Stage = "transcribing"
	StageMatching             Stage = "matching"
	StagePersistingKeyMoment  Stage = "persisting_key_moment"
	StagePersistingTranscript Stage = "persisting_transcript"
	StageCached               Stage = "cached"
	StageFailed               Stage = "failed"
)

// Compile-time interface check.
var _ transport.Handler = (*Controller)(nil)

// Option is a functional option for configuring a [Controller].
type Option func(*Controller)

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithLanguage sets the fallback BCP-47 language tag recorded on transcripts
// whose provider did not report one. Default: "en".
func WithLanguage(tag string) Option {
	return func(c *Controller) {
		if tag != "" {
			c.language = tag
		}
	}
}

// Controller drives the clip pipeline. It implements [transport.Handler],
// so both ingestion paths (file transfer and direct message) arrive here.
//
// Safe for concurrent use; concurrent clips interleave freely and the
// session cache orders them by completion.
type Controller struct {
	sessions    *session.Manager
	transcriber stt.Transcriber
	matcher     atomic.Pointer[attribute.Matcher]
	moments     store.KeyMomentStore
	transcripts store.TranscriptStore
	media       media.Uploader
	metrics     *observe.Metrics
	workDir     string
	language    string
}

// New creates a Controller. workDir is where received clip files are moved
// before transcription; it is created if missing.
func New(
	sessions *session.Manager,
	transcriber stt.Transcriber,
	matcher *attribute.Matcher,
	moments store.KeyMomentStore,
	transcripts store.TranscriptStore,
	uploader media.Uploader,
	workDir string,
	opts ...Option,
) (*Controller, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("ingest: create work dir %q: %w", workDir, err)
	}
	c := &Controller{
		sessions:    sessions,
		transcriber: transcriber,
		moments:     moments,
		transcripts: transcripts,
		media:       uploader,
		metrics:     observe.DefaultMetrics(),
		workDir:     workDir,
		language:    "en",
	}
	c.matcher.Store(matcher)
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// SwapMatcher replaces the attribution matcher. Used by config hot-reload;
// in-flight pipeline runs keep the matcher they already loaded.
func (c *Controller) SwapMatcher(m *attribute.Matcher) {
	if m != nil {
		c.matcher.Store(m)
	}
}

// HandleClip implements [transport.Handler]. It runs the full pipeline for
// a clip received via the file-transfer path.
//
// With no active session the clip is discarded silently: the file is
// deleted and nil is returned. Recordings made outside a game are not an
// error, they are simply not the daemon's business.
func (c *Controller) HandleClip(ctx context.Context, d transport.ClipDelivery) error {
	started := time.Now()

	sess, ok := c.sessions.Current()
	if !ok {
		observe.Logger(ctx).Debug("clip received outside a session, discarding",
			"path", d.Path, "source", d.SourcePath)
		c.removeClip(ctx, d.Path)
		return nil
	}

	ctx, span := observe.StartSpan(ctx, "ingest.clip")
	defer span.End()
	log := observe.Logger(ctx).With("game_id", sess.GameID, "source", d.SourcePath)

	// Claim the file by moving it into the work directory. If the move
	// fails (cross-device inbox, permissions) the pipeline continues on the
	// original path; transcription does not care where the file lives.
	path := d.Path
	if moved := filepath.Join(c.workDir, filepath.Base(d.Path)); moved != d.Path {
		if err := os.Rename(d.Path, moved); err != nil {
			log.Warn("could not move clip to work dir, using original path", "err", err)
		} else {
			path = moved
		}
	}
	defer c.removeClip(ctx, path)

	log.Info("clip received", "stage", StageReceived, "window", d.Window.Duration())

	log.Debug("transcribing clip", "stage", StageTranscribing)
	tStart := time.Now()
	res, err := c.transcriber.Transcribe(ctx, path)
	c.metrics.TranscriptionDuration.Record(ctx, time.Since(tStart).Seconds())
	if err != nil {
		c.fail(ctx, log, "file", StageTranscribing, err)
		return fmt.Errorf("ingest: transcribe clip: %w", err)
	}

	err = c.finish(ctx, log, sess, clip{
		path:     "file",
		audio:    path,
		text:     res.Text,
		language: res.Language,
		window:   d.Window,
	})
	if err != nil {
		return err
	}

	c.metrics.PipelineDuration.Record(ctx, time.Since(started).Seconds())
	c.metrics.RecordClip(ctx, "file", "ok")
	return nil
}

// HandleTranscript implements [transport.Handler]. The direct-message path
// carries text the capture device already recognised, so the pipeline skips
// transcription and upload and goes straight to matching.
func (c *Controller) HandleTranscript(ctx context.Context, d transport.TranscriptDelivery) error {
	started := time.Now()

	sess, ok := c.sessions.Current()
	if !ok {
		observe.Logger(ctx).Debug("message received outside a session, discarding")
		return nil
	}

	ctx, span := observe.StartSpan(ctx, "ingest.message")
	defer span.End()
	log := observe.Logger(ctx).With("game_id", sess.GameID)

	log.Info("message received", "stage", StageReceived, "window", d.Window.Duration())

	err := c.finish(ctx, log, sess, clip{
		path:   "message",
		text:   d.Text,
		window: d.Window,
	})
	if err != nil {
		return err
	}

	c.metrics.PipelineDuration.Record(ctx, time.Since(started).Seconds())
	c.metrics.RecordClip(ctx, "message", "ok")
	return nil
}

// clip is the path-independent remainder of a pipeline run once any
// transcription has happened.
type clip struct {
	path     string // "file" or "message", for metrics
	audio    string // local audio path, empty on the message path
	text     string
	language string
	window   types.Window
}

// finish runs matching, persistence, and caching for cl under sess.
func (c *Controller) finish(ctx context.Context, log *slog.Logger, sess *session.Session, cl clip) error {
	roster := sess.Roster()

	log.Debug("matching transcript", "stage", StageMatching)
	att := c.matcher.Load().Attribute(cl.text, roster)
	c.metrics.RecordAttribution(ctx, att.Matched != nil)
	if att.Matched != nil {
		log.Info("feedback attributed", "player_id", att.Matched.PlayerID, "score", att.Score)
	} else {
		log.Info("no confident match, fanning out to roster", "score", att.Score, "roster_size", len(roster))
	}

	audioURL := ""
	if cl.audio != "" {
		uStart := time.Now()
		remote := fmt.Sprintf("games/%s/%s", sess.GameID, filepath.Base(cl.audio))
		url, err := c.media.Upload(ctx, cl.audio, remote)
		c.metrics.RecordPersist(ctx, "upload", time.Since(uStart).Seconds())
		if err != nil {
			c.fail(ctx, log, cl.path, StagePersistingKeyMoment, err)
			return fmt.Errorf("ingest: upload clip audio: %w", err)
		}
		audioURL = url
	}

	log.Debug("persisting key moment", "stage", StagePersistingKeyMoment)
	kmStart := time.Now()
	momentID, err := c.moments.CreateKeyMoment(ctx, types.KeyMoment{
		GameID:      sess.GameID,
		UploadedBy:  sess.UploadedBy,
		AudioPath:   audioURL,
		Window:      cl.window,
		FeedbackFor: att.TargetIDs(roster),
	})
	c.metrics.RecordPersist(ctx, "key_moment", time.Since(kmStart).Seconds())
	if err != nil {
		c.fail(ctx, log, cl.path, StagePersistingKeyMoment, err)
		return fmt.Errorf("ingest: persist key moment: %w", err)
	}

	log.Debug("persisting transcript", "stage", StagePersistingTranscript, "key_moment_id", momentID)
	trStart := time.Now()
	transcriptID, err := c.transcripts.CreateTranscript(ctx, types.Transcript{
		KeyMomentID: momentID,
		Text:        cl.text,
		Language:    c.transcriptLanguage(cl.language),
		Confidence:  confidence(att),
	})
	c.metrics.RecordPersist(ctx, "transcript", time.Since(trStart).Seconds())
	if err != nil {
		log.Error("pipeline run failed, key moment left orphaned",
			"stage", StageFailed, "failed_at", StagePersistingTranscript,
			"key_moment_id", momentID, "err", err)
		c.metrics.RecordClip(ctx, cl.path, "orphaned")
		return fmt.Errorf("ingest: persist transcript for key moment %s: %w (%w)",
			momentID, err, ErrOrphanedKeyMoment)
	}

	idx := sess.Cache().Append(session.Entry{
		KeyMomentID:  momentID,
		TranscriptID: transcriptID,
		Text:         cl.text,
		Window:       cl.window,
		FeedbackFor:  att.Targets(roster),
	})
	log.Info("recording cached", "stage", StageCached, "local_index", idx,
		"key_moment_id", momentID, "transcript_id", transcriptID)
	return nil
}

func (c *Controller) transcriptLanguage(reported string) string {
	if reported != "" {
		return reported
	}
	return c.language
}

// fail logs and counts a terminal pipeline failure.
func (c *Controller) fail(ctx context.Context, log *slog.Logger, path string, at Stage, err error) {
	log.Error("pipeline run failed", "stage", StageFailed, "failed_at", at, "err", err)
	c.metrics.RecordClip(ctx, path, string(at))
}

// removeClip deletes a clip file the pipeline owns. A file that is already
// gone is fine; anything else is logged but never fails the run.
func (c *Controller) removeClip(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		observe.Logger(ctx).Warn("removing clip file failed", "path", path, "err", err)
	}
}

// confidence grades an attribution on the 1..5 scale persisted with each
// transcript: 1 means fanout (no confident match), 5 an exact name hit, and
// the bands in between split the threshold-to-exact score range evenly.
func confidence(att types.Attribution) int {
	if att.Matched == nil {
		return 1
	}
	switch {
	case att.Score >= 1.0:
		return 5
	case att.Score >= 0.90:
		return 4
	case att.Score >= 0.80:
		return 3
	default:
		return 2
	}
}
