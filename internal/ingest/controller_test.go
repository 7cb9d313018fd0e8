package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sidelinehq/sideline/internal/attribute"
	"github.com/sidelinehq/sideline/internal/ingest"
	"github.com/sidelinehq/sideline/internal/media"
	"github.com/sidelinehq/sideline/internal/session"
	"github.com/sidelinehq/sideline/internal/store/memstore"
	"github.com/sidelinehq/sideline/internal/transport"
	"github.com/sidelinehq/sideline/pkg/provider/stt"
	sttmock "github.com/sidelinehq/sideline/pkg/provider/stt/mock"
	"github.com/sidelinehq/sideline/pkg/types"
)

func testRoster() []types.RosterMember {
	return []types.RosterMember{
		{PlayerID: "p1", FirstName: "Alice", LastName: "Smith"},
		{PlayerID: "p2", FirstName: "Bob", LastName: "Jones"},
		{PlayerID: "p3", FirstName: "Søren", LastName: "Müller", Nickname: "Smithy"},
	}
}

// fixture wires a controller with in-memory collaborators around a started
// session.
type fixture struct {
	ctrl        *ingest.Controller
	sessions    *session.Manager
	sess        *session.Session
	store       *memstore.Store
	transcriber *sttmock.Transcriber
	inbox       string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	sessions := session.NewManager()
	sess, err := sessions.Start("game-1", "coach-7", testRoster())
	if err != nil {
		t.Fatalf("Start session: %v", err)
	}

	st := memstore.New()
	tr := &sttmock.Transcriber{}
	up, err := media.NewDirUploader(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewDirUploader: %v", err)
	}

	ctrl, err := ingest.New(
		sessions, tr, attribute.New(), st, st, up,
		filepath.Join(t.TempDir(), "work"),
	)
	if err != nil {
		t.Fatalf("New controller: %v", err)
	}

	return &fixture{
		ctrl:        ctrl,
		sessions:    sessions,
		sess:        sess,
		store:       st,
		transcriber: tr,
		inbox:       t.TempDir(),
	}
}

func (f *fixture) dropClip(t *testing.T, name string) transport.ClipDelivery {
	t.Helper()
	path := filepath.Join(f.inbox, name)
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
	start := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	return transport.ClipDelivery{
		Path:       path,
		SourcePath: "/device/" + name,
		Window:     types.Window{Start: start, End: start.Add(15 * time.Second)},
	}
}

func TestHandleClip_FullPipeline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.transcriber.Result = stt.Result{Text: "nice pass bob", Language: "en"}

	d := f.dropClip(t, "clip-1.wav")
	if err := f.ctrl.HandleClip(context.Background(), d); err != nil {
		t.Fatalf("HandleClip: %v", err)
	}

	// The clip file was consumed.
	if _, err := os.Stat(d.Path); !os.IsNotExist(err) {
		t.Errorf("original clip file still present: %v", err)
	}
	if got := f.transcriber.CallCount(); got != 1 {
		t.Errorf("Transcribe calls = %d, want 1", got)
	}

	moments := f.store.KeyMoments()
	if len(moments) != 1 {
		t.Fatalf("key moments = %d, want 1", len(moments))
	}
	km := moments[0]
	if km.GameID != "game-1" || km.UploadedBy != "coach-7" {
		t.Errorf("key moment identity = %q/%q", km.GameID, km.UploadedBy)
	}
	if len(km.FeedbackFor) != 1 || km.FeedbackFor[0] != "p2" {
		t.Errorf("FeedbackFor = %v, want [p2]", km.FeedbackFor)
	}
	if !strings.HasPrefix(km.AudioPath, "file://") || !strings.Contains(km.AudioPath, "games/game-1/") {
		t.Errorf("AudioPath = %q", km.AudioPath)
	}

	transcripts := f.store.Transcripts()
	if len(transcripts) != 1 {
		t.Fatalf("transcripts = %d, want 1", len(transcripts))
	}
	tr := transcripts[0]
	if tr.KeyMomentID != km.ID {
		t.Errorf("KeyMomentID = %q, want %q", tr.KeyMomentID, km.ID)
	}
	if tr.Text != "nice pass bob" || tr.Language != "en" {
		t.Errorf("transcript = %q/%q", tr.Text, tr.Language)
	}
	if tr.Confidence != 5 {
		t.Errorf("Confidence = %d, want 5 for an exact name hit", tr.Confidence)
	}

	entries := f.sess.Cache().All()
	if len(entries) != 1 {
		t.Fatalf("cache entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.LocalIndex != 0 {
		t.Errorf("LocalIndex = %d, want 0", e.LocalIndex)
	}
	if e.KeyMomentID != km.ID || e.TranscriptID != tr.ID {
		t.Errorf("cache ids = %q/%q, want %q/%q", e.KeyMomentID, e.TranscriptID, km.ID, tr.ID)
	}
	if len(e.FeedbackFor) != 1 || e.FeedbackFor[0].PlayerID != "p2" {
		t.Errorf("cache FeedbackFor = %v", e.FeedbackFor)
	}
}

func TestHandleClip_NoMatchFansOutToRoster(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.transcriber.Result = stt.Result{Text: "great hustle everyone keep it up"}

	if err := f.ctrl.HandleClip(context.Background(), f.dropClip(t, "clip-2.wav")); err != nil {
		t.Fatalf("HandleClip: %v", err)
	}

	moments := f.store.KeyMoments()
	if len(moments) != 1 {
		t.Fatalf("key moments = %d, want 1", len(moments))
	}
	want := []string{"p1", "p2", "p3"}
	got := moments[0].FeedbackFor
	if len(got) != len(want) {
		t.Fatalf("FeedbackFor = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("FeedbackFor = %v, want %v (roster order)", got, want)
		}
	}
	if tr := f.store.Transcripts(); len(tr) != 1 || tr[0].Confidence != 1 {
		t.Fatalf("transcripts = %+v, want one with confidence 1", tr)
	}
}

func TestHandleClip_NoSessionIsSilentNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.sessions.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	d := f.dropClip(t, "clip-3.wav")
	if err := f.ctrl.HandleClip(context.Background(), d); err != nil {
		t.Fatalf("HandleClip without session: %v, want nil", err)
	}

	if got := f.transcriber.CallCount(); got != 0 {
		t.Errorf("Transcribe calls = %d, want 0", got)
	}
	if moments := f.store.KeyMoments(); len(moments) != 0 {
		t.Errorf("key moments = %d, want 0", len(moments))
	}
	// The stray file is still cleaned up.
	if _, err := os.Stat(d.Path); !os.IsNotExist(err) {
		t.Errorf("clip file still present: %v", err)
	}
}

func TestHandleClip_TranscriptionFailureStopsPipeline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.transcriber.Err = errors.New("stt backend down")

	err := f.ctrl.HandleClip(context.Background(), f.dropClip(t, "clip-4.wav"))
	if err == nil {
		t.Fatal("HandleClip: want error")
	}
	if moments := f.store.KeyMoments(); len(moments) != 0 {
		t.Errorf("key moments = %d, want 0", len(moments))
	}
	if f.sess.Cache().Len() != 0 {
		t.Errorf("cache len = %d, want 0", f.sess.Cache().Len())
	}
}

func TestHandleClip_KeyMomentFailureWritesNoTranscript(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.transcriber.Result = stt.Result{Text: "well done alice"}
	f.store.FailKeyMoments(errors.New("store unavailable"))

	err := f.ctrl.HandleClip(context.Background(), f.dropClip(t, "clip-5.wav"))
	if err == nil {
		t.Fatal("HandleClip: want error")
	}
	if errors.Is(err, ingest.ErrOrphanedKeyMoment) {
		t.Error("key-moment failure must not report an orphan")
	}
	if n := len(f.store.Transcripts()); n != 0 {
		t.Errorf("transcripts = %d, want 0", n)
	}
	if f.sess.Cache().Len() != 0 {
		t.Errorf("cache len = %d, want 0", f.sess.Cache().Len())
	}
}

func TestHandleClip_TranscriptFailureOrphansKeyMoment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.transcriber.Result = stt.Result{Text: "well done alice"}
	f.store.FailTranscripts(errors.New("store unavailable"))

	err := f.ctrl.HandleClip(context.Background(), f.dropClip(t, "clip-6.wav"))
	if !errors.Is(err, ingest.ErrOrphanedKeyMoment) {
		t.Fatalf("err = %v, want ErrOrphanedKeyMoment", err)
	}

	// Exactly one key moment persisted, no transcript, no cache entry, no
	// retry that could duplicate the moment.
	if n := len(f.store.KeyMoments()); n != 1 {
		t.Errorf("key moments = %d, want 1", n)
	}
	if n := len(f.store.Transcripts()); n != 0 {
		t.Errorf("transcripts = %d, want 0", n)
	}
	if f.sess.Cache().Len() != 0 {
		t.Errorf("cache len = %d, want 0", f.sess.Cache().Len())
	}
}

func TestHandleClip_FailedClipConsumesNoIndex(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.transcriber.Result = stt.Result{Text: "first for bob"}
	if err := f.ctrl.HandleClip(ctx, f.dropClip(t, "a.wav")); err != nil {
		t.Fatalf("first clip: %v", err)
	}

	f.store.FailTranscripts(errors.New("flaky store"))
	if err := f.ctrl.HandleClip(ctx, f.dropClip(t, "b.wav")); err == nil {
		t.Fatal("second clip: want error")
	}
	f.store.FailTranscripts(nil)

	f.transcriber.Result = stt.Result{Text: "third for alice"}
	if err := f.ctrl.HandleClip(ctx, f.dropClip(t, "c.wav")); err != nil {
		t.Fatalf("third clip: %v", err)
	}

	entries := f.sess.Cache().All()
	if len(entries) != 2 {
		t.Fatalf("cache entries = %d, want 2", len(entries))
	}
	if entries[0].LocalIndex != 0 || entries[1].LocalIndex != 1 {
		t.Errorf("indices = %d, %d, want 0, 1 (failed clip must not consume one)",
			entries[0].LocalIndex, entries[1].LocalIndex)
	}
}

func TestHandleTranscript_SkipsTranscriptionAndUpload(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	start := time.Date(2026, 3, 14, 19, 10, 0, 0, time.UTC)
	d := transport.TranscriptDelivery{
		Text:   "good press smithy",
		Window: types.Window{Start: start, End: start.Add(8 * time.Second)},
	}

	if err := f.ctrl.HandleTranscript(context.Background(), d); err != nil {
		t.Fatalf("HandleTranscript: %v", err)
	}

	if got := f.transcriber.CallCount(); got != 0 {
		t.Errorf("Transcribe calls = %d, want 0 on the message path", got)
	}

	moments := f.store.KeyMoments()
	if len(moments) != 1 {
		t.Fatalf("key moments = %d, want 1", len(moments))
	}
	if moments[0].AudioPath != "" {
		t.Errorf("AudioPath = %q, want empty on the message path", moments[0].AudioPath)
	}
	if len(moments[0].FeedbackFor) != 1 || moments[0].FeedbackFor[0] != "p3" {
		t.Errorf("FeedbackFor = %v, want [p3] via nickname", moments[0].FeedbackFor)
	}

	transcripts := f.store.Transcripts()
	if len(transcripts) != 1 {
		t.Fatalf("transcripts = %d, want 1", len(transcripts))
	}
	if transcripts[0].Language != "en" {
		t.Errorf("Language = %q, want fallback %q", transcripts[0].Language, "en")
	}
}

func TestHandleTranscript_NoSessionIsSilentNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.sessions.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	err := f.ctrl.HandleTranscript(context.Background(), transport.TranscriptDelivery{Text: "hello"})
	if err != nil {
		t.Fatalf("HandleTranscript without session: %v, want nil", err)
	}
	if n := len(f.store.KeyMoments()); n != 0 {
		t.Errorf("key moments = %d, want 0", n)
	}
}

func TestSwapMatcher_TakesEffectOnNextClip(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.transcriber.Result = stt.Result{Text: "nice pass bob"}

	// A matcher demanding a perfect score still matches the exact "bob".
	f.ctrl.SwapMatcher(attribute.New(attribute.WithThreshold(1.0)))
	if err := f.ctrl.HandleClip(context.Background(), f.dropClip(t, "s1.wav")); err != nil {
		t.Fatalf("HandleClip: %v", err)
	}

	// With a fuzzier transcript the same matcher fans out...
	f.transcriber.Result = stt.Result{Text: "nice pass bobb"}
	if err := f.ctrl.HandleClip(context.Background(), f.dropClip(t, "s2.wav")); err != nil {
		t.Fatalf("HandleClip: %v", err)
	}
	// ...until the threshold is lowered again.
	f.ctrl.SwapMatcher(attribute.New(attribute.WithThreshold(0.5)))
	if err := f.ctrl.HandleClip(context.Background(), f.dropClip(t, "s3.wav")); err != nil {
		t.Fatalf("HandleClip: %v", err)
	}

	moments := f.store.KeyMoments()
	if len(moments) != 3 {
		t.Fatalf("key moments = %d, want 3", len(moments))
	}
	if len(moments[0].FeedbackFor) != 1 {
		t.Errorf("first clip FeedbackFor = %v, want single match", moments[0].FeedbackFor)
	}
	if len(moments[1].FeedbackFor) != 3 {
		t.Errorf("second clip FeedbackFor = %v, want roster fanout", moments[1].FeedbackFor)
	}
	if len(moments[2].FeedbackFor) != 1 {
		t.Errorf("third clip FeedbackFor = %v, want single match after reload", moments[2].FeedbackFor)
	}
}

func TestHandleClip_MovesFileToWorkDir(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	var seen string
	f.transcriber.TranscribeFunc = func(_ context.Context, path string) (stt.Result, error) {
		seen = path
		return stt.Result{Text: "keep it tight bob"}, nil
	}

	d := f.dropClip(t, "moved.wav")
	if err := f.ctrl.HandleClip(context.Background(), d); err != nil {
		t.Fatalf("HandleClip: %v", err)
	}

	if seen == d.Path {
		t.Errorf("transcriber saw inbox path %q, want work-dir path", seen)
	}
	if filepath.Base(seen) != "moved.wav" {
		t.Errorf("work-dir file = %q, want basename preserved", seen)
	}
	// Both the original and the moved file are gone afterwards.
	if _, err := os.Stat(d.Path); !os.IsNotExist(err) {
		t.Errorf("inbox file still present")
	}
	if _, err := os.Stat(seen); !os.IsNotExist(err) {
		t.Errorf("work-dir file still present")
	}
}
