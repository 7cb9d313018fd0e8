// Package app wires all sidelined subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes them until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithKeyMomentStore,
// WithTranscriber, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/sidelinehq/sideline/internal/attribute"
	"github.com/sidelinehq/sideline/internal/config"
	"github.com/sidelinehq/sideline/internal/health"
	"github.com/sidelinehq/sideline/internal/ingest"
	"github.com/sidelinehq/sideline/internal/media"
	"github.com/sidelinehq/sideline/internal/observe"
	"github.com/sidelinehq/sideline/internal/session"
	"github.com/sidelinehq/sideline/internal/store"
	"github.com/sidelinehq/sideline/internal/store/memstore"
	"github.com/sidelinehq/sideline/internal/store/postgres"
	"github.com/sidelinehq/sideline/internal/transport"
	"github.com/sidelinehq/sideline/pkg/provider/stt"
	sttopenai "github.com/sidelinehq/sideline/pkg/provider/stt/openai"
	sttwhisper "github.com/sidelinehq/sideline/pkg/provider/stt/whisper"
)

func init() {
	config.RegisterTranscriber("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []sttwhisper.Option
		if entry.Model != "" {
			opts = append(opts, sttwhisper.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, sttwhisper.WithLanguage(entry.Language))
		}
		return sttwhisper.New(entry.BaseURL, opts...)
	})

	config.RegisterTranscriber("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if entry.Language != "" {
			opts = append(opts, sttopenai.WithLanguage(entry.Language))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})
}

// App owns all subsystem lifetimes for the sidelined daemon.
type App struct {
	cfg      *config.Config
	sessions *session.Manager
	metrics  *observe.Metrics

	// Subsystems — initialised in New, torn down in Shutdown.
	moments     store.KeyMomentStore
	transcripts store.TranscriptStore
	uploader    media.Uploader
	transcriber stt.Transcriber
	controller  *ingest.Controller
	spool       *transport.Spool
	link        *transport.WSLink
	drop        *transport.DropWatcher
	health      *health.Handler
	httpSrv     *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithKeyMomentStore injects a key-moment store instead of creating one
// from config.
func WithKeyMomentStore(s store.KeyMomentStore) Option {
	return func(a *App) { a.moments = s }
}

// WithTranscriptStore injects a transcript store instead of creating one
// from config.
func WithTranscriptStore(s store.TranscriptStore) Option {
	return func(a *App) { a.transcripts = s }
}

// WithTranscriber injects a speech-to-text backend instead of building one
// via the registry.
func WithTranscriber(t stt.Transcriber) Option {
	return func(a *App) { a.transcriber = t }
}

// WithUploader injects a media uploader instead of creating one from config.
func WithUploader(u media.Uploader) Option {
	return func(a *App) { a.uploader = u }
}

// WithMetrics overrides the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) {
		if m != nil {
			a.metrics = m
		}
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		sessions: session.NewManager(),
		metrics:  observe.DefaultMetrics(),
		health:   health.New(),
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Persistence ───────────────────────────────────────────────────
	if err := a.initStores(ctx); err != nil {
		return nil, fmt.Errorf("app: init stores: %w", err)
	}

	// ── 2. Media storage ─────────────────────────────────────────────────
	if err := a.initMedia(); err != nil {
		return nil, fmt.Errorf("app: init media: %w", err)
	}

	// ── 3. Transcriber ───────────────────────────────────────────────────
	if a.transcriber == nil {
		t, err := config.NewTranscriber(cfg.Transcription)
		if err != nil {
			return nil, fmt.Errorf("app: init transcriber: %w", err)
		}
		a.transcriber = t
	}

	// ── 4. Ingestion controller ──────────────────────────────────────────
	if err := a.initController(); err != nil {
		return nil, fmt.Errorf("app: init controller: %w", err)
	}

	// ── 5. Companion transport ───────────────────────────────────────────
	if err := a.initTransport(); err != nil {
		return nil, fmt.Errorf("app: init transport: %w", err)
	}

	// ── 6. HTTP surface ──────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStores sets up the PostgreSQL store, or the in-memory store when no
// DSN is configured (development mode) or doubles were injected.
func (a *App) initStores(ctx context.Context) error {
	if a.moments != nil && a.transcripts != nil {
		return nil // both injected
	}

	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		mem := memstore.New()
		if a.moments == nil {
			a.moments = mem
		}
		if a.transcripts == nil {
			a.transcripts = mem
		}
		slog.Warn("running on the in-memory store; nothing survives a restart")
		return nil
	}

	pg, err := postgres.New(ctx, dsn)
	if err != nil {
		return err
	}
	if a.moments == nil {
		a.moments = pg
	}
	if a.transcripts == nil {
		a.transcripts = pg
	}
	a.health.AddCheck("store", pg.Ping)
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	return nil
}

// initMedia picks the upload destination: the HTTP media service when
// configured, a local directory otherwise.
func (a *App) initMedia() error {
	if a.uploader != nil {
		return nil
	}

	if url := a.cfg.Media.UploadURL; url != "" {
		var opts []media.HTTPOption
		if a.cfg.Media.AuthToken != "" {
			opts = append(opts, media.WithAuthToken(a.cfg.Media.AuthToken))
		}
		up, err := media.NewHTTPUploader(url, opts...)
		if err != nil {
			return err
		}
		a.uploader = up
		return nil
	}

	dir := a.cfg.Media.LocalDir
	if dir == "" {
		dir = filepath.Join(a.workDir(), "uploads")
		slog.Warn("no media destination configured, storing clips locally", "dir", dir)
	}
	up, err := media.NewDirUploader(dir)
	if err != nil {
		return err
	}
	a.uploader = up
	return nil
}

func (a *App) initController() error {
	var ingestOpts []ingest.Option
	ingestOpts = append(ingestOpts, ingest.WithMetrics(a.metrics))
	if a.cfg.Transcription.Language != "" {
		ingestOpts = append(ingestOpts, ingest.WithLanguage(a.cfg.Transcription.Language))
	}

	ctrl, err := ingest.New(
		a.sessions,
		a.transcriber,
		newMatcher(a.cfg.Attribution),
		a.moments,
		a.transcripts,
		a.uploader,
		a.workDir(),
		ingestOpts...,
	)
	if err != nil {
		return err
	}
	a.controller = ctrl
	return nil
}

// initTransport sets up the spool, the websocket link, and the inbox
// watcher. Each inbound path is optional; Validate guarantees at least one
// is configured.
func (a *App) initTransport() error {
	spoolPath := a.cfg.Companion.SpoolPath
	if spoolPath == "" {
		spoolPath = ":memory:"
		slog.Warn("companion.spool_path is empty; queued payloads will not survive a restart")
	}
	spool, err := transport.OpenSpool(spoolPath)
	if err != nil {
		return err
	}
	a.spool = spool
	a.closers = append(a.closers, spool.Close)

	if url := a.cfg.Companion.WSURL; url != "" {
		a.link = transport.NewWSLink(url, a.controller, spool, transport.WithMetrics(a.metrics))
		a.health.AddCheck("capture_link", func(context.Context) error {
			if !a.link.IsReachable() {
				return errors.New("capture device not connected")
			}
			return nil
		})
	}

	if dir := a.cfg.Companion.DropDir; dir != "" {
		drop, err := transport.NewDropWatcher(dir, a.controller)
		if err != nil {
			return err
		}
		a.drop = drop
	}
	return nil
}

func (a *App) initHTTP() {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	a.registerAPI(mux)

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8710"
	}
	a.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (a *App) workDir() string {
	if a.cfg.Ingest.WorkDir != "" {
		return a.cfg.Ingest.WorkDir
	}
	return filepath.Join("/var/lib/sidelined", "work")
}

// newMatcher builds the attribution matcher from config.
func newMatcher(cfg config.AttributionConfig) *attribute.Matcher {
	var opts []attribute.Option
	if cfg.Threshold > 0 {
		opts = append(opts, attribute.WithThreshold(cfg.Threshold))
	}
	if cfg.Scorer == config.ScorerPhonetic {
		opts = append(opts, attribute.WithScorer(attribute.PhoneticScorer{}))
	}
	return attribute.New(opts...)
}

// ApplyConfig reacts to a config hot-reload. Only the attribution settings
// take effect without a restart; everything else needs a daemon restart and
// is logged as ignored.
func (a *App) ApplyConfig(old, cur *config.Config) {
	if old.Attribution != cur.Attribution {
		a.controller.SwapMatcher(newMatcher(cur.Attribution))
		slog.Info("attribution settings reloaded",
			"threshold", cur.Attribution.Threshold,
			"scorer", cur.Attribution.Scorer,
		)
	}
	if old.Companion != cur.Companion || old.Store != cur.Store ||
		old.Transcription != cur.Transcription || old.Media != cur.Media {
		slog.Warn("config change beyond attribution requires a restart to take effect")
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the transports and the HTTP server and blocks until ctx is
// cancelled or a subsystem fails fatally.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.link != nil {
		g.Go(func() error {
			err := a.link.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	if a.drop != nil {
		g.Go(func() error {
			err := a.drop.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		slog.Info("http server listening", "addr", a.httpSrv.Addr)
		if err := a.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
