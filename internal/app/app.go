// Package app wires all bacakata subsystems into a running application.
//
// The App struct owns the full lifecycle: New loads the dictionary and
// builds the HTTP surface, Run executes the fragment sources until the
// context ends, ApplyConfig hot-reloads settings, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithSpeaker,
// WithInput, WithMetrics, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/bacakata/internal/config"
	"github.com/MrWong99/bacakata/internal/dictionary"
	"github.com/MrWong99/bacakata/internal/feed"
	"github.com/MrWong99/bacakata/internal/health"
	"github.com/MrWong99/bacakata/internal/narrate"
	"github.com/MrWong99/bacakata/internal/observe"
	"github.com/MrWong99/bacakata/internal/session"
)

// shutdownGrace bounds how long the HTTP server waits for in-flight requests
// once Run's context is cancelled.
const shutdownGrace = 10 * time.Second

// App owns all subsystem lifetimes and orchestrates the correction pipeline.
type App struct {
	metrics        *observe.Metrics
	metricsHandler http.Handler
	levelVar       *slog.LevelVar
	display        *narrate.Display
	input          io.Reader
	listener       net.Listener

	// ownSpeaker is true when the speaker was built from config and may be
	// rebuilt on reload.
	ownSpeaker bool

	mu         sync.RWMutex
	cfg        *config.Config
	dict       *dictionary.Dictionary
	speaker    narrate.Speaker
	lineEngine *session.Engine

	feed    *feed.Server
	health  *health.Handler
	server  *http.Server
	serving atomic.Bool

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics injects the metrics sink instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevelVar lets ApplyConfig change the log level of the handler that
// was built around lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// WithSpeaker injects the narration sink instead of a [narrate.LogSpeaker].
func WithSpeaker(s narrate.Speaker) Option {
	return func(a *App) { a.speaker = s }
}

// WithDisplay injects the display instead of one writing to stdout.
func WithDisplay(d *narrate.Display) Option {
	return func(a *App) { a.display = d }
}

// WithInput injects the line feed source instead of opening input.path.
func WithInput(r io.Reader) Option {
	return func(a *App) { a.input = r }
}

// WithListener injects the HTTP listener instead of listening on
// server.listen_addr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It loads the
// dictionary, opens the input and binds the listener synchronously so that
// configuration problems surface before Run.
//
// A missing dictionary file is not fatal: the app starts with an empty
// dictionary, reports not-ready on /readyz, and passes fragments through.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Dictionary ────────────────────────────────────────────────────
	dict, err := loadDictionary(cfg.Dictionary.Path, true)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.dict = dict

	// ── 2. Narration sink ────────────────────────────────────────────────
	if a.speaker == nil {
		a.speaker = newSpeaker(cfg)
		a.ownSpeaker = true
	}
	if a.display == nil {
		a.display = narrate.NewDisplay(os.Stdout)
	}

	// ── 3. Line feed ─────────────────────────────────────────────────────
	if err := a.initInput(); err != nil {
		return nil, fmt.Errorf("app: init input: %w", err)
	}
	if a.input != nil {
		a.lineEngine = a.newEngine()
	}

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.feed = feed.NewServer(a.newEngine, feed.WithOriginPatterns(cfg.Server.AllowedOrigins...))
	a.health = health.New(
		health.NonEmpty("dictionary", a.dictionaryLen),
		health.Checker{Name: "feed", Check: a.checkFeed},
	)
	a.health.SetStatus(func() any { return a.Status() })

	if err := a.initServer(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	slog.InfoContext(ctx, "app initialised",
		"dictionary_words", dict.Len(),
		"line_feed", a.input != nil,
		"http", a.server != nil,
	)
	return a, nil
}

// loadDictionary loads the word list at path. An empty path yields an empty
// dictionary. A missing file degrades to an empty dictionary only when
// allowMissing is set; otherwise it is an error like any other.
func loadDictionary(path string, allowMissing bool) (*dictionary.Dictionary, error) {
	if path == "" {
		return dictionary.New(nil), nil
	}
	dict, err := dictionary.LoadFile(path)
	if allowMissing && errors.Is(err, os.ErrNotExist) {
		slog.Warn("dictionary file not found; continuing without corrections", "path", path)
		return dict, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load dictionary: %w", err)
	}
	slog.Info("dictionary loaded", "path", path, "words", dict.Len())
	return dict, nil
}

func newSpeaker(cfg *config.Config) *narrate.LogSpeaker {
	return narrate.NewLogSpeaker(
		narrate.WithWordsPerMinute(cfg.Narration.WordsPerMinute),
		narrate.WithLanguage(cfg.Narration.Language),
	)
}

func (a *App) initInput() error {
	if a.input != nil {
		return nil
	}
	switch path := a.cfg.Input.Path; path {
	case "":
		return nil
	case "-":
		a.input = os.Stdin
	default:
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		a.input = f
		a.closers = append(a.closers, f.Close)
	}
	return nil
}

func (a *App) initServer() error {
	if a.listener == nil {
		if a.cfg.Server.ListenAddr == "" {
			return nil
		}
		ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return err
		}
		a.listener = ln
	}

	mux := http.NewServeMux()
	mux.Handle("GET /ws", a.feed)
	a.health.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}

	a.server = &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// newEngine builds a session engine from the current dictionary and config.
func (a *App) newEngine() *session.Engine {
	a.mu.RLock()
	dict, cfg := a.dict, a.cfg
	a.mu.RUnlock()
	return session.New(dict, cfg.SessionConfig(), session.WithMetrics(a.metrics))
}

func (a *App) dictionaryLen() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dict.Len()
}

func (a *App) checkFeed(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.server != nil && !a.serving.Load() {
		return errors.New("websocket listener not serving")
	}
	return nil
}

// Addr returns the HTTP listener address, or nil when HTTP is disabled.
func (a *App) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and drains the line feed until ctx is cancelled or a
// source fails. Reaching the end of the line feed is not an error; Run then
// keeps serving HTTP, or returns when HTTP is disabled.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.server != nil {
		ln := a.listener
		tls := a.cfg.Server.TLS
		g.Go(func() error {
			a.serving.Store(true)
			defer a.serving.Store(false)
			slog.Info("http server listening", "addr", ln.Addr().String(), "tls", tls.Enabled())
			var err error
			if tls.Enabled() {
				err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			} else {
				err = a.server.Serve(ln)
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("app: http server: %w", err)
		})
		g.Go(func() error {
			<-gctx.Done()
			a.feed.Close()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return a.server.Shutdown(sctx)
		})
	}

	if a.input != nil {
		lines := feed.NewLines(a.input, feed.WithFrameInterval(a.cfg.Input.FrameInterval))
		g.Go(func() error {
			err := lines.Run(gctx, a.handleFragment)
			if err == nil {
				slog.Info("line feed finished")
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return err
}

// handleFragment runs one line-feed fragment through the line session and
// announces emitted text. Failed recognitions show the failure message, and
// fragments the session will actually correct show the processing message
// first.
func (a *App) handleFragment(ctx context.Context, f feed.Fragment) error {
	a.mu.RLock()
	engine, speaker := a.lineEngine, a.speaker
	a.mu.RUnlock()

	if f.Err != nil {
		engine.Fail(ctx, f.Err)
		a.show(ctx, a.display.Failed)
		return nil
	}
	if f.Text != "" && engine.Gate().Ready(f.At) {
		a.show(ctx, a.display.Processing)
	}

	out := engine.Process(ctx, f.Text, f.At, speaker.Busy())
	if !out.Decision.Emitted() {
		return nil
	}
	if err := narrate.Announce(ctx, a.display, speaker, out.Decision.Text); err != nil {
		slog.WarnContext(ctx, "narration failed", "session_id", engine.ID(), "err", err)
	}
	return nil
}

func (a *App) show(ctx context.Context, fn func() error) {
	if err := fn(); err != nil {
		slog.WarnContext(ctx, "display failed", "err", err)
	}
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable differences between the running
// config and next. See [App.Reload].
func (a *App) ApplyConfig(next *config.Config) error {
	a.mu.RLock()
	prev := a.cfg
	a.mu.RUnlock()
	return a.Reload(next, config.Diff(prev, next))
}

// Reload applies next as described by d. It matches [config.ReloadFunc], so
// a [config.Watcher] can drive it directly; the watcher also sets
// d.DictionaryChanged when only the dictionary file's content changed.
//
// A dictionary that fails to load, including one whose file has gone
// missing, is reported and the previous one kept. The line session is
// replaced when the dictionary or session settings change; WebSocket
// sessions already open keep theirs.
func (a *App) Reload(next *config.Config, d config.ConfigDiff) error {
	for _, field := range d.RestartRequired {
		slog.Warn("config change requires restart", "setting", field)
	}

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	var (
		dict    *dictionary.Dictionary
		loadErr error
	)
	if d.DictionaryChanged {
		dict, loadErr = loadDictionary(next.Dictionary.Path, false)
		if loadErr != nil {
			slog.Error("dictionary reload failed; keeping previous dictionary", "path", next.Dictionary.Path, "err", loadErr)
		}
	}

	a.mu.Lock()
	a.cfg = next
	if dict != nil {
		a.dict = dict
	}
	if d.SpeakerChanged && a.ownSpeaker {
		a.speaker = newSpeaker(next)
	}
	a.mu.Unlock()

	if (dict != nil || d.SessionChanged) && a.lineEngine != nil {
		a.rotateLineEngine()
	}
	return loadErr
}

func (a *App) rotateLineEngine() {
	fresh := a.newEngine()
	a.mu.Lock()
	old := a.lineEngine
	a.lineEngine = fresh
	a.mu.Unlock()
	old.Close()
	slog.Info("line session replaced", "old", old.ID(), "new", fresh.ID())
}

// SlogLevel maps a config log level to its slog equivalent. Unknown values
// map to Info.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Status ──────────────────────────────────────────────────────────────────

// Status is the JSON body served at /status.
type Status struct {
	DictionaryWords int             `json:"dictionary_words"`
	LineSession     *session.Stats  `json:"line_session,omitempty"`
	Sessions        []session.Stats `json:"sessions"`
}

// Status returns a snapshot of the running sessions.
func (a *App) Status() Status {
	a.mu.RLock()
	st := Status{DictionaryWords: a.dict.Len()}
	if a.lineEngine != nil {
		ls := a.lineEngine.Stats()
		st.LineSession = &ls
	}
	a.mu.RUnlock()
	st.Sessions = a.feed.Sessions()
	return st
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.feed.Close()
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
				shutdownErr = err
			}
			// Serve closes the listener itself; this covers an App that never ran.
			_ = a.listener.Close()
		}

		a.mu.Lock()
		if a.lineEngine != nil {
			a.lineEngine.Close()
		}
		a.mu.Unlock()

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

func (a *App) runClosers() {
	for _, closer := range a.closers {
		_ = closer()
	}
}
