// Package session wires the correction and narration stages into one
// per-session engine.
//
// An [Engine] owns everything a single camera session mutates: the
// correction cache and the narration gate state. The dictionary is shared
// read-only. Hosts construct one Engine per session and feed it every
// recognizer fragment in arrival order.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/bacakata/internal/dictionary"
	"github.com/MrWong99/bacakata/internal/narration"
	"github.com/MrWong99/bacakata/internal/observe"
	"github.com/MrWong99/bacakata/internal/transcript"
	"github.com/MrWong99/bacakata/internal/transcript/dictcorrect"
)

// Config holds the tunables of one [Engine].
type Config struct {
	// MinWordLength is the rune length at or below which words bypass
	// correction.
	MinWordLength int

	// Threshold is the similarity a dictionary word must strictly exceed to
	// replace a recognized word.
	Threshold int

	// MaxWords caps the tokens corrected per fragment.
	MaxWords int

	// Cooldown is the minimum time between two narrations. Zero disables it.
	Cooldown time.Duration

	// DuplicateThreshold is the similarity at or above which a candidate is
	// treated as a repeat of the last narration.
	DuplicateThreshold int

	// Synchronized makes the correction cache safe for concurrent use.
	Synchronized bool
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		MinWordLength:      3,
		Threshold:          80,
		MaxWords:           50,
		Cooldown:           2 * time.Second,
		DuplicateThreshold: 85,
	}
}

// Outcome is the result of one [Engine.Process] call.
type Outcome struct {
	// Fragment is the correction result. Zero when Skipped is true.
	Fragment transcript.CorrectedFragment

	// Decision is the narration verdict for the corrected text.
	Decision narration.Decision

	// Skipped reports that correction was not attempted because the gate
	// was still cooling down.
	Skipped bool
}

// Stats is a point-in-time summary of an Engine.
type Stats struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	Frames         int64     `json:"frames"`
	Failures       int64     `json:"failures"`
	Emitted        int64     `json:"emitted"`
	CacheSize      int       `json:"cache_size"`
	DictionarySize int       `json:"dictionary_size"`
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithID overrides the generated session identifier.
func WithID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.id = id
		}
	}
}

// WithClock sets the time source used for StartedAt and generated IDs.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

var sessionSeq atomic.Uint64

// Engine is one stabilization session: a dictionary corrector with its own
// cache, a fragment pipeline and a narration gate.
//
// Process is meant to be called from a single goroutine per session. Stats,
// ID and Close are safe to call concurrently with it.
type Engine struct {
	id        string
	startedAt time.Time
	now       func() time.Time
	metrics   *observe.Metrics

	dict      *dictionary.Dictionary
	corrector *dictcorrect.Corrector
	pipeline  *transcript.FragmentPipeline
	gate      *narration.Gate

	frames    atomic.Int64
	failures  atomic.Int64
	emitted   atomic.Int64
	cacheSize atomic.Int64

	closeOnce sync.Once
}

// New builds an Engine over dict. A nil or empty dict is allowed; fragments
// then pass through uncorrected.
func New(dict *dictionary.Dictionary, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		dict: dict,
		now:  time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	e.startedAt = e.now()
	if e.id == "" {
		e.id = fmt.Sprintf("session-%s-%d", e.startedAt.UTC().Format("20060102T150405Z"), sessionSeq.Add(1))
	}

	copts := []dictcorrect.Option{
		dictcorrect.WithMinLength(cfg.MinWordLength),
		dictcorrect.WithThreshold(cfg.Threshold),
	}
	if cfg.Synchronized {
		copts = append(copts, dictcorrect.WithSynchronized())
	}
	e.corrector = dictcorrect.New(dict, copts...)
	e.pipeline = transcript.NewPipeline(
		transcript.WithWordCorrector(e.corrector),
		transcript.WithMaxWords(cfg.MaxWords),
	)
	e.gate = narration.NewGate(
		narration.WithCooldown(cfg.Cooldown),
		narration.WithDuplicateThreshold(cfg.DuplicateThreshold),
	)

	e.metrics.ActiveSessions.Add(context.Background(), 1)
	return e
}

// ID returns the session identifier.
func (e *Engine) ID() string {
	return e.id
}

// Gate returns the session's narration gate.
func (e *Engine) Gate() *narration.Gate {
	return e.gate
}

// Process handles one recognizer fragment observed at now. outputBusy
// reports whether the narration sink is still speaking.
//
// The raw text is trimmed first. When the gate is still cooling down the
// fragment is not corrected at all and a cooldown suppression is returned
// with Skipped set.
func (e *Engine) Process(ctx context.Context, raw string, now time.Time, outputBusy bool) Outcome {
	ctx, span := observe.StartSpan(observe.WithSession(ctx, e.id), "session.process")
	defer span.End()

	e.frames.Add(1)
	e.metrics.RecordFrame(ctx, "ok")

	text := strings.TrimSpace(raw)
	if text != "" && !e.gate.Ready(now) {
		d := narration.Decision{Action: narration.Suppress, Reason: narration.ReasonCooldown}
		e.recordDecision(ctx, span, d)
		return Outcome{Decision: d, Skipped: true}
	}

	start := time.Now()
	frag := e.pipeline.Correct(text)
	e.metrics.CorrectionDuration.Record(ctx, time.Since(start).Seconds())
	e.cacheSize.Store(int64(e.corrector.CacheLen()))
	e.metrics.RecordCacheLookups(ctx, frag.CacheHits, frag.Scans)
	if n := len(frag.Corrections); n > 0 {
		e.metrics.Corrections.Add(ctx, int64(n))
	}
	span.SetAttributes(
		attribute.Int("fragment.words", frag.Words),
		attribute.Int("fragment.corrections", len(frag.Corrections)),
	)

	d := e.gate.Evaluate(frag.Corrected, now, outputBusy)
	if d.Emitted() {
		e.emitted.Add(1)
	}
	e.recordDecision(ctx, span, d)

	observe.Logger(ctx).Debug("session: fragment processed",
		"raw", text,
		"corrected", frag.Corrected,
		"corrections", len(frag.Corrections),
		"dropped", frag.Dropped,
		"action", d.Action.String(),
		"reason", string(d.Reason),
		"similarity", d.Similarity,
	)
	return Outcome{Fragment: frag, Decision: d}
}

// Fail records a recognizer failure for this session. The gate and cache
// are left untouched.
func (e *Engine) Fail(ctx context.Context, err error) {
	e.failures.Add(1)
	e.metrics.RecordFrame(ctx, "failed")
	observe.Logger(observe.WithSession(ctx, e.id)).Warn("session: recognition failed", "err", err)
}

// Stats returns a snapshot of the session counters.
func (e *Engine) Stats() Stats {
	return Stats{
		ID:             e.id,
		StartedAt:      e.startedAt,
		Frames:         e.frames.Load(),
		Failures:       e.failures.Load(),
		Emitted:        e.emitted.Load(),
		CacheSize:      int(e.cacheSize.Load()),
		DictionarySize: e.dict.Len(),
	}
}

// Close releases the session. It is safe to call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.metrics.ActiveSessions.Add(context.Background(), -1)
	})
}

func (e *Engine) recordDecision(ctx context.Context, span trace.Span, d narration.Decision) {
	e.metrics.RecordDecision(ctx, d.Action.String(), string(d.Reason))
	span.SetAttributes(
		attribute.String("decision.action", d.Action.String()),
		attribute.String("decision.reason", string(d.Reason)),
	)
	if d.Emitted() {
		span.SetStatus(codes.Ok, "")
	}
}
