package session_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/bacakata/internal/dictionary"
	"github.com/MrWong99/bacakata/internal/narration"
	"github.com/MrWong99/bacakata/internal/observe"
	"github.com/MrWong99/bacakata/internal/session"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testDict() *dictionary.Dictionary {
	return dictionary.New([]string{"kucing", "makan", "ikan", "halo", "dunia"})
}

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// sumTotal returns the total of all int64 sum data points of the named metric
// whose attributes include every key/value pair in match.
func sumTotal(t *testing.T, reader *sdkmetric.ManualReader, name string, match map[string]string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not an int64 sum", name)
			}
		points:
			for _, dp := range sum.DataPoints {
				for k, v := range match {
					got, ok := dp.Attributes.Value(attribute.Key(k))
					if !ok || got.AsString() != v {
						continue points
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

func newEngine(t *testing.T, opts ...session.Option) *session.Engine {
	t.Helper()
	m, _ := newTestMetrics(t)
	e := session.New(testDict(), session.DefaultConfig(), append([]session.Option{session.WithMetrics(m)}, opts...)...)
	t.Cleanup(e.Close)
	return e
}

func TestEngine_CorrectsAndEmits(t *testing.T) {
	t.Parallel()
	e := newEngine(t)

	out := e.Process(context.Background(), "  kuc1ng \n", t0, false)
	if out.Skipped {
		t.Fatal("first frame must not be skipped")
	}
	if out.Fragment.Original != "kuc1ng" {
		t.Errorf("Fragment.Original = %q, want trimmed %q", out.Fragment.Original, "kuc1ng")
	}
	if out.Decision.Action != narration.Emit || out.Decision.Text != "kucing" {
		t.Errorf("Decision = %+v, want emit %q", out.Decision, "kucing")
	}
}

func TestEngine_Sequence(t *testing.T) {
	t.Parallel()
	e := newEngine(t)
	ctx := context.Background()

	steps := []struct {
		name        string
		raw         string
		at          time.Duration
		busy        bool
		wantAction  narration.Action
		wantReason  narration.Reason
		wantSkipped bool
	}{
		{name: "first emit", raw: "kuc1ng", at: 0, wantAction: narration.Emit},
		{name: "cooldown skips correction", raw: "halo dunia", at: time.Second, wantAction: narration.Suppress, wantReason: narration.ReasonCooldown, wantSkipped: true},
		{name: "blank wins over cooldown", raw: "   ", at: time.Second, wantAction: narration.Suppress, wantReason: narration.ReasonBlank},
		{name: "duplicate after cooldown", raw: "kucing", at: 3 * time.Second, wantAction: narration.Suppress, wantReason: narration.ReasonDuplicate},
		{name: "busy output", raw: "halo dunia", at: 3 * time.Second, busy: true, wantAction: narration.Suppress, wantReason: narration.ReasonBusy},
		{name: "new text emits", raw: "halo dunia", at: 3 * time.Second, wantAction: narration.Emit},
	}
	for _, s := range steps {
		out := e.Process(ctx, s.raw, t0.Add(s.at), s.busy)
		if out.Decision.Action != s.wantAction || out.Decision.Reason != s.wantReason {
			t.Errorf("%s: decision = %v/%q, want %v/%q", s.name,
				out.Decision.Action, out.Decision.Reason, s.wantAction, s.wantReason)
		}
		if out.Skipped != s.wantSkipped {
			t.Errorf("%s: Skipped = %v, want %v", s.name, out.Skipped, s.wantSkipped)
		}
	}

	st := e.Stats()
	if st.Frames != int64(len(steps)) {
		t.Errorf("Frames = %d, want %d", st.Frames, len(steps))
	}
	if st.Emitted != 2 {
		t.Errorf("Emitted = %d, want 2", st.Emitted)
	}
	if st.DictionarySize != 5 {
		t.Errorf("DictionarySize = %d, want 5", st.DictionarySize)
	}
	if st.CacheSize == 0 {
		t.Error("CacheSize = 0, want cached lookups")
	}
	if got := e.Gate().State().LastText; got != "halo dunia" {
		t.Errorf("LastText = %q, want %q", got, "halo dunia")
	}
}

func TestEngine_SkippedFrameLeavesFragmentEmpty(t *testing.T) {
	t.Parallel()
	e := newEngine(t)
	ctx := context.Background()

	e.Process(ctx, "halo", t0, false)
	out := e.Process(ctx, "kuc1ng", t0.Add(500*time.Millisecond), false)
	if !out.Skipped {
		t.Fatal("expected skipped frame during cooldown")
	}
	if out.Fragment.Corrected != "" || out.Fragment.Words != 0 {
		t.Errorf("Fragment = %+v, want zero value", out.Fragment)
	}
}

func TestEngine_ZeroCooldownNeverSkips(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)
	cfg := session.DefaultConfig()
	cfg.Cooldown = 0
	e := session.New(testDict(), cfg, session.WithMetrics(m))
	defer e.Close()

	ctx := context.Background()
	e.Process(ctx, "halo", t0, false)
	out := e.Process(ctx, "ikan makan", t0, false)
	if out.Skipped || !out.Decision.Emitted() {
		t.Errorf("Outcome = %+v, want immediate emit", out)
	}
}

func TestEngine_NilDictionaryPassesThrough(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)
	e := session.New(nil, session.DefaultConfig(), session.WithMetrics(m))
	defer e.Close()

	out := e.Process(context.Background(), "kuc1ng mkan", t0, false)
	if out.Decision.Text != "kuc1ng mkan" {
		t.Errorf("Text = %q, want passthrough", out.Decision.Text)
	}
	if got := e.Stats().DictionarySize; got != 0 {
		t.Errorf("DictionarySize = %d, want 0", got)
	}
}

func TestEngine_IDs(t *testing.T) {
	t.Parallel()

	a := newEngine(t)
	b := newEngine(t)
	if a.ID() == b.ID() {
		t.Errorf("generated IDs collide: %q", a.ID())
	}
	if !strings.HasPrefix(a.ID(), "session-") {
		t.Errorf("ID = %q, want session- prefix", a.ID())
	}

	c := newEngine(t, session.WithID("cam-7"))
	if c.ID() != "cam-7" {
		t.Errorf("ID = %q, want cam-7", c.ID())
	}

	d := newEngine(t, session.WithClock(func() time.Time { return t0 }))
	if !d.Stats().StartedAt.Equal(t0) {
		t.Errorf("StartedAt = %v, want %v", d.Stats().StartedAt, t0)
	}
}

func TestEngine_FailDoesNotTouchGate(t *testing.T) {
	t.Parallel()
	e := newEngine(t)
	ctx := context.Background()

	e.Fail(ctx, errors.New("recognizer unavailable"))
	if got := e.Stats().Failures; got != 1 {
		t.Errorf("Failures = %d, want 1", got)
	}
	if st := e.Gate().State(); !st.LastEmit.IsZero() || st.LastText != "" {
		t.Errorf("gate state changed after failure: %+v", st)
	}
}

func TestEngine_RecordsMetrics(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	e := session.New(testDict(), session.DefaultConfig(), session.WithMetrics(m))
	ctx := context.Background()

	if got := sumTotal(t, reader, "bacakata.active_sessions", nil); got != 1 {
		t.Errorf("active_sessions = %d, want 1", got)
	}

	e.Process(ctx, "kuc1ng mkan", t0, false)
	e.Process(ctx, "kuc1ng mkan", t0.Add(time.Second), false)
	e.Fail(ctx, errors.New("boom"))

	if got := sumTotal(t, reader, "bacakata.frames", map[string]string{"status": "ok"}); got != 2 {
		t.Errorf("frames{ok} = %d, want 2", got)
	}
	if got := sumTotal(t, reader, "bacakata.frames", map[string]string{"status": "failed"}); got != 1 {
		t.Errorf("frames{failed} = %d, want 1", got)
	}
	if got := sumTotal(t, reader, "bacakata.decisions", map[string]string{"action": "emit"}); got != 1 {
		t.Errorf("decisions{emit} = %d, want 1", got)
	}
	if got := sumTotal(t, reader, "bacakata.decisions", map[string]string{"reason": "cooldown"}); got != 1 {
		t.Errorf("decisions{cooldown} = %d, want 1", got)
	}
	if got := sumTotal(t, reader, "bacakata.corrections", nil); got != 1 {
		t.Errorf("corrections = %d, want 1", got)
	}
	if got := sumTotal(t, reader, "bacakata.cache.lookups", map[string]string{"result": "miss"}); got != 2 {
		t.Errorf("cache.lookups{miss} = %d, want 2", got)
	}

	e.Close()
	e.Close()
	if got := sumTotal(t, reader, "bacakata.active_sessions", nil); got != 0 {
		t.Errorf("active_sessions after Close = %d, want 0", got)
	}
}

// Not parallel: swaps the global tracer provider.
func TestEngine_RecordsSpan(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})

	e := newEngine(t, session.WithID("span-test"))
	e.Process(context.Background(), "halo", t0, false)

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "session.process" {
		t.Errorf("span name = %q, want session.process", spans[0].Name)
	}
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["session.id"] != "span-test" {
		t.Errorf("session.id = %q, want span-test", attrs["session.id"])
	}
	if attrs["decision.action"] != "emit" {
		t.Errorf("decision.action = %q, want emit", attrs["decision.action"])
	}
}
