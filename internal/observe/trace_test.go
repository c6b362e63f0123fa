package observe_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/bacakata/internal/observe"
)

var traceIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// useTracer installs an in-memory tracer provider as the global one.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureJSON routes the default logger into a buffer of JSON lines.
func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return rec
}

func TestSessionID_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   string
		want string
	}{
		{name: "set", id: "session-20260401T080000Z-1", want: "session-20260401T080000Z-1"},
		{name: "empty id is not stored", id: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := observe.WithSession(context.Background(), tt.id)
			if got := observe.SessionID(ctx); got != tt.want {
				t.Errorf("SessionID = %q, want %q", got, tt.want)
			}
		})
	}

	if got := observe.SessionID(context.Background()); got != "" {
		t.Errorf("SessionID(background) = %q, want empty", got)
	}
}

func TestCorrelationID_EmptyWithoutSpan(t *testing.T) {
	t.Parallel()
	ctx := observe.WithSession(context.Background(), "kamera-1")
	if got := observe.CorrelationID(ctx); got != "" {
		t.Errorf("CorrelationID without span = %q, want empty", got)
	}
}

// Not parallel: swaps the global tracer provider.
func TestStartSpan_TagsSession(t *testing.T) {
	exp := useTracer(t)

	ctx := observe.WithSession(context.Background(), "kamera-1")
	ctx, span := observe.StartSpan(ctx, "session.process")
	cid := observe.CorrelationID(ctx)
	span.End()

	_, bare := observe.StartSpan(context.Background(), "feed.frame")
	bare.End()

	if !traceIDPattern.MatchString(cid) {
		t.Errorf("CorrelationID = %q, want 32 hex chars", cid)
	}

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	tagged, untagged := spans[0], spans[1]
	if tagged.Name != "session.process" || tagged.SpanContext.TraceID().String() != cid {
		t.Errorf("first span = %q trace %s, want session.process trace %s", tagged.Name, tagged.SpanContext.TraceID(), cid)
	}
	var found bool
	for _, kv := range tagged.Attributes {
		if kv.Key == observe.SessionIDKey {
			found = kv.Value.AsString() == "kamera-1"
		}
	}
	if !found {
		t.Errorf("session.process attributes = %v, want session.id=kamera-1", tagged.Attributes)
	}
	for _, kv := range untagged.Attributes {
		if kv.Key == observe.SessionIDKey {
			t.Errorf("span without session should not carry %s", observe.SessionIDKey)
		}
	}
}

// Not parallel: swaps the global tracer provider and logger.
func TestLogger_SessionAndTrace(t *testing.T) {
	useTracer(t)
	buf := captureJSON(t)

	ctx := observe.WithSession(context.Background(), "kamera-2")
	ctx, span := observe.StartSpan(ctx, "session.process")
	defer span.End()

	observe.Logger(ctx).Info("session: fragment processed")
	rec := decodeLine(t, buf)

	if rec["session_id"] != "kamera-2" {
		t.Errorf("session_id = %v, want kamera-2", rec["session_id"])
	}
	if rec["trace_id"] != observe.CorrelationID(ctx) {
		t.Errorf("trace_id = %v, want %s", rec["trace_id"], observe.CorrelationID(ctx))
	}
	if rec["span_id"] != span.SpanContext().SpanID().String() {
		t.Errorf("span_id = %v, want %s", rec["span_id"], span.SpanContext().SpanID())
	}
}

// Not parallel: swaps the global logger.
func TestLogger_SessionWithoutSpan(t *testing.T) {
	buf := captureJSON(t)

	observe.Logger(observe.WithSession(context.Background(), "kamera-3")).Warn("session: recognition failed")
	rec := decodeLine(t, buf)

	if rec["session_id"] != "kamera-3" {
		t.Errorf("session_id = %v, want kamera-3", rec["session_id"])
	}
	if _, ok := rec["trace_id"]; ok {
		t.Errorf("log line should not carry trace_id without a span: %v", rec)
	}
}

// Not parallel: swaps the global logger.
func TestLogger_BareContext(t *testing.T) {
	buf := captureJSON(t)

	observe.Logger(context.Background()).Info("feed: session opened")
	rec := decodeLine(t, buf)

	for _, key := range []string{"session_id", "trace_id", "span_id"} {
		if _, ok := rec[key]; ok {
			t.Errorf("bare context log line carries %s: %v", key, rec)
		}
	}
}
