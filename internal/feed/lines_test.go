package feed_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/bacakata/internal/feed"
)

func collectLines(t *testing.T, l *feed.Lines) []feed.Fragment {
	t.Helper()
	var got []feed.Fragment
	err := l.Run(context.Background(), func(_ context.Context, f feed.Fragment) error {
		got = append(got, f)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return got
}

func TestLines_TrimsEachLine(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	l := feed.NewLines(strings.NewReader("  kuc1ng mkan \r\n\nhalo\n"),
		feed.WithLinesClock(func() time.Time { return at }))

	got := collectLines(t, l)
	want := []string{"kuc1ng mkan", "", "halo"}
	if len(got) != len(want) {
		t.Fatalf("got %d fragments, want %d", len(got), len(want))
	}
	for i, f := range got {
		if f.Text != want[i] {
			t.Errorf("fragment %d = %q, want %q", i, f.Text, want[i])
		}
		if !f.At.Equal(at) {
			t.Errorf("fragment %d At = %v, want %v", i, f.At, at)
		}
	}
}

func TestLines_HandlerErrorStops(t *testing.T) {
	t.Parallel()

	stop := errors.New("stop")
	calls := 0
	l := feed.NewLines(strings.NewReader("a\nb\nc\n"))
	err := l.Run(context.Background(), func(context.Context, feed.Fragment) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Errorf("Run error = %v, want %v", err, stop)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestLines_CancelWhileReaderBlocked(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- feed.NewLines(pr).Run(ctx, func(context.Context, feed.Fragment) error { return nil })
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("device gone") }

func TestLines_ReadError(t *testing.T) {
	t.Parallel()

	err := feed.NewLines(errReader{}).Run(context.Background(), func(context.Context, feed.Fragment) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "device gone") {
		t.Errorf("Run error = %v, want read error", err)
	}
}

func TestLines_FrameInterval(t *testing.T) {
	t.Parallel()

	l := feed.NewLines(strings.NewReader("a\nb\nc\n"), feed.WithFrameInterval(20*time.Millisecond))
	start := time.Now()
	got := collectLines(t, l)
	if len(got) != 3 {
		t.Fatalf("got %d fragments, want 3", len(got))
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("elapsed = %v, want at least two intervals", elapsed)
	}
}

func TestLines_FailureMarker(t *testing.T) {
	t.Parallel()

	l := feed.NewLines(strings.NewReader("!error\n  !error kabur  \n!errorless\nhalo\n"))
	got := collectLines(t, l)
	if len(got) != 4 {
		t.Fatalf("got %d fragments, want 4", len(got))
	}

	tests := []struct {
		text    string
		failed  bool
		message string
	}{
		{failed: true},
		{failed: true, message: "kabur"},
		{text: "!errorless"},
		{text: "halo"},
	}
	for i, tt := range tests {
		f := got[i]
		if f.Text != tt.text {
			t.Errorf("fragment %d: Text = %q, want %q", i, f.Text, tt.text)
		}
		if (f.Err != nil) != tt.failed {
			t.Errorf("fragment %d: Err = %v, want failed=%v", i, f.Err, tt.failed)
			continue
		}
		if f.Err == nil {
			continue
		}
		if !errors.Is(f.Err, feed.ErrRecognition) {
			t.Errorf("fragment %d: Err = %v, want ErrRecognition", i, f.Err)
		}
		if tt.message != "" && !strings.Contains(f.Err.Error(), tt.message) {
			t.Errorf("fragment %d: Err = %v, want message %q", i, f.Err, tt.message)
		}
	}
}
