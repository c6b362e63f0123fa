// Package feed delivers recognizer fragments to session engines.
//
// Two sources are provided: [Lines] reads one fragment per line from a
// stream (stdin or a file, useful for replaying captured OCR output), and
// [Server] accepts WebSocket connections where each connection is one live
// camera session.
package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// maxLineBytes bounds a single fragment read by [Lines].
const maxLineBytes = 1 << 20

// FailureMarker starts a line that records a failed recognition instead of
// text, optionally followed by a space and a message ("!error blurry").
const FailureMarker = "!error"

// ErrRecognition is wrapped by [Fragment.Err] for failed recognitions.
var ErrRecognition = errors.New("feed: recognition failed")

// Fragment is one recognizer result.
type Fragment struct {
	// Text is the recognized text, trimmed. Empty when Err is set.
	Text string

	// At is when the fragment was read.
	At time.Time

	// Err is set when the recognizer reported a failure for this frame.
	Err error
}

// parseLine turns one input line into a fragment observed at at.
func parseLine(line string, at time.Time) Fragment {
	text := strings.TrimSpace(line)
	if text != FailureMarker && !strings.HasPrefix(text, FailureMarker+" ") {
		return Fragment{Text: text, At: at}
	}
	err := ErrRecognition
	if msg := strings.TrimSpace(strings.TrimPrefix(text, FailureMarker)); msg != "" {
		err = fmt.Errorf("%w: %s", ErrRecognition, msg)
	}
	return Fragment{At: at, Err: err}
}

// LinesOption is a functional option for configuring [Lines].
type LinesOption func(*Lines)

// WithFrameInterval paces delivery to at most one fragment per interval,
// emulating a camera frame rate. Zero delivers as fast as the handler
// returns. Default: 0.
func WithFrameInterval(d time.Duration) LinesOption {
	return func(l *Lines) {
		if d >= 0 {
			l.interval = d
		}
	}
}

// WithLinesClock sets the time source stamped on fragments. Default: [time.Now].
func WithLinesClock(now func() time.Time) LinesOption {
	return func(l *Lines) {
		if now != nil {
			l.now = now
		}
	}
}

// Lines reads fragments line by line from an [io.Reader].
type Lines struct {
	r        io.Reader
	interval time.Duration
	now      func() time.Time
}

// NewLines returns a line source over r.
func NewLines(r io.Reader, opts ...LinesOption) *Lines {
	l := &Lines{r: r, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run calls handle for every line until the reader is exhausted, handle
// returns an error, or ctx is cancelled. Reading happens on a separate
// goroutine so that a blocked reader such as stdin does not delay
// cancellation; that goroutine exits once the reader returns.
//
// Run returns nil at EOF and ctx.Err() on cancellation.
func (l *Lines) Run(ctx context.Context, handle func(context.Context, Fragment) error) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(l.r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	var tick <-chan time.Time
	if l.interval > 0 {
		t := time.NewTicker(l.interval)
		defer t.Stop()
		tick = t.C
	}

	first := true
	for {
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("feed: read lines: %w", err)
					}
				default:
				}
				return ctx.Err()
			}
			line = s
		}

		if tick != nil && !first {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
		first = false

		f := parseLine(line, l.now())
		if err := handle(ctx, f); err != nil {
			return err
		}
	}
}
