// Package narrate holds the output side of a session: the speech sink that
// reads emitted text aloud and the display that shows it.
//
// The narration gate needs to know whether the sink is still speaking, so
// every [Speaker] exposes Busy alongside Speak.
package narrate

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Speaker is a text-to-speech sink.
//
// Implementations must be safe for concurrent use: Busy is polled from the
// frame loop while a previous Speak may still be in progress.
type Speaker interface {
	// Speak starts narrating text, replacing anything still being spoken.
	// It returns once the utterance has been accepted, not when it finishes.
	Speak(ctx context.Context, text string) error

	// Busy reports whether an utterance is still being spoken.
	Busy() bool
}

// Default display messages.
const (
	DefaultFailureText    = "Gagal memproses teks."
	DefaultProcessingText = "Memproses teks..."
)

// Display writes narration text and status messages to an [io.Writer], one
// line per message. It stands in for an on-screen text view.
type Display struct {
	mu          sync.Mutex
	w           io.Writer
	failureText string
	last        string
}

// DisplayOption is a functional option for configuring a [Display].
type DisplayOption func(*Display)

// WithFailureText sets the message shown when recognition fails.
// Default: [DefaultFailureText].
func WithFailureText(s string) DisplayOption {
	return func(d *Display) {
		if s != "" {
			d.failureText = s
		}
	}
}

// NewDisplay returns a Display writing to w.
func NewDisplay(w io.Writer, opts ...DisplayOption) *Display {
	d := &Display{w: w, failureText: DefaultFailureText}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Show replaces the displayed text.
func (d *Display) Show(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = text
	if _, err := fmt.Fprintln(d.w, text); err != nil {
		return fmt.Errorf("narrate: display: %w", err)
	}
	return nil
}

// Failed shows the recognition failure message.
func (d *Display) Failed() error {
	return d.Show(d.failureText)
}

// Processing shows the in-progress message while a frame is recognized.
func (d *Display) Processing() error {
	return d.Show(DefaultProcessingText)
}

// Text returns the currently displayed text.
func (d *Display) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Announce shows text on display (when non-nil) and then hands it to
// speaker (when non-nil). A display failure does not prevent narration.
func Announce(ctx context.Context, display *Display, speaker Speaker, text string) error {
	var showErr error
	if display != nil {
		showErr = display.Show(text)
	}
	if speaker == nil {
		return showErr
	}
	if err := speaker.Speak(ctx, text); err != nil {
		return fmt.Errorf("narrate: speak: %w", err)
	}
	return showErr
}
