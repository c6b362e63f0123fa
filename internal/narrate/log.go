package narrate

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	defaultWordsPerMinute = 150
	minUtterance          = 300 * time.Millisecond
)

// LogSpeakerOption is a functional option for configuring a [LogSpeaker].
type LogSpeakerOption func(*LogSpeaker)

// WithWordsPerMinute sets the speaking rate used to estimate how long an
// utterance keeps the speaker busy. Non-positive values are ignored.
// Default: 150.
func WithWordsPerMinute(wpm int) LogSpeakerOption {
	return func(s *LogSpeaker) {
		if wpm > 0 {
			s.wpm = wpm
		}
	}
}

// WithLanguage sets the BCP 47 language tag reported with each utterance.
// Default: "id-ID".
func WithLanguage(tag string) LogSpeakerOption {
	return func(s *LogSpeaker) {
		if tag != "" {
			s.language = tag
		}
	}
}

// WithLogger sets the logger utterances are written to. Default: [slog.Default].
func WithLogger(l *slog.Logger) LogSpeakerOption {
	return func(s *LogSpeaker) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSpeakerClock sets the time source. Default: [time.Now].
func WithSpeakerClock(now func() time.Time) LogSpeakerOption {
	return func(s *LogSpeaker) {
		if now != nil {
			s.now = now
		}
	}
}

// LogSpeaker is a [Speaker] that logs each utterance instead of synthesising
// audio. It reports Busy for as long as a human would need to read the text
// aloud at the configured rate, so the narration gate behaves as it would
// with a real voice.
type LogSpeaker struct {
	wpm      int
	language string
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	busyUntil time.Time
	spoken    int
}

var _ Speaker = (*LogSpeaker)(nil)

// NewLogSpeaker returns a LogSpeaker.
func NewLogSpeaker(opts ...LogSpeakerOption) *LogSpeaker {
	s := &LogSpeaker{
		wpm:      defaultWordsPerMinute,
		language: "id-ID",
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Speak logs text and marks the speaker busy for the estimated duration.
// An utterance still in progress is flushed.
func (s *LogSpeaker) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := s.Estimate(text)

	s.mu.Lock()
	s.busyUntil = s.now().Add(d)
	s.spoken++
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "narrate: speaking",
		"text", text,
		"language", s.language,
		"estimate", d,
	)
	return nil
}

// Busy reports whether the last utterance is still being spoken.
func (s *LogSpeaker) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.busyUntil)
}

// Spoken returns the number of accepted utterances.
func (s *LogSpeaker) Spoken() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spoken
}

// Estimate returns how long text takes to speak at the configured rate.
func (s *LogSpeaker) Estimate(text string) time.Duration {
	words := len(strings.Fields(text))
	d := time.Duration(words) * time.Minute / time.Duration(s.wpm)
	return max(d, minUtterance)
}
