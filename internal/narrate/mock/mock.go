// Package mock provides an in-memory mock implementation of [narrate.Speaker]
// for use in unit tests.
//
// The mock records every Speak call and lets the test control Busy and the
// Speak error via exported fields. It is safe for concurrent use.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/bacakata/internal/narrate"
)

// Compile-time interface assertion.
var _ narrate.Speaker = (*Speaker)(nil)

// Speaker is a mock implementation of [narrate.Speaker].
type Speaker struct {
	mu sync.Mutex

	// SpeakErr is returned by [Speaker.Speak].
	SpeakErr error

	// BusyResult is returned by [Speaker.Busy].
	BusyResult bool

	// BusyAfterSpeak makes Busy return true after the first successful Speak.
	BusyAfterSpeak bool

	calls []string
}

// Speak records text and returns SpeakErr.
func (s *Speaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, text)
	if s.SpeakErr != nil {
		return s.SpeakErr
	}
	if s.BusyAfterSpeak {
		s.BusyResult = true
	}
	return nil
}

// Busy returns BusyResult.
func (s *Speaker) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.BusyResult
}

// SetBusy sets BusyResult.
func (s *Speaker) SetBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BusyResult = busy
}

// Calls returns a copy of the texts passed to Speak.
func (s *Speaker) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
