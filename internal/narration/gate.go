// Package narration decides which corrected fragments are worth speaking.
//
// The [Gate] turns a high-frequency stream of corrected OCR fragments into a
// low-frequency stream of narration requests. A candidate is emitted only
// when it is non-blank, the cooldown since the last emission has elapsed,
// the output channel is idle, and it differs enough from the last emitted
// text. Suppressed candidates never change the gate's state.
package narration

import (
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/bacakata/internal/transcript/fuzzy"
)

const (
	defaultCooldown           = 2 * time.Second
	defaultDuplicateThreshold = 85
)

// Action is the verdict of [Gate.Evaluate].
type Action int

const (
	// Suppress means the host must do nothing.
	Suppress Action = iota

	// Emit means the host should display and narrate [Decision.Text].
	Emit
)

// String returns "emit" or "suppress".
func (a Action) String() string {
	if a == Emit {
		return "emit"
	}
	return "suppress"
}

// Reason explains a suppression. Emit decisions have an empty Reason.
type Reason string

const (
	ReasonBlank     Reason = "blank"
	ReasonCooldown  Reason = "cooldown"
	ReasonBusy      Reason = "busy"
	ReasonDuplicate Reason = "duplicate"
)

// Decision is the outcome of one [Gate.Evaluate] call.
type Decision struct {
	Action Action

	// Text is the candidate to narrate. Empty unless Action is Emit.
	Text string

	// Reason is set when Action is Suppress.
	Reason Reason

	// Similarity is the score against the last emitted text. Only computed
	// once the blank, cooldown and busy checks have passed.
	Similarity int
}

// Emitted reports whether d is an Emit decision.
func (d Decision) Emitted() bool {
	return d.Action == Emit
}

// State is a snapshot of the gate's memory.
type State struct {
	// LastText is the most recently emitted text. Initially empty.
	LastText string

	// LastEmit is when LastText was emitted. Zero before the first emission.
	LastEmit time.Time
}

// Option is a functional option for configuring a [Gate].
type Option func(*Gate)

// WithCooldown sets the minimum time between two emissions. Zero disables
// the cooldown. Default: 2s.
func WithCooldown(d time.Duration) Option {
	return func(g *Gate) {
		if d >= 0 {
			g.cooldown = d
		}
	}
}

// WithDuplicateThreshold sets the similarity at or above which a candidate
// counts as a repeat of the last emitted text. Default: 85.
func WithDuplicateThreshold(score int) Option {
	return func(g *Gate) {
		g.duplicate = score
	}
}

// WithSimilarity replaces the similarity function. Default: [fuzzy.Similarity].
func WithSimilarity(fn func(a, b string) int) Option {
	return func(g *Gate) {
		if fn != nil {
			g.similarity = fn
		}
	}
}

// Gate is the stateful narration throttle. Evaluate is a read-modify-write
// sequence and is serialised by an internal mutex, so a Gate is safe for
// concurrent use; two simultaneous candidates can never both be accepted
// against the same previous text.
type Gate struct {
	cooldown   time.Duration
	duplicate  int
	similarity func(a, b string) int

	mu    sync.Mutex
	state State
}

// NewGate returns a Gate in its initial state: no text emitted yet.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		cooldown:   defaultCooldown,
		duplicate:  defaultDuplicateThreshold,
		similarity: fuzzy.Similarity,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Cooldown returns the configured cooldown.
func (g *Gate) Cooldown() time.Duration {
	return g.cooldown
}

// Ready reports whether the cooldown has elapsed at now. Callers use it to
// skip correction work for frames that would be suppressed anyway.
func (g *Gate) Ready(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.readyLocked(now)
}

// Evaluate decides whether candidate should be narrated at now, given whether
// the output channel is still busy with a previous narration. Only Emit
// decisions update the gate's state.
func (g *Gate) Evaluate(candidate string, now time.Time, outputBusy bool) Decision {
	if strings.TrimSpace(candidate) == "" {
		return Decision{Action: Suppress, Reason: ReasonBlank}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.readyLocked(now) {
		return Decision{Action: Suppress, Reason: ReasonCooldown}
	}
	if outputBusy {
		return Decision{Action: Suppress, Reason: ReasonBusy}
	}

	score := g.similarity(candidate, g.state.LastText)
	if score >= g.duplicate {
		return Decision{Action: Suppress, Reason: ReasonDuplicate, Similarity: score}
	}

	g.state = State{LastText: candidate, LastEmit: now}
	return Decision{Action: Emit, Text: candidate, Similarity: score}
}

// State returns a snapshot of the gate's memory.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) readyLocked(now time.Time) bool {
	if g.cooldown == 0 || g.state.LastEmit.IsZero() {
		return true
	}
	return now.Sub(g.state.LastEmit) >= g.cooldown
}
