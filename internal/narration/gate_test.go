package narration_test

import (
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/bacakata/internal/narration"
)

var t0 = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func TestGate_FreshStateEmits(t *testing.T) {
	t.Parallel()

	g := narration.NewGate()
	d := g.Evaluate("selamat pagi", t0, false)
	if !d.Emitted() || d.Text != "selamat pagi" {
		t.Fatalf("Evaluate = %+v, want Emit(selamat pagi)", d)
	}
	if d.Reason != "" {
		t.Errorf("Reason = %q, want empty", d.Reason)
	}

	st := g.State()
	if st.LastText != "selamat pagi" || !st.LastEmit.Equal(t0) {
		t.Errorf("State = %+v, want updated text and time", st)
	}
}

func TestGate_DuplicateSuppressed(t *testing.T) {
	t.Parallel()

	g := narration.NewGate(narration.WithCooldown(0))
	if d := g.Evaluate("halo dunia", t0, false); !d.Emitted() {
		t.Fatalf("first Evaluate = %+v, want Emit", d)
	}

	d := g.Evaluate("halo dunia", t0.Add(5*time.Second), false)
	if d.Emitted() {
		t.Fatalf("Evaluate = %+v, want Suppress", d)
	}
	if d.Reason != narration.ReasonDuplicate || d.Similarity != 100 {
		t.Errorf("Reason=%q Similarity=%d, want duplicate and 100", d.Reason, d.Similarity)
	}
	if st := g.State(); !st.LastEmit.Equal(t0) {
		t.Errorf("suppression changed LastEmit to %v", st.LastEmit)
	}
}

func TestGate_NearDuplicateSuppressed(t *testing.T) {
	t.Parallel()

	g := narration.NewGate(narration.WithCooldown(0))
	g.Evaluate("dilarang merokok di area ini", t0, false)

	// One substituted character in 28: similarity 96.
	d := g.Evaluate("dilarang merokok di area inl", t0.Add(time.Second), false)
	if d.Emitted() || d.Reason != narration.ReasonDuplicate {
		t.Errorf("Evaluate = %+v, want duplicate suppression", d)
	}

	d = g.Evaluate("pintu keluar darurat", t0.Add(2*time.Second), false)
	if !d.Emitted() {
		t.Errorf("Evaluate = %+v, want Emit for different text", d)
	}
}

func TestGate_BusySuppressesWithoutStateChange(t *testing.T) {
	t.Parallel()

	g := narration.NewGate()
	for _, candidate := range []string{"selamat pagi", "apa kabar", "x"} {
		d := g.Evaluate(candidate, t0, true)
		if d.Emitted() || d.Reason != narration.ReasonBusy {
			t.Errorf("Evaluate(%q, busy) = %+v, want busy suppression", candidate, d)
		}
	}
	if st := g.State(); st != (narration.State{}) {
		t.Errorf("State = %+v, want initial state", st)
	}
}

func TestGate_BlankSuppressed(t *testing.T) {
	t.Parallel()

	g := narration.NewGate()
	for _, candidate := range []string{"", "   ", "\n\t"} {
		d := g.Evaluate(candidate, t0, false)
		if d.Emitted() || d.Reason != narration.ReasonBlank {
			t.Errorf("Evaluate(%q) = %+v, want blank suppression", candidate, d)
		}
	}
	if st := g.State(); st != (narration.State{}) {
		t.Errorf("State = %+v, want initial state", st)
	}
}

func TestGate_Cooldown(t *testing.T) {
	t.Parallel()

	g := narration.NewGate()
	if g.Cooldown() != 2*time.Second {
		t.Fatalf("default Cooldown() = %v, want 2s", g.Cooldown())
	}
	if !g.Ready(t0) {
		t.Fatal("fresh gate should be ready")
	}

	g.Evaluate("selamat pagi", t0, false)

	tests := []struct {
		offset  time.Duration
		emitted bool
		reason  narration.Reason
	}{
		{500 * time.Millisecond, false, narration.ReasonCooldown},
		{1999 * time.Millisecond, false, narration.ReasonCooldown},
		{2000 * time.Millisecond, true, ""},
	}
	for _, tc := range tests {
		now := t0.Add(tc.offset)
		if g.Ready(now) != tc.emitted {
			t.Errorf("Ready(+%v) = %v, want %v", tc.offset, !tc.emitted, tc.emitted)
		}
		d := g.Evaluate("pintu keluar", now, false)
		if d.Emitted() != tc.emitted || d.Reason != tc.reason {
			t.Errorf("Evaluate(+%v) = %+v, want emitted=%v reason=%q", tc.offset, d, tc.emitted, tc.reason)
		}
	}
}

func TestGate_CooldownCheckedBeforeBusy(t *testing.T) {
	t.Parallel()

	g := narration.NewGate()
	g.Evaluate("selamat pagi", t0, false)

	d := g.Evaluate("pintu keluar", t0.Add(time.Second), true)
	if d.Reason != narration.ReasonCooldown {
		t.Errorf("Reason = %q, want cooldown", d.Reason)
	}
}

func TestGate_Options(t *testing.T) {
	t.Parallel()

	calls := 0
	g := narration.NewGate(
		narration.WithCooldown(0),
		narration.WithDuplicateThreshold(101),
		narration.WithSimilarity(func(a, b string) int {
			calls++
			return 100
		}),
	)

	g.Evaluate("halo", t0, false)
	d := g.Evaluate("halo", t0, false)
	if !d.Emitted() {
		t.Errorf("threshold 101 should never suppress duplicates, got %+v", d)
	}
	if calls != 2 {
		t.Errorf("similarity called %d times, want 2", calls)
	}

	// Negative cooldowns are ignored.
	g = narration.NewGate(narration.WithCooldown(-time.Second))
	if g.Cooldown() != 2*time.Second {
		t.Errorf("Cooldown() = %v, want default", g.Cooldown())
	}
}

func TestGate_ConcurrentEvaluateEmitsOnce(t *testing.T) {
	t.Parallel()

	g := narration.NewGate()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		emitted int
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Evaluate("selamat pagi", t0, false).Emitted() {
				mu.Lock()
				emitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if emitted != 1 {
		t.Errorf("emitted %d times, want exactly 1", emitted)
	}
}

func TestAction_String(t *testing.T) {
	t.Parallel()

	if narration.Emit.String() != "emit" || narration.Suppress.String() != "suppress" {
		t.Errorf("Action strings = %q, %q", narration.Emit, narration.Suppress)
	}
}
