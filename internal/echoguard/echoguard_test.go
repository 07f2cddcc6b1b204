package echoguard

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for holdoff tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ── gating ────────────────────────────────────────────────────────────────────

func TestIsGated_WhileSpeaking(t *testing.T) {
	t.Parallel()

	g := New()
	if g.IsGated() {
		t.Error("fresh guard should not be gated")
	}
	g.SetSpeaking(true, false)
	if !g.IsGated() {
		t.Error("guard should be gated while speaking")
	}
}

func TestIsGated_HoldoffWindow(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	g := New(WithClock(clock.Now))

	g.SetSpeaking(true, false)
	g.SetSpeaking(false, true)

	if !g.IsGated() {
		t.Error("guard should be gated immediately after playback ends")
	}

	clock.Advance(440 * time.Millisecond)
	if !g.IsGated() {
		t.Error("guard should still be gated inside the holdoff window")
	}

	clock.Advance(20 * time.Millisecond)
	if g.IsGated() {
		t.Error("guard should open once the holdoff window elapses")
	}
}

func TestIsGated_NoHoldoff(t *testing.T) {
	t.Parallel()

	g := New()
	g.SetSpeaking(true, false)
	g.SetSpeaking(false, false)
	if g.IsGated() {
		t.Error("guard should open immediately when holdoff is not requested")
	}
}

func TestGatedDuring(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	g := New(WithClock(clock.Now))

	captured := clock.Now()
	clock.Advance(100 * time.Millisecond)

	if g.GatedDuring(captured) {
		t.Error("transcript captured with no speech should pass the timing gate")
	}

	// Speech starts and ends after the capture; the holdoff deadline now lies
	// past the capture timestamp.
	g.SetSpeaking(true, false)
	g.SetSpeaking(false, true)
	if !g.GatedDuring(captured) {
		t.Error("transcript captured before the gate closed again should be dropped")
	}

	clock.Advance(time.Second)
	late := clock.Now()
	if g.GatedDuring(late) {
		t.Error("transcript captured after the holdoff elapsed should pass")
	}
}

// ── echo detection ────────────────────────────────────────────────────────────

func TestIsEcho_SimilarTranscript(t *testing.T) {
	t.Parallel()

	g := New()
	g.RegisterUtterance("The weather is sunny and seventy degrees.")

	if !g.IsEcho("weather is sunny and seventy degrees") {
		t.Error("near-identical transcript should be classified as echo")
	}
	if g.IsEcho("what time is it") {
		t.Error("unrelated transcript should not be classified as echo")
	}
}

func TestIsEcho_SubstringCapture(t *testing.T) {
	t.Parallel()

	g := New()
	g.RegisterUtterance("Please fasten your seatbelt for arrival.")

	if !g.IsEcho("fasten your seatbelt") {
		t.Error("clipped partial capture should be classified as echo")
	}
	// Short substrings must not trigger the containment check.
	if g.IsEcho("for") {
		t.Error("short transcript should not be classified as echo")
	}
}

func TestIsEcho_RingCapacity(t *testing.T) {
	t.Parallel()

	g := New()
	g.RegisterUtterance("first phrase spoken by the assistant")
	for i := 0; i < recentCapacity; i++ {
		g.RegisterUtterance("filler phrase number blah blah blah")
	}

	if g.IsEcho("first phrase spoken by the assistant") {
		t.Error("utterance evicted from the ring should no longer match")
	}
}

func TestIsEcho_EmptyTranscript(t *testing.T) {
	t.Parallel()

	g := New()
	g.RegisterUtterance("anything at all")
	if g.IsEcho("   ") {
		t.Error("blank transcript should never be an echo")
	}
}

// ── clear ─────────────────────────────────────────────────────────────────────

func TestClear_ResetsAllState(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	g := New(WithClock(clock.Now))

	g.SetSpeaking(true, false)
	g.RegisterUtterance("the doors will open on the left")
	g.SetSpeaking(false, true)

	g.Clear()

	if g.IsGated() {
		t.Error("cleared guard should not be gated")
	}
	if g.IsEcho("the doors will open on the left") {
		t.Error("cleared guard should have no recent utterances")
	}
}

// ── similarity helper ─────────────────────────────────────────────────────────

func TestSimilarity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "identical", 1.0, 1.0},
		{"", "", 1.0, 1.0},
		{"abc", "xyz", 0.0, 0.01},
		{"the weather is sunny", "weather is sunny", 0.7, 1.0},
	}
	for _, tc := range cases {
		got := similarity(tc.a, tc.b)
		if got < tc.min || got > tc.max {
			t.Errorf("similarity(%q, %q) = %.3f, want in [%.2f, %.2f]", tc.a, tc.b, got, tc.min, tc.max)
		}
	}
}
