// Package echoguard tracks whether the assistant is currently speaking and
// suppresses the system's own voice from being re-captured as user input.
//
// The guard has two axes of state: a speaking flag plus a post-speech holdoff
// deadline, and a bounded ring of recently spoken phrases. The speaking state
// is read from the capture callback on every 30 ms frame, so both scalars are
// atomics — the capture path never takes a lock. The utterance ring is only
// touched per spoken turn and per delivered transcript, low enough frequency
// for a short mutex critical section.
//
// The guard is shared by reference between the capture segmenter (reads
// IsGated per frame), the transcript stream (IsEcho per transcript), and the
// speech player (the single writer of the speaking state).
package echoguard

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antzucaro/matchr"
)

const (
	// holdoffDuration is the grace period after playback ends during which
	// captured audio is still discarded. Hardware audio paths introduce
	// latency between playback end and the last echo frames arriving.
	holdoffDuration = 450 * time.Millisecond

	// recentCapacity bounds the ring of recently spoken phrases checked by
	// IsEcho.
	recentCapacity = 5

	// echoSimilarity is the normalized similarity ratio at or above which a
	// transcript is considered an echo of a recent spoken phrase.
	echoSimilarity = 0.70

	// substringMinLen is the minimum transcript length for the substring
	// echo check. Shorter strings match recent utterances too easily.
	substringMinLen = 8
)

// Guard is the process-wide echo gating state machine. Construct with [New];
// the zero value is not usable.
type Guard struct {
	speaking     atomic.Bool
	holdoffUntil atomic.Int64 // nanoseconds on the now() clock

	now func() time.Time

	mu     sync.Mutex
	recent []string // normalized, oldest first
}

// Option is a functional option for configuring a Guard.
type Option func(*Guard)

// WithClock replaces the wall clock. Tests use this to step time through the
// holdoff window deterministically.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// New returns a Guard in the cleared state.
func New(opts ...Option) *Guard {
	g := &Guard{now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// SetSpeaking flips the speaking flag. Called by the speech player
// immediately before playback begins (speaking=true) and immediately after
// it ends (speaking=false). When holdoff is true the gate stays closed for
// an additional grace period after the flag drops.
func (g *Guard) SetSpeaking(speaking, holdoff bool) {
	if speaking {
		g.speaking.Store(true)
		return
	}
	if holdoff {
		g.holdoffUntil.Store(g.now().Add(holdoffDuration).UnixNano())
	}
	g.speaking.Store(false)
}

// IsGated reports whether captured audio should currently be discarded:
// true while the assistant is speaking or inside the post-speech holdoff
// window. Safe to call from the capture callback; never blocks.
func (g *Guard) IsGated() bool {
	if g.speaking.Load() {
		return true
	}
	return g.now().UnixNano() < g.holdoffUntil.Load()
}

// GatedDuring reports whether a transcript captured at capturedAt overlapped
// a speaking or holdoff period: either the gate is closed right now, or it
// closed again after the capture completed. The transcript stream uses this
// as its cheap first-stage echo filter.
func (g *Guard) GatedDuring(capturedAt time.Time) bool {
	if g.IsGated() {
		return true
	}
	return capturedAt.UnixNano() < g.holdoffUntil.Load()
}

// RegisterUtterance records a phrase the assistant is about to speak so that
// IsEcho can recognise its re-captured transcript. The ring keeps the last
// five phrases, dropping the oldest.
func (g *Guard) RegisterUtterance(text string) {
	norm := normalize(text)
	if norm == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recent = append(g.recent, norm)
	if len(g.recent) > recentCapacity {
		g.recent = g.recent[len(g.recent)-recentCapacity:]
	}
}

// IsEcho reports whether text is likely a re-capture of something the
// assistant recently said. Two checks against each recent phrase:
//
//  1. Normalized Levenshtein similarity at or above 0.70. Catches full
//     echoes with minor transcription drift.
//  2. Substring containment, for transcripts longer than eight characters.
//     Catches partial captures clipped at playback start or end.
func (g *Guard) IsEcho(text string) bool {
	norm := normalize(text)
	if norm == "" {
		return false
	}

	g.mu.Lock()
	recent := make([]string, len(g.recent))
	copy(recent, g.recent)
	g.mu.Unlock()

	for _, spoken := range recent {
		if similarity(norm, spoken) >= echoSimilarity {
			return true
		}
		if len(norm) > substringMinLen && strings.Contains(spoken, norm) {
			return true
		}
	}
	return false
}

// Clear resets all state. Invoked once at the start of every ride session.
func (g *Guard) Clear() {
	g.speaking.Store(false)
	g.holdoffUntil.Store(0)
	g.mu.Lock()
	g.recent = nil
	g.mu.Unlock()
}

// normalize lower-cases and trims a phrase for comparison.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// similarity returns the normalized Levenshtein ratio of two strings:
// 1 - distance/max(len). Identical strings score 1.0, disjoint strings
// approach 0.0.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1.0
	}
	dist := matchr.Levenshtein(a, b)
	return 1.0 - float64(dist)/float64(longest)
}
