package turn

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for deterministic window tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestScheduler_DedupeWindow(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := NewScheduler(WithSchedulerClock(clock.Now))

	s.MarkProcessed("Turn on the lights.")

	if !s.SeenRecently(" turn on the lights. ") {
		t.Error("normalized repeat inside the window should be seen")
	}
	clock.Advance(3 * time.Second)
	if !s.SeenRecently("turn on the lights.") {
		t.Error("repeat after 3s should still be inside the 8s window")
	}
	clock.Advance(7 * time.Second)
	if s.SeenRecently("turn on the lights.") {
		t.Error("repeat after 10s should be outside the window")
	}
	if s.SeenRecently("play some jazz") {
		t.Error("a different phrase is never a duplicate")
	}
}

func TestScheduler_BlankTranscriptAlwaysSeen(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	if !s.SeenRecently("   ") {
		t.Error("blank transcript should always count as seen")
	}
}

func TestScheduler_QuietLongEnough(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := NewScheduler(WithSchedulerClock(clock.Now))

	// No turn has run yet: the cabin counts as quiet.
	if !s.QuietLongEnough() {
		t.Error("expected quiet before any turn")
	}

	_ = s.Run(context.Background(), "user", func(context.Context) error { return nil })
	if s.QuietLongEnough() {
		t.Error("expected not quiet immediately after a turn")
	}

	clock.Advance(44 * time.Second)
	if s.QuietLongEnough() {
		t.Error("expected not quiet at 44s")
	}
	clock.Advance(time.Second)
	if !s.QuietLongEnough() {
		t.Error("expected quiet at 45s")
	}
}

func TestScheduler_RunSerializesTurns(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	var active, maxActive int32

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Run(context.Background(), "user", func(context.Context) error {
				n := atomic.AddInt32(&active, 1)
				if n > atomic.LoadInt32(&maxActive) {
					atomic.StoreInt32(&maxActive, n)
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&maxActive); got != 1 {
		t.Errorf("expected at most 1 turn in flight, observed %d", got)
	}
}

func TestScheduler_RunPropagatesError(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	want := errors.New("turn blew up")
	if err := s.Run(context.Background(), "user", func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	// A failed turn still ends the quiet timer.
	if s.QuietLongEnough() {
		t.Error("failed turn should still reset the silence clock")
	}
}
