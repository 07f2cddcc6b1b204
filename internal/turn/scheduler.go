// Package turn coordinates who gets to speak. A [Scheduler] serializes
// conversation turns behind a single lock and tracks the quiet period
// between them; an [Evaluator] watches the ride context and injects at most
// one proactive offer per tick, each at most once per session.
package turn

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glydways/clyde/internal/observe"
)

const (
	// defaultDedupeWindow suppresses a repeated transcript. The segmenter
	// occasionally double-emits the same phrase across a VAD flap.
	defaultDedupeWindow = 8 * time.Second

	// defaultMinSilence is how long the cabin must be quiet, measured from
	// the end of the last turn, before a proactive offer may run.
	defaultMinSilence = 45 * time.Second
)

// Scheduler owns the turn lock. All conversation turns, user-initiated and
// proactive alike, go through [Scheduler.Run] so at most one is in flight.
type Scheduler struct {
	mu sync.Mutex // the turn lock

	dedupeWindow time.Duration
	minSilence   time.Duration
	now          func() time.Time

	stateMu     sync.Mutex
	lastTurnEnd time.Time
	lastKey     string
	lastKeyAt   time.Time

	log     *slog.Logger
	metrics *observe.Metrics
}

// SchedulerOption is a functional option for configuring a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock replaces the wall clock.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithSchedulerLogger sets the logger. Defaults to slog.Default().
func WithSchedulerLogger(log *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = log }
}

// WithSchedulerMetrics sets the metrics sink. Defaults to
// observe.DefaultMetrics().
func WithSchedulerMetrics(m *observe.Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// WithDedupeWindow overrides the transcript dedupe window.
func WithDedupeWindow(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.dedupeWindow = d }
}

// WithMinSilence overrides the quiet period required before proactive turns.
func WithMinSilence(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.minSilence = d }
}

// NewScheduler creates a Scheduler with the default windows.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		dedupeWindow: defaultDedupeWindow,
		minSilence:   defaultMinSilence,
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Run executes fn under the turn lock and records the turn's end time.
// Concurrent callers block until the turn in flight completes. origin labels
// the turn in logs and metrics ("user", "proactive", "intro").
func (s *Scheduler) Run(ctx context.Context, origin string, fn func(context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	err := fn(ctx)
	took := s.now().Sub(start)

	s.stateMu.Lock()
	s.lastTurnEnd = s.now()
	s.stateMu.Unlock()

	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.TurnDuration.Record(ctx, took.Seconds())
	s.metrics.RecordTurn(ctx, origin, status)
	s.log.Debug("turn finished", "origin", origin, "status", status, "took", took)
	return err
}

// SeenRecently reports whether the same normalized transcript was already
// processed within the dedupe window. Blank transcripts always count as
// seen.
func (s *Scheduler) SeenRecently(transcript string) bool {
	key := dedupeKey(transcript)
	if key == "" {
		return true
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return key == s.lastKey && s.now().Sub(s.lastKeyAt) < s.dedupeWindow
}

// MarkProcessed records the transcript for deduplication.
func (s *Scheduler) MarkProcessed(transcript string) {
	s.stateMu.Lock()
	s.lastKey = dedupeKey(transcript)
	s.lastKeyAt = s.now()
	s.stateMu.Unlock()
}

// QuietLongEnough reports whether the minimum silence has elapsed since the
// last turn ended. Before any turn has run it reports true.
func (s *Scheduler) QuietLongEnough() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.now().Sub(s.lastTurnEnd) >= s.minSilence
}

func dedupeKey(transcript string) string {
	return strings.ToLower(strings.TrimSpace(transcript))
}
