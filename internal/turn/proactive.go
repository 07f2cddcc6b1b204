package turn

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/glydways/clyde/internal/observe"
	"github.com/glydways/clyde/internal/ride"
)

// defaultProactiveInterval is how often the ride context is re-evaluated
// against the trigger table.
const defaultProactiveInterval = 30 * time.Second

// Trigger pairs a condition over the ride context with the steering message
// injected into the conversation when it fires. Each trigger fires at most
// once per session.
type Trigger struct {
	Key     string
	When    func(ride.Context) bool
	Message string
}

// DefaultTriggers returns the proactive trigger table. Order matters: when
// several conditions hold at once, only the first unfired trigger in table
// order runs per evaluation tick.
//
// Elapsed-time windows are sized against the evaluation cadence and the
// post-turn quiet gate: the intro turn closes the gate at ride start, so the
// earliest tick that can fire anything lands around a minute in, and each
// firing pushes the next eligible tick out by another minute. A window
// narrower than that is unreachable for a silent rider.
func DefaultTriggers() []Trigger {
	return []Trigger{
		{
			Key:     "boarding",
			When:    func(c ride.Context) bool { return c.ElapsedSeconds < 90 },
			Message: "[PROACTIVE] A passenger just boarded. Give a brief welcome and one short capability offer (e.g. lights, climate, or music).",
		},
		{
			Key:     "long_ride",
			When:    func(c ride.Context) bool { return c.RideDurationSeconds > 600 && c.ElapsedSeconds < 180 },
			Message: "[PROACTIVE] This is a long ride and we're early in it. Offer ambient lighting or music once, briefly.",
		},
		{
			Key:     "pre_arrival",
			When:    func(c ride.Context) bool { return c.ETASeconds < 180 },
			Message: "[PROACTIVE] We're arriving soon. Give a heads up with the next stop name and approximate time.",
		},
		{
			Key:     "nighttime",
			When:    func(c ride.Context) bool { return c.HourOfDay > 20 || c.HourOfDay < 6 },
			Message: "[PROACTIVE] It's nighttime. Offer to adjust cabin lighting if they'd like.",
		},
		{
			Key:     "mid_ride_silence",
			When:    func(c ride.Context) bool { return c.ElapsedSeconds > 300 },
			Message: "[PROACTIVE] Mid-ride with no recent interaction. Make one gentle, brief offer (e.g. comfort or info). Do not repeat previous offers.",
		},
	}
}

// TriggerFunc handles a fired trigger, typically by running a proactive
// conversation turn seeded with message.
type TriggerFunc func(ctx context.Context, key, message string) error

// Evaluator periodically evaluates the trigger table against the ride
// context. A trigger whose gate is closed is deferred, not consumed: it may
// fire on a later tick.
type Evaluator struct {
	source   ride.Source
	canRun   func() bool
	handle   TriggerFunc
	triggers []Trigger
	interval time.Duration

	log     *slog.Logger
	metrics *observe.Metrics

	mu      sync.Mutex
	offered map[string]struct{}
}

// EvaluatorOption is a functional option for configuring an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithInterval overrides the evaluation interval.
func WithInterval(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) { e.interval = d }
}

// WithTriggers replaces the trigger table.
func WithTriggers(triggers []Trigger) EvaluatorOption {
	return func(e *Evaluator) { e.triggers = triggers }
}

// WithEvaluatorLogger sets the logger. Defaults to slog.Default().
func WithEvaluatorLogger(log *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) { e.log = log }
}

// WithEvaluatorMetrics sets the metrics sink. Defaults to
// observe.DefaultMetrics().
func WithEvaluatorMetrics(m *observe.Metrics) EvaluatorOption {
	return func(e *Evaluator) { e.metrics = m }
}

// NewEvaluator creates an Evaluator over source. canRun gates every firing;
// handle runs the resulting proactive turn.
func NewEvaluator(source ride.Source, canRun func() bool, handle TriggerFunc, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		source:   source,
		canRun:   canRun,
		handle:   handle,
		triggers: DefaultTriggers(),
		interval: defaultProactiveInterval,
		offered:  make(map[string]struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Run evaluates the trigger table every interval until ctx is cancelled.
// The first evaluation happens one full interval after Run is called.
func (e *Evaluator) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.evaluate(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// evaluate runs one tick: at most one unfired trigger, in table order.
func (e *Evaluator) evaluate(ctx context.Context) {
	if !e.canRun() {
		return
	}
	rc := e.source.Context()
	for _, t := range e.triggers {
		if e.alreadyOffered(t.Key) || !t.When(rc) {
			continue
		}
		// The gate may have closed while we were evaluating; a deferred
		// trigger stays unconsumed and can fire on a later tick.
		if !e.canRun() {
			continue
		}
		e.markOffered(t.Key)
		e.metrics.ProactiveOffers.Add(ctx, 1, metric.WithAttributes(observe.Attr("trigger", t.Key)))
		e.log.Info("proactive trigger fired", "trigger", t.Key)
		if err := e.handle(ctx, t.Key, t.Message); err != nil {
			e.log.Error("proactive turn failed", "trigger", t.Key, "error", err)
		}
		return
	}
}

// Offered returns the keys of all triggers fired so far, sorted.
func (e *Evaluator) Offered() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]string, 0, len(e.offered))
	for k := range e.offered {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reset clears the fired set, starting a new session.
func (e *Evaluator) Reset() {
	e.mu.Lock()
	e.offered = make(map[string]struct{})
	e.mu.Unlock()
}

func (e *Evaluator) alreadyOffered(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.offered[key]
	return ok
}

func (e *Evaluator) markOffered(key string) {
	e.mu.Lock()
	e.offered[key] = struct{}{}
	e.mu.Unlock()
}
