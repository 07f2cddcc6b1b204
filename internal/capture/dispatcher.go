package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/glydways/clyde/internal/fifo"
	"github.com/glydways/clyde/internal/observe"
	"github.com/glydways/clyde/pkg/provider/stt"
)

// Transcript is one recognised utterance tagged with the monotonic time the
// transcription completed. The timestamp feeds the stream's timing gate.
type Transcript struct {
	Text       string
	CapturedAt time.Time
}

// Dispatcher hands finalized utterances to the transcription engine and
// delivers the resulting transcripts to a single consumer, in order.
//
// Transcription runs on exactly one worker goroutine: utterances are pulled
// from an unbounded FIFO and inferred one at a time, which preserves the
// arrival order the downstream dedupe and echo logic rely on. Raising the
// concurrency would require explicit reordering downstream, so it is not
// configurable.
type Dispatcher struct {
	provider stt.Provider
	req      stt.Request // template: sample rate and language

	pending *fifo.Queue[[]byte]
	out     *fifo.Queue[Transcript]

	log     *slog.Logger
	metrics *observe.Metrics
	now     func() time.Time

	startOnce sync.Once
	wg        sync.WaitGroup
}

// DispatcherOption is a functional option for configuring a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger. Defaults to slog.Default().
func WithDispatcherLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

// WithDispatcherMetrics sets the metrics sink. Defaults to
// observe.DefaultMetrics().
func WithDispatcherMetrics(m *observe.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithDispatcherClock replaces the wall clock used to timestamp transcripts.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a Dispatcher that transcribes sampleRate PCM
// utterances in language through provider.
func NewDispatcher(provider stt.Provider, sampleRate int, language string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		provider: provider,
		req:      stt.Request{SampleRate: sampleRate, Language: language},
		pending:  fifo.New[[]byte](),
		out:      fifo.New[Transcript](),
	}
	for _, o := range opts {
		o(d)
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Start launches the transcription worker. The worker exits when ctx is
// cancelled; Wait blocks until it has.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go d.worker(ctx)
	})
}

// Wait blocks until the worker goroutine has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Enqueue queues one utterance's PCM for transcription. Never blocks; safe
// to call from the capture callback.
func (d *Dispatcher) Enqueue(pcm []byte) {
	d.metrics.Utterances.Add(context.Background(), 1)
	d.pending.Push(pcm)
}

// Next returns the oldest undelivered transcript, blocking until one is
// available or ctx is cancelled.
func (d *Dispatcher) Next(ctx context.Context) (Transcript, error) {
	return d.out.Pop(ctx)
}

// worker transcribes pending utterances one at a time. A failed or empty
// transcription drops that utterance and keeps the pipeline running.
func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		pcm, err := d.pending.Pop(ctx)
		if err != nil {
			return
		}

		req := d.req
		req.PCM = pcm

		start := time.Now()
		text, err := d.provider.Transcribe(ctx, req)
		d.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Error("transcription failed, dropping utterance", "error", err)
			d.metrics.RecordProviderError(ctx, "stt", "transcribe")
			continue
		}
		if text == "" {
			continue
		}

		d.out.Push(Transcript{Text: text, CapturedAt: d.now()})
	}
}
