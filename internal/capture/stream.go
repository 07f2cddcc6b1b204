package capture

import (
	"context"
	"log/slog"

	"github.com/glydways/clyde/internal/echoguard"
	"github.com/glydways/clyde/internal/observe"
)

// Stream is the consumer-facing transcript sequence: a cancellable pull API
// over the dispatcher's output, filtered through the echo guard before
// anything is yielded.
//
// Two gates run per transcript, in order:
//
//  1. Timing gate: the transcript's capture window overlapped a speaking or
//     holdoff period. Cheap and deterministic, and the primary defense —
//     hardware audio paths can delay a self-captured transcript well past
//     playback end.
//  2. Fuzzy gate: the text closely matches a recently spoken phrase
//     ([echoguard.Guard.IsEcho]). Catches echo that leaks past timing.
//
// Timing alone is insufficient because of device latency slop; similarity
// alone would also reject legitimate short user utterances that happen to
// paraphrase the assistant. Both together are the contract.
type Stream struct {
	guard  *echoguard.Guard
	source *Dispatcher

	log     *slog.Logger
	metrics *observe.Metrics
}

// StreamOption is a functional option for configuring a Stream.
type StreamOption func(*Stream)

// WithStreamLogger sets the logger. Defaults to slog.Default().
func WithStreamLogger(log *slog.Logger) StreamOption {
	return func(s *Stream) { s.log = log }
}

// WithStreamMetrics sets the metrics sink. Defaults to
// observe.DefaultMetrics().
func WithStreamMetrics(m *observe.Metrics) StreamOption {
	return func(s *Stream) { s.metrics = m }
}

// NewStream creates a Stream over the dispatcher's transcript output.
func NewStream(guard *echoguard.Guard, source *Dispatcher, opts ...StreamOption) *Stream {
	s := &Stream{guard: guard, source: source}
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

// Next returns the next transcript that passes both echo gates, blocking
// until one arrives or ctx is cancelled.
func (s *Stream) Next(ctx context.Context) (Transcript, error) {
	for {
		t, err := s.source.Next(ctx)
		if err != nil {
			return Transcript{}, err
		}

		if s.guard.GatedDuring(t.CapturedAt) {
			s.log.Debug("dropping transcript captured during playback", "text", truncate(t.Text, 50))
			s.metrics.RecordEchoDrop(ctx, "timing")
			continue
		}
		if s.guard.IsEcho(t.Text) {
			s.log.Debug("dropping echo transcript", "text", truncate(t.Text, 50))
			s.metrics.RecordEchoDrop(ctx, "fuzzy")
			continue
		}
		return t, nil
	}
}

// truncate shortens s for log output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
