// Package capture implements the microphone-to-transcript half of the voice
// pipeline: voice-activity segmentation of the continuous frame stream,
// asynchronous hand-off of finalized utterances to the transcription worker,
// and the echo-filtered transcript stream the turn scheduler consumes.
//
// The chain is Segmenter (runs inside the device callback, never blocks) →
// Dispatcher (single transcription worker, FIFO) → Stream (two-stage echo
// filter). All three share one [echoguard.Guard] by reference.
package capture

import (
	"log/slog"
	"time"

	"github.com/glydways/clyde/internal/echoguard"
	"github.com/glydways/clyde/internal/observe"
	"github.com/glydways/clyde/pkg/audio"
	"github.com/glydways/clyde/pkg/provider/vad"
)

// Segmentation thresholds. A trailing-silence run of silenceThreshold ends
// the utterance; anything shorter than minUtterance is discarded as noise.
const (
	defaultSilenceThreshold = 700 * time.Millisecond
	defaultMinUtterance     = 400 * time.Millisecond
)

// SegmenterConfig holds the audio geometry and segmentation thresholds.
type SegmenterConfig struct {
	// SampleRate is the capture sample rate in Hz (16000).
	SampleRate int

	// FrameDuration is the fixed duration of each incoming frame (30 ms).
	FrameDuration time.Duration

	// SilenceThreshold is the trailing-silence duration that finalizes an
	// utterance. Zero selects the 700 ms default.
	SilenceThreshold time.Duration

	// MinUtterance is the minimum utterance duration; shorter buffers are
	// discarded as noise. Zero selects the 400 ms default.
	MinUtterance time.Duration
}

// Segmenter accumulates speech frames into utterances. HandleFrame is invoked
// synchronously from the audio device callback, so it never blocks: the VAD
// classify is synchronous, buffering is an append, and finalized utterances
// are handed to the dispatcher through a non-blocking enqueue.
//
// Not safe for concurrent use; the device delivers frames from one thread.
type Segmenter struct {
	cfg      SegmenterConfig
	guard    *echoguard.Guard
	detector vad.SessionHandle
	dispatch func(pcm []byte)

	log     *slog.Logger
	metrics *observe.Metrics

	buffer        []byte
	speechStarted bool
	silence       time.Duration
	wasGated      bool
}

// SegmenterOption is a functional option for configuring a Segmenter.
type SegmenterOption func(*Segmenter)

// WithSegmenterLogger sets the logger. Defaults to slog.Default().
func WithSegmenterLogger(log *slog.Logger) SegmenterOption {
	return func(s *Segmenter) { s.log = log }
}

// WithSegmenterMetrics sets the metrics sink. Defaults to
// observe.DefaultMetrics().
func WithSegmenterMetrics(m *observe.Metrics) SegmenterOption {
	return func(s *Segmenter) { s.metrics = m }
}

// NewSegmenter creates a Segmenter. detector is the per-stream VAD session;
// dispatch receives each finalized utterance's PCM and must not block (the
// dispatcher's Enqueue satisfies this).
func NewSegmenter(cfg SegmenterConfig, guard *echoguard.Guard, detector vad.SessionHandle, dispatch func(pcm []byte), opts ...SegmenterOption) *Segmenter {
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = defaultSilenceThreshold
	}
	if cfg.MinUtterance == 0 {
		cfg.MinUtterance = defaultMinUtterance
	}
	s := &Segmenter{
		cfg:      cfg,
		guard:    guard,
		detector: detector,
		dispatch: dispatch,
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

// HandleFrame processes one fixed-size frame from the capture device.
func (s *Segmenter) HandleFrame(f audio.Frame) {
	// While the assistant is speaking (or inside the holdoff window) the mic
	// hears our own playback; drop everything so self-echo cannot seed a
	// false utterance.
	if s.guard.IsGated() {
		if !s.wasGated {
			s.Reset()
			s.wasGated = true
		}
		return
	}
	s.wasGated = false

	res, err := s.detector.ProcessFrame(f.Data)
	if err != nil {
		s.log.Debug("vad classify failed, dropping frame", "error", err)
		return
	}

	switch {
	case res.Speech:
		s.speechStarted = true
		s.silence = 0
		s.buffer = append(s.buffer, f.Data...)

	case s.speechStarted:
		// First silence frame is kept: it carries trailing breath and the
		// tail of clipped words. The rest of the run is only counted.
		if s.silence == 0 {
			s.buffer = append(s.buffer, f.Data...)
		}
		s.silence += s.cfg.FrameDuration
		if s.silence >= s.cfg.SilenceThreshold {
			s.finalize()
		}

	default:
		// Silence with no utterance in progress.
		s.buffer = s.buffer[:0]
	}
}

// HandleDeviceEvent logs a device status or error callback. Segmentation
// state is untouched; a glitching device report must not truncate an
// in-progress utterance.
func (s *Segmenter) HandleDeviceEvent(msg string, err error) {
	if err != nil {
		s.log.Warn("audio device event", "event", msg, "error", err)
		return
	}
	s.log.Debug("audio device event", "event", msg)
}

// Reset drops all buffered audio and segmentation state, including the VAD
// session's detection history.
func (s *Segmenter) Reset() {
	s.buffer = nil
	s.speechStarted = false
	s.silence = 0
	s.detector.Reset()
}

// finalize closes the in-progress utterance: discard if shorter than the
// minimum, otherwise hand the PCM to the dispatcher.
func (s *Segmenter) finalize() {
	pcm := s.buffer
	s.buffer = nil
	s.speechStarted = false
	s.silence = 0

	dur := pcmDuration(len(pcm), s.cfg.SampleRate)
	if dur < s.cfg.MinUtterance {
		s.log.Debug("discarding short utterance", "duration", dur)
		return
	}

	s.log.Debug("utterance finalized", "duration", dur, "bytes", len(pcm))
	s.dispatch(pcm)
}

// pcmDuration returns the play time of n bytes of 16-bit mono PCM.
func pcmDuration(n, sampleRate int) time.Duration {
	samples := n / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
