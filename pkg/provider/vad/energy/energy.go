// Package energy implements a pure-Go voice activity detector based on mean
// absolute amplitude. It has no model dependencies and serves as the
// deterministic fallback when the neural engine is unavailable.
//
// The detector classifies each frame independently: a frame is speech when
// its mean absolute sample amplitude (normalised to [0, 1]) exceeds the
// configured threshold. Segmentation smoothing (speech onset, trailing
// silence) is the segmenter's job, not the detector's.
package energy

import (
	"errors"
	"fmt"
	"math"

	"github.com/glydways/clyde/pkg/provider/vad"
)

// defaultThreshold is the mean-absolute-amplitude level above which a frame
// counts as speech. Matches a quiet cabin with the mic at normal gain.
const defaultThreshold = 0.01

// Engine creates amplitude-threshold VAD sessions. The zero value is not
// usable; construct with [New].
type Engine struct{}

// Compile-time assertion that Engine satisfies vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// New returns an energy VAD engine.
func New() *Engine {
	return &Engine{}
}

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.New("energy: sample rate must be positive")
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, errors.New("energy: frame size must be positive")
	}
	threshold := cfg.SpeechThreshold
	if threshold == 0 {
		threshold = defaultThreshold
	}
	frameBytes := cfg.SampleRate * cfg.FrameSizeMs / 1000 * 2
	return &session{threshold: threshold, frameBytes: frameBytes}, nil
}

// session is a stateless per-stream handle. Reset and Close are no-ops
// because classification carries no history.
type session struct {
	threshold  float64
	frameBytes int
	closed     bool
}

// Compile-time assertion that session satisfies vad.SessionHandle.
var _ vad.SessionHandle = (*session)(nil)

// ProcessFrame implements [vad.SessionHandle].
func (s *session) ProcessFrame(frame []byte) (vad.Result, error) {
	if s.closed {
		return vad.Result{}, errors.New("energy: session is closed")
	}
	if len(frame) != s.frameBytes {
		return vad.Result{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}
	level := MeanAbsAmplitude(frame)
	return vad.Result{Speech: level > s.threshold, Score: level}, nil
}

// Reset implements [vad.SessionHandle].
func (s *session) Reset() {}

// Close implements [vad.SessionHandle].
func (s *session) Close() error {
	s.closed = true
	return nil
}

// MeanAbsAmplitude returns the mean absolute amplitude of 16-bit signed
// little-endian PCM, normalised to [0, 1]. Exported for reuse by the speech
// player's level envelope.
func MeanAbsAmplitude(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		sum += math.Abs(float64(sample) / 32768.0)
	}
	return sum / float64(n)
}
