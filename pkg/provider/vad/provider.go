// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector (a Silero neural model or
// a plain energy threshold) and surfaces it as a stateful, per-stream
// session. Each session maintains its own internal state (smoothing history,
// model buffers) so that independent audio streams can be processed without
// interference.
//
// VAD is synchronous: ProcessFrame returns immediately with a detection
// result, making it suitable for the capture callback that gates utterance
// segmentation. ProcessFrame must not block.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle must only be used from one goroutine at a time.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to ProcessFrame. The capture pipeline uses 16000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds (30 for
	// the capture pipeline). ProcessFrame returns an error if the supplied
	// frame does not match this size.
	FrameSizeMs int

	// SpeechThreshold is the score above which a frame is classified as
	// speech. For the neural engine this is a probability in [0, 1]; for the
	// energy engine it is a mean-absolute-amplitude level. Zero selects the
	// engine default.
	SpeechThreshold float64
}

// Result is the classification of a single audio frame.
type Result struct {
	// Speech reports whether the frame contains voice activity.
	Speech bool

	// Score is the engine's raw speech score for the frame (probability for
	// neural engines, normalised amplitude for the energy engine).
	Score float64
}

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply mock implementations
// without a live engine.
type SessionHandle interface {
	// ProcessFrame classifies a single frame of raw 16-bit little-endian
	// mono PCM. It is called synchronously from the capture callback and
	// must not block.
	ProcessFrame(frame []byte) (Result, error)

	// Reset clears accumulated detection state without closing the session.
	// Use this when the stream is interrupted so stale state from the
	// previous segment does not affect subsequent frames.
	Reset()

	// Close releases all resources associated with the session. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	// Returns an error if the configuration is invalid or the engine cannot
	// allocate resources for the session.
	NewSession(cfg Config) (SessionHandle, error)
}
