// Package silero implements the neural VAD engine on top of
// github.com/cortexswarm/smart-turn-go, which runs the Silero VAD ONNX model
// in-process. Only the frame-level speech/silence decision is used; utterance
// segmentation stays in the capture pipeline.
//
// The smart-turn engine invokes its callbacks synchronously from PushPCM, so
// the wrapper can expose a blocking-free ProcessFrame: push the frame, read
// the speech state the callbacks just updated.
package silero

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	smartturn "github.com/cortexswarm/smart-turn-go"

	"github.com/glydways/clyde/pkg/provider/vad"
)

const defaultThreshold = 0.5

// Engine creates Silero VAD sessions. Each session owns its own smart-turn
// engine instance so independent streams do not share model state.
type Engine struct {
	modelPath string
}

// Compile-time assertion that Engine satisfies vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// New returns a Silero engine that loads the VAD model from modelPath.
// The model file is probed lazily by NewSession; use [Probe] at startup for
// the capability check that selects between this engine and the energy
// fallback.
func New(modelPath string) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("silero: modelPath must not be empty")
	}
	return &Engine{modelPath: modelPath}, nil
}

// Probe verifies that the model can actually be loaded by creating and
// closing a throwaway session. Callers use this at initialisation to decide
// whether the neural engine is available.
func (e *Engine) Probe() error {
	s, err := e.NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 30})
	if err != nil {
		return err
	}
	return s.Close()
}

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.New("silero: sample rate must be positive")
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, errors.New("silero: frame size must be positive")
	}
	threshold := cfg.SpeechThreshold
	if threshold == 0 {
		threshold = defaultThreshold
	}

	frameSamples := cfg.SampleRate * cfg.FrameSizeMs / 1000

	s := &session{frameBytes: frameSamples * 2}
	engineCfg := smartturn.Config{
		SampleRate:             cfg.SampleRate,
		ChunkSize:              frameSamples,
		VadThreshold:           float32(threshold),
		VadPreSpeechMs:         0,
		VadStopMs:              cfg.FrameSizeMs,
		TurnMaxDurationSeconds: math.MaxInt32,
		SileroVADModelPath:     e.modelPath,
	}
	// Callbacks fire synchronously inside PushPCM; they flip the state that
	// ProcessFrame reads right after pushing.
	callbacks := smartturn.Callbacks{
		OnSpeechStart: func() { s.inSpeech = true },
		OnSpeechEnd:   func() { s.inSpeech = false },
		OnError:       func(err error) { s.lastErr = err },
	}

	engine, err := smartturn.New(engineCfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("silero: create engine: %w", err)
	}
	engine.Start()
	s.engine = engine
	return s, nil
}

// session wraps one smart-turn engine instance. Not safe for concurrent use;
// the capture pipeline drives it from a single callback.
type session struct {
	engine     *smartturn.Engine
	frameBytes int

	inSpeech bool
	lastErr  error
	closed   bool
}

// Compile-time assertion that session satisfies vad.SessionHandle.
var _ vad.SessionHandle = (*session)(nil)

// ProcessFrame implements [vad.SessionHandle]. The 16-bit PCM frame is
// converted to float32 samples and pushed through the model; the speech
// state updated by the synchronous callbacks is returned.
func (s *session) ProcessFrame(frame []byte) (vad.Result, error) {
	if s.closed {
		return vad.Result{}, errors.New("silero: session is closed")
	}
	if len(frame) != s.frameBytes {
		return vad.Result{}, fmt.Errorf("silero: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	samples := make([]float32, len(frame)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(frame[i*2:]))) / 32768.0
	}

	s.lastErr = nil
	if err := s.engine.PushPCM(samples); err != nil {
		return vad.Result{}, fmt.Errorf("silero: push pcm: %w", err)
	}
	if s.lastErr != nil {
		return vad.Result{}, fmt.Errorf("silero: inference: %w", s.lastErr)
	}

	score := 0.0
	if s.inSpeech {
		score = 1.0
	}
	return vad.Result{Speech: s.inSpeech, Score: score}, nil
}

// Reset implements [vad.SessionHandle]. The engine is stopped and restarted,
// clearing its ring buffers and speech state.
func (s *session) Reset() {
	if s.closed {
		return
	}
	s.engine.Stop()
	s.engine.Start()
	s.inSpeech = false
	s.lastErr = nil
}

// Close implements [vad.SessionHandle].
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.engine.Stop()
	s.engine.Close()
	return nil
}
