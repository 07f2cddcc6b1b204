// Package mock provides an in-memory mock implementation of the [vad.Engine]
// and [vad.SessionHandle] interfaces for use in unit tests.
//
// The session classifies frames from a scripted list of results, letting
// tests drive exact speech/silence patterns through the segmenter:
//
//	eng := &mock.Engine{Results: []vad.Result{{Speech: true}, {Speech: false}}}
//	s, _ := eng.NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 30})
package mock

import (
	"sync"

	"github.com/glydways/clyde/pkg/provider/vad"
)

// Engine is a mock implementation of [vad.Engine]. All sessions it creates
// share the scripted Results slice.
type Engine struct {
	mu sync.Mutex

	// Results is the script consumed one entry per ProcessFrame call across
	// all sessions. When exhausted, ProcessFrame returns a silence result.
	Results []vad.Result

	// NewSessionError is returned by NewSession when non-nil.
	NewSessionError error

	// CallCountNewSession records how many times NewSession was called.
	CallCountNewSession int

	next int
}

// Compile-time assertion that Engine satisfies vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(_ vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountNewSession++
	if e.NewSessionError != nil {
		return nil, e.NewSessionError
	}
	return &Session{engine: e}, nil
}

// pop returns the next scripted result.
func (e *Engine) pop() vad.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.next >= len(e.Results) {
		return vad.Result{}
	}
	r := e.Results[e.next]
	e.next++
	return r
}

// Session is a mock implementation of [vad.SessionHandle].
type Session struct {
	engine *Engine

	mu sync.Mutex

	// ProcessFrameError is returned by ProcessFrame when non-nil.
	ProcessFrameError error

	// CallCountProcessFrame records how many frames were classified.
	CallCountProcessFrame int

	// CallCountReset records how many times Reset was called.
	CallCountReset int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Compile-time assertion that Session satisfies vad.SessionHandle.
var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame implements [vad.SessionHandle]. It returns the next scripted
// result from the parent Engine.
func (s *Session) ProcessFrame(_ []byte) (vad.Result, error) {
	s.mu.Lock()
	s.CallCountProcessFrame++
	err := s.ProcessFrameError
	s.mu.Unlock()
	if err != nil {
		return vad.Result{}, err
	}
	return s.engine.pop(), nil
}

// Reset implements [vad.SessionHandle].
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountReset++
}

// Close implements [vad.SessionHandle].
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return nil
}
