// Package mock provides in-memory mock implementations of the
// [audio.CaptureDevice] and [audio.PlaybackDevice] interfaces for use in
// unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts, and they expose exported fields that
// the test can set to control return values.
//
// Typical usage:
//
//	dev := &mock.Capture{}
//	seg.Attach(dev)
//	dev.Emit(audio.Frame{Data: pcm, SampleRate: 16000, Channels: 1})
package mock

import (
	"context"
	"sync"

	"github.com/glydways/clyde/pkg/audio"
)

// ─── Capture ─────────────────────────────────────────────────────────────────

// Capture is a mock implementation of [audio.CaptureDevice]. Frames are
// injected by the test via [Capture.Emit].
type Capture struct {
	mu sync.Mutex

	// StartError is returned by [Capture.Start].
	StartError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	handler audio.FrameHandler
}

// Compile-time assertion that Capture satisfies audio.CaptureDevice.
var _ audio.CaptureDevice = (*Capture)(nil)

// Start implements [audio.CaptureDevice]. The handler is retained for
// [Capture.Emit].
func (c *Capture) Start(h audio.FrameHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStart++
	if c.StartError != nil {
		return c.StartError
	}
	c.handler = h
	return nil
}

// Stop implements [audio.CaptureDevice]. After Stop, Emit drops frames.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStop++
	c.handler = nil
	return nil
}

// Emit delivers a frame to the handler registered via Start, mimicking the
// device's realtime callback. Frames emitted before Start or after Stop are
// silently dropped.
func (c *Capture) Emit(f audio.Frame) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(f)
	}
}

// ─── Playback ────────────────────────────────────────────────────────────────

// Playback is a mock implementation of [audio.PlaybackDevice]. It drains the
// channel passed to Play and records everything it received.
type Playback struct {
	mu sync.Mutex

	// PlayError, when non-nil, is returned by Play after draining.
	PlayError error

	// CallCountPlay records how many times Play was called.
	CallCountPlay int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// Played holds the concatenated PCM from all Play calls.
	Played []byte
}

// Compile-time assertion that Playback satisfies audio.PlaybackDevice.
var _ audio.PlaybackDevice = (*Playback)(nil)

// Play implements [audio.PlaybackDevice]. It consumes pcm until the channel
// closes or ctx is cancelled.
func (p *Playback) Play(ctx context.Context, pcm <-chan []byte) error {
	p.mu.Lock()
	p.CallCountPlay++
	p.mu.Unlock()

	for {
		select {
		case chunk, ok := <-pcm:
			if !ok {
				p.mu.Lock()
				err := p.PlayError
				p.mu.Unlock()
				return err
			}
			p.mu.Lock()
			p.Played = append(p.Played, chunk...)
			p.mu.Unlock()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close implements [audio.PlaybackDevice].
func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountClose++
	return nil
}
