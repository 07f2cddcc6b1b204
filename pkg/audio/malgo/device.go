// Package malgo implements the audio device interfaces on top of the
// miniaudio CGO bindings (github.com/gen2brain/malgo). One shared malgo
// context backs both the capture and playback devices.
package malgo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	malgolib "github.com/gen2brain/malgo"

	"github.com/glydways/clyde/pkg/audio"
)

// Context owns the malgo backend context shared by all devices. Create one
// per process and Close it after all devices are stopped.
type Context struct {
	ctx *malgolib.AllocatedContext
}

// NewContext initialises the miniaudio backend. Backend log messages are
// forwarded to slog at debug level.
func NewContext() (*Context, error) {
	mctx, err := malgolib.InitContext(nil, malgolib.ContextConfig{}, func(message string) {
		slog.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}
	return &Context{ctx: mctx}, nil
}

// Close tears down the backend context. All devices must be stopped first.
func (c *Context) Close() error {
	if c.ctx == nil {
		return nil
	}
	err := c.ctx.Uninit()
	c.ctx.Free()
	c.ctx = nil
	return err
}

// ---- capture ----------------------------------------------------------------

// CaptureConfig describes the microphone stream format.
type CaptureConfig struct {
	// SampleRate in Hz. The capture pipeline uses 16000.
	SampleRate int

	// FrameDuration is the fixed duration of each emitted frame (30 ms).
	FrameDuration time.Duration
}

// Capture is an [audio.CaptureDevice] reading 16-bit mono PCM from the
// default system microphone. The device driver delivers buffers of arbitrary
// size; Capture re-chunks them into fixed FrameDuration frames so downstream
// VAD sees a constant cadence.
type Capture struct {
	ctx *Context
	cfg CaptureConfig

	mu      sync.Mutex
	device  *malgolib.Device
	started bool
}

// Compile-time assertion that Capture satisfies audio.CaptureDevice.
var _ audio.CaptureDevice = (*Capture)(nil)

// NewCapture creates a capture device bound to ctx. The device is not opened
// until Start is called.
func NewCapture(ctx *Context, cfg CaptureConfig) (*Capture, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.New("malgo: capture sample rate must be positive")
	}
	if cfg.FrameDuration <= 0 {
		return nil, errors.New("malgo: capture frame duration must be positive")
	}
	return &Capture{ctx: ctx, cfg: cfg}, nil
}

// Start opens the default capture device and invokes h for every re-chunked
// frame. The malgo data callback runs on the audio thread; h inherits that
// constraint and must not block.
func (c *Capture) Start(h audio.FrameHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("malgo: capture already started")
	}

	deviceConfig := malgolib.DefaultDeviceConfig(malgolib.Capture)
	deviceConfig.Capture.Format = malgolib.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(c.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	frameBytes := int(c.cfg.FrameDuration.Seconds() * float64(c.cfg.SampleRate) * 2)

	var (
		buf     []byte
		started = time.Now()
	)
	onRecvFrames := func(_, pSample []byte, framecount uint32) {
		if framecount == 0 {
			return
		}
		buf = append(buf, pSample...)
		for len(buf) >= frameBytes {
			frame := make([]byte, frameBytes)
			copy(frame, buf[:frameBytes])
			buf = buf[frameBytes:]
			h(audio.Frame{
				Data:       frame,
				SampleRate: c.cfg.SampleRate,
				Channels:   1,
				Timestamp:  time.Since(started),
			})
		}
	}

	device, err := malgolib.InitDevice(c.ctx.ctx.Context, deviceConfig, malgolib.DeviceCallbacks{
		Data: onRecvFrames,
		Stop: func() {
			slog.Debug("malgo: capture device stopped by backend")
		},
	})
	if err != nil {
		return fmt.Errorf("malgo: init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("malgo: start capture device: %w", err)
	}

	c.device = device
	c.started = true
	return nil
}

// Stop halts capture and releases the device handle. Safe to call more than
// once; subsequent calls are no-ops.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.device.Uninit()
	c.device = nil
	c.started = false
	return nil
}

// ---- playback ---------------------------------------------------------------

// PlaybackConfig describes the speaker stream format.
type PlaybackConfig struct {
	// SampleRate in Hz of the PCM chunks passed to Play (must match the TTS
	// provider's output format, e.g. 16000 for pcm_16000).
	SampleRate int
}

// Playback is an [audio.PlaybackDevice] writing 16-bit mono PCM to the
// default system output. The device stays open across Play calls; silence is
// emitted whenever no chunk is pending.
type Playback struct {
	ctx *Context
	cfg PlaybackConfig

	mu      sync.Mutex
	pending []byte
	device  *malgolib.Device
	closed  bool
}

// Compile-time assertion that Playback satisfies audio.PlaybackDevice.
var _ audio.PlaybackDevice = (*Playback)(nil)

// NewPlayback opens the default playback device at the given sample rate.
func NewPlayback(ctx *Context, cfg PlaybackConfig) (*Playback, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.New("malgo: playback sample rate must be positive")
	}
	p := &Playback{ctx: ctx, cfg: cfg}

	deviceConfig := malgolib.DefaultDeviceConfig(malgolib.Playback)
	deviceConfig.Playback.Format = malgolib.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	onSendFrames := func(pOutput, _ []byte, framecount uint32) {
		p.mu.Lock()
		n := copy(pOutput, p.pending)
		p.pending = p.pending[n:]
		p.mu.Unlock()
		for i := n; i < len(pOutput); i++ {
			pOutput[i] = 0
		}
	}

	device, err := malgolib.InitDevice(ctx.ctx.Context, deviceConfig, malgolib.DeviceCallbacks{
		Data: onSendFrames,
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("malgo: start playback device: %w", err)
	}
	p.device = device
	return p, nil
}

// Play queues each chunk from pcm and returns once the device has consumed
// everything, or earlier with ctx.Err() on cancellation. On cancellation any
// unplayed audio is discarded so the speaker goes quiet promptly.
func (p *Playback) Play(ctx context.Context, pcm <-chan []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return errors.New("malgo: playback device is closed")
	}

	for {
		select {
		case chunk, ok := <-pcm:
			if !ok {
				return p.drain(ctx)
			}
			p.mu.Lock()
			p.pending = append(p.pending, chunk...)
			p.mu.Unlock()
		case <-ctx.Done():
			p.discard()
			return ctx.Err()
		}
	}
}

// drain waits for the device callback to consume all queued audio.
func (p *Playback) drain(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		remaining := len(p.pending)
		p.mu.Unlock()
		if remaining == 0 {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			p.discard()
			return ctx.Err()
		}
	}
}

// discard drops any unplayed audio.
func (p *Playback) discard() {
	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()
}

// Close stops the output device. Pending audio is discarded.
func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.pending = nil
	p.device.Uninit()
	p.device = nil
	return nil
}
