// Package audio defines the types and interfaces for cabin audio device
// connectivity within clyde.
//
// The two primary abstractions are:
//
//   - [CaptureDevice] — the microphone. It pushes fixed-duration PCM frames
//     into a caller-supplied callback at a hard-realtime cadence.
//   - [PlaybackDevice] — the cabin speaker. It drains a channel of PCM chunks
//     and returns once everything has been played.
//
// Implementations are provided by device-specific adapter packages (e.g.
// audio/malgo). The interfaces are intentionally narrow to keep the capture
// and speech pipelines decoupled from device details.
//
// This package lives under pkg/ because external code (alternative device
// adapters) is expected to implement these interfaces.
package audio

import (
	"context"
	"time"
)

// Frame is a single fixed-duration frame of raw PCM audio flowing through
// the pipeline. Frames are the atomic unit of audio transport: captured from
// the input device, classified by VAD, and accumulated into utterances.
type Frame struct {
	// Data is 16-bit signed little-endian PCM.
	Data []byte

	// SampleRate in Hz (16000 for the capture pipeline).
	SampleRate int

	// Channels: 1 for mono capture.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the play time of the frame's PCM data.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// FrameHandler receives captured frames. It is invoked on the device's
// realtime thread and must not block: anything beyond O(frame) work has to
// be deferred to another goroutine.
type FrameHandler func(Frame)

// CaptureDevice is an open microphone stream delivering fixed-size frames.
//
// Implementations must guarantee that after Stop returns no further
// FrameHandler invocations occur and the underlying device handle is
// released. Stop is safe to call more than once.
type CaptureDevice interface {
	// Start begins capture and invokes h for every frame until Stop is
	// called. Returns an error if the device cannot be opened.
	Start(h FrameHandler) error

	// Stop ends capture and releases the device. Safe to call multiple times.
	Stop() error
}

// PlaybackDevice plays raw PCM through the cabin speaker.
//
// Implementations must be safe for sequential reuse: Play may be called
// again after a previous call returns.
type PlaybackDevice interface {
	// Play drains pcm and plays each chunk in order. It returns once all
	// received audio has been played, or earlier with ctx.Err() when ctx is
	// cancelled. The chunks must match the device's configured sample rate.
	Play(ctx context.Context, pcm <-chan []byte) error

	// Close releases the output device. After Close, Play returns an error.
	Close() error
}
