// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription engine (a local whisper.cpp model or
// the OpenAI transcription API) and exposes a uniform batch interface: one
// complete utterance of PCM audio in, one text out. The capture pipeline has
// already segmented the stream by the time a provider sees it, so there is no
// streaming session to manage — Transcribe is a plain blocking call that the
// dispatcher serialises.
//
// Implementations must be safe for concurrent use, although the dispatcher
// only ever runs one inference at a time.
package stt

import "context"

// Request describes one utterance to transcribe.
type Request struct {
	// PCM is the raw 16-bit little-endian signed mono audio of the complete
	// utterance, including the trailing silence the segmenter appended.
	PCM []byte

	// SampleRate is the audio sample rate in Hz. The capture pipeline uses
	// 16000.
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g., "en").
	// An empty string selects the provider default.
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe runs inference on one complete utterance and returns the
	// recognised text with surrounding whitespace trimmed. An empty string
	// with a nil error means the provider heard nothing intelligible.
	//
	// Transcribe blocks until inference completes or ctx is cancelled.
	Transcribe(ctx context.Context, req Request) (string, error)
}
