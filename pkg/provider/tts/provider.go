// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs) and
// presents a uniform streaming interface. The primary entry point is
// Synthesize, which accepts the complete text of one assistant turn and
// returns a channel of raw PCM audio bytes as they become available —
// letting playback begin before the tail of the turn is synthesised.
//
// Implementations must be safe for concurrent use, although the speech
// queue only ever runs one synthesis at a time.
package tts

import (
	"context"

	"github.com/glydways/clyde/pkg/types"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into speech and returns a channel that emits
	// raw 16-bit little-endian mono PCM chunks at 16 kHz as they are
	// synthesised.
	//
	// The returned audio channel is closed by the implementation when all
	// audio has been emitted or when ctx is cancelled. The caller must drain
	// the channel to avoid blocking the provider's internal goroutines.
	//
	// voice specifies the voice profile to use. Returns a non-nil error only
	// if synthesis cannot be started; errors during synthesis are signalled
	// by closing the audio channel early.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (<-chan []byte, error)

	// ListVoices returns all voice profiles available from this provider.
	// The list reflects the provider's current catalogue and may change
	// between calls if the underlying service adds or removes voices.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}
