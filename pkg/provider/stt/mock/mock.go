// Package mock provides an in-memory mock implementation of the
// [stt.Provider] interface for use in unit tests.
//
// The provider returns scripted transcripts in order, recording every
// request it receives:
//
//	p := &mock.Provider{Transcripts: []string{"turn on the lights"}}
//	text, _ := p.Transcribe(ctx, stt.Request{PCM: pcm, SampleRate: 16000})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/glydways/clyde/pkg/provider/stt"
)

// Provider is a mock implementation of [stt.Provider].
type Provider struct {
	mu sync.Mutex

	// Transcripts is the script consumed one entry per Transcribe call.
	// When exhausted, Transcribe returns an empty string.
	Transcripts []string

	// TranscribeError is returned by Transcribe when non-nil.
	TranscribeError error

	// Delay, when non-zero, makes Transcribe block that long (or until ctx
	// is cancelled) before returning. Used to test FIFO serialisation.
	Delay time.Duration

	// Requests records every request passed to Transcribe.
	Requests []stt.Request

	next int
}

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Transcribe implements [stt.Provider].
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	err := p.TranscribeError
	delay := p.Delay
	text := ""
	if err == nil && p.next < len(p.Transcripts) {
		text = p.Transcripts[p.next]
		p.next++
	}
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// CallCount returns how many times Transcribe was called.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}
