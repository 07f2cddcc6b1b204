// Package speech serializes all outgoing assistant speech. Every spoken
// phrase, whatever its origin (user turn, proactive turn, startup intro),
// funnels through one queue with a single consumer loop, guaranteeing at
// most one playback in flight and therefore a clean echo-guard window per
// utterance.
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glydways/clyde/internal/echoguard"
	"github.com/glydways/clyde/internal/fifo"
	"github.com/glydways/clyde/internal/observe"
	"github.com/glydways/clyde/pkg/audio"
	"github.com/glydways/clyde/pkg/provider/tts"
	"github.com/glydways/clyde/pkg/provider/vad/energy"
	"github.com/glydways/clyde/pkg/types"
)

// defaultPlayTimeout bounds a single synthesis-plus-playback. A stuck TTS
// connection must not hold the turn lock forever.
const defaultPlayTimeout = 2 * time.Minute

// request is one queued phrase with its completion signal. done receives the
// playback outcome exactly once, on every exit path.
type request struct {
	text string
	done chan error
}

// Player is the speech queue and its consumer. Construct with [New], then
// run [Player.Start]; Speak may be called from any goroutine.
type Player struct {
	guard *echoguard.Guard
	tts   tts.Provider
	out   audio.PlaybackDevice
	voice types.VoiceProfile

	queue       *fifo.Queue[*request]
	levels      chan float64
	playTimeout time.Duration

	log     *slog.Logger
	metrics *observe.Metrics

	startOnce sync.Once
	wg        sync.WaitGroup
}

// Option is a functional option for configuring a Player.
type Option func(*Player)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(p *Player) { p.log = log }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Player) { p.metrics = m }
}

// WithPlayTimeout bounds one synthesis-plus-playback cycle.
func WithPlayTimeout(d time.Duration) Option {
	return func(p *Player) { p.playTimeout = d }
}

// New creates a Player that synthesises through provider with the given
// voice and plays through out, signalling guard around each playback.
func New(guard *echoguard.Guard, provider tts.Provider, out audio.PlaybackDevice, voice types.VoiceProfile, opts ...Option) *Player {
	p := &Player{
		guard:       guard,
		tts:         provider,
		out:         out,
		voice:       voice,
		queue:       fifo.New[*request](),
		levels:      make(chan float64, 8),
		playTimeout: defaultPlayTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Start launches the consumer loop. It exits when ctx is cancelled, failing
// any queued requests so no caller is left waiting.
func (p *Player) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.loop(ctx)
	})
}

// Wait blocks until the consumer loop has exited.
func (p *Player) Wait() {
	p.wg.Wait()
}

// Levels returns a low-frequency audio level envelope emitted during
// playback, for a visual presence indicator. Values are normalised mean
// absolute amplitudes in [0, 1]. Purely cosmetic: the channel is fed with
// non-blocking sends and may drop values; ignoring it entirely is safe.
func (p *Player) Levels() <-chan float64 {
	return p.levels
}

// Speak queues text and blocks until that text has finished playing (or
// failed, or ctx was cancelled). The queue is unbounded, so enqueueing never
// blocks; concurrent callers are serialized by the single consumer. Empty
// text resolves immediately.
func (p *Player) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	req := &request{text: text, done: make(chan error, 1)}
	p.queue.Push(req)
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loop is the single consumer: one request at a time, echo guard signalled
// around each playback, completion resolved exactly once per request.
func (p *Player) loop(ctx context.Context) {
	defer p.wg.Done()
	for {
		req, err := p.queue.Pop(ctx)
		if err != nil {
			p.failPending(err)
			return
		}
		req.done <- p.play(ctx, req.text)
	}
}

// failPending resolves every queued request with err after shutdown.
func (p *Player) failPending(err error) {
	for {
		req, ok := p.queue.TryPop()
		if !ok {
			return
		}
		req.done <- err
	}
}

// play performs one full synthesis-plus-playback cycle. The echo guard is
// released with a holdoff on every exit path, success or not.
func (p *Player) play(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, p.playTimeout)
	defer cancel()

	p.guard.RegisterUtterance(text)
	p.guard.SetSpeaking(true, false)
	defer p.guard.SetSpeaking(false, true)

	start := time.Now()
	pcm, err := p.tts.Synthesize(ctx, normalizeForSpeech(text), p.voice)
	if err != nil {
		p.metrics.RecordProviderError(ctx, "tts", "synthesize")
		return fmt.Errorf("speech: synthesize: %w", err)
	}

	// Tap the PCM stream for the level envelope on its way to the device.
	tapped := make(chan []byte, 8)
	go func() {
		defer close(tapped)
		for chunk := range pcm {
			select {
			case p.levels <- energy.MeanAbsAmplitude(chunk):
			default:
			}
			select {
			case tapped <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	err = p.out.Play(ctx, tapped)
	p.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("speech: playback: %w", err)
	}
	p.log.Debug("playback finished", "chars", len(text), "took", time.Since(start))
	return nil
}

// normalizeForSpeech strips trailing punctuation that makes synthesis
// insert an unnatural pause at the end of the phrase. Question marks stay:
// they carry intonation.
func normalizeForSpeech(text string) string {
	return strings.TrimRight(strings.TrimSpace(text), ".!;:…")
}
