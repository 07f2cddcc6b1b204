// Package app wires all Clyde subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the voice pipeline until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via the Providers struct and
// functional options. When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glydways/clyde/internal/assistant"
	"github.com/glydways/clyde/internal/capture"
	"github.com/glydways/clyde/internal/config"
	"github.com/glydways/clyde/internal/display"
	"github.com/glydways/clyde/internal/echoguard"
	"github.com/glydways/clyde/internal/health"
	"github.com/glydways/clyde/internal/observe"
	"github.com/glydways/clyde/internal/ride"
	"github.com/glydways/clyde/internal/sessionlog"
	"github.com/glydways/clyde/internal/speech"
	"github.com/glydways/clyde/internal/tools"
	"github.com/glydways/clyde/internal/tools/cabin"
	"github.com/glydways/clyde/internal/tools/displaycard"
	"github.com/glydways/clyde/internal/tools/rideinfo"
	"github.com/glydways/clyde/internal/tools/weather"
	"github.com/glydways/clyde/internal/turn"
	"github.com/glydways/clyde/internal/vehicle"
	"github.com/glydways/clyde/pkg/audio"
	"github.com/glydways/clyde/pkg/provider/llm"
	"github.com/glydways/clyde/pkg/provider/stt"
	"github.com/glydways/clyde/pkg/provider/tts"
	"github.com/glydways/clyde/pkg/provider/vad"
	"github.com/glydways/clyde/pkg/types"
)

// Capture geometry. The whole pipeline — VAD, segmentation, transcription —
// assumes 16 kHz mono PCM in 30 ms frames.
const (
	sampleRate    = 16000
	frameDuration = 30 * time.Millisecond
)

// Startup intros. Fixed copy, spoken before the model is ever consulted, so
// the first thing a rider hears does not depend on provider latency.
const (
	introCommuter = "Welcome aboard. This is Clyde — I can adjust the lights, temperature, and music, or answer questions about your route. Just speak whenever you're ready."

	introDemo = "Welcome aboard a Glydways vehicle — transit, designed for riders. I'm Clyde, your in-cabin assistant for this ride. I can control the lights, temperature, and audio, keep you updated on your route, or just answer questions. You don't need to memorize commands — if there's something I can help with, I'll let you know. Otherwise, just speak naturally and I'm here."
)

// shutdownGrace bounds the HTTP servers' graceful drain.
const shutdownGrace = 5 * time.Second

// Providers holds one implementation per provider slot. All four are
// required; main.go populates them from the config, tests pass mocks.
type Providers struct {
	LLM      llm.Provider
	STT      stt.Provider
	TTS      tts.Provider
	VAD      vad.Engine
	Capture  audio.CaptureDevice
	Playback audio.PlaybackDevice
}

// App owns all subsystem lifetimes and orchestrates the cabin voice pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	metrics   *observe.Metrics

	// Subsystems — initialised in New, torn down in Shutdown.
	guard      *echoguard.Guard
	source     *ride.MockSource
	vehicleSrv *vehicle.Server // in-process mock, nil when an external API is configured
	cabinAPI   *vehicle.Client
	displaySrv *display.Server
	registry   *tools.Registry
	riderTurn  *assistant.Responder
	offerTurn  *assistant.Responder
	scheduler  *turn.Scheduler
	evaluator  *turn.Evaluator
	player     *speech.Player
	segmenter  *capture.Segmenter
	dispatcher *capture.Dispatcher
	stream     *capture.Stream
	events     *sessionlog.Logger

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// WithSessionLog injects a ride event logger instead of connecting one from
// config.
func WithSessionLog(l *sessionlog.Logger) Option {
	return func(a *App) { a.events = l }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithRideSource injects a ride context source instead of building one from
// the config's ride block.
func WithRideSource(s *ride.MockSource) Option {
	return func(a *App) { a.source = s }
}

// WithScheduler injects a turn scheduler, letting tests control its clock.
func WithScheduler(s *turn.Scheduler) Option {
	return func(a *App) { a.scheduler = s }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go; use Option functions to inject test doubles.
//
// New performs all initialisation synchronously — session log connection,
// VAD session allocation, tool registry assembly — but opens no audio device
// and binds no listener; that happens in Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		guard:     echoguard.New(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Ride event log ────────────────────────────────────────────────
	if err := a.initSessionLog(ctx); err != nil {
		return nil, fmt.Errorf("app: init session log: %w", err)
	}

	// ── 2. Ride context source ───────────────────────────────────────────
	a.initRideSource()

	// ── 3. Cabin control API ─────────────────────────────────────────────
	a.initVehicle()

	// ── 4. Display + tool registry ───────────────────────────────────────
	a.displaySrv = display.NewServer(a.log)
	a.registry = tools.NewRegistry([][]tools.Tool{
		cabin.Tools(a.cabinAPI),
		rideinfo.Tools(a.source),
		displaycard.Tools(a.displaySrv),
		weather.Tools(weather.NewClient(cfg.Weather.DefaultLocation)),
	})

	// ── 5. Responders ────────────────────────────────────────────────────
	// Rider turns and proactive offers keep separate conversation
	// histories: an offer the rider never engaged with should not pollute
	// the dialogue the model sees on the next real question.
	a.riderTurn = assistant.New(providers.LLM, a.registry, a.source, assistant.WithLogger(a.log))
	a.offerTurn = assistant.New(providers.LLM, a.registry, a.source, assistant.WithLogger(a.log))

	// ── 6. Turn scheduler + proactive evaluator ──────────────────────────
	a.initTurnTaking()

	// ── 7. Speech output ─────────────────────────────────────────────────
	a.player = speech.New(a.guard, providers.TTS, providers.Playback, a.voiceProfile(), speech.WithLogger(a.log))

	// ── 8. Capture pipeline ──────────────────────────────────────────────
	if err := a.initCapture(); err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initSessionLog connects the PostgreSQL ride event log, or installs the
// no-op logger when no DSN is configured.
func (a *App) initSessionLog(ctx context.Context) error {
	if a.events != nil {
		return nil // injected
	}

	rideID := a.cfg.SessionLog.RideID
	if rideID == "" {
		rideID = "ride-" + time.Now().UTC().Format("20060102-150405")
	}

	events, err := sessionlog.New(ctx, a.cfg.SessionLog.PostgresDSN, rideID, a.log)
	if err != nil {
		return err
	}
	a.events = events
	a.closers = append(a.closers, func() error {
		events.Close()
		return nil
	})
	return nil
}

// initRideSource builds the simulated ride from the config's ride block.
func (a *App) initRideSource() {
	if a.source != nil {
		return // injected
	}

	var opts []ride.MockOption
	if a.cfg.Ride.RouteName != "" {
		opts = append(opts, ride.WithRoute(a.cfg.Ride.RouteName, a.cfg.Ride.CurrentStop, a.cfg.Ride.NextStop))
	}
	if a.cfg.Ride.DurationSec > 0 {
		opts = append(opts, ride.WithDuration(time.Duration(a.cfg.Ride.DurationSec)*time.Second))
	}
	if a.cfg.Ride.Passengers > 0 {
		opts = append(opts, ride.WithPassengers(a.cfg.Ride.Passengers))
	}
	a.source = ride.NewMockSource(opts...)
}

// initVehicle points the cabin client at the configured control API, or at
// the in-process mock when no base URL is given.
func (a *App) initVehicle() {
	baseURL := a.cfg.Vehicle.BaseURL
	if baseURL == "" {
		a.vehicleSrv = vehicle.NewServer(a.log)
		baseURL = "http://" + a.cfg.Vehicle.ListenAddr
	}
	a.cabinAPI = vehicle.NewClient(baseURL)
}

// initTurnTaking builds the scheduler and the proactive trigger evaluator.
func (a *App) initTurnTaking() {
	if a.scheduler == nil {
		var opts []turn.SchedulerOption
		opts = append(opts, turn.WithSchedulerLogger(a.log))
		if a.cfg.Pipeline.MinSilenceSec > 0 {
			opts = append(opts, turn.WithMinSilence(time.Duration(a.cfg.Pipeline.MinSilenceSec)*time.Second))
		}
		a.scheduler = turn.NewScheduler(opts...)
	}

	evalOpts := []turn.EvaluatorOption{turn.WithEvaluatorLogger(a.log)}
	if a.cfg.Pipeline.ProactiveIntervalSec > 0 {
		evalOpts = append(evalOpts, turn.WithInterval(time.Duration(a.cfg.Pipeline.ProactiveIntervalSec)*time.Second))
	}
	a.evaluator = turn.NewEvaluator(a.source, a.scheduler.QuietLongEnough, a.handleProactive, evalOpts...)
}

// initCapture allocates the VAD session and builds the segmenter →
// dispatcher → stream chain.
func (a *App) initCapture() error {
	session, err := a.providers.VAD.NewSession(vad.Config{
		SampleRate:  sampleRate,
		FrameSizeMs: int(frameDuration / time.Millisecond),
	})
	if err != nil {
		return fmt.Errorf("create vad session: %w", err)
	}
	a.closers = append(a.closers, session.Close)

	language := a.cfg.Pipeline.Language
	if language == "" {
		language = "en"
	}
	a.dispatcher = capture.NewDispatcher(a.providers.STT, sampleRate, language, capture.WithDispatcherLogger(a.log))

	a.segmenter = capture.NewSegmenter(capture.SegmenterConfig{
		SampleRate:       sampleRate,
		FrameDuration:    frameDuration,
		SilenceThreshold: time.Duration(a.cfg.Pipeline.SilenceThresholdMs) * time.Millisecond,
		MinUtterance:     time.Duration(a.cfg.Pipeline.MinUtteranceMs) * time.Millisecond,
	}, a.guard, session, a.dispatcher.Enqueue, capture.WithSegmenterLogger(a.log))

	a.stream = capture.NewStream(a.guard, a.dispatcher, capture.WithStreamLogger(a.log))
	return nil
}

// voiceProfile builds the TTS voice from the provider config.
func (a *App) voiceProfile() types.VoiceProfile {
	entry := a.cfg.Providers.TTS
	return types.VoiceProfile{
		ID:       entry.Voice,
		Provider: entry.Name,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the voice pipeline and blocks until ctx is cancelled or a
// subsystem fails fatally: HTTP servers come up first, then speech and
// transcription workers, then the microphone; the intro is spoken before the
// transcript loop and the proactive evaluator begin.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// ── HTTP servers ─────────────────────────────────────────────────────
	if a.vehicleSrv != nil {
		a.serveHTTP(ctx, g, "vehicle mock", a.cfg.Vehicle.ListenAddr, a.vehicleSrv.Handler())
	}
	if a.cfg.Server.ListenAddr != "" {
		mux := http.NewServeMux()
		health.New(
			health.Vehicle(a.cabinAPI),
			health.SessionLog(a.events),
		).Register(mux)
		mux.Handle("GET /display", a.displaySrv.Handler())
		a.serveHTTP(ctx, g, "ops", a.cfg.Server.ListenAddr, mux)
	}

	// ── Workers ──────────────────────────────────────────────────────────
	a.player.Start(ctx)
	a.dispatcher.Start(ctx)

	// ── Microphone ───────────────────────────────────────────────────────
	if err := a.providers.Capture.Start(a.segmenter.HandleFrame); err != nil {
		return fmt.Errorf("app: start capture: %w", err)
	}
	defer func() {
		if err := a.providers.Capture.Stop(); err != nil {
			a.log.Warn("capture stop failed", "error", err)
		}
	}()

	// ── Intro ────────────────────────────────────────────────────────────
	a.displaySrv.Idle(ctx, a.source.Context())
	a.runIntro(ctx)

	// ── Main loops ───────────────────────────────────────────────────────
	g.Go(func() error {
		a.evaluator.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return a.transcriptLoop(ctx)
	})
	g.Go(func() error {
		a.forwardLevels(ctx)
		return nil
	})

	a.log.Info("clyde running",
		"rider_type", a.cfg.Ride.RiderType,
		"route", a.source.Context().RouteName,
		"session_log", a.events.Enabled(),
	)

	err := g.Wait()
	a.dispatcher.Wait()
	a.player.Wait()
	return err
}

// serveHTTP runs an HTTP server under the errgroup, draining it gracefully
// when ctx is cancelled.
func (a *App) serveHTTP(ctx context.Context, g *errgroup.Group, name, addr string, handler http.Handler) {
	srv := &http.Server{Addr: addr, Handler: a.metrics.HTTPMiddleware(handler)}
	g.Go(func() error {
		a.log.Info("http server listening", "server", name, "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: %s server: %w", name, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			a.log.Warn("http server shutdown failed", "server", name, "error", err)
		}
		return nil
	})
}

// runIntro speaks the fixed greeting for the configured rider type. The text
// is registered with the echo guard before any audio leaves the speaker so a
// self-capture that somehow beats the playback gate is still recognised.
func (a *App) runIntro(ctx context.Context) {
	text := introCommuter
	if a.cfg.Ride.RiderType == config.RiderDemo {
		text = introDemo
	}
	a.guard.RegisterUtterance(text)

	err := a.scheduler.Run(ctx, "intro", func(ctx context.Context) error {
		a.displaySrv.Speaking(ctx, text)
		if err := a.player.Speak(ctx, text); err != nil {
			return err
		}
		a.events.Reply(ctx, "intro", text)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		a.log.Error("intro playback failed", "error", err)
	}

	a.displaySrv.Idle(ctx, a.source.Context())

	// The intro is known copy and its playback window has passed; drop it
	// from the echo ring so a rider quoting it back is not filtered.
	a.guard.Clear()
}

// forwardLevels relays the playback level envelope to the display so it can
// animate a presence indicator while Clyde speaks. Best-effort on both ends.
func (a *App) forwardLevels(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case lvl := <-a.player.Levels():
			a.displaySrv.SendLayout(ctx, "audio_level", map[string]float64{"level": lvl})
		}
	}
}

// transcriptLoop pulls echo-filtered transcripts and runs a full assistant
// turn for each one. Per-turn failures are logged, not fatal.
func (a *App) transcriptLoop(ctx context.Context) error {
	for {
		t, err := a.stream.Next(ctx)
		if err != nil {
			return err
		}
		a.handleTranscript(ctx, t)
	}
}

// handleTranscript is one rider-initiated turn: dedupe, cabin state refresh,
// model round, speech, display.
func (a *App) handleTranscript(ctx context.Context, t capture.Transcript) {
	if a.scheduler.SeenRecently(t.Text) {
		a.log.Debug("dropping duplicate transcript", "text", t.Text)
		a.metrics.DedupeDrops.Add(ctx, 1)
		return
	}
	a.scheduler.MarkProcessed(t.Text)

	a.log.Info("rider said", "text", t.Text)
	a.events.Transcript(ctx, t.Text)
	a.refreshCabin(ctx)

	err := a.scheduler.Run(ctx, "user", func(ctx context.Context) error {
		reply, err := a.riderTurn.Respond(ctx, t.Text, a.evaluator.Offered())
		if err != nil {
			return err
		}
		if reply != "" {
			a.displaySrv.Speaking(ctx, reply)
			if err := a.player.Speak(ctx, reply); err != nil {
				return err
			}
			a.events.Reply(ctx, "user", reply)
		}
		a.displaySrv.Idle(ctx, a.source.Context())
		return nil
	})
	if err != nil && ctx.Err() == nil {
		a.log.Error("rider turn failed", "error", err)
	}
}

// handleProactive is the evaluator's callback: one unprompted offer, run as
// a full turn so it holds the same lock rider turns do.
func (a *App) handleProactive(ctx context.Context, key, message string) error {
	a.log.Info("proactive trigger fired", "trigger", key)
	a.events.Proactive(ctx, key)
	a.refreshCabin(ctx)

	return a.scheduler.Run(ctx, "proactive", func(ctx context.Context) error {
		reply, err := a.offerTurn.Respond(ctx, message, a.evaluator.Offered())
		if err != nil {
			return err
		}
		if reply != "" {
			a.displaySrv.Speaking(ctx, reply)
			if err := a.player.Speak(ctx, reply); err != nil {
				return err
			}
			a.events.Reply(ctx, "proactive", reply)
		}
		a.displaySrv.Idle(ctx, a.source.Context())
		return nil
	})
}

// refreshCabin pulls current cabin state from the vehicle API into the ride
// context, so the model's prompt reflects reality rather than the state as
// of the last tool call. Failures keep the previous snapshot.
func (a *App) refreshCabin(ctx context.Context) {
	state, err := a.cabinAPI.State(ctx)
	if err != nil {
		a.log.Warn("cabin state refresh failed", "error", err)
		return
	}
	a.source.SetCabin(state)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.log.Warn("closer error", "index", i, "error", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
