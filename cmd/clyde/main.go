// Command clyde is the in-cabin voice assistant for Glydways vehicles.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/glydways/clyde/internal/app"
	"github.com/glydways/clyde/internal/config"
	"github.com/glydways/clyde/internal/observe"
	malgodev "github.com/glydways/clyde/pkg/audio/malgo"
	"github.com/glydways/clyde/pkg/provider/llm/anyllm"
	"github.com/glydways/clyde/pkg/provider/stt"
	sttopenai "github.com/glydways/clyde/pkg/provider/stt/openai"
	"github.com/glydways/clyde/pkg/provider/stt/whisper"
	"github.com/glydways/clyde/pkg/provider/tts/elevenlabs"
	"github.com/glydways/clyde/pkg/provider/vad"
	"github.com/glydways/clyde/pkg/provider/vad/energy"
	"github.com/glydways/clyde/pkg/provider/vad/silero"
)

// Capture and playback geometry shared with the pipeline.
const (
	sampleRate    = 16000
	frameDuration = 30 * time.Millisecond
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env is optional; the config loader reads API keys from the
	// environment, so loading it first lets a local .env feed validation.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "clyde: load .env: %v\n", err)
		return 1
	}

	// ── Load configuration ───────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "clyde: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "clyde: %v\n", err)
		}
		return 1
	}

	// ── Logger ───────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("clyde starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ───────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ────────────────────────────────────────────────────────
	// Must come before any subsystem creates metric instruments so they
	// bind to the Prometheus-backed meter provider.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "clyde",
		VehicleID:   cfg.Vehicle.ID,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Audio devices ────────────────────────────────────────────────────
	audioCtx, err := malgodev.NewContext()
	if err != nil {
		slog.Error("failed to initialise audio backend", "err", err)
		return 1
	}
	defer func() {
		if err := audioCtx.Close(); err != nil {
			slog.Warn("audio backend close error", "err", err)
		}
	}()

	// ── Providers ────────────────────────────────────────────────────────
	providers, err := buildProviders(cfg, audioCtx)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer func() {
		if err := providers.Playback.Close(); err != nil {
			slog.Warn("playback close error", "err", err)
		}
	}()

	// ── Startup summary ──────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("clyde ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProviders instantiates the providers named in cfg and returns them in
// an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, audioCtx *malgodev.Context) (*app.Providers, error) {
	ps := &app.Providers{}

	// ── LLM ──────────────────────────────────────────────────────────────
	{
		entry := cfg.Providers.LLM
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		p, err := anyllm.New(entry.Name, entry.Model, opts...)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model)
	}

	// ── STT ──────────────────────────────────────────────────────────────
	{
		entry := cfg.Providers.STT
		var (
			p   stt.Provider
			err error
		)
		switch entry.Name {
		case "openai":
			var opts []sttopenai.Option
			if entry.BaseURL != "" {
				opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
			}
			p, err = sttopenai.New(entry.APIKey, entry.Model, opts...)
		default: // whisper-native
			var opts []whisper.Option
			if cfg.Pipeline.Language != "" {
				opts = append(opts, whisper.WithLanguage(cfg.Pipeline.Language))
			}
			p, err = whisper.New(entry.ModelPath, opts...)
		}
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
		}
		ps.STT = p
		slog.Info("provider created", "kind", "stt", "name", entry.Name)
	}

	// ── TTS ──────────────────────────────────────────────────────────────
	{
		entry := cfg.Providers.TTS
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		p, err := elevenlabs.New(entry.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
		}
		ps.TTS = p
		slog.Info("provider created", "kind", "tts", "name", entry.Name, "voice", entry.Voice)
	}

	// ── VAD ──────────────────────────────────────────────────────────────
	ps.VAD = buildVAD(cfg.Providers.VAD)

	// ── Audio devices ────────────────────────────────────────────────────
	capture, err := malgodev.NewCapture(audioCtx, malgodev.CaptureConfig{
		SampleRate:    sampleRate,
		FrameDuration: frameDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("create capture device: %w", err)
	}
	ps.Capture = capture

	playback, err := malgodev.NewPlayback(audioCtx, malgodev.PlaybackConfig{SampleRate: sampleRate})
	if err != nil {
		return nil, fmt.Errorf("create playback device: %w", err)
	}
	ps.Playback = playback

	return ps, nil
}

// buildVAD selects the neural engine when its model loads, falling back to
// the energy detector so a missing ONNX file degrades accuracy, not uptime.
func buildVAD(entry config.ProviderEntry) vad.Engine {
	if entry.Name == "silero" && entry.ModelPath != "" {
		eng, err := silero.New(entry.ModelPath)
		if err == nil {
			if err = eng.Probe(); err == nil {
				slog.Info("provider created", "kind", "vad", "name", "silero")
				return eng
			}
		}
		slog.Warn("silero vad unavailable, falling back to energy detector", "err", err)
	}
	slog.Info("provider created", "kind", "vad", "name", "energy")
	return energy.New()
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Clyde — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Voice)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	fmt.Printf("║  Rider type      : %-19s ║\n", cfg.Ride.RiderType)
	fmt.Printf("║  Route           : %-19s ║\n", truncateCell(cfg.Ride.RouteName))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, detail string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if detail != "" {
		value = name + " / " + detail
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, truncateCell(value))
}

func truncateCell(value string) string {
	if len(value) > 19 {
		return value[:16] + "…"
	}
	return value
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
