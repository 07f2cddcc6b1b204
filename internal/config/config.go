// Package config provides the configuration schema and loader for the Clyde
// in-cabin assistant.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// RiderType selects the startup intro copy and tone.
type RiderType string

const (
	// RiderCommuter is the everyday short-intro profile.
	RiderCommuter RiderType = "commuter"

	// RiderDemo is the showcase profile with the full capability intro.
	RiderDemo RiderType = "demo"
)

// IsValid reports whether r is a recognised rider type.
func (r RiderType) IsValid() bool {
	return r == RiderCommuter || r == RiderDemo
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Audio      AudioConfig      `yaml:"audio"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Ride       RideConfig       `yaml:"ride"`
	Vehicle    VehicleConfig    `yaml:"vehicle"`
	Weather    WeatherConfig    `yaml:"weather"`
	SessionLog SessionLogConfig `yaml:"session_log"`
}

// ServerConfig holds the ops HTTP server settings. The ops server exposes
// /healthz, /readyz, /metrics, and the /display WebSocket endpoint.
type ServerConfig struct {
	// ListenAddr is the TCP address the ops server listens on (e.g.,
	// "127.0.0.1:8765").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation backs each pipeline
// stage.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "anthropic",
	// "whisper-native", "elevenlabs", "silero").
	Name string `yaml:"name"`

	// APIKey is the provider's authentication key, if it needs one. When
	// empty, the loader falls back to the provider's conventional environment
	// variable (ANTHROPIC_API_KEY, OPENAI_API_KEY, ELEVENLABS_API_KEY).
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g.,
	// "claude-sonnet-4-20250514", "whisper-1").
	Model string `yaml:"model"`

	// ModelPath is the filesystem path to a local model file, for on-device
	// providers (whisper-native, silero).
	ModelPath string `yaml:"model_path"`

	// Voice is the provider-specific voice identifier, for TTS providers.
	Voice string `yaml:"voice"`
}

// AudioConfig selects the capture and playback devices.
type AudioConfig struct {
	// InputDevice names the capture device. Empty selects the system
	// default.
	InputDevice string `yaml:"input_device"`

	// OutputDevice names the playback device. Empty selects the system
	// default.
	OutputDevice string `yaml:"output_device"`
}

// PipelineConfig tunes the turn-taking pipeline. Zero values select the
// built-in defaults.
type PipelineConfig struct {
	// Language is the transcription language code (e.g. "en").
	Language string `yaml:"language"`

	// SilenceThresholdMs is the trailing silence, in milliseconds, that
	// finalizes an utterance.
	SilenceThresholdMs int `yaml:"silence_threshold_ms"`

	// MinUtteranceMs discards utterances shorter than this many
	// milliseconds.
	MinUtteranceMs int `yaml:"min_utterance_ms"`

	// ProactiveIntervalSec is how often, in seconds, the proactive trigger
	// table is evaluated.
	ProactiveIntervalSec int `yaml:"proactive_interval_sec"`

	// MinSilenceSec is the quiet period, in seconds, required before a
	// proactive offer may run.
	MinSilenceSec int `yaml:"min_silence_sec"`
}

// RideConfig describes the simulated ride.
type RideConfig struct {
	// RiderType selects the startup intro ("commuter" or "demo").
	RiderType RiderType `yaml:"rider_type"`

	// RouteName, CurrentStop and NextStop label the ride on the display and
	// in the model's context.
	RouteName   string `yaml:"route_name"`
	CurrentStop string `yaml:"current_stop"`
	NextStop    string `yaml:"next_stop"`

	// DurationSec is the total ride duration in seconds.
	DurationSec int `yaml:"duration_sec"`

	// Passengers is the passenger count reported in the ride context.
	Passengers int `yaml:"passengers"`
}

// VehicleConfig points at the cabin control API.
type VehicleConfig struct {
	// ID identifies this vehicle in exported telemetry so a fleet dashboard
	// can tell cabins apart. Optional.
	ID string `yaml:"id"`

	// BaseURL is the cabin control endpoint. Empty starts the in-process
	// mock on ListenAddr and uses that.
	BaseURL string `yaml:"base_url"`

	// ListenAddr is where the in-process mock listens when BaseURL is empty
	// (e.g., "127.0.0.1:8089").
	ListenAddr string `yaml:"listen_addr"`
}

// WeatherConfig configures the get_weather tool.
type WeatherConfig struct {
	// DefaultLocation is used when the model omits a location.
	DefaultLocation string `yaml:"default_location"`
}

// SessionLogConfig configures the PostgreSQL ride event log.
type SessionLogConfig struct {
	// PostgresDSN is the connection string. Empty disables the session log.
	PostgresDSN string `yaml:"postgres_dsn"`

	// RideID labels this ride's events. Empty generates one at startup.
	RideID string `yaml:"ride_id"`
}
