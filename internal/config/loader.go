package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"whisper-native", "openai"},
	"tts": {"elevenlabs"},
	"vad": {"silero", "energy"},
}

// keylessLLMProviders run locally and need no API key.
var keylessLLMProviders = []string{"ollama", "llamacpp", "llamafile"}

// envKeyByProvider maps provider names to the conventional environment
// variable holding their API key.
var envKeyByProvider = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"mistral":    "MISTRAL_API_KEY",
	"groq":       "GROQ_API_KEY",
	"elevenlabs": "ELEVENLABS_API_KEY",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills API keys from the
// environment where the file leaves them empty, and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnvKeys(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvKeys fills empty api_key fields from each provider's conventional
// environment variable.
func applyEnvKeys(cfg *Config) {
	for _, entry := range []*ProviderEntry{&cfg.Providers.LLM, &cfg.Providers.STT, &cfg.Providers.TTS} {
		if entry.APIKey != "" {
			continue
		}
		if envVar, ok := envKeyByProvider[entry.Name]; ok {
			entry.APIKey = os.Getenv(envVar)
		}
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Ride.RiderType != "" && !cfg.Ride.RiderType.IsValid() {
		errs = append(errs, fmt.Errorf("ride.rider_type %q is invalid; valid values: commuter, demo", cfg.Ride.RiderType))
	}
	if cfg.Ride.DurationSec < 0 {
		errs = append(errs, fmt.Errorf("ride.duration_sec must not be negative"))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// The assistant cannot run without a model behind it. Fail fast here
	// rather than at the first turn.
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, fmt.Errorf("providers.llm.name is required"))
	} else if cfg.Providers.LLM.APIKey == "" && !slices.Contains(keylessLLMProviders, cfg.Providers.LLM.Name) {
		envVar := envKeyByProvider[cfg.Providers.LLM.Name]
		errs = append(errs, fmt.Errorf("providers.llm.api_key is required for %q (set it in the config or via %s)", cfg.Providers.LLM.Name, envVar))
	}

	if cfg.Providers.TTS.Name == "elevenlabs" && cfg.Providers.TTS.APIKey == "" {
		errs = append(errs, fmt.Errorf("providers.tts.api_key is required for elevenlabs (set it in the config or via ELEVENLABS_API_KEY)"))
	}
	if cfg.Providers.STT.Name == "whisper-native" && cfg.Providers.STT.ModelPath == "" {
		errs = append(errs, fmt.Errorf("providers.stt.model_path is required for whisper-native"))
	}
	if cfg.Providers.STT.Name == "openai" && cfg.Providers.STT.APIKey == "" {
		errs = append(errs, fmt.Errorf("providers.stt.api_key is required for openai (set it in the config or via OPENAI_API_KEY)"))
	}

	if cfg.Pipeline.SilenceThresholdMs < 0 || cfg.Pipeline.MinUtteranceMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline durations must not be negative"))
	}
	if cfg.Pipeline.MinSilenceSec < 0 || cfg.Pipeline.ProactiveIntervalSec < 0 {
		errs = append(errs, fmt.Errorf("proactive timings must not be negative"))
	}

	if cfg.SessionLog.PostgresDSN == "" {
		slog.Info("session_log.postgres_dsn is empty; ride events will not be persisted")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
