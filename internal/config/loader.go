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

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"chat": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":  {"openai", "whisper"},
	"tts":  {"openai", "elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation, warn for unknown provider names.
	validateProviderName("chat", cfg.Providers.Chat.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.Chat.Name == "" {
		errs = append(errs, errors.New("providers.chat.name is required"))
	}
	for kind, entry := range map[string]ProviderEntry{
		"chat": cfg.Providers.Chat,
		"stt":  cfg.Providers.STT,
		"tts":  cfg.Providers.TTS,
	} {
		for _, fb := range entry.Fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks entries need a name", kind))
				continue
			}
			validateProviderName(kind, fb.Name)
		}
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; voice input will not be available")
	}
	if cfg.Providers.TTS.Name == "" && !cfg.Speech.Disabled {
		slog.Warn("no TTS provider configured; replies will be text only")
	}

	// Capture
	if cfg.Capture.ThresholdDB > 0 {
		errs = append(errs, fmt.Errorf("capture.threshold_db %.1f must be negative (dBFS, 0 is full scale)", cfg.Capture.ThresholdDB))
	}
	if cfg.Capture.ThresholdDB < -100 {
		errs = append(errs, fmt.Errorf("capture.threshold_db %.1f is below the -100 dB floor", cfg.Capture.ThresholdDB))
	}
	if cfg.Capture.SilenceMs < 0 {
		errs = append(errs, fmt.Errorf("capture.silence_ms %d must not be negative", cfg.Capture.SilenceMs))
	}
	if cfg.Capture.IntervalMs < 0 {
		errs = append(errs, fmt.Errorf("capture.interval_ms %d must not be negative", cfg.Capture.IntervalMs))
	}
	if cfg.Capture.IntervalMs > 0 && cfg.Capture.SilenceMs > 0 && cfg.Capture.IntervalMs > cfg.Capture.SilenceMs {
		slog.Warn("capture.interval_ms exceeds capture.silence_ms; the silence window will overshoot",
			"interval_ms", cfg.Capture.IntervalMs,
			"silence_ms", cfg.Capture.SilenceMs,
		)
	}

	// History
	if cfg.History.Path != "" && cfg.History.PostgresDSN != "" {
		errs = append(errs, errors.New("history.path and history.postgres_dsn are mutually exclusive; configure one backend"))
	}
	if cfg.History.Key != "" && cfg.History.PostgresDSN == "" {
		slog.Warn("history.key is set but history.postgres_dsn is not; the key only applies to Postgres storage")
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
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
