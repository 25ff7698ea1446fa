// Command psych is the terminal voice and text chat client.
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

	"github.com/roundone/Psych/internal/app"
	"github.com/roundone/Psych/internal/config"
	"github.com/roundone/Psych/internal/observe"
	"github.com/roundone/Psych/internal/resilience"
	"github.com/roundone/Psych/internal/session"
	"github.com/roundone/Psych/pkg/provider/chat"
	chatanyllm "github.com/roundone/Psych/pkg/provider/chat/anyllm"
	chatopenai "github.com/roundone/Psych/pkg/provider/chat/openai"
	"github.com/roundone/Psych/pkg/provider/stt"
	sttopenai "github.com/roundone/Psych/pkg/provider/stt/openai"
	"github.com/roundone/Psych/pkg/provider/stt/whisper"
	"github.com/roundone/Psych/pkg/provider/tts"
	"github.com/roundone/Psych/pkg/provider/tts/elevenlabs"
	ttsopenai "github.com/roundone/Psych/pkg/provider/tts/openai"
)

// Default models used when the config names a provider without a model.
const (
	defaultChatModel = "gpt-4.1"
	defaultSTTModel  = "gpt-4o-mini-transcribe"
	defaultTTSModel  = "gpt-4o-mini-tts"
	defaultVoice     = "alloy"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// A .env next to the binary is the easiest place for API keys.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "psych: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "psych: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("psych starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName: "psych",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	voice := cfg.Speech.Voice
	if voice == "" {
		voice = defaultVoice
	}

	// ── Chat ──────────────────────────────────────────────────────────────────

	// openai goes through the native client for full parameter support.
	reg.RegisterChat("openai", func(entry config.ProviderEntry) (chat.Provider, error) {
		key, err := session.ResolveAPIKey(entry.APIKey)
		if err != nil {
			return nil, err
		}
		var opts []chatopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, chatopenai.WithBaseURL(entry.BaseURL))
		}
		return chatopenai.New(key, modelOr(entry.Model, defaultChatModel), opts...)
	})

	// The remaining hosted backends all share the same shape: optional APIKey
	// plus optional BaseURL, routed through any-llm.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterChat(providerName, func(entry config.ProviderEntry) (chat.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return chatanyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterChat("ollama", func(entry config.ProviderEntry) (chat.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return chatanyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		key, err := session.ResolveAPIKey(entry.APIKey)
		if err != nil {
			return nil, err
		}
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, sttopenai.WithLanguage(lang))
		}
		return sttopenai.New(key, modelOr(entry.Model, defaultSTTModel), opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		key, err := session.ResolveAPIKey(entry.APIKey)
		if err != nil {
			return nil, err
		}
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		opts = append(opts, ttsopenai.WithVoice(voice))
		return ttsopenai.New(key, modelOr(entry.Model, defaultTTSModel), opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, voice, opts...)
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	entry := cfg.Providers.Chat
	p, err := reg.CreateChat(entry)
	if err != nil {
		return nil, fmt.Errorf("create chat provider %q: %w", entry.Name, err)
	}
	ps.Chat = p
	slog.Info("provider created", "kind", "chat", "name", entry.Name)

	if len(entry.Fallbacks) > 0 {
		chain := resilience.NewChatFailover()
		chain.Add(entry.Name, p)
		for _, fb := range entry.Fallbacks {
			fp, err := reg.CreateChat(fb)
			if err != nil {
				return nil, fmt.Errorf("create chat fallback %q: %w", fb.Name, err)
			}
			chain.Add(fb.Name, fp)
			slog.Info("fallback registered", "kind", "chat", "name", fb.Name)
		}
		ps.Chat = chain
	}

	if entry := cfg.Providers.STT; entry.Name != "" {
		p, err := reg.CreateSTT(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "stt", "name", entry.Name)
		} else if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
		} else {
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", entry.Name)
			if len(entry.Fallbacks) > 0 {
				chain := resilience.NewSTTFailover()
				chain.Add(entry.Name, p)
				for _, fb := range entry.Fallbacks {
					fp, err := reg.CreateSTT(fb)
					if err != nil {
						return nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
					}
					chain.Add(fb.Name, fp)
					slog.Info("fallback registered", "kind", "stt", "name", fb.Name)
				}
				ps.STT = chain
			}
		}
	}

	if entry := cfg.Providers.TTS; entry.Name != "" {
		p, err := reg.CreateTTS(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "tts", "name", entry.Name)
		} else if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
		} else {
			ps.TTS = p
			slog.Info("provider created", "kind", "tts", "name", entry.Name)
			if len(entry.Fallbacks) > 0 {
				chain := resilience.NewTTSFailover()
				chain.Add(entry.Name, p)
				for _, fb := range entry.Fallbacks {
					fp, err := reg.CreateTTS(fb)
					if err != nil {
						return nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
					}
					chain.Add(fb.Name, fp)
					slog.Info("fallback registered", "kind", "tts", "name", fb.Name)
				}
				ps.TTS = chain
			}
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Psych — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Chat", cfg.Providers.Chat.Name, modelOr(cfg.Providers.Chat.Model, defaultChatModel))
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	if cfg.Speech.Disabled {
		fmt.Printf("║  Spoken replies  : %-19s ║\n", "off")
	} else {
		fmt.Printf("║  Spoken replies  : %-19s ║\n", "on")
	}
	if cfg.History.PostgresDSN != "" {
		fmt.Printf("║  History         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  History         : %-19s ║\n", "file")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

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

// ── Helpers ───────────────────────────────────────────────────────────────────

func modelOr(model, fallback string) string {
	if model == "" {
		return fallback
	}
	return model
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
