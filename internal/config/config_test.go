package config_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/roundone/Psych/internal/config"
	"github.com/roundone/Psych/pkg/provider/chat"
	chatmock "github.com/roundone/Psych/pkg/provider/chat/mock"
	"github.com/roundone/Psych/pkg/provider/stt"
	sttmock "github.com/roundone/Psych/pkg/provider/stt/mock"
	"github.com/roundone/Psych/pkg/provider/tts"
	ttsmock "github.com/roundone/Psych/pkg/provider/tts/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: info

providers:
  chat:
    name: openai
    api_key: sk-test
    model: gpt-4.1
  stt:
    name: openai
    model: gpt-4o-mini-transcribe
  tts:
    name: openai
    model: gpt-4o-mini-tts

capture:
  threshold_db: -50
  silence_ms: 1500
  interval_ms: 200

speech:
  voice: alloy

history:
  path: /tmp/psych-history.json

persona: You are Psych, a warm conversational companion.
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Providers.Chat.Name != "openai" {
		t.Errorf("providers.chat.name: got %q, want %q", cfg.Providers.Chat.Name, "openai")
	}
	if cfg.Providers.Chat.Model != "gpt-4.1" {
		t.Errorf("providers.chat.model: got %q, want %q", cfg.Providers.Chat.Model, "gpt-4.1")
	}
	if cfg.Capture.ThresholdDB != -50 {
		t.Errorf("capture.threshold_db: got %.1f, want -50", cfg.Capture.ThresholdDB)
	}
	if cfg.Capture.SilenceMs != 1500 {
		t.Errorf("capture.silence_ms: got %d, want 1500", cfg.Capture.SilenceMs)
	}
	if cfg.Speech.Voice != "alloy" {
		t.Errorf("speech.voice: got %q, want alloy", cfg.Speech.Voice)
	}
	if cfg.Speech.Disabled {
		t.Error("speech.disabled should default to false")
	}
	if cfg.History.Path != "/tmp/psych-history.json" {
		t.Errorf("history.path: got %q", cfg.History.Path)
	}
	if !strings.Contains(cfg.Persona, "Psych") {
		t.Errorf("persona: got %q", cfg.Persona)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := `
providers:
  chat:
    name: openai
banter: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_InvalidLogLevel(t *testing.T) {
	yaml := `
server:
  log_level: verbose
providers:
  chat:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_ChatProviderRequired(t *testing.T) {
	yaml := `
providers:
  stt:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing chat provider, got nil")
	}
	if !strings.Contains(err.Error(), "providers.chat.name") {
		t.Errorf("error should mention providers.chat.name, got: %v", err)
	}
}

func TestLoadFromReader_Fallbacks(t *testing.T) {
	yaml := `
providers:
  chat:
    name: openai
    model: gpt-4.1
    fallbacks:
      - name: anthropic
        model: claude-sonnet-4-0
      - name: ollama
        base_url: http://localhost:11434
        model: llama3
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	fbs := cfg.Providers.Chat.Fallbacks
	if len(fbs) != 2 {
		t.Fatalf("len(Fallbacks) = %d, want 2", len(fbs))
	}
	if fbs[0].Name != "anthropic" || fbs[1].BaseURL != "http://localhost:11434" {
		t.Errorf("unexpected fallback entries: %+v", fbs)
	}
}

func TestValidate_FallbackNeedsName(t *testing.T) {
	yaml := `
providers:
  chat:
    name: openai
    fallbacks:
      - model: claude-sonnet-4-0
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unnamed fallback, got nil")
	}
	if !strings.Contains(err.Error(), "fallbacks") {
		t.Errorf("error should mention fallbacks, got: %v", err)
	}
}

func TestValidate_PositiveThresholdRejected(t *testing.T) {
	yaml := `
providers:
  chat:
    name: openai
capture:
  threshold_db: 10
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for positive threshold_db, got nil")
	}
	if !strings.Contains(err.Error(), "threshold_db") {
		t.Errorf("error should mention threshold_db, got: %v", err)
	}
}

func TestValidate_ThresholdBelowFloorRejected(t *testing.T) {
	yaml := `
providers:
  chat:
    name: openai
capture:
  threshold_db: -120
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for threshold below the floor, got nil")
	}
}

func TestValidate_NegativeSilenceRejected(t *testing.T) {
	yaml := `
providers:
  chat:
    name: openai
capture:
  silence_ms: -5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative silence_ms, got nil")
	}
}

func TestValidate_HistoryBackendsMutuallyExclusive(t *testing.T) {
	yaml := `
providers:
  chat:
    name: openai
history:
  path: /tmp/history.json
  postgres_dsn: postgres://localhost/psych
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for both history backends configured, got nil")
	}
	if !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("error should mention mutual exclusion, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	yaml := `
server:
  log_level: loud
capture:
  threshold_db: 5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log_level") || !strings.Contains(errStr, "threshold_db") {
		t.Errorf("joined error should mention all failures, got: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	for _, kind := range []string{"chat", "stt", "tts"} {
		names := config.ValidProviderNames[kind]
		if len(names) == 0 {
			t.Fatalf("ValidProviderNames[%q] should not be empty", kind)
		}
		found := false
		for _, n := range names {
			if n == "openai" {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("ValidProviderNames[%q] should contain \"openai\"", kind)
		}
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_UnknownChat(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateChat(config.ProviderEntry{Name: "nonexistent"})
	if err == nil {
		t.Fatal("expected error for unknown chat provider")
	}
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_UnknownSTT(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateSTT(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_UnknownTTS(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateTTS(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

// ── Registry with registered factories ───────────────────────────────────────

func TestRegistry_RegisteredChat(t *testing.T) {
	reg := config.NewRegistry()
	want := &chatmock.Provider{}
	reg.RegisterChat("stub", func(e config.ProviderEntry) (chat.Provider, error) {
		return want, nil
	})
	got, err := reg.CreateChat(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
}

func TestRegistry_RegisteredSTT(t *testing.T) {
	reg := config.NewRegistry()
	want := &sttmock.Provider{}
	reg.RegisterSTT("stub", func(e config.ProviderEntry) (stt.Provider, error) {
		return want, nil
	})
	got, err := reg.CreateSTT(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
}

func TestRegistry_RegisteredTTS(t *testing.T) {
	reg := config.NewRegistry()
	want := &ttsmock.Provider{}
	reg.RegisterTTS("stub", func(e config.ProviderEntry) (tts.Provider, error) {
		return want, nil
	})
	got, err := reg.CreateTTS(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterChat("broken", func(e config.ProviderEntry) (chat.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.CreateChat(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}

func TestRegistry_EntryPassedToFactory(t *testing.T) {
	reg := config.NewRegistry()
	var got config.ProviderEntry
	reg.RegisterChat("capture-entry", func(e config.ProviderEntry) (chat.Provider, error) {
		got = e
		return &chatmock.Provider{}, nil
	})
	entry := config.ProviderEntry{Name: "capture-entry", Model: "gpt-4.1", APIKey: "sk-test"}
	if _, err := reg.CreateChat(entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Model != "gpt-4.1" || got.APIKey != "sk-test" {
		t.Errorf("factory received %+v, want %+v", got, entry)
	}
}
