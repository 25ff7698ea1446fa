package app_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roundone/Psych/internal/app"
	"github.com/roundone/Psych/internal/config"
	"github.com/roundone/Psych/internal/transcript"
	playmock "github.com/roundone/Psych/pkg/playback/mock"
	"github.com/roundone/Psych/pkg/provider/chat"
	chatmock "github.com/roundone/Psych/pkg/provider/chat/mock"
)

// memStore is an in-memory transcript.Store for tests.
type memStore struct {
	mu       sync.Mutex
	messages []transcript.Message
}

func (s *memStore) Load(_ context.Context) ([]transcript.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transcript.Message, len(s.messages))
	copy(out, s.messages)
	return out, nil
}

func (s *memStore) Save(_ context.Context, messages []transcript.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make([]transcript.Message, len(messages))
	copy(s.messages, messages)
	return nil
}

func (s *memStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	return nil
}

// testConfig returns a minimal config for tests. The history store is always
// injected, so no file path is needed.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			LogLevel: config.LogInfo,
		},
		Providers: config.ProvidersConfig{
			Chat: config.ProviderEntry{Name: "openai", APIKey: "sk-test", Model: "gpt-4.1"},
		},
		Persona: "You are Psych.",
	}
}

// runApp builds an App with mocks, feeds it input, runs it to completion,
// and returns the accumulated output.
func runApp(t *testing.T, cfg *config.Config, input string, opts ...app.Option) (string, *chatmock.Provider, *memStore) {
	t.Helper()

	store := &memStore{}
	chatP := &chatmock.Provider{CompleteResult: &chat.Response{Content: "Hi there"}}
	var out bytes.Buffer

	opts = append([]app.Option{
		app.WithHistoryStore(store),
		app.WithInput(strings.NewReader(input)),
		app.WithOutput(&out),
	}, opts...)

	a, err := app.New(context.Background(), cfg, &app.Providers{Chat: chatP}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	return out.String(), chatP, store
}

func TestRun_TextTurnPrintsReply(t *testing.T) {
	t.Parallel()

	out, chatP, store := runApp(t, testConfig(), "Hello\n/quit\n")

	if !strings.Contains(out, "Psych: Hi there") {
		t.Errorf("output missing reply, got:\n%s", out)
	}
	if len(chatP.CompleteCalls) != 1 {
		t.Errorf("chat provider called %d times, want 1", len(chatP.CompleteCalls))
	}
	// Day marker, user message, assistant message persisted.
	msgs, _ := store.Load(context.Background())
	if len(msgs) != 3 {
		t.Errorf("persisted %d messages, want 3", len(msgs))
	}
}

func TestRun_QuitWithoutInputIsClean(t *testing.T) {
	t.Parallel()

	out, chatP, _ := runApp(t, testConfig(), "/quit\n")

	if !strings.Contains(out, "Psych is ready") {
		t.Errorf("output missing greeting, got:\n%s", out)
	}
	if len(chatP.CompleteCalls) != 0 {
		t.Error("chat provider called without input")
	}
}

func TestRun_EOFEndsLoop(t *testing.T) {
	t.Parallel()

	// No /quit; the input stream just ends.
	out, _, _ := runApp(t, testConfig(), "Hello\n")
	if !strings.Contains(out, "Psych: Hi there") {
		t.Errorf("output missing reply, got:\n%s", out)
	}
}

func TestRun_ClearCommand(t *testing.T) {
	t.Parallel()

	out, _, store := runApp(t, testConfig(), "Hello\n/clear\n/clear\n/quit\n")

	if !strings.Contains(out, "repeat /clear to confirm") {
		t.Errorf("output missing confirmation prompt, got:\n%s", out)
	}
	if !strings.Contains(out, "conversation cleared") {
		t.Errorf("output missing clear confirmation, got:\n%s", out)
	}
	msgs, _ := store.Load(context.Background())
	if len(msgs) != 0 {
		t.Errorf("store has %d messages after /clear, want 0", len(msgs))
	}
}

func TestRun_ClearRequiresConfirmation(t *testing.T) {
	t.Parallel()

	_, _, store := runApp(t, testConfig(), "Hello\n/clear\n/quit\n")

	msgs, _ := store.Load(context.Background())
	if len(msgs) == 0 {
		t.Error("single /clear wiped the conversation without confirmation")
	}
}

func TestRun_HistoryCommand(t *testing.T) {
	t.Parallel()

	out, _, _ := runApp(t, testConfig(), "Hello\n/history\n/quit\n")

	if !strings.Contains(out, "You: Hello") {
		t.Errorf("history output missing user line, got:\n%s", out)
	}
	if !strings.Contains(out, "Psych: Hi there") {
		t.Errorf("history output missing assistant line, got:\n%s", out)
	}
}

func TestRun_SpeakToggle(t *testing.T) {
	t.Parallel()

	player := &playmock.Player{}
	out, _, _ := runApp(t, testConfig(), "/speak off\nHello\n/quit\n",
		app.WithPlayer(player))

	if !strings.Contains(out, "spoken replies: off") {
		t.Errorf("output missing toggle confirmation, got:\n%s", out)
	}
	if len(player.PlayCalls) != 0 {
		t.Error("player was invoked with speech disabled")
	}
}

func TestRun_UnknownCommandReported(t *testing.T) {
	t.Parallel()

	out, _, _ := runApp(t, testConfig(), "/frobnicate\n/quit\n")

	if !strings.Contains(out, "unknown command") {
		t.Errorf("output missing unknown-command error, got:\n%s", out)
	}
}

func TestRun_ModeCommandSwitchesInput(t *testing.T) {
	t.Parallel()

	out, _, _ := runApp(t, testConfig(), "/mode voice\n/mode text\n/quit\n")

	if !strings.Contains(out, "input mode: voice") {
		t.Errorf("output missing voice mode confirmation, got:\n%s", out)
	}
	if !strings.Contains(out, "input mode: text") {
		t.Errorf("output missing text mode confirmation, got:\n%s", out)
	}
}

func TestNew_RequiresChatProvider(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), testConfig(), &app.Providers{},
		app.WithHistoryStore(&memStore{}))
	if err == nil {
		t.Fatal("New succeeded without a chat provider")
	}
}

func TestRun_CompletionErrorSurfacedAndLoopContinues(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	chatP := &chatmock.Provider{CompleteError: context.DeadlineExceeded}
	var out bytes.Buffer

	a, err := app.New(context.Background(), testConfig(), &app.Providers{Chat: chatP},
		app.WithHistoryStore(store),
		app.WithInput(strings.NewReader("Hello\n/quit\n")),
		app.WithOutput(&out),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(out.String(), "error:") {
		t.Errorf("output missing completion error, got:\n%s", out.String())
	}
	// The user message is kept for the next attempt.
	msgs, _ := store.Load(context.Background())
	if len(msgs) != 2 {
		t.Errorf("persisted %d messages, want marker + user message", len(msgs))
	}
}
