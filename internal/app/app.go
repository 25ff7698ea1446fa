// Package app wires all Psych subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the interactive read-eval loop (plus the optional
// observability HTTP server), and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithHistoryStore, WithRecorder, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/roundone/Psych/internal/capture"
	"github.com/roundone/Psych/internal/config"
	"github.com/roundone/Psych/internal/health"
	"github.com/roundone/Psych/internal/history"
	"github.com/roundone/Psych/internal/observe"
	"github.com/roundone/Psych/internal/session"
	"github.com/roundone/Psych/internal/transcript"
	"github.com/roundone/Psych/internal/turn"
	"github.com/roundone/Psych/pkg/audio/ffmpeg"
	"github.com/roundone/Psych/pkg/playback"
	"github.com/roundone/Psych/pkg/playback/ffplay"
	"github.com/roundone/Psych/pkg/provider/chat"
	"github.com/roundone/Psych/pkg/provider/stt"
	"github.com/roundone/Psych/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Chat chat.Provider
	STT  stt.Provider
	TTS  tts.Provider
}

// App owns all subsystem lifetimes and drives the conversation loop.
type App struct {
	cfg       *config.Config
	providers *Providers

	sess       *session.Session
	store      transcript.Store
	log        *transcript.Log
	recorder   turn.Recorder
	player     playback.Player
	controller *turn.Controller
	metrics    *observe.Metrics

	// in and out carry the interactive loop. Default: stdin and stdout.
	in  io.Reader
	out io.Writer

	// closers are called in order during Shutdown.
	closers []func() error

	// clearPending is set after a first /clear; the next /clear confirms.
	clearPending bool

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistoryStore injects a transcript store instead of creating one from
// config.
func WithHistoryStore(s transcript.Store) Option {
	return func(a *App) { a.store = s }
}

// WithRecorder injects a voice recorder instead of creating the ffmpeg
// capture engine.
func WithRecorder(r turn.Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// WithPlayer injects an audio player instead of creating the ffplay player.
func WithPlayer(p playback.Player) Option {
	return func(a *App) { a.player = p }
}

// WithInput overrides the interactive input stream. Intended for tests.
func WithInput(r io.Reader) Option {
	return func(a *App) { a.in = r }
}

// WithOutput overrides the interactive output stream. Intended for tests.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithMetrics injects a metrics instance instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		in:        os.Stdin,
		out:       os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}

	if providers == nil || providers.Chat == nil {
		return nil, errors.New("app: a chat provider is required")
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. History store ─────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 2. Transcript log ────────────────────────────────────────────────
	log, err := transcript.NewLog(ctx, a.store)
	if err != nil {
		return nil, fmt.Errorf("app: load transcript: %w", err)
	}
	a.log = log
	a.metrics.HistoryMessages.Add(ctx, int64(log.Len()))

	// ── 3. Session ───────────────────────────────────────────────────────
	a.sess = session.New(a.cfg.Providers.Chat.APIKey)
	a.sess.SetSpeak(!cfg.Speech.Disabled)

	// ── 4. Voice capture ─────────────────────────────────────────────────
	if err := a.initRecorder(); err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}

	// ── 5. Playback ──────────────────────────────────────────────────────
	a.initPlayer()

	// ── 6. Turn controller ───────────────────────────────────────────────
	a.controller = turn.New(a.log, a.sess, providers.Chat,
		turn.WithRecorder(a.recorder),
		turn.WithSTT(providers.STT),
		turn.WithTTS(providers.TTS),
		turn.WithPlayer(a.player),
		turn.WithMetrics(a.metrics),
		turn.WithPersona(cfg.Persona),
		turn.WithStatusFunc(a.printStatus),
	)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initHistory sets up the Postgres or file history store, unless one was
// injected.
func (a *App) initHistory(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	if dsn := a.cfg.History.PostgresDSN; dsn != "" {
		opts := []history.PostgresOption{}
		if a.cfg.History.Key != "" {
			opts = append(opts, history.WithKey(a.cfg.History.Key))
		}
		pg, err := history.NewPostgres(ctx, dsn, opts...)
		if err != nil {
			return err
		}
		a.store = pg
		a.closers = append(a.closers, func() error {
			pg.Close()
			return nil
		})
		return nil
	}

	path := a.cfg.History.Path
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, ".psych", "history.json")
	}
	f, err := history.NewFile(path)
	if err != nil {
		return err
	}
	a.store = f
	return nil
}

// initRecorder creates the ffmpeg capture engine when an STT provider is
// configured and no recorder was injected. A missing ffmpeg binary disables
// voice input instead of failing startup.
func (a *App) initRecorder() error {
	if a.recorder != nil || a.providers.STT == nil {
		return nil
	}

	device, err := ffmpeg.NewDevice()
	if err != nil {
		slog.Warn("voice input disabled", "reason", err)
		return nil
	}

	captureOpts := []capture.Option{}
	if a.cfg.Capture.ThresholdDB != 0 {
		captureOpts = append(captureOpts, capture.WithThresholdDB(a.cfg.Capture.ThresholdDB))
	}
	if a.cfg.Capture.SilenceMs > 0 {
		captureOpts = append(captureOpts, capture.WithSilenceWindow(time.Duration(a.cfg.Capture.SilenceMs)*time.Millisecond))
	}
	if a.cfg.Capture.IntervalMs > 0 {
		captureOpts = append(captureOpts, capture.WithTickInterval(time.Duration(a.cfg.Capture.IntervalMs)*time.Millisecond))
	}

	eng, err := capture.NewEngine(device, captureOpts...)
	if err != nil {
		return err
	}
	a.recorder = eng
	return nil
}

// initPlayer creates the ffplay player when a TTS provider is configured and
// no player was injected. A missing ffplay binary disables spoken replies.
func (a *App) initPlayer() {
	if a.player != nil || a.providers.TTS == nil {
		return
	}

	p, err := ffplay.New()
	if err != nil {
		slog.Warn("spoken replies disabled", "reason", err)
		return
	}
	a.player = p
	a.closers = append(a.closers, p.Close)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the interactive loop and the optional observability server, and
// blocks until ctx is cancelled or the user quits.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		g.Go(func() error {
			return a.serveHTTP(ctx, addr)
		})
	}

	g.Go(func() error {
		return a.interact(ctx)
	})

	err := g.Wait()
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

// errQuit signals a clean user-initiated exit from the interactive loop.
var errQuit = errors.New("app: quit")

// serveHTTP runs the metrics and health endpoint until ctx is cancelled.
func (a *App) serveHTTP(ctx context.Context, addr string) error {
	mux := http.NewServeMux()

	checkers := []health.Checker{
		{Name: "history", Check: func(ctx context.Context) error {
			_, err := a.store.Load(ctx)
			return err
		}},
	}
	h := health.New(checkers...)
	h.State = func() string { return a.controller.State().String() }
	h.Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: observe.Middleware(a.metrics)(mux),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("observability server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("app: http server: %w", err)
	}
	return nil
}

// interact runs the read-eval loop: plain lines become text turns, lines
// starting with "/" are commands, and an empty line in voice mode starts a
// capture.
func (a *App) interact(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	a.printf("Psych is ready. Type a message, or /help for commands.\n")

	for {
		a.printf("> ")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("app: read input: %w", err)
				}
				return errQuit
			}
			if err := a.handleLine(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return errQuit
				}
				a.printf("error: %v\n", err)
			}
		}
	}
}

// handleLine dispatches a single input line.
func (a *App) handleLine(ctx context.Context, line string) error {
	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(trimmed, "/") {
		return a.handleCommand(ctx, trimmed)
	}
	a.clearPending = false

	if trimmed == "" {
		if a.sess.Mode() == session.ModeVoice {
			return a.voiceTurn(ctx)
		}
		return nil
	}

	reply, err := a.controller.TextTurn(ctx, trimmed)
	if err != nil {
		return err
	}
	a.printf("Psych: %s\n", reply)
	return nil
}

// handleCommand executes a slash command.
func (a *App) handleCommand(ctx context.Context, cmd string) error {
	fields := strings.Fields(cmd)
	if fields[0] != "/clear" {
		a.clearPending = false
	}
	switch fields[0] {
	case "/help":
		a.printf("commands:\n" +
			"  /voice            capture one spoken message\n" +
			"  /mode text|voice  switch the input mode\n" +
			"  /speak on|off     toggle spoken replies\n" +
			"  /history          print the conversation so far\n" +
			"  /clear            forget the conversation\n" +
			"  /quit             exit\n")
		return nil

	case "/voice":
		return a.voiceTurn(ctx)

	case "/mode":
		if len(fields) != 2 {
			return errors.New("usage: /mode text|voice")
		}
		mode := session.Mode(fields[1])
		if err := a.sess.SetMode(mode); err != nil {
			return err
		}
		if mode == session.ModeVoice && a.recorder == nil {
			a.printf("note: no microphone available; voice turns will fail\n")
		}
		a.printf("input mode: %s\n", mode)
		return nil

	case "/speak":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			return errors.New("usage: /speak on|off")
		}
		a.sess.SetSpeak(fields[1] == "on")
		a.printf("spoken replies: %s\n", fields[1])
		return nil

	case "/history":
		msgs := a.log.Messages()
		if len(msgs) == 0 {
			a.printf("(no conversation yet)\n")
			return nil
		}
		a.printf("%s\n", transcript.Render(msgs))
		return nil

	case "/clear":
		if !a.clearPending {
			a.clearPending = true
			a.printf("this forgets the whole conversation; repeat /clear to confirm\n")
			return nil
		}
		a.clearPending = false
		if err := a.log.Clear(ctx); err != nil {
			return err
		}
		a.printf("conversation cleared\n")
		return nil

	case "/quit", "/exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q; try /help", fields[0])
	}
}

// voiceTurn runs one spoken exchange.
func (a *App) voiceTurn(ctx context.Context) error {
	reply, err := a.controller.VoiceTurn(ctx)
	if err != nil {
		if errors.Is(err, turn.ErrEmptyTranscription) {
			a.printf("(nothing heard)\n")
			return nil
		}
		return err
	}
	a.printf("Psych: %s\n", reply)
	return nil
}

// printStatus surfaces pipeline state changes in the interactive loop.
func (a *App) printStatus(s turn.State) {
	switch s {
	case turn.StateListening:
		a.printf("listening... (speak, then pause to finish)\n")
	case turn.StateAwaitingTranscription:
		a.printf("transcribing...\n")
	case turn.StateAwaitingSynthesis:
		a.printf("speaking...\n")
	}
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.controller.Stop()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
