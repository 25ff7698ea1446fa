// Package turn sequences a single conversation turn through the provider
// pipeline: voice capture, transcription, chat completion, speech synthesis,
// and playback. A [Controller] owns the turn-taking state machine and rejects
// overlapping turns, so at most one exchange is in flight at any time.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roundone/Psych/internal/capture"
	"github.com/roundone/Psych/internal/observe"
	"github.com/roundone/Psych/internal/session"
	"github.com/roundone/Psych/internal/transcript"
	"github.com/roundone/Psych/pkg/playback"
	"github.com/roundone/Psych/pkg/provider/chat"
	"github.com/roundone/Psych/pkg/provider/stt"
	"github.com/roundone/Psych/pkg/provider/tts"
)

// ─── State machine ───

// State is the current position of the controller in the turn pipeline.
type State int

const (
	// StateIdle means no turn is in flight and input is accepted.
	StateIdle State = iota

	// StateListening means microphone capture is running.
	StateListening

	// StateAwaitingTranscription means a captured utterance is being
	// transcribed.
	StateAwaitingTranscription

	// StateAwaitingCompletion means the chat provider is generating the
	// reply.
	StateAwaitingCompletion

	// StateAwaitingSynthesis means the reply is being synthesised and
	// played back.
	StateAwaitingSynthesis
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateAwaitingTranscription:
		return "awaiting_transcription"
	case StateAwaitingCompletion:
		return "awaiting_completion"
	case StateAwaitingSynthesis:
		return "awaiting_synthesis"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ─── Errors ───

var (
	// ErrBusy is returned when a turn is started while another is in flight.
	ErrBusy = errors.New("turn: another turn is in flight")

	// ErrEmptyInput is returned when a text turn is started with blank input.
	ErrEmptyInput = errors.New("turn: empty input")

	// ErrEmptyTranscription is returned when capture or transcription
	// produced no usable text. The turn ends without touching the
	// transcript; callers should treat this as informational.
	ErrEmptyTranscription = errors.New("turn: no speech recognised")

	// ErrVoiceUnavailable is returned by VoiceTurn when the controller was
	// built without a recorder or a speech-to-text provider.
	ErrVoiceUnavailable = errors.New("turn: voice input not configured")
)

// Recorder captures a single utterance from the microphone. It is implemented
// by [capture.Engine].
type Recorder interface {
	// Capture blocks until an utterance is finalised or ctx is cancelled.
	Capture(ctx context.Context) (*capture.Utterance, error)

	// Stop finalises an in-flight capture early.
	Stop()
}

// ─── Controller ───

const defaultStageTimeout = 60 * time.Second

// Controller runs conversation turns. All exported methods are safe for
// concurrent use; concurrent turns are rejected with [ErrBusy] rather than
// queued.
type Controller struct {
	log  *transcript.Log
	sess *session.Session
	chat chat.Provider

	recorder Recorder
	stt      stt.Provider
	tts      tts.Provider
	player   playback.Player

	metrics      *observe.Metrics
	statusFn     func(State)
	persona      string
	temperature  float64
	maxTokens    int
	stageTimeout time.Duration

	mu    sync.Mutex
	state State
}

// Option configures a [Controller].
type Option func(*Controller)

// WithRecorder sets the microphone recorder used for voice turns.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithSTT sets the speech-to-text provider used for voice turns.
func WithSTT(p stt.Provider) Option {
	return func(c *Controller) { c.stt = p }
}

// WithTTS sets the text-to-speech provider for spoken replies.
func WithTTS(p tts.Provider) Option {
	return func(c *Controller) { c.tts = p }
}

// WithPlayer sets the audio player for spoken replies.
func WithPlayer(p playback.Player) Option {
	return func(c *Controller) { c.player = p }
}

// WithMetrics sets the metrics instance. When unset, no metrics are recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithStatusFunc registers a callback invoked on every state change. The
// callback runs on the turn's goroutine.
func WithStatusFunc(fn func(State)) Option {
	return func(c *Controller) { c.statusFn = fn }
}

// WithPersona sets the system prompt prepended to every completion request.
func WithPersona(persona string) Option {
	return func(c *Controller) { c.persona = persona }
}

// WithTemperature sets the sampling temperature for completions.
func WithTemperature(t float64) Option {
	return func(c *Controller) { c.temperature = t }
}

// WithMaxTokens caps the completion length. Zero means provider default.
func WithMaxTokens(n int) Option {
	return func(c *Controller) { c.maxTokens = n }
}

// WithStageTimeout bounds each provider call (transcription, completion,
// synthesis) individually. Default: 60s.
func WithStageTimeout(d time.Duration) Option {
	return func(c *Controller) { c.stageTimeout = d }
}

// New creates a Controller over the given transcript, session, and chat
// provider. Voice input and spoken replies are enabled through options.
func New(log *transcript.Log, sess *session.Session, chatProvider chat.Provider, opts ...Option) *Controller {
	c := &Controller{
		log:          log,
		sess:         sess,
		chat:         chatProvider,
		stageTimeout: defaultStageTimeout,
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the controller's current pipeline state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	return c.State() != StateIdle
}

// Stop finalises an in-flight voice capture early. It has no effect outside
// the listening state.
func (c *Controller) Stop() {
	c.mu.Lock()
	listening := c.state == StateListening
	c.mu.Unlock()
	if listening && c.recorder != nil {
		c.recorder.Stop()
	}
}

// begin transitions Idle -> first, rejecting concurrent turns.
func (c *Controller) begin(first State) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = first
	c.mu.Unlock()
	c.notify(first)
	return nil
}

// setState records the new state and notifies the status callback. The
// callback runs outside the lock so it may call back into the controller.
func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.notify(s)
}

func (c *Controller) notify(s State) {
	if c.statusFn != nil {
		c.statusFn(s)
	}
}

// TextTurn runs a full turn from typed input and returns the assistant's
// reply. The user message is appended to the transcript before the completion
// request; a failed completion leaves it in place so the user does not have
// to retype it.
func (c *Controller) TextTurn(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyInput
	}

	if err := c.begin(StateAwaitingCompletion); err != nil {
		return "", err
	}
	defer c.setState(StateIdle)

	ctx, finish := c.observeTurn(ctx, "text")
	defer finish()

	return c.complete(ctx, text, "text")
}

// VoiceTurn captures one utterance from the microphone, transcribes it, and
// runs the completion pipeline on the result. Silence or an empty
// transcription ends the turn with [ErrEmptyTranscription] and leaves the
// transcript untouched.
func (c *Controller) VoiceTurn(ctx context.Context) (string, error) {
	if c.recorder == nil || c.stt == nil {
		return "", ErrVoiceUnavailable
	}

	if err := c.begin(StateListening); err != nil {
		return "", err
	}
	defer c.setState(StateIdle)

	ctx, finish := c.observeTurn(ctx, "voice")
	defer finish()

	utt, err := c.recorder.Capture(ctx)
	if err != nil {
		if errors.Is(err, capture.ErrNoAudio) {
			return "", ErrEmptyTranscription
		}
		c.recordTurn(ctx, "voice", "error")
		return "", fmt.Errorf("turn: capture: %w", err)
	}
	if c.metrics != nil {
		c.metrics.CaptureDuration.Record(ctx, utt.Duration.Seconds())
	}

	c.setState(StateAwaitingTranscription)

	sttCtx, cancel := context.WithTimeout(ctx, c.stageTimeout)
	start := time.Now()
	text, err := c.stt.Transcribe(sttCtx, stt.Clip{
		PCM:        utt.PCM,
		SampleRate: utt.SampleRate,
		Channels:   utt.Channels,
	})
	cancel()
	if c.metrics != nil {
		c.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		c.recordTurn(ctx, "voice", "error")
		return "", fmt.Errorf("turn: transcribe: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		slog.Debug("transcription empty, discarding utterance",
			"duration", utt.Duration)
		return "", ErrEmptyTranscription
	}

	c.setState(StateAwaitingCompletion)
	return c.complete(ctx, text, "voice")
}

// complete appends the user message, requests a completion over the full
// transcript, appends the reply, and optionally speaks it. Called with the
// turn slot already held.
func (c *Controller) complete(ctx context.Context, text, mode string) (string, error) {
	if _, err := c.log.Append(ctx, transcript.RoleUser, text); err != nil {
		slog.Warn("failed to persist user message", "error", err)
	}

	chatCtx, cancel := context.WithTimeout(ctx, c.stageTimeout)
	start := time.Now()
	resp, err := c.chat.Complete(chatCtx, c.buildRequest())
	cancel()
	if c.metrics != nil {
		c.metrics.ChatDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		// The user message stays in the transcript so the next turn
		// retries with full context.
		c.recordTurn(ctx, mode, "error")
		return "", fmt.Errorf("turn: completion: %w", err)
	}

	reply := strings.TrimSpace(resp.Content)
	if _, err := c.log.Append(ctx, transcript.RoleAssistant, reply); err != nil {
		slog.Warn("failed to persist assistant message", "error", err)
	}

	if reply != "" && c.sess.Speak() && c.tts != nil && c.player != nil {
		c.setState(StateAwaitingSynthesis)
		c.speak(ctx, reply)
	}

	c.recordTurn(ctx, mode, "ok")
	return reply, nil
}

// speak synthesises and plays the reply. Failures are logged and do not fail
// the turn: the reply text already reached the transcript and the caller.
func (c *Controller) speak(ctx context.Context, reply string) {
	ttsCtx, cancel := context.WithTimeout(ctx, c.stageTimeout)
	defer cancel()

	start := time.Now()
	clip, err := c.tts.Synthesize(ttsCtx, reply)
	if c.metrics != nil {
		c.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		slog.Warn("speech synthesis failed", "error", err)
		if c.metrics != nil {
			c.metrics.RecordProviderError(ctx, "tts", "tts")
		}
		return
	}

	if err := c.player.Play(ctx, clip.Data, clip.Format); err != nil {
		slog.Warn("audio playback failed", "error", err, "format", clip.Format)
	}
}

// buildRequest converts the transcript into a completion request. Day
// markers become system messages so the model knows the current date and can
// reference earlier sessions naturally.
func (c *Controller) buildRequest() chat.Request {
	msgs := c.log.Messages()
	out := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case transcript.RoleUser:
			out = append(out, chat.Message{Role: chat.RoleUser, Content: m.Content})
		case transcript.RoleAssistant:
			out = append(out, chat.Message{Role: chat.RoleAssistant, Content: m.Content})
		case transcript.RoleMarker:
			out = append(out, chat.Message{Role: chat.RoleSystem, Content: m.Content})
		}
	}
	return chat.Request{
		Messages:     out,
		Temperature:  c.temperature,
		MaxTokens:    c.maxTokens,
		SystemPrompt: c.persona,
	}
}

func (c *Controller) recordTurn(ctx context.Context, mode, status string) {
	if c.metrics != nil {
		c.metrics.RecordTurn(ctx, mode, status)
	}
}

// observeTurn opens the per-turn trace span, raises the in-flight gauge, and
// returns the span context plus a finish function that records end-to-end
// latency and closes the span. Called with the turn slot already held.
func (c *Controller) observeTurn(ctx context.Context, mode string) (context.Context, func()) {
	ctx, span := observe.StartSpan(ctx, mode+"-turn")
	start := time.Now()
	if c.metrics != nil {
		c.metrics.ActiveTurns.Add(ctx, 1)
	}
	return ctx, func() {
		if c.metrics != nil {
			c.metrics.ActiveTurns.Add(ctx, -1)
			c.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
		}
		span.End()
	}
}
