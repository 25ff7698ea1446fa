// Package capture implements silence-triggered voice capture.
//
// An [Engine] opens the configured input device, accumulates PCM frames, and
// finalizes the utterance once the speaker has been quiet for the configured
// silence window. Capture can also be finalized early through [Engine.Stop],
// which is how the UI lets the speaker cut the recording off by hand.
//
// Frame energy is measured as RMS and mapped to dBFS; levels at or above the
// threshold count as speech. Leading silence before the first voiced frame is
// discarded so utterances do not start with dead air.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roundone/Psych/pkg/audio"
)

const (
	// defaultThresholdDB is the level above which a frame counts as speech.
	// -50 dBFS corresponds to near-silence on consumer microphones.
	defaultThresholdDB = -50.0

	// defaultSilenceWindow is how long the speaker must stay quiet after
	// speaking before the utterance is finalized.
	defaultSilenceWindow = 1500 * time.Millisecond

	// defaultTickInterval is how often the silence deadline is checked.
	defaultTickInterval = 200 * time.Millisecond

	// defaultMaxUtterance caps a single capture to bound memory during
	// continuous speech.
	defaultMaxUtterance = 2 * time.Minute
)

// ErrNoAudio is returned by Capture when the recording ends without any
// voiced audio: the speaker never said anything, or the device produced no
// frames at all.
var ErrNoAudio = errors.New("capture: no audio captured")

// Utterance is a finalized voice capture ready for transcription.
type Utterance struct {
	// PCM is the accumulated 16-bit signed little-endian sample data,
	// including the trailing silence that triggered finalization.
	PCM []byte

	// SampleRate and Channels describe the PCM layout.
	SampleRate int
	Channels   int

	// Duration is the playback length of PCM.
	Duration time.Duration
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithThresholdDB sets the speech threshold in dBFS. Defaults to -50.
func WithThresholdDB(db float64) Option {
	return func(e *Engine) {
		e.thresholdDB = db
	}
}

// WithSilenceWindow sets the quiet duration that finalizes an utterance.
// Defaults to 1.5 s.
func WithSilenceWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.silenceWindow = d
		}
	}
}

// WithTickInterval sets how often the silence deadline is evaluated. The
// deadline therefore fires within one tick of the configured window.
// Defaults to 200 ms.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tickInterval = d
		}
	}
}

// WithMaxUtterance caps the length of a single capture. When speech runs past
// the cap the utterance is finalized as if silence had been detected.
// Defaults to 2 min.
func WithMaxUtterance(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.maxUtterance = d
		}
	}
}

// WithFormat sets the target format frames are normalised to before analysis.
// Defaults to 16 kHz mono.
func WithFormat(f audio.Format) Option {
	return func(e *Engine) {
		e.format = f
	}
}

// Engine captures one utterance at a time from an input device.
// It is safe for concurrent use, but only one Capture may be in flight; a
// second concurrent call returns an error.
type Engine struct {
	device        audio.Device
	thresholdDB   float64
	silenceWindow time.Duration
	tickInterval  time.Duration
	maxUtterance  time.Duration
	format        audio.Format

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewEngine creates an Engine reading from device.
func NewEngine(device audio.Device, opts ...Option) (*Engine, error) {
	if device == nil {
		return nil, errors.New("capture: device must not be nil")
	}
	e := &Engine{
		device:        device,
		thresholdDB:   defaultThresholdDB,
		silenceWindow: defaultSilenceWindow,
		tickInterval:  defaultTickInterval,
		maxUtterance:  defaultMaxUtterance,
		format:        audio.Format{SampleRate: 16000, Channels: 1},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Stop finalizes the in-flight capture immediately, as if the silence window
// had elapsed. It is a no-op when no capture is running.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopCh != nil {
		close(e.stopCh)
		e.stopCh = nil
	}
}

// Capture records until the speaker falls silent for the configured window,
// Stop is called, or ctx is cancelled. The device stream is released on every
// exit path before Capture returns.
//
// Returns ErrNoAudio when the capture ends without any voiced audio, and
// ctx.Err() when the context is cancelled mid-capture.
func (e *Engine) Capture(ctx context.Context) (*Utterance, error) {
	e.mu.Lock()
	if e.stopCh != nil {
		e.mu.Unlock()
		return nil, errors.New("capture: capture already in progress")
	}
	stopCh := make(chan struct{})
	e.stopCh = stopCh
	e.mu.Unlock()

	// Guaranteed-release funnel: whatever the exit path, the stop channel is
	// forgotten and the device stream is closed exactly once.
	var stream audio.Stream
	defer func() {
		e.mu.Lock()
		if e.stopCh == stopCh {
			e.stopCh = nil
		}
		e.mu.Unlock()
		if stream != nil {
			_ = stream.Close()
		}
	}()

	var err error
	stream, err = e.device.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture: open device: %w", err)
	}

	return e.record(ctx, stream, stopCh)
}

// record is the single goroutine that owns all mutable capture state:
// buffer, speech flag, and the silence deadline.
func (e *Engine) record(ctx context.Context, stream audio.Stream, stopCh <-chan struct{}) (*Utterance, error) {
	var (
		buffer      []byte
		hadSpeech   bool
		silentSince time.Time // zero while the speaker is talking
		started     = time.Now()
	)

	conv := &audio.FormatConverter{Target: e.format}

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	finalize := func() (*Utterance, error) {
		if !hadSpeech || len(buffer) == 0 {
			return nil, ErrNoAudio
		}
		ms := audio.DurationMs(buffer, e.format.SampleRate, e.format.Channels)
		return &Utterance{
			PCM:        buffer,
			SampleRate: e.format.SampleRate,
			Channels:   e.format.Channels,
			Duration:   time.Duration(ms) * time.Millisecond,
		}, nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-stopCh:
			return finalize()

		case <-ticker.C:
			if hadSpeech && !silentSince.IsZero() && time.Since(silentSince) >= e.silenceWindow {
				return finalize()
			}
			if hadSpeech && time.Since(started) >= e.maxUtterance {
				return finalize()
			}

		case frame, ok := <-stream.Frames():
			if !ok {
				if err := stream.Err(); err != nil {
					// Device died mid-recording; the partial utterance
					// must not pass for a finished one.
					return nil, fmt.Errorf("capture: stream: %w", err)
				}
				// Device ended cleanly (external stop).
				return finalize()
			}
			frame = conv.Convert(frame)
			if len(frame.Data) == 0 {
				continue
			}

			if audio.FrameLevelDB(frame) >= e.thresholdDB {
				hadSpeech = true
				silentSince = time.Time{}
				buffer = append(buffer, frame.Data...)
			} else if hadSpeech {
				// Trailing silence is kept so the utterance does not end
				// clipped; leading silence is discarded.
				buffer = append(buffer, frame.Data...)
				if silentSince.IsZero() {
					silentSince = time.Now()
				}
			}
		}
	}
}
