// Package ffmpeg provides an [audio.Device] backed by an ffmpeg subprocess
// reading from the default microphone.
//
// ffmpeg handles the platform-specific input layer (avfoundation on macOS,
// pulse on Linux) and emits raw 16-bit signed little-endian PCM on stdout,
// which this package slices into fixed-duration [audio.Frame] values.
//
// Usage:
//
//	dev, err := ffmpeg.NewDevice(ffmpeg.WithSampleRate(16000))
//	stream, err := dev.Open(ctx)
//	for frame := range stream.Frames() { ... }
//	stream.Close()
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/roundone/Psych/pkg/audio"
)

const (
	defaultSampleRate = 16000
	defaultFrameMs    = 100
	frameChanBuffer   = 32
)

// Compile-time assertion that Device implements audio.Device.
var _ audio.Device = (*Device)(nil)

// Option is a functional option for configuring a Device.
type Option func(*Device)

// WithSampleRate sets the capture sample rate in Hz. Defaults to 16000,
// which is what transcription backends expect.
func WithSampleRate(rate int) Option {
	return func(d *Device) {
		d.sampleRate = rate
	}
}

// WithInput overrides the ffmpeg input specification (the -i argument).
// When empty the platform default is used (":0" on darwin, "default" on linux).
func WithInput(input string) Option {
	return func(d *Device) {
		d.input = input
	}
}

// WithFrameDuration sets how much audio each emitted [audio.Frame] carries.
// Defaults to 100 ms.
func WithFrameDuration(d time.Duration) Option {
	return func(dev *Device) {
		if ms := int(d.Milliseconds()); ms > 0 {
			dev.frameMs = ms
		}
	}
}

// Device captures mono PCM from the default microphone via ffmpeg.
// Each call to Open launches a fresh subprocess; multiple streams may not be
// open at once on platforms where the input device is exclusive.
type Device struct {
	sampleRate int
	frameMs    int
	input      string
}

// NewDevice creates a microphone Device. It verifies that the ffmpeg binary is
// available on PATH and that the current platform is supported, so that a
// missing installation surfaces at construction time rather than mid-session.
func NewDevice(opts ...Option) (*Device, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg: binary not found in PATH (install ffmpeg to enable voice capture)")
	}
	if _, err := captureArgs(runtime.GOOS, "", defaultSampleRate); err != nil {
		return nil, err
	}
	d := &Device{
		sampleRate: defaultSampleRate,
		frameMs:    defaultFrameMs,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Open implements [audio.Device]. It starts the ffmpeg subprocess and returns
// a stream delivering fixed-duration PCM frames. The subprocess is killed when
// ctx is cancelled or Close is called.
func (d *Device) Open(ctx context.Context) (audio.Stream, error) {
	args, err := captureArgs(runtime.GOOS, d.input, d.sampleRate)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: open stdout pipe: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: start capture process: %w", err)
	}

	s := &stream{
		cmd:        cmd,
		stdout:     stdout,
		sampleRate: d.sampleRate,
		frameMs:    d.frameMs,
		frames:     make(chan audio.Frame, frameChanBuffer),
		done:       make(chan struct{}),
	}

	s.wg.Add(1)
	go s.readLoop()

	// Tie the stream to the caller's context.
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

// captureArgs builds the ffmpeg argument list for the given platform.
// Returns an error for platforms without a known input backend.
func captureArgs(goos, input string, sampleRate int) ([]string, error) {
	switch goos {
	case "darwin":
		if input == "" {
			input = ":0"
		}
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", input,
			"-ac", "1", "-ar", fmt.Sprintf("%d", sampleRate),
			"-f", "s16le", "-",
		}, nil
	case "linux":
		if input == "" {
			input = "default"
		}
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", input,
			"-ac", "1", "-ar", fmt.Sprintf("%d", sampleRate),
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("ffmpeg: microphone capture is not implemented for %s (supported: darwin, linux)", goos)
	}
}

// ─── stream ───────────────────────────────────────────────────────────────────

// stream is a live ffmpeg capture. It implements audio.Stream.
type stream struct {
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	sampleRate int
	frameMs    int

	frames chan audio.Frame
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	mu  sync.Mutex
	err error
}

// Frames implements [audio.Stream].
func (s *stream) Frames() <-chan audio.Frame { return s.frames }

// Err implements [audio.Stream]. Non-nil when the ffmpeg subprocess died on
// its own rather than being shut down through Close.
func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Close implements [audio.Stream]. It kills the ffmpeg subprocess, waits for
// the reader goroutine to drain, and closes the frames channel. Safe to call
// more than once.
func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.cmd.Wait()
		s.wg.Wait()
	})
	return nil
}

// readLoop reads fixed-size chunks from the subprocess stdout and emits them
// as frames. It runs until the pipe reports EOF (process killed or device
// failure) and closes the frames channel on exit.
func (s *stream) readLoop() {
	defer s.wg.Done()
	defer close(s.frames)

	frameBytes := s.sampleRate * 2 * s.frameMs / 1000
	if frameBytes <= 0 {
		frameBytes = 3200 // 100 ms at 16 kHz mono
	}

	start := time.Now()
	buf := make([]byte, frameBytes)
	for {
		n, err := io.ReadFull(s.stdout, buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			frame := audio.Frame{
				Data:       data,
				SampleRate: s.sampleRate,
				Channels:   1,
				Timestamp:  time.Since(start),
			}
			select {
			case s.frames <- frame:
			case <-s.done:
				return
			default:
				// Consumer is not keeping up; drop the frame rather than
				// stall the pipe and let ffmpeg buffer unboundedly.
			}
		}
		if err != nil {
			// A read failure after Close is just the pipe being torn down;
			// anything else means ffmpeg died mid-recording.
			select {
			case <-s.done:
			default:
				s.setErr(fmt.Errorf("ffmpeg: capture stream ended: %w", err))
			}
			return
		}
	}
}
