// Package audio defines the types and interfaces for microphone capture
// within Psych.
//
// The two primary abstractions are:
//
//   - [Device] — opens the local audio input and returns a [Stream].
//   - [Stream] — an active recording, delivering [Frame] values until closed.
//
// Implementations are provided by adapter packages (e.g., audio/ffmpeg for a
// real microphone, audio/mock for tests). The interfaces are intentionally
// narrow to keep the capture engine decoupled from how samples are produced.
//
// This package lives under pkg/ because external code (alternative input
// adapters) is expected to implement [Device] and [Stream].
package audio

import (
	"context"
	"time"
)

// Frame represents a single chunk of audio data flowing through the pipeline.
// Frames are the atomic unit of audio transport, captured from the input
// stream, analysed for speech energy, and accumulated into utterances.
type Frame struct {
	// PCM audio data, 16-bit signed little-endian.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for STT input).
	SampleRate int

	// Channels: 1 for mono (STT input), 2 for stereo sources.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Stream represents an active recording on an input device.
//
// A Stream is obtained by calling [Device.Open] and remains valid until
// [Stream.Close] is called or the context used to create it is cancelled.
// The frames channel is closed automatically when the stream terminates.
//
// Implementations must be safe for concurrent use.
type Stream interface {
	// Frames returns a read-only channel that delivers [Frame] values as they
	// arrive from the device. The channel is closed when the stream ends,
	// whether by Close, context cancellation, or device failure.
	Frames() <-chan Frame

	// Err reports why the stream ended. It returns nil while frames are still
	// flowing and after a deliberate Close; a non-nil error means the device
	// failed mid-recording. Only meaningful once the frames channel is closed.
	Err() error

	// Close releases the device and closes the frames channel. It is safe to
	// call Close more than once; subsequent calls are no-ops and return nil.
	Close() error
}

// Device is the entry point for an audio input source.
// Implementations wrap a concrete capture mechanism (an ffmpeg subprocess,
// an in-memory script for tests, …) and expose a uniform [Stream] abstraction.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Open starts recording and returns an active [Stream]. The supplied ctx
	// governs the lifetime of the stream: when it is cancelled the stream shuts
	// down as if Close had been called.
	//
	// Returns an error if the device cannot be acquired (missing hardware,
	// permission failure, subprocess launch error, etc.).
	Open(ctx context.Context) (Stream, error)
}
