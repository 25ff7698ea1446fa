// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider accepts a complete captured utterance as PCM audio and
// returns its transcription. The interface is batch-oriented: the capture
// engine finalizes an utterance on silence, so providers never see partial
// audio.
//
// Implementors must be safe for concurrent use.
package stt

import "context"

// Clip is a complete utterance of raw 16-bit signed little-endian PCM audio.
type Clip struct {
	// PCM is the raw sample data.
	PCM []byte

	// SampleRate in Hz (e.g., 16000).
	SampleRate int

	// Channels is the channel count; 1 for the capture pipeline.
	Channels int
}

// Provider is the abstraction over any speech-to-text backend.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must propagate context cancellation promptly.
type Provider interface {
	// Transcribe sends the clip to the backend and returns the transcribed
	// text. An empty string with a nil error is a valid result: it means the
	// backend heard no speech. Whitespace trimming is the caller's concern.
	//
	// Returns an error if the request fails or ctx is cancelled before the
	// transcription arrives.
	Transcribe(ctx context.Context, clip Clip) (string, error)
}
