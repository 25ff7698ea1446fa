// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider converts a complete assistant reply into an audio clip ready
// for playback. The interface is batch-oriented: replies are synthesized whole
// once the chat completion finishes.
//
// Implementors must be safe for concurrent use.
package tts

import "context"

// Clip is a synthesized audio clip.
type Clip struct {
	// Data is the encoded audio payload.
	Data []byte

	// Format names the container or codec of Data so the player can decode it
	// (e.g. "mp3", "wav", "pcm_s16le").
	Format string

	// SampleRate in Hz for raw PCM formats; zero for self-describing
	// containers such as mp3 or wav.
	SampleRate int
}

// Provider is the abstraction over any text-to-speech backend.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must propagate context cancellation promptly.
type Provider interface {
	// Synthesize converts text into speech and returns the complete clip.
	//
	// Returns an error if text is empty, the request fails, or ctx is
	// cancelled before synthesis completes.
	Synthesize(ctx context.Context, text string) (*Clip, error)
}
