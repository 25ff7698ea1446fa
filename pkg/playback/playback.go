// Package playback defines the interface for playing synthesized speech
// through the local audio output.
//
// Implementations are provided by adapter packages (playback/ffplay for a real
// speaker, playback/mock for tests). The interface accepts whole audio clips
// rather than streams because the chat loop synthesizes complete replies.
package playback

import "context"

// Player plays audio clips through the local output device.
//
// Implementations must be safe for concurrent use, though callers are expected
// to play one clip at a time.
type Player interface {
	// Play blocks until the clip has finished playing, ctx is cancelled, or an
	// error occurs. data is a complete encoded audio clip; format names its
	// container or codec (e.g. "mp3", "pcm_s16le", "wav") so the player can
	// decode it correctly.
	Play(ctx context.Context, data []byte, format string) error

	// Close releases the output device. Safe to call more than once.
	Close() error
}
