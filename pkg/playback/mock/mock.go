// Package mock provides an in-memory mock implementation of the
// [playback.Player] interface for use in unit tests.
//
// The mock is safe for concurrent use. It records every Play call so that
// tests can assert on the clips that would have been played, and exposes
// exported fields to control return values.
package mock

import (
	"context"
	"sync"

	"github.com/roundone/Psych/pkg/playback"
)

// PlayCall records the arguments of a single [Player.Play] invocation.
type PlayCall struct {
	// Data is the audio clip passed to Play.
	Data []byte
	// Format is the format label passed to Play.
	Format string
}

// Player is a mock implementation of [playback.Player].
// Set the exported Err fields before use; inspect the Call* fields after.
type Player struct {
	mu sync.Mutex

	// PlayError is returned by [Player.Play].
	PlayError error

	// CloseError is returned by [Player.Close].
	CloseError error

	// PlayCalls records all Play invocations.
	PlayCalls []PlayCall

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Play implements [playback.Player]. Records the call and returns PlayError,
// or ctx.Err() if the context is already cancelled.
func (p *Player) Play(ctx context.Context, data []byte, format string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	clip := make([]byte, len(data))
	copy(clip, data)
	p.PlayCalls = append(p.PlayCalls, PlayCall{Data: clip, Format: format})
	return p.PlayError
}

// Close implements [playback.Player]. Returns CloseError.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountClose++
	return p.CloseError
}

// Reset clears all recorded calls.
func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls = nil
	p.CallCountClose = 0
}

var _ playback.Player = (*Player)(nil)
