// Package mock provides an in-memory mock implementation of the
// [tts.Provider] interface for use in unit tests.
//
// The mock is safe for concurrent use. It records every Synthesize call so
// that tests can assert on the spoken text, and exposes exported fields to
// control return values.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/roundone/Psych/pkg/provider/tts"
)

// Provider is a mock implementation of [tts.Provider].
// Set the exported Result/Error fields before use; inspect SynthesizeCalls after.
type Provider struct {
	mu sync.Mutex

	// SynthesizeResult is returned by [Provider.Synthesize] when
	// SynthesizeError is nil. Defaults to a one-byte mp3 clip if left nil.
	SynthesizeResult *tts.Clip

	// SynthesizeError is returned by [Provider.Synthesize].
	SynthesizeError error

	// SynthesizeCalls records the text of all Synthesize invocations.
	SynthesizeCalls []string
}

// Synthesize implements [tts.Provider]. Records the text and returns the
// configured result, or ctx.Err() if the context is already cancelled.
// Like the real backends, empty text is rejected.
func (p *Provider) Synthesize(ctx context.Context, text string) (*tts.Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, errors.New("mock: text must not be empty")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, text)
	if p.SynthesizeError != nil {
		return nil, p.SynthesizeError
	}
	if p.SynthesizeResult == nil {
		return &tts.Clip{Data: []byte{0x00}, Format: "mp3"}, nil
	}
	return p.SynthesizeResult, nil
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

var _ tts.Provider = (*Provider)(nil)
