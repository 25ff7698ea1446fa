// Package mock provides an in-memory mock implementation of the
// [stt.Provider] interface for use in unit tests.
//
// The mock is safe for concurrent use. It records every Transcribe call so
// that tests can assert on the submitted clips, and exposes exported fields
// to control return values.
package mock

import (
	"context"
	"sync"

	"github.com/roundone/Psych/pkg/provider/stt"
)

// Provider is a mock implementation of [stt.Provider].
// Set the exported Result/Error fields before use; inspect TranscribeCalls after.
type Provider struct {
	mu sync.Mutex

	// TranscribeResult is returned by [Provider.Transcribe] when
	// TranscribeError is nil.
	TranscribeResult string

	// TranscribeError is returned by [Provider.Transcribe].
	TranscribeError error

	// TranscribeCalls records the clips of all Transcribe invocations.
	TranscribeCalls []stt.Clip
}

// Transcribe implements [stt.Provider]. Records the clip and returns the
// configured result, or ctx.Err() if the context is already cancelled.
func (p *Provider) Transcribe(ctx context.Context, clip stt.Clip) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = append(p.TranscribeCalls, clip)
	if p.TranscribeError != nil {
		return "", p.TranscribeError
	}
	return p.TranscribeResult, nil
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

var _ stt.Provider = (*Provider)(nil)
