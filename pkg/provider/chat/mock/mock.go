// Package mock provides an in-memory mock implementation of the
// [chat.Provider] interface for use in unit tests.
//
// The mock is safe for concurrent use. It records every Complete call so that
// tests can assert on the requests sent, and exposes exported fields to
// control return values.
//
// Typical usage:
//
//	p := &mock.Provider{CompleteResult: &chat.Response{Content: "Hi there"}}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/roundone/Psych/pkg/provider/chat"
)

// Provider is a mock implementation of [chat.Provider].
// Set the exported Result/Error fields before use; inspect CompleteCalls after.
type Provider struct {
	mu sync.Mutex

	// CompleteResult is returned by [Provider.Complete] when CompleteError is nil.
	// Defaults to an empty response if left nil.
	CompleteResult *chat.Response

	// CompleteError is returned by [Provider.Complete].
	CompleteError error

	// CompleteResults, when non-empty, overrides CompleteResult: each call
	// consumes the next entry, and the last entry repeats once exhausted.
	CompleteResults []*chat.Response

	// CompleteCalls records all Complete invocations.
	CompleteCalls []chat.Request

	callCount int
}

// Complete implements [chat.Provider]. Records the request and returns the
// configured result, or ctx.Err() if the context is already cancelled.
func (p *Provider) Complete(ctx context.Context, req chat.Request) (*chat.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, req)
	p.callCount++
	if p.CompleteError != nil {
		return nil, p.CompleteError
	}
	if len(p.CompleteResults) > 0 {
		idx := p.callCount - 1
		if idx >= len(p.CompleteResults) {
			idx = len(p.CompleteResults) - 1
		}
		return p.CompleteResults[idx], nil
	}
	if p.CompleteResult == nil {
		return &chat.Response{}, nil
	}
	return p.CompleteResult, nil
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.callCount = 0
}

var _ chat.Provider = (*Provider)(nil)
