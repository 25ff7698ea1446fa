package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrExhausted is returned when every entry in a [Group] fails or has an open
// breaker.
var ErrExhausted = errors.New("resilience: all providers failed")

type entry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group chains instances of one provider type behind per-entry breakers.
// Entries are tried in the order they were added; an entry with an open
// breaker is skipped. Safe for concurrent use once populated.
type Group[T any] struct {
	entries []entry[T]
	opts    []BreakerOption
}

// NewGroup creates an empty [Group]. The breaker options apply to every entry.
func NewGroup[T any](opts ...BreakerOption) *Group[T] {
	return &Group[T]{opts: opts}
}

// Add appends a provider. The first Add registers the primary.
func (g *Group[T]) Add(name string, v T) {
	g.entries = append(g.entries, entry[T]{
		name:    name,
		value:   v,
		breaker: NewBreaker(name, g.opts...),
	})
}

// Len reports how many providers are registered.
func (g *Group[T]) Len() int { return len(g.entries) }

// Do tries fn against each entry in order until one succeeds. This is a
// package-level function because Go does not support method-level type
// parameters. Returns [ErrExhausted] wrapped with the last error when every
// entry fails.
func Do[T, R any](g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range g.entries {
		e := &g.entries[i]
		var result R
		err := e.breaker.Do(func() error {
			var inner error
			result, inner = fn(e.value)
			return inner
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping provider, breaker open", "provider", e.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", e.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}
