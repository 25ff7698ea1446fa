// Package resilience provides failover primitives for provider calls.
//
// A [Breaker] is a three-state circuit breaker (closed, open, half-open) that
// stops hammering a backend that keeps failing. A [Group] chains multiple
// instances of a provider type behind per-entry breakers so a failing primary
// is bypassed in favour of healthy fallbacks. [ChatFailover], [STTFailover]
// and [TTSFailover] wrap a Group behind the corresponding provider interface.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] when the breaker is open and the
// cooldown has not yet elapsed.
var ErrOpen = errors.New("resilience: breaker open")

// BreakerState is the current operating mode of a [Breaker].
type BreakerState int

const (
	// StateClosed forwards all calls.
	StateClosed BreakerState = iota
	// StateOpen rejects calls with [ErrOpen] until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultFailLimit  = 5
	defaultCooldown   = 30 * time.Second
	defaultProbeLimit = 3
)

// Breaker is a three-state circuit breaker keyed on consecutive failures.
type Breaker struct {
	name       string
	failLimit  int
	cooldown   time.Duration
	probeLimit int
	clock      func() time.Time

	mu        sync.Mutex
	state     BreakerState
	fails     int
	openedAt  time.Time
	probes    int
	probeWins int
}

// BreakerOption customises a [Breaker].
type BreakerOption func(*Breaker)

// WithFailLimit sets how many consecutive failures open the breaker.
func WithFailLimit(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.failLimit = n
		}
	}
}

// WithCooldown sets how long the breaker stays open before probing again.
func WithCooldown(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithProbeLimit sets how many successful half-open probes close the breaker.
func WithProbeLimit(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.probeLimit = n
		}
	}
}

// WithClock replaces the time source. Used in tests.
func WithClock(fn func() time.Time) BreakerOption {
	return func(b *Breaker) { b.clock = fn }
}

// NewBreaker creates a closed [Breaker]. The name appears in log messages.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:       name,
		failLimit:  defaultFailLimit,
		cooldown:   defaultCooldown,
		probeLimit: defaultProbeLimit,
		clock:      time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Do runs fn if the breaker allows it. In the open state it returns [ErrOpen]
// without calling fn. In the half-open state only probeLimit calls are
// permitted per probe round.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if b.clock().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.probes = 0
		b.probeWins = 0
		slog.Info("breaker half-open", "name", b.name)

	case StateHalfOpen:
		if b.probes >= b.probeLimit {
			b.mu.Unlock()
			return ErrOpen
		}
	}
	probing := b.state == StateHalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	if probing {
		// One failed probe is enough to re-open.
		b.state = StateOpen
		b.openedAt = b.clock()
		b.fails = b.failLimit
		slog.Warn("breaker re-opened", "name", b.name)
		return
	}
	b.fails++
	if b.fails >= b.failLimit {
		b.state = StateOpen
		b.openedAt = b.clock()
		slog.Warn("breaker opened", "name", b.name, "consecutive_failures", b.fails)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		b.probeWins++
		if b.probeWins >= b.probeLimit {
			b.state = StateClosed
			b.fails = 0
			slog.Info("breaker closed", "name", b.name)
		}
		return
	}
	b.fails = 0
}

// State reports the breaker's mode. An open breaker whose cooldown has
// elapsed reports half-open; the transition itself happens on the next Do.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.clock().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.fails = 0
	b.probes = 0
	b.probeWins = 0
}
