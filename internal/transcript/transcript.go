// Package transcript defines the conversation log shared by every part of
// Psych.
//
// The log is the single source of truth for what has been said: user turns,
// assistant replies, and day markers that anchor the conversation in time.
// Every mutation is mirrored to a [Store] so the conversation survives
// restarts, and the in-memory ordering is what both the renderer and the chat
// request builder consume.
//
// A [Log] is safe for concurrent use.
package transcript

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Role classifies who produced a message.
type Role string

const (
	// RoleUser marks text typed or spoken by the person at the terminal.
	RoleUser Role = "user"

	// RoleAssistant marks replies produced by the chat model.
	RoleAssistant Role = "assistant"

	// RoleMarker marks bookkeeping entries the log inserts itself, such as
	// day markers. Markers are shown to the model as context but are never
	// treated as conversational turns.
	RoleMarker Role = "marker"
)

// IsValid reports whether the role is one of the known values.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleMarker:
		return true
	}
	return false
}

// Message is a single entry of the conversation log.
type Message struct {
	// Role identifies the author.
	Role Role `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// Timestamp records when the message was appended.
	Timestamp time.Time `json:"timestamp"`
}

// Store persists the full conversation log. Implementations live in
// internal/history; the log mirrors its complete state on every mutation, so
// stores never need to reason about increments.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the persisted conversation in order. A missing or
	// unreadable record yields an empty slice and a nil error; persistence
	// problems must never prevent a session from starting.
	Load(ctx context.Context) ([]Message, error)

	// Save replaces the persisted conversation with messages.
	Save(ctx context.Context, messages []Message) error

	// Clear removes the persisted conversation entirely.
	Clear(ctx context.Context) error
}

// Option is a functional option for configuring a Log.
type Option func(*Log)

// WithClock overrides the time source used for message timestamps and day
// markers. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Log) {
		l.clock = clock
	}
}

// Log is the in-memory conversation with write-through persistence.
type Log struct {
	mu       sync.Mutex
	messages []Message
	store    Store
	clock    func() time.Time
}

// NewLog creates a Log backed by store, seeded with whatever the store has
// persisted. store must be non-nil.
func NewLog(ctx context.Context, store Store, opts ...Option) (*Log, error) {
	if store == nil {
		return nil, fmt.Errorf("transcript: store must not be nil")
	}
	l := &Log{
		store: store,
		clock: time.Now,
	}
	for _, o := range opts {
		o(l)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("transcript: load history: %w", err)
	}
	l.messages = loaded
	return l, nil
}

// Append adds a message with the given role and content, stamps it with the
// current time, and mirrors the full log to the store. When role is RoleUser
// and the calendar day differs from that of the last logged message (of any
// role), a day marker is inserted immediately before it so the model knows
// the conversation has crossed into a new day.
//
// Returns the messages that were added (marker included, in order). A store
// failure does not roll back the in-memory append; the error is returned so
// the caller can surface it.
func (l *Log) Append(ctx context.Context, role Role, content string) ([]Message, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("transcript: invalid role %q", role)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	var added []Message

	if role == RoleUser && l.startsNewDayLocked(now) {
		added = append(added, Message{
			Role:      RoleMarker,
			Content:   dayMarkerText(now),
			Timestamp: now,
		})
	}
	added = append(added, Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})

	l.messages = append(l.messages, added...)

	if err := l.store.Save(ctx, l.snapshotLocked()); err != nil {
		return added, fmt.Errorf("transcript: persist history: %w", err)
	}
	return added, nil
}

// Messages returns a copy of the conversation in order.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Len returns the number of messages in the log.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// Clear empties the conversation and removes the persisted record.
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = nil
	if err := l.store.Clear(ctx); err != nil {
		return fmt.Errorf("transcript: clear history: %w", err)
	}
	return nil
}

// snapshotLocked copies the message slice. Callers must hold mu.
func (l *Log) snapshotLocked() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// startsNewDayLocked reports whether now falls on a different calendar day
// than the last logged message of any role. An empty log counts as a new day
// so the first message of a conversation is anchored in time. Callers must
// hold mu.
func (l *Log) startsNewDayLocked(now time.Time) bool {
	if len(l.messages) == 0 {
		return true
	}
	return !sameDay(l.messages[len(l.messages)-1].Timestamp, now)
}

// sameDay reports whether a and b fall on the same local calendar date.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// dayMarkerText renders the marker content inserted before the first user
// message of a day, e.g. "It is now 3:04 PM, on Monday, January 2, 2006."
func dayMarkerText(now time.Time) string {
	return fmt.Sprintf("It is now %s, on %s.",
		now.Format("3:04 PM"),
		now.Format("Monday, January 2, 2006"),
	)
}
