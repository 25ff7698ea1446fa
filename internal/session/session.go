// Package session holds the per-run user state: the resolved API credential,
// the active input mode, and whether replies are spoken aloud.
//
// The state lives in one [Session] value owned by the app instead of package
// globals, so tests can run sessions side by side and the credential never
// leaks into persisted history.
package session

import (
	"errors"
	"os"
	"sync"
)

// Environment variables consulted for the API credential, in order.
const (
	EnvAPIKey         = "PSYCH_API_KEY"
	EnvFallbackAPIKey = "OPENAI_API_KEY"
)

// ErrCredentialMissing is returned when no API key can be resolved from
// configuration or the environment.
var ErrCredentialMissing = errors.New("session: no API key configured (set PSYCH_API_KEY)")

// Mode selects how user turns are entered.
type Mode string

const (
	// ModeText reads turns from the terminal prompt.
	ModeText Mode = "text"

	// ModeVoice records turns from the microphone.
	ModeVoice Mode = "voice"
)

// IsValid reports whether the mode is one of the known values.
func (m Mode) IsValid() bool {
	return m == ModeText || m == ModeVoice
}

// Session is the mutable per-run state. Safe for concurrent use.
type Session struct {
	mu     sync.Mutex
	apiKey string
	mode   Mode
	speak  bool
}

// New creates a Session with the given credential and defaults: text input,
// spoken replies enabled.
func New(apiKey string) *Session {
	return &Session{
		apiKey: apiKey,
		mode:   ModeText,
		speak:  true,
	}
}

// ResolveAPIKey returns the credential to use: configured wins, otherwise the
// PSYCH_API_KEY then OPENAI_API_KEY environment variables. Returns
// ErrCredentialMissing when none is set.
func ResolveAPIKey(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		return v, nil
	}
	if v := os.Getenv(EnvFallbackAPIKey); v != "" {
		return v, nil
	}
	return "", ErrCredentialMissing
}

// APIKey returns the resolved credential.
func (s *Session) APIKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKey
}

// Mode returns the active input mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches the input mode. Unknown modes are rejected.
func (s *Session) SetMode(m Mode) error {
	if !m.IsValid() {
		return errors.New("session: unknown mode " + string(m))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
	return nil
}

// Speak reports whether assistant replies are synthesized and played.
func (s *Session) Speak() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speak
}

// SetSpeak toggles spoken replies.
func (s *Session) SetSpeak(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speak = on
}
