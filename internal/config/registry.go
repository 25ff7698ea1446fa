package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roundone/Psych/pkg/provider/chat"
	"github.com/roundone/Psych/pkg/provider/stt"
	"github.com/roundone/Psych/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factories holds the registered constructors for one provider kind.
type factories[T any] struct {
	mu     sync.RWMutex
	kind   string
	byName map[string]func(ProviderEntry) (T, error)
}

func newFactories[T any](kind string) *factories[T] {
	return &factories[T]{
		kind:   kind,
		byName: make(map[string]func(ProviderEntry) (T, error)),
	}
}

func (f *factories[T]) register(name string, factory func(ProviderEntry) (T, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byName[name] = factory
}

func (f *factories[T]) create(entry ProviderEntry) (T, error) {
	f.mu.RLock()
	factory, ok := f.byName[entry.Name]
	f.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return factory(entry)
}

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	chat *factories[chat.Provider]
	stt  *factories[stt.Provider]
	tts  *factories[tts.Provider]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		chat: newFactories[chat.Provider]("chat"),
		stt:  newFactories[stt.Provider]("stt"),
		tts:  newFactories[tts.Provider]("tts"),
	}
}

// RegisterChat registers a chat provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterChat(name string, factory func(ProviderEntry) (chat.Provider, error)) {
	r.chat.register(name, factory)
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.stt.register(name, factory)
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.tts.register(name, factory)
}

// CreateChat instantiates a chat provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateChat(entry ProviderEntry) (chat.Provider, error) {
	return r.chat.create(entry)
}

// CreateSTT instantiates an STT provider using the factory registered under
// entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return r.stt.create(entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under
// entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return r.tts.create(entry)
}
