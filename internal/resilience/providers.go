package resilience

import (
	"context"

	"github.com/roundone/Psych/pkg/provider/chat"
	"github.com/roundone/Psych/pkg/provider/stt"
	"github.com/roundone/Psych/pkg/provider/tts"
)

// ChatFailover implements [chat.Provider] with automatic failover across
// multiple chat backends.
type ChatFailover struct {
	group *Group[chat.Provider]
}

var _ chat.Provider = (*ChatFailover)(nil)

// NewChatFailover creates an empty failover chain. Register the primary with
// the first [ChatFailover.Add].
func NewChatFailover(opts ...BreakerOption) *ChatFailover {
	return &ChatFailover{group: NewGroup[chat.Provider](opts...)}
}

// Add registers a backend at the end of the chain.
func (f *ChatFailover) Add(name string, p chat.Provider) {
	f.group.Add(name, p)
}

// Complete sends req to the first healthy backend and returns its reply.
func (f *ChatFailover) Complete(ctx context.Context, req chat.Request) (*chat.Response, error) {
	return Do(f.group, func(p chat.Provider) (*chat.Response, error) {
		return p.Complete(ctx, req)
	})
}

// STTFailover implements [stt.Provider] with automatic failover.
type STTFailover struct {
	group *Group[stt.Provider]
}

var _ stt.Provider = (*STTFailover)(nil)

func NewSTTFailover(opts ...BreakerOption) *STTFailover {
	return &STTFailover{group: NewGroup[stt.Provider](opts...)}
}

func (f *STTFailover) Add(name string, p stt.Provider) {
	f.group.Add(name, p)
}

// Transcribe sends the clip to the first healthy backend.
func (f *STTFailover) Transcribe(ctx context.Context, clip stt.Clip) (string, error) {
	return Do(f.group, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, clip)
	})
}

// TTSFailover implements [tts.Provider] with automatic failover.
type TTSFailover struct {
	group *Group[tts.Provider]
}

var _ tts.Provider = (*TTSFailover)(nil)

func NewTTSFailover(opts ...BreakerOption) *TTSFailover {
	return &TTSFailover{group: NewGroup[tts.Provider](opts...)}
}

func (f *TTSFailover) Add(name string, p tts.Provider) {
	f.group.Add(name, p)
}

// Synthesize speaks text through the first healthy backend.
func (f *TTSFailover) Synthesize(ctx context.Context, text string) (*tts.Clip, error) {
	return Do(f.group, func(p tts.Provider) (*tts.Clip, error) {
		return p.Synthesize(ctx, text)
	})
}
