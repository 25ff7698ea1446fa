// Package ffplay provides a [playback.Player] backed by the ffplay binary.
//
// Each clip is played by a short-lived subprocess fed over stdin. ffplay
// handles container and codec detection for encoded formats (mp3, wav, opus)
// and accepts raw PCM when told the sample layout explicitly.
package ffplay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/roundone/Psych/pkg/playback"
)

const (
	defaultPCMSampleRate = 24000
	defaultPCMChannels   = 1
)

// Compile-time assertion that Player implements playback.Player.
var _ playback.Player = (*Player)(nil)

// Option is a functional option for configuring a Player.
type Option func(*Player)

// WithPCMFormat sets the sample rate and channel count assumed for raw PCM
// clips (format "pcm_s16le"). Defaults to 24000 Hz mono, the output format of
// the supported speech synthesizers.
func WithPCMFormat(sampleRate, channels int) Option {
	return func(p *Player) {
		if sampleRate > 0 {
			p.pcmSampleRate = sampleRate
		}
		if channels > 0 {
			p.pcmChannels = channels
		}
	}
}

// Player plays audio clips through ffplay. The zero value is not usable;
// construct with [New].
type Player struct {
	pcmSampleRate int
	pcmChannels   int

	mu     sync.Mutex
	closed bool
}

// New creates a Player. It verifies that the ffplay binary is available on
// PATH so a missing installation surfaces at startup rather than on the first
// spoken reply.
func New(opts ...Option) (*Player, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("ffplay: binary not found in PATH (install ffmpeg/ffplay to enable speech playback)")
	}
	p := &Player{
		pcmSampleRate: defaultPCMSampleRate,
		pcmChannels:   defaultPCMChannels,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Play implements [playback.Player]. It launches ffplay, streams the clip to
// its stdin, and waits for playback to finish. Cancelling ctx kills the
// subprocess and returns ctx.Err().
func (p *Player) Play(ctx context.Context, data []byte, format string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("ffplay: player is closed")
	}
	p.mu.Unlock()

	if len(data) == 0 {
		return nil
	}

	args := []string{"-nodisp", "-autoexit", "-loglevel", "error"}
	if format == "pcm_s16le" {
		args = append(args,
			"-f", "s16le",
			"-ar", fmt.Sprintf("%d", p.pcmSampleRate),
			"-ac", fmt.Sprintf("%d", p.pcmChannels),
		)
	}
	args = append(args, "-i", "pipe:0")

	cmd := exec.CommandContext(ctx, "ffplay", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffplay: open stdin pipe: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffplay: start playback process: %w", err)
	}

	if _, err := stdin.Write(data); err != nil {
		_ = stdin.Close()
		_ = cmd.Wait()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffplay: write clip: %w", err)
	}
	if err := stdin.Close(); err != nil {
		_ = cmd.Wait()
		return fmt.Errorf("ffplay: close stdin: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffplay: playback failed: %w", err)
	}
	return nil
}

// Close implements [playback.Player]. Subsequent Play calls return an error.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
