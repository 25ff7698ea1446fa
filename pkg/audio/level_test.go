package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/roundone/Psych/pkg/audio"
)

// pcmConstant builds a mono 16-bit PCM buffer where every sample has the
// given value.
func pcmConstant(value int16, samples int) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(value))
	}
	return buf
}

func TestRMSEmptyBuffer(t *testing.T) {
	t.Parallel()

	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := audio.RMS([]byte{0x01}); got != 0 {
		t.Errorf("RMS(1 byte) = %v, want 0", got)
	}
}

func TestRMSConstantSignal(t *testing.T) {
	t.Parallel()

	// A constant signal's RMS equals its absolute amplitude.
	buf := pcmConstant(1000, 160)
	got := audio.RMS(buf)
	if math.Abs(got-1000) > 0.01 {
		t.Errorf("RMS = %v, want 1000", got)
	}

	neg := pcmConstant(-1000, 160)
	got = audio.RMS(neg)
	if math.Abs(got-1000) > 0.01 {
		t.Errorf("RMS of negative signal = %v, want 1000", got)
	}
}

func TestLevelDBSilence(t *testing.T) {
	t.Parallel()

	if got := audio.LevelDB(0); got != audio.SilenceFloorDB {
		t.Errorf("LevelDB(0) = %v, want %v", got, audio.SilenceFloorDB)
	}
	if got := audio.LevelDB(-5); got != audio.SilenceFloorDB {
		t.Errorf("LevelDB(-5) = %v, want %v", got, audio.SilenceFloorDB)
	}
}

func TestLevelDBFullScale(t *testing.T) {
	t.Parallel()

	// Full-scale RMS is 0 dBFS.
	if got := audio.LevelDB(32768); math.Abs(got) > 0.001 {
		t.Errorf("LevelDB(32768) = %v, want 0", got)
	}
}

func TestLevelDBQuietSignalBelowThreshold(t *testing.T) {
	t.Parallel()

	// An RMS of ~100 sits around -50 dBFS, the default silence threshold.
	db := audio.LevelDB(100)
	if db > -50 || db < -51 {
		t.Errorf("LevelDB(100) = %v, want within (-51, -50]", db)
	}
}

func TestLevelDBNeverBelowFloor(t *testing.T) {
	t.Parallel()

	// Tiny but positive RMS values clamp to the floor instead of -Inf.
	if got := audio.LevelDB(1e-9); got != audio.SilenceFloorDB {
		t.Errorf("LevelDB(1e-9) = %v, want %v", got, audio.SilenceFloorDB)
	}
}

func TestFrameLevelDB(t *testing.T) {
	t.Parallel()

	frame := audio.Frame{Data: pcmConstant(3277, 160), SampleRate: 16000, Channels: 1}
	got := audio.FrameLevelDB(frame)
	want := 20 * math.Log10(3277.0/32768.0)
	if math.Abs(got-want) > 0.01 {
		t.Errorf("FrameLevelDB = %v, want %v", got, want)
	}
}

func TestDurationMs(t *testing.T) {
	t.Parallel()

	// 16 kHz mono 16-bit: 32 bytes per millisecond.
	if got := audio.DurationMs(make([]byte, 3200), 16000, 1); got != 100 {
		t.Errorf("DurationMs(3200 bytes) = %d, want 100", got)
	}
	if got := audio.DurationMs(make([]byte, 3200), 0, 1); got != 0 {
		t.Errorf("DurationMs with zero sample rate = %d, want 0", got)
	}
}
