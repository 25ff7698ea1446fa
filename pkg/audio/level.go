package audio

import (
	"encoding/binary"
	"math"
)

// SilenceFloorDB is the level reported for buffers with no measurable energy.
// Using a finite floor keeps threshold comparisons simple: any configured
// silence threshold above -100 dB treats an empty or all-zero buffer as silent.
const SilenceFloorDB = -100.0

// RMS returns the root-mean-square energy of a 16-bit signed little-endian
// PCM buffer. Returns 0 for buffers shorter than one sample.
// The result is expressed in the same units as PCM sample values (0–32 767).
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2 // number of 16-bit samples
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// LevelDB converts an RMS energy value into decibels relative to full scale
// for 16-bit audio: 20·log10(rms/32768). Zero or negative input, or a
// non-finite result, yields [SilenceFloorDB].
func LevelDB(rms float64) float64 {
	if rms <= 0 {
		return SilenceFloorDB
	}
	db := 20 * math.Log10(rms/32768)
	if math.IsInf(db, 0) || math.IsNaN(db) {
		return SilenceFloorDB
	}
	if db < SilenceFloorDB {
		return SilenceFloorDB
	}
	return db
}

// FrameLevelDB returns the level of a frame's PCM data in dBFS.
// Shorthand for LevelDB(RMS(frame.Data)).
func FrameLevelDB(frame Frame) float64 {
	return LevelDB(RMS(frame.Data))
}

// DurationMs returns the playback duration in milliseconds of a 16-bit PCM
// buffer at the given sample rate and channel count. Returns 0 for invalid
// inputs.
func DurationMs(pcm []byte, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * channels * 2
	return len(pcm) * 1000 / bytesPerSec
}
