// Package mock provides in-memory mock implementations of the [audio.Device]
// and [audio.Stream] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts, and they expose exported fields that the
// test can set to control return values.
//
// Typical usage:
//
//	frames := make(chan audio.Frame, 16)
//	stream := &mock.Stream{FramesResult: frames}
//	device := &mock.Device{OpenResult: stream}
//	got, err := device.Open(ctx)
package mock

import (
	"context"
	"sync"

	"github.com/roundone/Psych/pkg/audio"
)

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [audio.Stream].
// Set the exported Result fields before use; inspect the Call* fields after.
type Stream struct {
	mu sync.Mutex

	// FramesResult is returned by [Stream.Frames]. Tests feed frames into it
	// and close it to simulate the device shutting down.
	FramesResult chan audio.Frame

	// CloseError is returned by [Stream.Close].
	CloseError error

	// ErrResult is returned by [Stream.Err]. Set it before closing
	// FramesResult to simulate a device that died mid-recording.
	ErrResult error

	// CloseFramesOnClose, when true, makes [Stream.Close] close FramesResult
	// (once), mirroring real streams whose frame channel ends with the device.
	CloseFramesOnClose bool

	// CallCountFrames records how many times Frames was called.
	CallCountFrames int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	closeOnce sync.Once
}

// Frames implements [audio.Stream]. Returns FramesResult.
func (s *Stream) Frames() <-chan audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountFrames++
	return s.FramesResult
}

// Err implements [audio.Stream]. Returns ErrResult.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrResult
}

// Close implements [audio.Stream]. Returns CloseError.
func (s *Stream) Close() error {
	s.mu.Lock()
	s.CallCountClose++
	closeFrames := s.CloseFramesOnClose
	err := s.CloseError
	s.mu.Unlock()
	if closeFrames {
		s.closeOnce.Do(func() { close(s.FramesResult) })
	}
	return err
}

// Push sends a frame into FramesResult. Use this in tests to simulate audio
// arriving from the device.
func (s *Stream) Push(frame audio.Frame) {
	s.FramesResult <- frame
}

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.Device].
type Device struct {
	mu sync.Mutex

	// OpenResult is the [audio.Stream] returned by Open.
	OpenResult audio.Stream

	// OpenError is the error returned by Open.
	OpenError error

	// CallCountOpen records how many times Open was called.
	CallCountOpen int
}

// Open implements [audio.Device]. Records the call and returns OpenResult / OpenError.
func (d *Device) Open(_ context.Context) (audio.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountOpen++
	return d.OpenResult, d.OpenError
}

// Compile-time interface assertions.
var (
	_ audio.Device = (*Device)(nil)
	_ audio.Stream = (*Stream)(nil)
)
