// Package audio defines the microphone and speaker collaborators of the
// interaction engine, plus the 16-bit PCM helpers shared by the capture and
// playback paths.
//
// The two primary abstractions are:
//
//   - [Source]: a blocking microphone reader delivering interleaved int16
//     frames.
//   - [Sink]: a speaker accepting 16-bit little-endian PCM with a write
//     deadline.
//
// Implementations live in adapter packages (e.g. audio/portaudio). This
// package lives under pkg/ because board-specific transports are expected to
// implement [Source] and [Sink] outside this module.
package audio

import (
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "16000Hz mono".
func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// Source is the microphone. Exactly one goroutine reads from a Source at a
// time; the engine's state gate guarantees this, so implementations need not
// be safe for concurrent ReadFrame calls.
type Source interface {
	// Init opens the capture device. Failure is fatal at startup.
	Init() error

	// Deinit releases the capture device.
	Deinit() error

	// ReadFrame blocks until samples are available and fills buf with
	// interleaved int16 samples. It may return fewer samples than len(buf).
	ReadFrame(buf []int16) (int, error)

	// Channels reports the number of interleaved channels per frame.
	Channels() int

	// InputFormat returns an opaque tag describing the channel layout, passed
	// unchanged to the detector's initializer (e.g. "M" or "MR").
	InputFormat() string
}

// Sink is the speaker. Methods may be called from the playback task and the
// engine; implementations must be safe for that, but callers serialise access
// through the playback scheduler's lock.
type Sink interface {
	// Init opens the output device. Failure is fatal at startup.
	Init() error

	// Deinit releases the output device.
	Deinit() error

	// Enable powers the output channel on before a stream.
	Enable() error

	// Disable powers the output channel off after a stream.
	Disable() error

	// Write pushes 16-bit little-endian PCM and returns the number of bytes
	// accepted. It may write partially or time out after timeout.
	Write(p []byte, timeout time.Duration) (int, error)
}
