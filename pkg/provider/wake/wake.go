// Package wake defines the wake-phrase detector collaborator.
//
// A Detector consumes fixed-size audio frames through [Detector.Feed] (called
// from the engine's feed loop) and reports wake events through
// [Detector.Fetch] (called from the detect loop). Feed and Fetch are called
// from different goroutines; implementations must be safe for that.
package wake

import "context"

// Result is the outcome of one [Detector.Fetch] call.
type Result struct {
	// Wake is true when the trigger phrase was recognised in the fetched
	// window. When false the detector is still listening.
	Wake bool

	// ModelIndex identifies which loaded model fired.
	ModelIndex int

	// WordIndex identifies which phrase of that model fired.
	WordIndex int
}

// Detector is an opaque wake-phrase detector.
type Detector interface {
	// Feed hands one frame of interleaved int16 samples to the detector.
	// len(frame) is FeedChunkSize()*Channels().
	Feed(frame []int16) error

	// Fetch blocks until the detector has processed one fetch window and
	// returns the result. It returns ctx.Err() when ctx is done first.
	Fetch(ctx context.Context) (Result, error)

	// FeedChunkSize is the number of samples per channel Feed expects.
	FeedChunkSize() int

	// FetchChunkSize is the number of samples per channel analysed per Fetch.
	FetchChunkSize() int

	// Channels is the number of interleaved channels Feed expects.
	Channels() int

	// SampleRate is the detector's expected input rate in Hz.
	SampleRate() int
}
