// Package mock provides a scriptable [wake.Detector] for unit tests.
//
// Push results onto Results to emit wake events; when Results has nothing
// ready, Fetch returns a "still listening" result after FetchDelay.
//
//	det := mock.New()
//	det.Results <- wake.Result{Wake: true, WordIndex: 1}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/ada-assistant/ada/pkg/provider/wake"
)

var _ wake.Detector = (*Detector)(nil)

// Detector is a mock [wake.Detector].
type Detector struct {
	mu sync.Mutex

	// FeedChunk, FetchChunk, Chans and Rate are returned by the matching
	// size accessors.
	FeedChunk  int
	FetchChunk int
	Chans      int
	Rate       int

	// Results delivers scripted fetch results.
	Results chan wake.Result

	// FetchDelay bounds how long Fetch waits for a scripted result before
	// reporting "still listening".
	FetchDelay time.Duration

	// FeedErr and FetchErr are returned by Feed and Fetch when non-nil.
	FeedErr  error
	FetchErr error

	// CallCountFeed and CallCountFetch record calls; FedSamples sums the
	// lengths of fed frames.
	CallCountFeed  int
	CallCountFetch int
	FedSamples     int
}

// New returns a detector with 16 kHz mono, 512-sample chunks and a buffered
// Results channel.
func New() *Detector {
	return &Detector{
		FeedChunk:  512,
		FetchChunk: 512,
		Chans:      1,
		Rate:       16000,
		Results:    make(chan wake.Result, 8),
		FetchDelay: 5 * time.Millisecond,
	}
}

// Feed implements [wake.Detector].
func (d *Detector) Feed(frame []int16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountFeed++
	d.FedSamples += len(frame)
	return d.FeedErr
}

// Fetch implements [wake.Detector].
func (d *Detector) Fetch(ctx context.Context) (wake.Result, error) {
	d.mu.Lock()
	d.CallCountFetch++
	err, delay, results := d.FetchErr, d.FetchDelay, d.Results
	d.mu.Unlock()

	if err != nil {
		return wake.Result{}, err
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case r := <-results:
		return r, nil
	case <-ctx.Done():
		return wake.Result{}, ctx.Err()
	case <-t.C:
		return wake.Result{}, nil
	}
}

// SetFetchErr replaces FetchErr under the mock's lock.
func (d *Detector) SetFetchErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.FetchErr = err
}

// Feeds returns the number of Feed calls so far.
func (d *Detector) Feeds() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CallCountFeed
}

// Fetches returns the number of Fetch calls so far.
func (d *Detector) Fetches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CallCountFetch
}

// FeedChunkSize implements [wake.Detector].
func (d *Detector) FeedChunkSize() int { return d.FeedChunk }

// FetchChunkSize implements [wake.Detector].
func (d *Detector) FetchChunkSize() int { return d.FetchChunk }

// Channels implements [wake.Detector].
func (d *Detector) Channels() int { return d.Chans }

// SampleRate implements [wake.Detector].
func (d *Detector) SampleRate() int { return d.Rate }
