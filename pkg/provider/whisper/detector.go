package whisper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ada-assistant/ada/pkg/audio"
	"github.com/ada-assistant/ada/pkg/provider/wake"
)

var _ wake.Detector = (*Detector)(nil)

const (
	defaultFeedChunk  = 512
	defaultFetchChunk = 8000 // 500 ms
	defaultWindow     = 2 * SampleRate
	defaultFluxRatio  = 1.75
	defaultFluxFloor  = 1.0
	defaultGateHold   = 4
)

// Detector implements [wake.Detector] with whisper transcription and fuzzy
// phrase matching. Fed audio accumulates in a sliding window; every fetch
// chunk of new audio is checked by a spectral-flux gate, and only while the
// gate is open is the window transcribed and searched for a wake phrase.
type Detector struct {
	infer    func([]float32) (string, error)
	matcher  *PhraseMatcher
	gate     *fluxGate
	channels int
	feed     int
	fetch    int
	window   int

	mu     sync.Mutex
	buf    []int16
	fresh  int
	ready  chan struct{}
}

// DetectorOption configures a [Detector].
type DetectorOption func(*Detector)

// WithChannels sets the interleaved channel count of fed frames. Only
// channel 0 is analysed.
func WithChannels(n int) DetectorOption {
	return func(d *Detector) { d.channels = n }
}

// WithChunkSizes sets the feed and fetch chunk sizes in samples per channel.
func WithChunkSizes(feed, fetch int) DetectorOption {
	return func(d *Detector) { d.feed, d.fetch = feed, fetch }
}

// WithWindow sets how many recent samples are transcribed per inference.
func WithWindow(samples int) DetectorOption {
	return func(d *Detector) { d.window = samples }
}

// NewDetector returns a detector listening for phrases with model.
func NewDetector(model *Model, phrases []string, opts ...DetectorOption) (*Detector, error) {
	if model == nil {
		return nil, errors.New("whisper: detector requires a model")
	}
	return newDetector(model.transcribe, phrases, opts...)
}

func newDetector(infer func([]float32) (string, error), phrases []string, opts ...DetectorOption) (*Detector, error) {
	if len(phrases) == 0 {
		return nil, errors.New("whisper: at least one wake phrase is required")
	}
	d := &Detector{
		infer:    infer,
		matcher:  NewPhraseMatcher(phrases),
		gate:     newFluxGate(defaultFluxRatio, defaultFluxFloor, defaultGateHold),
		channels: 1,
		feed:     defaultFeedChunk,
		fetch:    defaultFetchChunk,
		window:   defaultWindow,
		ready:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(d)
	}
	if d.feed <= 0 || d.fetch <= 0 || d.window < d.fetch {
		return nil, fmt.Errorf("whisper: invalid chunk sizes feed=%d fetch=%d window=%d", d.feed, d.fetch, d.window)
	}
	d.buf = make([]int16, 0, d.window)
	return d, nil
}

// Feed implements [wake.Detector].
func (d *Detector) Feed(frame []int16) error {
	mono := audio.FirstChannel(make([]int16, len(frame)/max(d.channels, 1)), frame, d.channels)

	d.mu.Lock()
	d.buf = append(d.buf, mono...)
	if over := len(d.buf) - d.window; over > 0 {
		d.buf = d.buf[:copy(d.buf, d.buf[over:])]
	}
	d.fresh += len(mono)
	ready := d.fresh >= d.fetch
	d.mu.Unlock()

	if ready {
		select {
		case d.ready <- struct{}{}:
		default:
		}
	}
	return nil
}

// Fetch implements [wake.Detector]. It blocks until a fetch chunk of new
// audio has been fed.
func (d *Detector) Fetch(ctx context.Context) (wake.Result, error) {
	for {
		d.mu.Lock()
		if d.fresh >= d.fetch {
			d.fresh -= d.fetch
			chunk := append([]int16(nil), d.buf[len(d.buf)-d.fetch:]...)
			window := toFloat32(d.buf)
			d.mu.Unlock()
			return d.evaluate(chunk, window)
		}
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return wake.Result{}, ctx.Err()
		case <-d.ready:
		}
	}
}

func (d *Detector) evaluate(chunk []int16, window []float32) (wake.Result, error) {
	if !d.gate.observe(chunk) {
		return wake.Result{}, nil
	}
	text, err := d.infer(window)
	if err != nil {
		return wake.Result{}, err
	}
	idx, score, ok := d.matcher.Match(text)
	if !ok {
		slog.Debug("whisper: no wake phrase", "text", text)
		return wake.Result{}, nil
	}
	slog.Debug("whisper: wake phrase matched", "text", text, "phrase", idx, "score", score)

	// Drop the matched audio so the same utterance cannot fire twice.
	d.mu.Lock()
	d.buf = d.buf[:0]
	d.fresh = 0
	d.mu.Unlock()
	d.gate.reset()
	return wake.Result{Wake: true, ModelIndex: 0, WordIndex: idx}, nil
}

// FeedChunkSize implements [wake.Detector].
func (d *Detector) FeedChunkSize() int { return d.feed }

// FetchChunkSize implements [wake.Detector].
func (d *Detector) FetchChunkSize() int { return d.fetch }

// Channels implements [wake.Detector].
func (d *Detector) Channels() int { return d.channels }

// SampleRate implements [wake.Detector].
func (d *Detector) SampleRate() int { return SampleRate }
