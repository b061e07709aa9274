// Package playback streams audio cues to the speaker, one at a time.
//
// A [Scheduler] owns the [audio.Sink]. [Scheduler.StartPlayback] fails with
// [fault.ErrBusy] while a cue is playing; [Scheduler.StopPlayback] is
// synchronous and returns only once the output channel has been disabled.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ada-assistant/ada/internal/fault"
	"github.com/ada-assistant/ada/internal/hwlock"
	"github.com/ada-assistant/ada/internal/observe"
	"github.com/ada-assistant/ada/internal/tasks"
	"github.com/ada-assistant/ada/pkg/audio"
	"github.com/ada-assistant/ada/pkg/volume"
)

const (
	defaultChunkBytes   = 4096
	defaultWriteTimeout = time.Second
	defaultStopPoll     = 100 * time.Millisecond
	defaultLockTimeout  = 500 * time.Millisecond
)

// Cues opens a named cue as 16-bit little-endian PCM in the speaker's
// format. [cue.Store] implements it.
type Cues interface {
	Open(name string) (io.ReadCloser, error)
}

// FinishedFunc is called once per playback when the task ends, including
// after a stop or a failure. err is nil when the cue played to the end or
// was stopped.
type FinishedFunc func(name string, err error)

// Scheduler plays cues on one sink. It is safe for concurrent use.
type Scheduler struct {
	sink    audio.Sink
	cues    Cues
	volume  volume.Reader
	pool    *tasks.Pool
	metrics *observe.Metrics
	lock    *hwlock.Lock

	chunkBytes   int
	writeTimeout time.Duration
	stopPoll     time.Duration
	lockTimeout  time.Duration

	mu       sync.Mutex
	cur      *job
	finished FinishedFunc
}

type job struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithVolume scales every chunk by the reader's current volume. Without it
// cues play at full scale.
func WithVolume(r volume.Reader) Option {
	return func(s *Scheduler) { s.volume = r }
}

// WithChunkBytes sets the write size. Default 4096.
func WithChunkBytes(n int) Option {
	return func(s *Scheduler) {
		if n > 1 {
			s.chunkBytes = n &^ 1
		}
	}
}

// WithWriteTimeout bounds each sink write. Default 1s.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.writeTimeout = d }
}

// WithStopPoll sets how often StopPlayback checks for task completion.
// Default 100ms.
func WithStopPoll(d time.Duration) Option {
	return func(s *Scheduler) { s.stopPoll = d }
}

// WithLockTimeout bounds the wait for the sink lock. Default 500ms.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.lockTimeout = d }
}

// WithPool sets the task pool playback tasks are spawned from.
func WithPool(p *tasks.Pool) Option {
	return func(s *Scheduler) { s.pool = p }
}

// WithMetrics sets the metrics recorder. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New returns a scheduler writing to sink, which must already be
// initialised, and reading cues from cues.
func New(sink audio.Sink, cues Cues, opts ...Option) *Scheduler {
	s := &Scheduler{
		sink:         sink,
		cues:         cues,
		lock:         hwlock.New("speaker"),
		chunkBytes:   defaultChunkBytes,
		writeTimeout: defaultWriteTimeout,
		stopPoll:     defaultStopPoll,
		lockTimeout:  defaultLockTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.pool == nil {
		s.pool = tasks.NewPool(0, tasks.WithMetrics(s.metrics))
	}
	return s
}

// SetFinishedCallback registers fn to be called at the end of every
// playback. A nil fn removes the callback.
func (s *Scheduler) SetFinishedCallback(fn FinishedFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = fn
}

// Playing reports whether a playback task is live.
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// StartPlayback spawns a task streaming the named cue to the speaker.
// Returns an error wrapping [fault.ErrBusy] if a cue is already playing, or
// [fault.ErrSpawn] if no task could be started.
func (s *Scheduler) StartPlayback(name string) error {
	err := s.startLocked(name)
	s.metrics.RecordPlaybackStart(context.Background(), fault.Kind(err))
	if err != nil {
		return fmt.Errorf("playback: start %s: %w", name, err)
	}
	slog.Debug("playback: started", "cue", name)
	return nil
}

func (s *Scheduler) startLocked(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		return fmt.Errorf("%s already playing: %w", s.cur.name, fault.ErrBusy)
	}
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{name: name, ctx: ctx, cancel: cancel, done: make(chan struct{})}
	s.cur = j

	if err := s.pool.Go("playback", func() { s.run(j) }); err != nil {
		s.cur = nil
		cancel()
		close(j.done)
		return err
	}
	return nil
}

// StopPlayback signals the playing task to stop and blocks until it has
// disabled the output channel. Returns an error wrapping
// [fault.ErrInvalidState] when nothing is playing.
func (s *Scheduler) StopPlayback() error {
	s.mu.Lock()
	j := s.cur
	s.mu.Unlock()
	if j == nil {
		return fmt.Errorf("playback: nothing playing: %w", fault.ErrInvalidState)
	}

	j.cancel()
	t := time.NewTicker(s.stopPoll)
	defer t.Stop()
	for {
		select {
		case <-j.done:
			return nil
		default:
		}
		<-t.C
	}
}

// Wait blocks until the current playback, if any, ends or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	j := s.cur
	s.mu.Unlock()
	if j == nil {
		return nil
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(j *job) {
	err := s.play(j)
	if err != nil {
		slog.Warn("playback: cue ended early", "cue", j.name, "err", err)
		if errors.Is(err, fault.ErrHardware) {
			s.metrics.RecordDeviceError(context.Background(), "speaker", fault.Kind(err))
		}
	}

	s.mu.Lock()
	if s.cur == j {
		s.cur = nil
	}
	fn := s.finished
	s.mu.Unlock()
	j.cancel()
	close(j.done)

	if fn != nil {
		fn(j.name, err)
	}
}

// play streams one cue. The sink is enabled and disabled under the speaker
// lock, which is held for the whole stream.
func (s *Scheduler) play(j *job) error {
	src, err := s.cues.Open(j.name)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := s.lock.AcquireContext(j.ctx, s.lockTimeout); err != nil {
		if j.ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer s.lock.Release()

	if err := s.sink.Enable(); err != nil {
		return fault.Hardware("playback: enable", err)
	}
	defer func() {
		if err := s.sink.Disable(); err != nil {
			slog.Warn("playback: disable failed", "err", err)
		}
	}()

	buf := make([]byte, s.chunkBytes)
	for j.ctx.Err() == nil {
		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			if err := s.write(buf[:n&^1]); err != nil {
				return err
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("playback: read %s: %w", j.name, rerr)
		}
	}
	return nil
}

// write pushes one chunk, applying the current volume. A volume of zero
// drops the chunk.
func (s *Scheduler) write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if s.volume != nil {
		v := s.volume.Volume()
		if v == 0 {
			return nil
		}
		audio.ScaleVolume(p, v)
	}
	n, err := s.sink.Write(p, s.writeTimeout)
	if err != nil {
		return fault.Hardware("playback: write", err)
	}
	if n < len(p) {
		return fault.Hardware("playback: write", fmt.Errorf("short write %d of %d bytes", n, len(p)))
	}
	return nil
}
