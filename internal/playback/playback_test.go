package playback_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/ada-assistant/ada/internal/fault"
	"github.com/ada-assistant/ada/internal/observe"
	"github.com/ada-assistant/ada/internal/playback"
	"github.com/ada-assistant/ada/internal/tasks"
	"github.com/ada-assistant/ada/pkg/audio"
	"github.com/ada-assistant/ada/pkg/audio/mock"
	"github.com/ada-assistant/ada/pkg/cue"
	"github.com/ada-assistant/ada/pkg/volume"
)

// finishLog collects finished-callback invocations.
type finishLog struct {
	mu    sync.Mutex
	calls []error
	ch    chan error
}

func newFinishLog() *finishLog { return &finishLog{ch: make(chan error, 16)} }

func (f *finishLog) fn(_ string, err error) {
	f.mu.Lock()
	f.calls = append(f.calls, err)
	f.mu.Unlock()
	f.ch <- err
}

func (f *finishLog) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-f.ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("finished callback not called")
		return nil
	}
}

func (f *finishLog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func pcm(samples int, value int16) []byte {
	p := make([]byte, samples*2)
	for i := range samples {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(value))
	}
	return p
}

func newStore(t *testing.T, files map[string][]byte) *cue.Store {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, data := range files {
		if err := afero.WriteFile(fs, "/cues/"+name, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return cue.NewStore(fs, "/cues", audio.Format{SampleRate: 16000, Channels: 1})
}

func newScheduler(t *testing.T, sink *mock.Sink, store *cue.Store, opts ...playback.Option) *playback.Scheduler {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	base := []playback.Option{
		playback.WithMetrics(m),
		playback.WithPool(tasks.NewPool(4, tasks.WithMetrics(m))),
		playback.WithStopPoll(5 * time.Millisecond),
	}
	return playback.New(sink, store, append(base, opts...)...)
}

func TestPlaysWholeCue(t *testing.T) {
	t.Parallel()

	data := pcm(5000, 1200)
	sink := &mock.Sink{}
	s := newScheduler(t, sink, newStore(t, map[string][]byte{"ack.pcm": data}))
	log := newFinishLog()
	s.SetFinishedCallback(log.fn)

	if err := s.StartPlayback("ack.pcm"); err != nil {
		t.Fatal(err)
	}
	if err := log.wait(t); err != nil {
		t.Fatalf("finished with %v", err)
	}

	if !bytes.Equal(sink.Bytes(), data) {
		t.Errorf("wrote %d bytes, want %d", len(sink.Bytes()), len(data))
	}
	if got, want := sink.Writes(), 3; got != want {
		t.Errorf("writes = %d, want %d (4096-byte chunks)", got, want)
	}
	if sink.Enabled() {
		t.Error("output left enabled")
	}
	if s.Playing() {
		t.Error("still playing after finish")
	}
}

func TestStartWhilePlayingIsBusy(t *testing.T) {
	t.Parallel()

	sink := &mock.Sink{WriteDelay: 20 * time.Millisecond}
	s := newScheduler(t, sink, newStore(t, map[string][]byte{"long.pcm": pcm(200000, 5)}))
	log := newFinishLog()
	s.SetFinishedCallback(log.fn)

	if err := s.StartPlayback("long.pcm"); err != nil {
		t.Fatal(err)
	}
	if err := s.StartPlayback("long.pcm"); !errors.Is(err, fault.ErrBusy) {
		t.Fatalf("second start: want ErrBusy, got %v", err)
	}

	if err := s.StopPlayback(); err != nil {
		t.Fatal(err)
	}
	if sink.Enabled() {
		t.Error("StopPlayback returned with output enabled")
	}
	if s.Playing() {
		t.Error("still playing after StopPlayback")
	}
	if err := log.wait(t); err != nil {
		t.Errorf("stopped playback finished with %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if log.count() != 1 {
		t.Errorf("finished callback called %d times, want 1", log.count())
	}
	if len(sink.Bytes()) >= 400000 {
		t.Error("stop did not cut the cue short")
	}
}

func TestStopPlaybackWhenIdle(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, &mock.Sink{}, newStore(t, nil))
	if err := s.StopPlayback(); !errors.Is(err, fault.ErrInvalidState) {
		t.Fatalf("want ErrInvalidState, got %v", err)
	}
}

func TestVolume(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		volume uint8
		want   int16
		writes bool
	}{
		{name: "full", volume: 100, want: 1000, writes: true},
		{name: "half", volume: 50, want: 500, writes: true},
		{name: "muted drops chunks", volume: 0, writes: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sink := &mock.Sink{}
			s := newScheduler(t, sink, newStore(t, map[string][]byte{"c.pcm": pcm(3000, 1000)}),
				playback.WithVolume(volume.Fixed(tt.volume)))
			log := newFinishLog()
			s.SetFinishedCallback(log.fn)

			if err := s.StartPlayback("c.pcm"); err != nil {
				t.Fatal(err)
			}
			if err := log.wait(t); err != nil {
				t.Fatalf("finished with %v", err)
			}

			out := sink.Bytes()
			if !tt.writes {
				if sink.Writes() != 0 || len(out) != 0 {
					t.Errorf("muted playback wrote %d times", sink.Writes())
				}
				return
			}
			if len(out) != 6000 {
				t.Fatalf("wrote %d bytes, want 6000", len(out))
			}
			if got := int16(binary.LittleEndian.Uint16(out[100:])); got != tt.want {
				t.Errorf("sample = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPlaybackFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sink *mock.Sink
		cue  string
		want error
	}{
		{name: "missing cue", sink: &mock.Sink{}, cue: "nope.pcm", want: cue.ErrNotFound},
		{name: "write error", sink: &mock.Sink{WriteErr: errors.New("i2s: dma")}, cue: "c.pcm", want: fault.ErrHardware},
		{name: "short write", sink: &mock.Sink{ShortWrite: 100}, cue: "c.pcm", want: fault.ErrHardware},
		{name: "enable error", sink: &mock.Sink{EnableErr: errors.New("codec off")}, cue: "c.pcm", want: fault.ErrHardware},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newScheduler(t, tt.sink, newStore(t, map[string][]byte{"c.pcm": pcm(5000, 7)}))
			log := newFinishLog()
			s.SetFinishedCallback(log.fn)

			if err := s.StartPlayback(tt.cue); err != nil {
				t.Fatal(err)
			}
			if err := log.wait(t); !errors.Is(err, tt.want) {
				t.Errorf("finished with %v, want %v", err, tt.want)
			}
			if tt.sink.Enabled() {
				t.Error("output left enabled")
			}
			if s.Playing() {
				t.Error("still playing after failure")
			}
		})
	}
}

func TestSpawnFailureRollsBack(t *testing.T) {
	t.Parallel()

	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	pool := tasks.NewPool(1, tasks.WithMetrics(m))
	release := make(chan struct{})
	if err := pool.Go("occupant", func() { <-release }); err != nil {
		t.Fatal(err)
	}
	defer close(release)

	s := playback.New(&mock.Sink{}, newStore(t, map[string][]byte{"c.pcm": pcm(10, 1)}),
		playback.WithMetrics(m), playback.WithPool(pool))
	if err := s.StartPlayback("c.pcm"); !errors.Is(err, fault.ErrSpawn) {
		t.Fatalf("want ErrSpawn, got %v", err)
	}
	if s.Playing() {
		t.Error("playing flag not rolled back")
	}
}
