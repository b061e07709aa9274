package effects_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/ada-assistant/ada/internal/effects"
	"github.com/ada-assistant/ada/internal/fault"
	"github.com/ada-assistant/ada/internal/observe"
	"github.com/ada-assistant/ada/internal/tasks"
	"github.com/ada-assistant/ada/pkg/led"
	"github.com/ada-assistant/ada/pkg/led/mock"
)

var blue = led.Color{B: 100}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func newScheduler(t *testing.T, strip led.Strip, n int, opts ...effects.Option) *effects.Scheduler {
	t.Helper()
	if err := strip.Init(n); err != nil {
		t.Fatal(err)
	}
	m := testMetrics(t)
	base := []effects.Option{
		effects.WithMetrics(m),
		effects.WithPool(tasks.NewPool(4, tasks.WithMetrics(m))),
		effects.WithMinStep(time.Millisecond),
		effects.WithFrameInterval(5 * time.Millisecond),
	}
	return effects.New(strip, append(base, opts...)...)
}

func waitDone(t *testing.T, e *effects.Effect, within time.Duration) {
	t.Helper()
	select {
	case <-e.Done():
	case <-time.After(within):
		t.Fatalf("%s effect did not finish within %s", e.Kind(), within)
	}
}

func TestSetSolidColorAndClear(t *testing.T) {
	t.Parallel()

	strip := &mock.Strip{}
	s := newScheduler(t, strip, 4)

	if err := s.SetSolidColor(led.Color{R: 9}); err != nil {
		t.Fatal(err)
	}
	for i, c := range strip.Pixels() {
		if c != (led.Color{R: 9}) {
			t.Errorf("pixel %d = %v", i, c)
		}
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if !strip.Dark() {
		t.Error("strip not dark after Clear")
	}
}

func TestBreathingRefreshCountAndFinalClear(t *testing.T) {
	t.Parallel()

	strip := &mock.Strip{KeepFrames: true}
	s := newScheduler(t, strip, 6)

	e, err := s.StartColorBreathing(2, led.Color{R: 255, G: 80}, 200*time.Millisecond, 2)
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, e, 2*time.Second)

	if got := strip.Refreshes(); got != 2*30*2 {
		t.Errorf("refreshes = %d, want 120", got)
	}
	if strip.Clears() != 1 || !strip.Dark() {
		t.Errorf("strip not cleared at the end (clears=%d)", strip.Clears())
	}

	frames := strip.RecordedFrames()
	if frames[0][2] != led.Black {
		t.Errorf("first frame = %v, want black", frames[0][2])
	}
	peak := led.Color{R: 255, G: 80}.Scale(29, 30)
	if frames[29][2] != peak || frames[30][2] != peak {
		t.Errorf("peak frames = %v / %v, want %v", frames[29][2], frames[30][2], peak)
	}
	if frames[29][1] != led.Black {
		t.Error("LED before start index was painted")
	}
	if s.Running() {
		t.Error("scheduler still running after completion")
	}
}

func TestSequentialFadeIn(t *testing.T) {
	t.Parallel()

	strip := &mock.Strip{KeepFrames: true}
	s := newScheduler(t, strip, 10)

	start := time.Now()
	e, err := s.StartSequentialFadeIn(0, blue, 200*time.Millisecond, false)
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, e, 2*time.Second)
	elapsed := time.Since(start)

	p := e.Plan()
	if strip.Refreshes() != p.Frames() {
		t.Errorf("refreshes = %d, want %d", strip.Refreshes(), p.Frames())
	}
	if elapsed < p.Expected*9/10 || elapsed > p.Expected*3 {
		t.Errorf("fade took %s, planned %s", elapsed, p.Expected)
	}

	frames := strip.RecordedFrames()
	if frames[0][0] != blue.Scale(1, p.Steps) || frames[0][1] != led.Black {
		t.Errorf("first frame = %v, want only LED 0 lit at step 1", frames[0])
	}
	for i, c := range strip.Pixels() {
		if c != blue {
			t.Errorf("LED %d = %v after fade-in, want %v", i, c, blue)
		}
	}
}

func TestSequentialFadeOutReverse(t *testing.T) {
	t.Parallel()

	strip := &mock.Strip{KeepFrames: true}
	s := newScheduler(t, strip, 8)

	e, err := s.StartSequentialFadeOut(7, blue, 120*time.Millisecond, true)
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, e, 2*time.Second)

	first := strip.RecordedFrames()[0]
	if first[7] != blue.Scale(7, 8) {
		t.Errorf("LED 7 first frame = %v, want one step down", first[7])
	}
	if first[0] != blue {
		t.Errorf("LED 0 first frame = %v, want held at full colour", first[0])
	}
	if !strip.Dark() {
		t.Errorf("strip not dark after fade-out: %v", strip.Pixels())
	}
}

func TestStartWhileRunningIsBusy(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, &mock.Strip{}, 4)
	e, err := s.StartRainbow()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.StartColorBreathing(0, blue, time.Second, 1); !errors.Is(err, fault.ErrBusy) {
		t.Fatalf("second start: want ErrBusy, got %v", err)
	}
	if err := s.StopEffect(); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e, 100*time.Millisecond)

	if _, err := s.StartColorBreathing(0, blue, 200*time.Millisecond, 1); err != nil {
		t.Fatalf("start after stop: %v", err)
	}
}

func TestStopEffectWithNothingRunning(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, &mock.Strip{}, 4)
	if err := s.StopEffect(); !errors.Is(err, fault.ErrInvalidState) {
		t.Fatalf("want ErrInvalidState, got %v", err)
	}
}

func TestConcurrentStartsAdmitOne(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, &mock.Strip{}, 4)
	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		busy int
	)
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.StartRainbow()
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, fault.ErrBusy), errors.Is(err, fault.ErrTimeout):
				busy++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || busy != racers-1 {
		t.Fatalf("ok=%d busy=%d, want exactly one winner", ok, busy)
	}
	_ = s.StopEffect()
}

func TestStartStopCyclesLeaveOneAlive(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, &mock.Strip{}, 4)
	var prev *effects.Effect
	for i := range 20 {
		var (
			e   *effects.Effect
			err error
		)
		if i%2 == 0 {
			e, err = s.StartRainbow()
		} else {
			e, err = s.StartSequentialFadeIn(0, blue, time.Second, false)
		}
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		if prev != nil {
			select {
			case <-prev.Done():
			default:
				t.Fatalf("cycle %d: previous effect still alive", i)
			}
		}
		if err := s.StopEffect(); err != nil {
			t.Fatalf("cycle %d stop: %v", i, err)
		}
		prev = e
	}
}

func TestEffectStopOnlyAffectsCurrent(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, &mock.Strip{}, 4)
	e, err := s.StartColorBreathing(0, blue, 200*time.Millisecond, 1)
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, e, 2*time.Second)
	if err := e.Stop(); !errors.Is(err, fault.ErrInvalidState) {
		t.Fatalf("Stop on finished effect: want ErrInvalidState, got %v", err)
	}
}

func TestSpawnFailureRollsBack(t *testing.T) {
	t.Parallel()

	strip := &mock.Strip{}
	if err := strip.Init(4); err != nil {
		t.Fatal(err)
	}
	m := testMetrics(t)
	pool := tasks.NewPool(1, tasks.WithMetrics(m))
	release := make(chan struct{})
	if err := pool.Go("occupant", func() { <-release }); err != nil {
		t.Fatal(err)
	}
	s := effects.New(strip, effects.WithMetrics(m), effects.WithPool(pool))

	if _, err := s.StartRainbow(); !errors.Is(err, fault.ErrSpawn) {
		t.Fatalf("want ErrSpawn, got %v", err)
	}
	if s.Running() {
		t.Fatal("running flag not rolled back after spawn failure")
	}

	close(release)
	pool.Wait()
	if _, err := s.StartRainbow(); err != nil {
		t.Fatalf("start after pool drained: %v", err)
	}
	_ = s.StopEffect()
}

func TestInvalidArguments(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, &mock.Strip{}, 4)
	if _, err := s.StartSequentialFadeIn(4, blue, time.Second, false); !errors.Is(err, fault.ErrInvalidArgument) {
		t.Errorf("out-of-range start: want ErrInvalidArgument, got %v", err)
	}
	if _, err := s.StartColorBreathing(0, blue, time.Second, 0); !errors.Is(err, fault.ErrInvalidArgument) {
		t.Errorf("zero cycles: want ErrInvalidArgument, got %v", err)
	}
	if s.Running() {
		t.Error("rejected start left scheduler running")
	}
}

// stuckStrip blocks inside Refresh until released, emulating a hung
// transport call.
type stuckStrip struct {
	mock.Strip
	stuck   chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (s *stuckStrip) Refresh() error {
	s.once.Do(func() { close(s.entered) })
	<-s.stuck
	return s.Strip.Refresh()
}

func TestStopRevokesStuckEffect(t *testing.T) {
	t.Parallel()

	strip := &stuckStrip{stuck: make(chan struct{}), entered: make(chan struct{})}
	s := newScheduler(t, strip, 4,
		effects.WithStopGrace(10*time.Millisecond),
		effects.WithLockTimeout(20*time.Millisecond),
	)

	e, err := s.StartRainbow()
	if err != nil {
		t.Fatal(err)
	}
	<-strip.entered

	if err := s.StopEffect(); err != nil {
		t.Fatalf("StopEffect: %v", err)
	}
	if s.Running() {
		t.Fatal("revoked effect still registered")
	}
	select {
	case <-e.Done():
		t.Fatal("stuck task should still be blocked")
	default:
	}

	close(strip.stuck)
	waitDone(t, e, time.Second)
	refreshes := strip.Refreshes()
	time.Sleep(30 * time.Millisecond)
	if strip.Refreshes() != refreshes {
		t.Error("revoked effect kept drawing")
	}
}

func TestLockTimeout(t *testing.T) {
	t.Parallel()

	strip := &stuckStrip{stuck: make(chan struct{}), entered: make(chan struct{})}
	s := newScheduler(t, strip, 4, effects.WithLockTimeout(20*time.Millisecond))

	go func() { _ = s.SetSolidColor(blue) }()
	<-strip.entered

	if err := s.Clear(); !errors.Is(err, fault.ErrTimeout) {
		t.Errorf("Clear behind held lock: want ErrTimeout, got %v", err)
	}
	if _, err := s.StartRainbow(); !errors.Is(err, fault.ErrTimeout) {
		t.Errorf("StartRainbow behind held lock: want ErrTimeout, got %v", err)
	}
	close(strip.stuck)
}
