package world

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", d)
}

func TestScheduler_TicksAreSequential(t *testing.T) {
	s := NewScheduler(nil)
	var running, overlap, ticks atomic.Int32
	_, err := s.RunAtFixedRate(0, time.Millisecond, func(Task) {
		if running.Add(1) > 1 {
			overlap.Add(1)
		}
		time.Sleep(3 * time.Millisecond)
		running.Add(-1)
		ticks.Add(1)
	}, nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return ticks.Load() >= 5 })
	s.Retire()
	if overlap.Load() != 0 {
		t.Fatalf("ticks overlapped %d times", overlap.Load())
	}
}

func TestScheduler_CancelFromTickRunsRetiredOnce(t *testing.T) {
	s := NewScheduler(nil)
	var ticks, retired atomic.Int32
	_, err := s.RunAtFixedRate(0, time.Millisecond, func(task Task) {
		if ticks.Add(1) == 3 {
			task.Cancel()
			task.Cancel()
		}
	}, func() { retired.Add(1) })
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return retired.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	if ticks.Load() != 3 {
		t.Fatalf("expected 3 ticks, got %d", ticks.Load())
	}
	s.Retire()
	if retired.Load() != 1 {
		t.Fatalf("retired ran %d times", retired.Load())
	}
	if s.Active() != 0 {
		t.Fatalf("expected no active tasks")
	}
}

func TestScheduler_RetireIsSynchronousAndFinal(t *testing.T) {
	s := NewScheduler(nil)
	var retired atomic.Int32
	if _, err := s.RunAtFixedRate(time.Hour, time.Hour, func(Task) {}, func() { retired.Add(1) }); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	s.Retire()
	if retired.Load() != 1 {
		t.Fatalf("retired callback must have run before Retire returns")
	}
	if _, err := s.RunAtFixedRate(0, time.Millisecond, func(Task) {}, nil); !errors.Is(err, ErrSchedulerRetired) {
		t.Fatalf("expected ErrSchedulerRetired, got %v", err)
	}
}

func TestScheduler_RetireDuringTickStartsNoMore(t *testing.T) {
	s := NewScheduler(nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	var ticks, retired atomic.Int32
	_, err := s.RunAtFixedRate(0, time.Millisecond, func(Task) {
		if ticks.Add(1) == 1 {
			close(entered)
			<-release
		}
	}, func() { retired.Add(1) })
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	<-entered
	s.Retire()
	if retired.Load() != 1 {
		t.Fatalf("retired callback must run while the tick is still in flight")
	}
	close(release)
	time.Sleep(20 * time.Millisecond)
	if ticks.Load() != 1 {
		t.Fatalf("no tick may start after Retire, got %d", ticks.Load())
	}
}

func TestScheduler_ExecRejectedSkipsTick(t *testing.T) {
	var offered atomic.Int32
	s := NewScheduler(func(fn func()) bool {
		offered.Add(1)
		return false
	})
	var ticks atomic.Int32
	if _, err := s.RunAtFixedRate(0, time.Millisecond, func(Task) { ticks.Add(1) }, nil); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	waitFor(t, time.Second, func() bool { return offered.Load() >= 3 })
	s.Retire()
	if ticks.Load() != 0 {
		t.Fatalf("rejected ticks must not run")
	}
}
