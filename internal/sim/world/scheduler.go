package world

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrSchedulerRetired = errors.New("scheduler retired")

// Task is the handle of a periodic task. Cancel is meant to be called from
// inside the task's own tick.
type Task interface {
	Cancel()
}

// Scheduler runs periodic tasks for one owner (an entity or a region).
// Ticks of one task never overlap. When the owner is torn down the
// scheduler is retired: no further tick starts and each retired callback runs once.
type Scheduler struct {
	// exec, when set, runs a tick on the owner's goroutine and reports
	// whether it was accepted.
	exec func(fn func()) bool

	mu      sync.Mutex
	retired bool
	tasks   map[*task]struct{}
}

// NewScheduler returns a scheduler. A nil exec runs ticks on the task's own goroutine.
func NewScheduler(exec func(fn func()) bool) *Scheduler {
	return &Scheduler{exec: exec, tasks: map[*task]struct{}{}}
}

type task struct {
	s       *Scheduler
	stop    chan struct{}
	done    atomic.Bool
	once    sync.Once
	retired func()
}

func (t *task) Cancel() { t.finish() }

func (t *task) finish() {
	t.once.Do(func() {
		t.done.Store(true)
		close(t.stop)
		t.s.mu.Lock()
		delete(t.s.tasks, t)
		t.s.mu.Unlock()
		if t.retired != nil {
			t.retired()
		}
	})
}

// RunAtFixedRate starts tick after initial, then every period.
// retired runs exactly once when the task ends, however it ends.
func (s *Scheduler) RunAtFixedRate(initial, period time.Duration, tick func(Task), retired func()) (Task, error) {
	if s == nil {
		return nil, ErrSchedulerRetired
	}
	if period <= 0 {
		period = time.Millisecond
	}
	t := &task{s: s, stop: make(chan struct{}), retired: retired}

	s.mu.Lock()
	if s.retired {
		s.mu.Unlock()
		return nil, ErrSchedulerRetired
	}
	s.tasks[t] = struct{}{}
	s.mu.Unlock()

	go s.loop(t, initial, period, tick)
	return t, nil
}

func (s *Scheduler) loop(t *task, initial, period time.Duration, tick func(Task)) {
	timer := time.NewTimer(initial)
	defer timer.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-timer.C:
		}
		if t.done.Load() {
			return
		}
		if s.exec == nil {
			tick(t)
		} else {
			ran := make(chan struct{})
			accepted := s.exec(func() {
				defer close(ran)
				if !t.done.Load() {
					tick(t)
				}
			})
			if accepted {
				select {
				case <-ran:
				case <-t.stop:
					return
				}
			}
		}
		if t.done.Load() {
			return
		}
		timer.Reset(period)
	}
}

// Retire stops every task and refuses new ones. Retired callbacks have
// returned by the time Retire returns. Retire does not wait for a tick that
// is already running on a task's own goroutine; that tick may finish after
// Retire returns, but no tick starts afterwards.
func (s *Scheduler) Retire() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.retired = true
	pending := make([]*task, 0, len(s.tasks))
	for t := range s.tasks {
		pending = append(pending, t)
	}
	s.mu.Unlock()
	for _, t := range pending {
		t.finish()
	}
}

func (s *Scheduler) Retired() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retired
}

// Active returns the number of running tasks.
func (s *Scheduler) Active() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
