// Package beacon periodically advertises the location of live flags.
package beacon

import (
	"log"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"ctfbuddy.ai/internal/ctf/marker"
	"ctfbuddy.ai/internal/sim/world"
)

// Scheduler keeps at most one beacon task per flag. A flag is known from the
// moment its task is registered until the task is retired, and a known flag
// is never registered twice.
type Scheduler struct {
	cfg    Config
	emit   Emitter
	known  *KnownSet[uuid.UUID]
	logger *log.Logger
	jitter func(max time.Duration) time.Duration

	mu     sync.Mutex
	sweeps map[string]*sweep
	// owner maps each region-mode flag to the sweep holding it.
	owner map[uuid.UUID]*sweep
}

// sweep is the per-region task used in ModeRegion.
type sweep struct {
	region  *world.Region
	members map[uuid.UUID]*world.Entity
}

func New(cfg Config, emit Emitter, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(os.Stdout, "[beacon] ", log.LstdFlags|log.Lmicroseconds)
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultConfig().Period
	}
	return &Scheduler{
		cfg:    cfg,
		emit:   emit,
		known:  NewKnownSet[uuid.UUID](),
		logger: logger,
		jitter: randomJitter,
		sweeps: map[string]*sweep{},
		owner:  map[uuid.UUID]*sweep{},
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

// Live reports whether e still warrants a beacon.
func Live(e *world.Entity) bool {
	return e != nil && !e.IsRemoved() && marker.Bears(e)
}

// Known reports whether a beacon is registered for id.
func (s *Scheduler) Known(id uuid.UUID) bool { return s.known.Has(id) }

// Len returns the number of registered beacons.
func (s *Scheduler) Len() int { return s.known.Len() }

// Track registers a beacon for e unless one exists already. It reports
// whether a new beacon was registered.
func (s *Scheduler) Track(e *world.Entity) bool {
	if e == nil || e.IsRemoved() {
		return false
	}
	if s.cfg.Mode == ModeRegion {
		return s.trackRegion(e)
	}
	return s.trackEntity(e)
}

func (s *Scheduler) initialDelay() time.Duration {
	return s.cfg.InitialDelay + s.jitter(s.cfg.Jitter)
}

func (s *Scheduler) trackEntity(e *world.Entity) bool {
	id := e.ID()
	if !s.known.Add(id) {
		return false
	}
	_, err := e.Scheduler().RunAtFixedRate(s.initialDelay(), s.cfg.Period,
		func(t world.Task) { s.tick(t, e) },
		func() { s.known.Remove(id) },
	)
	if err != nil {
		s.known.Remove(id)
		s.logger.Printf("beacon %s: %v", id, err)
		return false
	}
	return true
}

func (s *Scheduler) tick(t world.Task, e *world.Entity) {
	if !Live(e) {
		t.Cancel()
		return
	}
	if err := s.emit.Emit(e); err != nil {
		s.logger.Printf("beacon %s: emit: %v", e.ID(), err)
	}
}

// trackRegion adds e to its region's sweep. A registration left behind by
// an earlier instance of the same flag, or by the flag before it changed
// region, is moved over to e.
func (s *Scheduler) trackRegion(e *world.Entity) bool {
	r := e.Region()
	if r == nil {
		return false
	}
	id := e.ID()

	s.mu.Lock()
	if e.IsRemoved() {
		s.mu.Unlock()
		return false
	}
	if prev := s.owner[id]; prev != nil {
		if prev.region == r && prev.members[id] == e {
			s.mu.Unlock()
			return false
		}
		s.forgetLocked(prev, id)
	}
	if !s.known.Add(id) {
		s.mu.Unlock()
		return false
	}
	sw := s.sweeps[r.ID()]
	fresh := sw == nil || sw.region != r
	if fresh {
		sw = &sweep{region: r, members: map[uuid.UUID]*world.Entity{}}
		s.sweeps[r.ID()] = sw
	}
	sw.members[id] = e
	s.owner[id] = sw
	s.mu.Unlock()

	if !fresh {
		return true
	}
	_, err := r.Scheduler().RunAtFixedRate(s.initialDelay(), s.cfg.Period,
		func(t world.Task) { s.sweep(t, sw) },
		func() { s.retireSweep(sw) },
	)
	if err != nil {
		s.logger.Printf("beacon sweep realm=%s: %v", r.ID(), err)
		s.retireSweep(sw)
		return false
	}
	return true
}

// forgetLocked drops id from sw. s.mu must be held.
func (s *Scheduler) forgetLocked(sw *sweep, id uuid.UUID) {
	delete(sw.members, id)
	if s.owner[id] == sw {
		delete(s.owner, id)
		s.known.Remove(id)
	}
}

func (s *Scheduler) sweep(t world.Task, sw *sweep) {
	s.mu.Lock()
	live := make([]*world.Entity, 0, len(sw.members))
	var moved []*world.Entity
	for id, e := range sw.members {
		switch {
		case !Live(e):
			s.forgetLocked(sw, id)
		case e.Region() != sw.region:
			s.forgetLocked(sw, id)
			moved = append(moved, e)
		default:
			live = append(live, e)
		}
	}
	empty := len(sw.members) == 0
	if empty && s.sweeps[sw.region.ID()] == sw {
		delete(s.sweeps, sw.region.ID())
	}
	s.mu.Unlock()

	for _, e := range moved {
		s.Track(e)
	}
	if empty {
		t.Cancel()
		return
	}
	for _, e := range live {
		if err := s.emit.Emit(e); err != nil {
			s.logger.Printf("beacon %s: emit: %v", e.ID(), err)
		}
	}
}

// retireSweep forgets the sweep's members. Live members that moved to another
// region are tracked again there.
func (s *Scheduler) retireSweep(sw *sweep) {
	s.mu.Lock()
	if s.sweeps[sw.region.ID()] == sw {
		delete(s.sweeps, sw.region.ID())
	}
	var moved []*world.Entity
	for id, e := range sw.members {
		s.forgetLocked(sw, id)
		if Live(e) && e.Region() != nil && e.Region() != sw.region {
			moved = append(moved, e)
		}
	}
	s.mu.Unlock()

	for _, e := range moved {
		s.Track(e)
	}
}
