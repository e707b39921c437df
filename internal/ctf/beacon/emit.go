package beacon

import (
	"errors"

	"ctfbuddy.ai/internal/sim/world"
)

const (
	BeaconSound    = "block.beacon.ambient"
	BeaconParticle = "end_rod"

	// blocksPerVolume is how far one unit of volume carries.
	blocksPerVolume = 16
	columnStep      = 8
	particleCount   = 4
)

var ErrGone = errors.New("flag is gone")

// Emitter advertises the location of a flag.
type Emitter interface {
	Emit(e *world.Entity) error
}

// Surroundings answers what a beacon needs to know about the realm around a flag.
type Surroundings interface {
	PlayersIn(realm string) []*world.Entity
	BuildHeight(realm string) int
}

// Broadcast plays a beacon sound loud enough for the farthest player in the
// realm to hear, plus a particle column from the flag up to build height.
type Broadcast struct {
	Presenter world.Presenter
	World     Surroundings
}

func (b Broadcast) Emit(e *world.Entity) error {
	if e.IsRemoved() {
		return ErrGone
	}
	loc := e.Location()
	volume := 1.0
	for _, p := range b.World.PlayersIn(loc.Realm) {
		if d := p.Location().Pos.Dist(loc.Pos) / blocksPerVolume; d > volume {
			volume = d
		}
	}
	b.Presenter.PlaySound(loc, BeaconSound, volume, 1)

	top := b.World.BuildHeight(loc.Realm)
	for y := loc.Pos.Y; y <= top; y += columnStep {
		at := loc
		at.Pos.Y = y
		b.Presenter.Particles(at, BeaconParticle, particleCount)
	}
	return nil
}
