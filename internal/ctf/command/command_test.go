package command

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"

	"ctfbuddy.ai/internal/ctf/marker"
	"ctfbuddy.ai/internal/ctf/tracker"
	"ctfbuddy.ai/internal/protocol"
	"ctfbuddy.ai/internal/sim/world"
)

type nopPresenter struct{}

func (nopPresenter) PlaySound(world.Location, string, float64, float64)  {}
func (nopPresenter) PlaySoundTo(*world.Entity, string, float64, float64) {}
func (nopPresenter) StopSound(*world.Entity, string)                     {}
func (nopPresenter) ActionBar(*world.Entity, string)                     {}
func (nopPresenter) Message(*world.Entity, string, string)               {}
func (nopPresenter) Particles(world.Location, string, int)               {}
func (nopPresenter) PickupAnimation(*world.Entity, *world.Entity)        {}

func newDispatcher(t *testing.T, ranges TrackingRanges) (*Dispatcher, *world.World) {
	t.Helper()
	w, err := world.New(world.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	t.Cleanup(w.Close)
	cfg := tracker.DefaultConfig()
	cfg.BeaconEnabled = false
	tr := tracker.New(cfg, nopPresenter{}, nil, nil, nil)
	w.AddListener(tr)
	return NewDispatcher(w, tr, ranges, "1.2.0", nil), w
}

func wideRanges() TrackingRanges {
	return TrackingRanges{Players: 128, Animals: 128, Monsters: 128, Misc: 128}
}

func lastLine(r Result) protocol.ResultLine {
	if len(r.Lines) == 0 {
		return protocol.ResultLine{}
	}
	return r.Lines[len(r.Lines)-1]
}

func TestMakeFlagItem(t *testing.T) {
	d, w := newDispatcher(t, wideRanges())
	ctx := context.Background()
	p, _ := w.Join(ctx, "alex", nil)

	res := d.Execute(ctx, p.ID(), "/makeflag item")
	if !res.OK || lastLine(res).Text != "Item in hand set as flag" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !marker.StackIsFlag(p.Equipment().Get(world.SlotMainHand)) {
		t.Fatalf("held banner should be the flag")
	}

	p.Equipment().Set(world.SlotMainHand, nil)
	res = d.Execute(ctx, p.ID(), "makeflag item")
	if res.OK || res.Code != protocol.ErrInvalidTarget || lastLine(res).Text != "Invalid item in hand" || lastLine(res).Color != ColorRed {
		t.Fatalf("empty hand: unexpected result %+v", res)
	}
}

func TestMakeFlagItem_Console(t *testing.T) {
	d, _ := newDispatcher(t, wideRanges())
	res := d.Execute(context.Background(), uuid.Nil, "makeflag item")
	if res.OK || res.Code != protocol.ErrNoPermission {
		t.Fatalf("console cannot hold items: %+v", res)
	}
}

func TestMakeFlagEntity_Target(t *testing.T) {
	d, w := newDispatcher(t, wideRanges())
	ctx := context.Background()
	p, _ := w.Join(ctx, "alex", nil)

	res := d.Execute(ctx, p.ID(), "makeflag entity")
	if res.OK || lastLine(res).Text != "Not looking at a target" {
		t.Fatalf("nothing nearby: %+v", res)
	}

	var sheep *world.Entity
	_ = w.Do(ctx, world.RealmOverworld, func(r *world.Region) {
		sheep = r.SpawnCreature("SHEEP", world.Vec3i{X: 3, Y: 64, Z: 0})
		r.SpawnCreature("PIG", world.Vec3i{X: 9, Y: 64, Z: 0})
	})
	res = d.Execute(ctx, p.ID(), "makeflag entity")
	if !res.OK || lastLine(res).Text != "Entity setup as flag" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !marker.IsFlag(sheep) || !sheep.Glowing() || !sheep.Invulnerable() {
		t.Fatalf("nearest entity should be the flag")
	}
}

func TestMakeFlagEntity_UUID(t *testing.T) {
	d, w := newDispatcher(t, wideRanges())
	ctx := context.Background()

	res := d.Execute(ctx, uuid.Nil, "makeflag entity not-a-uuid")
	if res.OK || lastLine(res).Text != "Invalid UUID" {
		t.Fatalf("bad uuid: %+v", res)
	}
	res = d.Execute(ctx, uuid.Nil, "makeflag entity "+uuid.NewString())
	if res.OK || res.Code != protocol.ErrNotFound || lastLine(res).Text != "Entity not found" {
		t.Fatalf("missing entity: %+v", res)
	}

	var horse *world.Entity
	_ = w.Do(ctx, world.RealmNether, func(r *world.Region) {
		horse = r.SpawnCreature("HORSE", world.Vec3i{X: 1, Y: 64, Z: 1})
	})
	res = d.Execute(ctx, uuid.Nil, "makeflag entity "+horse.ID().String())
	if !res.OK || !marker.IsFlag(horse) {
		t.Fatalf("console may flag by uuid: %+v", res)
	}
}

func TestTrackingRangeWarnings(t *testing.T) {
	d, w := newDispatcher(t, DefaultTrackingRanges())
	ctx := context.Background()
	p, _ := w.Join(ctx, "alex", nil)

	res := d.Execute(ctx, p.ID(), "makeflag item")
	if !res.OK || len(res.Lines) != 2 || res.Lines[0].Color != ColorYellow || !strings.Contains(res.Lines[0].Text, "players") {
		t.Fatalf("expected a players warning first, got %+v", res)
	}

	var creeper *world.Entity
	_ = w.Do(ctx, world.RealmOverworld, func(r *world.Region) {
		creeper = r.SpawnCreature("CREEPER", world.Vec3i{X: 40, Y: 64, Z: 40})
	})
	res = d.Execute(ctx, uuid.Nil, "makeflag entity "+creeper.ID().String())
	if !res.OK || !strings.Contains(lastLine(res).Text, "monsters") {
		t.Fatalf("expected a monsters warning, got %+v", res)
	}
}

func TestUsageAndInfo(t *testing.T) {
	d, _ := newDispatcher(t, wideRanges())
	ctx := context.Background()
	for _, line := range []string{"makeflag", "makeflag hat", "makeflag item extra", "makeflag entity a b"} {
		res := d.Execute(ctx, uuid.Nil, line)
		if res.OK || res.Code != protocol.ErrBadRequest || lastLine(res).Text != Usage {
			t.Fatalf("%q: expected usage, got %+v", line, res)
		}
	}
	res := d.Execute(ctx, uuid.Nil, "ctfbuddy")
	if !res.OK || !strings.Contains(lastLine(res).Text, "1.2.0") {
		t.Fatalf("unexpected info %+v", res)
	}
	if res := d.Execute(ctx, uuid.Nil, "op me"); res.OK || res.Code != protocol.ErrNotFound {
		t.Fatalf("unknown command: %+v", res)
	}
}

func TestComplete(t *testing.T) {
	d, _ := newDispatcher(t, wideRanges())
	cases := map[string][]string{
		"":               {CmdMakeFlag, CmdInfo},
		"make":           {CmdMakeFlag},
		"makeflag ":      {ArgItem, ArgEntity},
		"makeflag e":     {ArgEntity},
		"/makeflag I":    {ArgItem},
		"makeflag item ": {},
	}
	for in, want := range cases {
		if got := d.Complete(in); !reflect.DeepEqual(got, want) {
			t.Fatalf("Complete(%q) = %v, want %v", in, got, want)
		}
	}
}
