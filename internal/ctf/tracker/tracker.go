// Package tracker keeps the flag alive and identifiable across every way the
// world can destroy, move or replace it.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"

	"ctfbuddy.ai/internal/ctf/marker"
	"ctfbuddy.ai/internal/sim/world"
)

var (
	ErrInvalidTarget  = errors.New("invalid flag target")
	ErrEntityNotFound = errors.New("entity not found")
)

const (
	SoundThrown = "entity.allay.item_thrown"
	SoundGiven  = "entity.allay.item_given"
	SoundEquip  = "item.armor.equip_generic"
	MusicFlag   = "music.dragon"
	// MusicCategory stops every music track when passed to StopSound.
	MusicCategory = "music"

	// carrierHeadDropChance makes creature carriers always drop the flag.
	carrierHeadDropChance = 2.0
)

// Audit actions.
const (
	ActionMarked      = "FLAG_MARKED"
	ActionGrounded    = "FLAG_GROUNDED"
	ActionPickup      = "FLAG_PICKUP"
	ActionCarrierDied = "FLAG_CARRIER_DIED"
	ActionEntityDied  = "FLAG_ENTITY_DIED"
	ActionCarrierQuit = "FLAG_CARRIER_QUIT"
	ActionBlocked     = "FLAG_PORTAL_BLOCKED"
	ActionTransformed = "FLAG_TRANSFORMED"
)

// Beacons registers periodic location beacons.
type Beacons interface {
	Track(e *world.Entity) bool
}

// Tracker reacts to world lifecycle events. Every handler runs synchronously
// on the goroutine of the region that fired the event.
type Tracker struct {
	cfg     Config
	present world.Presenter
	beacons Beacons
	audit   world.AuditLogger
	logger  *log.Logger
}

func New(cfg Config, present world.Presenter, beacons Beacons, audit world.AuditLogger, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Tracker{cfg: cfg, present: present, beacons: beacons, audit: audit, logger: logger}
}

func (t *Tracker) Config() Config { return t.cfg }

func (t *Tracker) HandleEvent(ev world.Event) {
	switch ev := ev.(type) {
	case *world.EntitySpawn:
		t.onSpawn(ev)
	case *world.EntityPickupItem:
		t.onPickup(ev)
	case *world.InventoryPickupItem:
		if marker.Bears(ev.Item) {
			ev.SetCancelled(true)
		}
	case *world.ItemDespawn:
		if marker.Bears(ev.Item) {
			ev.SetCancelled(true)
		}
	case *world.EntityDeath:
		t.onDeath(ev)
	case *world.EntityPortal:
		t.onPortal(ev)
	case *world.PlayerQuit:
		t.onQuit(ev)
	case *world.EntityTarget:
		if marker.IsFlag(ev.Entity) && ev.Entity.Caps().SelfDestruct {
			ev.SetCancelled(true)
		}
	case *world.EntityTransform:
		t.onTransform(ev)
	case *world.RegionLoad:
		for _, e := range ev.Entities {
			if marker.Bears(e) {
				t.ensureBeacon(e)
			}
		}
	}
}

// TrackItem turns stack into the flag item. Stacks without metadata (air) are rejected.
func (t *Tracker) TrackItem(stack *world.ItemStack) error {
	m := stack.ItemMeta()
	if m == nil {
		return ErrInvalidTarget
	}
	stack.AddEnchantment(world.EnchantBindingCurse, 1)
	marker.SetFlag(m)
	m.GlintOverride = true
	m.Unbreakable = true
	m.FireResistant = true
	m.MaxStackSize = 1
	m.Rarity = world.RarityEpic
	return nil
}

// TrackEntity makes e the flag. Run on the goroutine of e's region.
func (t *Tracker) TrackEntity(e *world.Entity) error {
	if e == nil || e.IsRemoved() {
		return ErrInvalidTarget
	}
	marker.SetFlag(e)
	if e.IsItem() {
		if err := t.TrackItem(e.Stack()); err != nil {
			return err
		}
		t.harden(e)
	}
	e.SetGlowing(true)
	e.SetCustomNameVisible(true)
	e.SetInvulnerable(true)
	e.SetPersistent(true)
	e.SetRemoveWhenFarAway(false)
	t.ensureBeacon(e)
	t.record(e, ActionMarked, "")
	return nil
}

// TrackEntityID resolves id in w and makes it the flag.
func (t *Tracker) TrackEntityID(ctx context.Context, w *world.World, id uuid.UUID) error {
	var terr error
	err := w.DoEntity(ctx, id, func(_ *world.Region, e *world.Entity) { terr = t.TrackEntity(e) })
	if errors.Is(err, world.ErrEntityNotFound) {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	if err != nil {
		return err
	}
	return terr
}

func (t *Tracker) ensureBeacon(e *world.Entity) {
	if !t.cfg.BeaconEnabled || t.beacons == nil {
		return
	}
	t.beacons.Track(e)
}

// harden makes a loose flag item indestructible and visible.
func (t *Tracker) harden(e *world.Entity) {
	e.SetUnlimitedLifetime(true)
	e.SetWillAge(false)
	e.SetInvulnerable(true)
	e.SetPersistent(true)
	e.SetGlowing(true)
	e.SetCustomName(e.Stack().DisplayName())
	e.SetCustomNameVisible(true)
	marker.SetFlag(e)
}

func (t *Tracker) onSpawn(ev *world.EntitySpawn) {
	e := ev.Entity
	if !e.IsItem() || !marker.Bears(e) {
		return
	}
	t.harden(e)
	t.record(e, ActionGrounded, "")
	t.present.PlaySound(e.Location(), SoundThrown, 1, 1)
	t.ensureBeacon(e)
}

func (t *Tracker) onPickup(ev *world.EntityPickupItem) {
	item, c := ev.Item, ev.Collector
	if !marker.Bears(item) {
		return
	}
	ev.SetCancelled(true)
	eq := c.Caps().Equipment
	if eq == nil {
		return
	}
	stack := item.Stack()
	marker.SetFlag(stack.ItemMeta())

	t.present.PickupAnimation(c, item)
	ev.Region.Remove(item)
	if prev := eq.SetHead(stack); !prev.IsEmpty() {
		rest := c.Caps().Inventory.Add(prev)
		if rest != nil {
			ev.Region.DropItemNaturally(c.Location().Pos, rest)
		}
	}
	if !c.IsPlayer() {
		eq.SetDropChance(world.SlotHead, carrierHeadDropChance)
	}
	c.SetGlowing(true)
	t.record(c, ActionPickup, "")

	t.present.PlaySound(c.Location(), SoundGiven, 1, 1)
	if c.IsPlayer() {
		t.present.ActionBar(c, "You picked up "+stack.DisplayName())
		t.present.PlaySoundTo(c, SoundEquip, 1, 1)
		t.present.StopSound(c, MusicCategory)
		t.present.PlaySoundTo(c, MusicFlag, 1, 1)
	}
	t.ensureBeacon(c)
}

func (t *Tracker) onDeath(ev *world.EntityDeath) {
	e := ev.Entity
	for _, st := range ev.Drops {
		if marker.StackIsFlag(st) {
			t.release(e)
			t.record(e, ActionCarrierDied, "drops")
			return
		}
	}
	if marker.IsFlag(e) {
		t.record(e, ActionEntityDied, "")
		return
	}
	if ev.KeepInventory && marker.HeadIsFlag(e) {
		head := e.Caps().Equipment.SetHead(nil)
		ev.Region.DropItemNaturally(e.Location().Pos, head)
		t.release(e)
		t.record(e, ActionCarrierDied, "keep_inventory")
	}
}

// release clears the carrier cues once the flag left it.
func (t *Tracker) release(e *world.Entity) {
	e.SetGlowing(false)
	if e.IsPlayer() {
		t.present.StopSound(e, MusicFlag)
	}
}

func (t *Tracker) onPortal(ev *world.EntityPortal) {
	if t.cfg.AllowRestrictedRealm || t.cfg.RestrictedRealm == "" {
		return
	}
	if ev.To.Realm != t.cfg.RestrictedRealm && ev.From.Realm != t.cfg.RestrictedRealm {
		return
	}
	if !marker.Carries(ev.Entity) {
		return
	}
	ev.SetCancelled(true)
	t.record(ev.Entity, ActionBlocked, ev.From.Realm+"->"+ev.To.Realm)
}

func (t *Tracker) onQuit(ev *world.PlayerQuit) {
	p := ev.Player
	if v := p.Vehicle(); v != nil {
		for _, rider := range v.Passengers() {
			if rider != p && marker.Bears(rider) {
				world.Dismount(rider)
			}
		}
	}
	if !marker.HeadIsFlag(p) {
		return
	}
	t.record(p, ActionCarrierQuit, t.cfg.QuitPolicy.String())
	p.SetGlowing(false)
	switch t.cfg.QuitPolicy {
	case QuitDestroyCarrier:
		ev.Region.SetHealth(p, 0)
	default:
		head := p.Caps().Equipment.SetHead(nil)
		ev.Region.DropItemNaturally(p.Location().Pos, head)
	}
}

func (t *Tracker) onTransform(ev *world.EntityTransform) {
	src := ev.Entity
	switch {
	case marker.IsFlag(src):
		for _, succ := range ev.Transformed {
			if err := t.TrackEntity(succ); err != nil {
				t.logger.Printf("transform %s -> %s: %v", src.ID(), succ.ID(), err)
			}
		}
		t.record(src, ActionTransformed, ev.Reason)
	case marker.HeadIsFlag(src):
		for _, succ := range ev.Transformed {
			if !marker.HeadIsFlag(succ) {
				continue
			}
			succ.Caps().Equipment.SetDropChance(world.SlotHead, carrierHeadDropChance)
			succ.SetGlowing(true)
			t.ensureBeacon(succ)
		}
		t.record(src, ActionTransformed, ev.Reason)
	}
}

func (t *Tracker) record(e *world.Entity, action, reason string) {
	loc := e.Location()
	t.logger.Printf("%s entity=%s type=%s realm=%s pos=%v", action, e.ID(), e.Type(), loc.Realm, loc.Pos.ToArray())
	if t.audit == nil {
		return
	}
	var tick uint64
	if r := e.Region(); r != nil {
		tick = r.Tick()
	}
	entry := world.AuditEntry{
		Tick:    tick,
		Actor:   e.ID().String(),
		Action:  action,
		Realm:   loc.Realm,
		Pos:     loc.Pos.ToArray(),
		Reason:  reason,
		Details: map[string]any{"type": e.Type(), "name": e.DisplayName()},
	}
	if err := t.audit.WriteAudit(entry); err != nil {
		t.logger.Printf("audit %s: %v", action, err)
	}
}
