package world

import (
	"github.com/google/uuid"

	"ctfbuddy.ai/internal/persistence/snapshot"
)

// Export captures the non-player entities of the region. Run on the region goroutine.
func (r *Region) Export() snapshot.RegionV1 {
	now := r.Tick()
	snap := snapshot.RegionV1{
		Header:      snapshot.Header{Version: snapshot.Version, Realm: r.cfg.ID, Tick: now},
		BuildHeight: r.cfg.BuildHeight,
		Spawn:       r.cfg.Spawn.ToArray(),
	}
	for _, e := range r.Entities() {
		if e.IsPlayer() || e.IsRemoved() {
			continue
		}
		snap.Entities = append(snap.Entities, exportEntity(e, now))
	}
	for _, dev := range r.cfg.Intakes {
		items := r.intake[dev]
		if len(items) == 0 {
			continue
		}
		in := snapshot.IntakeV1{Pos: dev.ToArray()}
		for _, st := range items {
			in.Items = append(in.Items, exportStack(st))
		}
		snap.Intake = append(snap.Intake, in)
	}
	return snap
}

func exportEntity(e *Entity, now uint64) snapshot.EntityV1 {
	e.mu.Lock()
	ev := snapshot.EntityV1{
		ID:                e.id.String(),
		Type:              e.typ,
		Name:              e.name,
		Pos:               e.loc.Pos.ToArray(),
		HP:                e.hp,
		Glowing:           e.glowing,
		Invulnerable:      e.invulnerable,
		Persistent:        e.persistent,
		CustomName:        e.customName,
		CustomNameVisible: e.customNameVisible,
		RemoveWhenFarAway: e.removeWhenFarAway,
		UnlimitedLifetime: e.unlimitedLifetime,
		WillAge:           e.willAge,
	}
	if e.expiresTick > now {
		ev.ExpiresIn = e.expiresTick - now
	}
	if e.stack != nil {
		st := exportStack(e.stack)
		ev.Stack = &st
	}
	if e.vehicle != nil {
		ev.Vehicle = e.vehicle.id.String()
	}
	e.mu.Unlock()

	ev.Attributes = e.attrs.Export()
	if e.equipment != nil {
		for slot, st := range e.equipment.Contents() {
			if ev.Equipment == nil {
				ev.Equipment = map[string]snapshot.SlotV1{}
			}
			ev.Equipment[slot.String()] = snapshot.SlotV1{Stack: exportStack(st), DropChance: e.equipment.DropChance(slot)}
		}
	}
	for _, st := range e.inventory.Contents() {
		ev.Inventory = append(ev.Inventory, exportStack(st))
	}
	return ev
}

func exportStack(st *ItemStack) snapshot.StackV1 {
	out := snapshot.StackV1{Type: st.Type, Count: st.Count}
	if m := st.ItemMeta(); m != nil {
		out.DisplayName = m.DisplayName
		out.Unbreakable = m.Unbreakable
		out.FireResistant = m.FireResistant
		out.GlintOverride = m.GlintOverride
		out.MaxStackSize = m.MaxStackSize
		out.Rarity = m.Rarity
		if len(m.Enchantments) > 0 {
			out.Enchantments = map[string]int{}
			for _, k := range enchantNames(m.Enchantments) {
				out.Enchantments[k] = m.Enchantments[k]
			}
		}
		out.Attributes = m.attrs.Export()
	}
	return out
}

func importStack(s snapshot.StackV1) *ItemStack {
	st := NewItemStack(s.Type, s.Count)
	m := st.ItemMeta()
	if m == nil {
		return st
	}
	m.DisplayName = s.DisplayName
	m.Unbreakable = s.Unbreakable
	m.FireResistant = s.FireResistant
	m.GlintOverride = s.GlintOverride
	if s.MaxStackSize > 0 {
		m.MaxStackSize = s.MaxStackSize
	}
	if s.Rarity != "" {
		m.Rarity = s.Rarity
	}
	for k, v := range s.Enchantments {
		st.AddEnchantment(k, v)
	}
	m.attrs.Import(s.Attributes)
	return st
}

var slotByName = map[string]Slot{
	"HEAD":      SlotHead,
	"CHEST":     SlotChest,
	"LEGS":      SlotLegs,
	"FEET":      SlotFeet,
	"MAIN_HAND": SlotMainHand,
}

// Import restores snapshot entities into the region without firing spawn
// events, and returns them. Run on the region goroutine.
func (r *Region) Import(snap snapshot.RegionV1) []*Entity {
	now := r.Tick()
	byID := map[string]*Entity{}
	out := make([]*Entity, 0, len(snap.Entities))
	for _, ev := range snap.Entities {
		id, err := uuid.Parse(ev.ID)
		if err != nil {
			r.w.logger.Printf("import realm=%s: skip entity with bad id %q", r.cfg.ID, ev.ID)
			continue
		}
		e := NewEntity(id, ev.Type, Location{Realm: r.cfg.ID, Pos: Vec3iFromArray(ev.Pos)})
		e.name = ev.Name
		e.hp = ev.HP
		e.glowing = ev.Glowing
		e.invulnerable = ev.Invulnerable
		e.persistent = ev.Persistent
		e.customName = ev.CustomName
		e.customNameVisible = ev.CustomNameVisible
		e.removeWhenFarAway = ev.RemoveWhenFarAway
		e.unlimitedLifetime = ev.UnlimitedLifetime
		e.willAge = ev.WillAge
		e.expiresTick = now + ev.ExpiresIn
		e.pickupReadyTick = now
		e.attrs.Import(ev.Attributes)
		if ev.Stack != nil {
			e.stack = importStack(*ev.Stack)
		}
		if e.equipment != nil {
			for name, sl := range ev.Equipment {
				slot, ok := slotByName[name]
				if !ok {
					continue
				}
				e.equipment.Set(slot, importStack(sl.Stack))
				e.equipment.SetDropChance(slot, sl.DropChance)
			}
		}
		for _, st := range ev.Inventory {
			e.inventory.Add(importStack(st))
		}
		r.adopt(e)
		byID[ev.ID] = e
		out = append(out, e)
	}
	for _, ev := range snap.Entities {
		if ev.Vehicle == "" {
			continue
		}
		if p, v := byID[ev.ID], byID[ev.Vehicle]; p != nil && v != nil {
			Mount(v, p)
		}
	}
	for _, in := range snap.Intake {
		dev := Vec3iFromArray(in.Pos)
		for _, st := range in.Items {
			r.intake[dev] = append(r.intake[dev], importStack(st))
		}
	}
	return out
}
