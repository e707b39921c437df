package world

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type Vec3i struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (v Vec3i) ToArray() [3]int { return [3]int{v.X, v.Y, v.Z} }

func Vec3iFromArray(a [3]int) Vec3i { return Vec3i{X: a[0], Y: a[1], Z: a[2]} }

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func (v Vec3i) DistSq(o Vec3i) int {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return dx*dx + dy*dy + dz*dz
}

func (v Vec3i) Dist(o Vec3i) float64 { return math.Sqrt(float64(v.DistSq(o))) }

// Location is a position inside a realm.
type Location struct {
	Realm string `json:"realm"`
	Pos   Vec3i  `json:"pos"`
}

type Kind int

const (
	KindItem Kind = iota + 1
	KindPlayer
	KindCreature
)

func (k Kind) String() string {
	switch k {
	case KindItem:
		return "ITEM"
	case KindPlayer:
		return "PLAYER"
	case KindCreature:
		return "CREATURE"
	default:
		return "UNKNOWN"
	}
}

const (
	TypeItem   = "ITEM"
	TypePlayer = "PLAYER"
)

// TypeInfo describes what an entity type can do.
type TypeInfo struct {
	Kind         Kind
	MaxHP        int
	Hostile      bool
	SelfDestruct bool
	PicksUp      bool
	Equipment    bool
	// TransformsTo is the type produced by Region.Transform when no type is given.
	TransformsTo string
}

var entityTypes = map[string]TypeInfo{
	TypeItem:           {Kind: KindItem, MaxHP: 5},
	TypePlayer:         {Kind: KindPlayer, MaxHP: 20, PicksUp: true, Equipment: true},
	"ZOMBIE":           {Kind: KindCreature, MaxHP: 20, Hostile: true, PicksUp: true, Equipment: true, TransformsTo: "DROWNED"},
	"DROWNED":          {Kind: KindCreature, MaxHP: 20, Hostile: true, PicksUp: true, Equipment: true},
	"SKELETON":         {Kind: KindCreature, MaxHP: 20, Hostile: true, Equipment: true},
	"CREEPER":          {Kind: KindCreature, MaxHP: 20, Hostile: true, SelfDestruct: true, Equipment: true},
	"VILLAGER":         {Kind: KindCreature, MaxHP: 20, Equipment: true, TransformsTo: "ZOMBIE_VILLAGER"},
	"ZOMBIE_VILLAGER":  {Kind: KindCreature, MaxHP: 20, Hostile: true, PicksUp: true, Equipment: true, TransformsTo: "VILLAGER"},
	"PIG":              {Kind: KindCreature, MaxHP: 10, Equipment: true, TransformsTo: "ZOMBIFIED_PIGLIN"},
	"ZOMBIFIED_PIGLIN": {Kind: KindCreature, MaxHP: 20, PicksUp: true, Equipment: true},
	"HORSE":            {Kind: KindCreature, MaxHP: 30, Equipment: true},
	"SHEEP":            {Kind: KindCreature, MaxHP: 8, Equipment: true},
}

// LookupType returns the info for an entity type name.
func LookupType(typ string) (TypeInfo, bool) {
	info, ok := entityTypes[typ]
	return info, ok
}

// Caps lists the optional capabilities of an entity. Absent capabilities are zero.
type Caps struct {
	Equipment    *Equipment
	Inventory    *Inventory
	Vitality     bool
	Targeting    bool
	SelfDestruct bool
	// Audience is set for entities that receive text and private sounds.
	Audience bool
}

// Entity is a live object in a region. Identity, kind and type are immutable;
// everything else is guarded by mu so beacon workers can read it while the
// region goroutine mutates it.
type Entity struct {
	id   uuid.UUID
	kind Kind
	typ  string
	info TypeInfo

	attrs     Attributes
	equipment *Equipment
	inventory *Inventory
	sched     *Scheduler

	region  atomic.Pointer[Region]
	removed atomic.Bool

	mu                sync.Mutex
	name              string
	loc               Location
	stack             *ItemStack
	hp                int
	glowing           bool
	invulnerable      bool
	persistent        bool
	customName        string
	customNameVisible bool
	removeWhenFarAway bool
	unlimitedLifetime bool
	willAge           bool
	expiresTick       uint64
	pickupReadyTick   uint64
	target            uuid.UUID
	vehicle           *Entity
	passengers        []*Entity
}

// NewEntity builds an unspawned entity of typ at loc. A nil id generates one.
func NewEntity(id uuid.UUID, typ string, loc Location) *Entity {
	info, ok := entityTypes[typ]
	if !ok {
		info = TypeInfo{Kind: KindCreature, MaxHP: 20}
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	e := &Entity{
		id:                id,
		kind:              info.Kind,
		typ:               typ,
		info:              info,
		loc:               loc,
		hp:                info.MaxHP,
		removeWhenFarAway: info.Kind == KindCreature,
		willAge:           info.Kind == KindItem,
		sched:             NewScheduler(nil),
	}
	if info.Equipment {
		e.equipment = newEquipment(info.Kind == KindPlayer)
	}
	if info.Kind == KindPlayer {
		e.inventory = &Inventory{}
	}
	return e
}

// NewItemEntity builds an unspawned loose item carrying stack.
func NewItemEntity(stack *ItemStack, loc Location) *Entity {
	e := NewEntity(uuid.Nil, TypeItem, loc)
	e.stack = stack
	return e
}

func (e *Entity) ID() uuid.UUID  { return e.id }
func (e *Entity) Kind() Kind     { return e.kind }
func (e *Entity) Type() string   { return e.typ }
func (e *Entity) Info() TypeInfo { return e.info }

func (e *Entity) IsItem() bool   { return e.kind == KindItem }
func (e *Entity) IsPlayer() bool { return e.kind == KindPlayer }

// Attributes returns the entity's durable store. Nil-safe.
func (e *Entity) Attributes() *Attributes {
	if e == nil {
		return nil
	}
	return &e.attrs
}

func (e *Entity) Caps() Caps {
	if e == nil || e.kind == KindItem {
		return Caps{}
	}
	return Caps{
		Equipment:    e.equipment,
		Inventory:    e.inventory,
		Vitality:     true,
		Targeting:    e.info.Hostile,
		SelfDestruct: e.info.SelfDestruct,
		Audience:     e.kind == KindPlayer,
	}
}

func (e *Entity) Equipment() *Equipment { return e.equipment }
func (e *Entity) Inventory() *Inventory { return e.inventory }

// Scheduler is the entity's own scheduling facility. It is retired when the entity is removed.
func (e *Entity) Scheduler() *Scheduler { return e.sched }

// Region returns the region currently owning the entity (nil before spawn).
func (e *Entity) Region() *Region { return e.region.Load() }

func (e *Entity) IsRemoved() bool { return e == nil || e.removed.Load() }

func (e *Entity) locked(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

func (e *Entity) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.name
}

func (e *Entity) Location() Location {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loc
}

func (e *Entity) setLocation(loc Location) { e.locked(func() { e.loc = loc }) }

// Stack is the carried stack of an item entity.
func (e *Entity) Stack() *ItemStack {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stack
}

func (e *Entity) SetStack(s *ItemStack) { e.locked(func() { e.stack = s }) }

func (e *Entity) Health() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hp
}

func (e *Entity) Glowing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.glowing
}

func (e *Entity) SetGlowing(v bool) { e.locked(func() { e.glowing = v }) }

func (e *Entity) Invulnerable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.invulnerable
}

func (e *Entity) SetInvulnerable(v bool) { e.locked(func() { e.invulnerable = v }) }

func (e *Entity) Persistent() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persistent
}

func (e *Entity) SetPersistent(v bool) { e.locked(func() { e.persistent = v }) }

func (e *Entity) CustomName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.customName
}

func (e *Entity) SetCustomName(s string) { e.locked(func() { e.customName = s }) }

func (e *Entity) CustomNameVisible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.customNameVisible
}

func (e *Entity) SetCustomNameVisible(v bool) { e.locked(func() { e.customNameVisible = v }) }

func (e *Entity) RemoveWhenFarAway() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeWhenFarAway
}

func (e *Entity) SetRemoveWhenFarAway(v bool) { e.locked(func() { e.removeWhenFarAway = v }) }

// UnlimitedLifetime disables item expiry.
func (e *Entity) UnlimitedLifetime() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unlimitedLifetime
}

func (e *Entity) SetUnlimitedLifetime(v bool) { e.locked(func() { e.unlimitedLifetime = v }) }

func (e *Entity) WillAge() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.willAge
}

func (e *Entity) SetWillAge(v bool) { e.locked(func() { e.willAge = v }) }

func (e *Entity) ExpiresTick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expiresTick
}

func (e *Entity) Target() uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.target
}

func (e *Entity) Vehicle() *Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vehicle
}

func (e *Entity) Passengers() []*Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Entity(nil), e.passengers...)
}

// Mount seats passenger on vehicle.
func Mount(vehicle, passenger *Entity) {
	if vehicle == nil || passenger == nil || vehicle == passenger {
		return
	}
	Dismount(passenger)
	vehicle.locked(func() { vehicle.passengers = append(vehicle.passengers, passenger) })
	passenger.locked(func() { passenger.vehicle = vehicle })
}

// Dismount detaches passenger from its vehicle, if any.
func Dismount(passenger *Entity) {
	if passenger == nil {
		return
	}
	var v *Entity
	passenger.locked(func() {
		v = passenger.vehicle
		passenger.vehicle = nil
	})
	if v == nil {
		return
	}
	v.locked(func() {
		out := v.passengers[:0]
		for _, p := range v.passengers {
			if p != passenger {
				out = append(out, p)
			}
		}
		v.passengers = out
	})
}

// DisplayName is the custom name, the player name, the stack name, or the type.
func (e *Entity) DisplayName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.customName != "":
		return e.customName
	case e.name != "":
		return e.name
	case e.stack != nil:
		return e.stack.DisplayName()
	default:
		return e.typ
	}
}
