package world

// Event is a lifecycle notification delivered synchronously on the region goroutine.
type Event interface {
	EventName() string
}

// Listener receives every event fired by a world. Handlers must not block.
type Listener interface {
	HandleEvent(ev Event)
}

type ListenerFunc func(ev Event)

func (f ListenerFunc) HandleEvent(ev Event) { f(ev) }

// Cancellable events suppress the host's default handling when cancelled.
type Cancellable interface {
	Event
	SetCancelled(bool)
	Cancelled() bool
}

type cancellable struct{ cancelled bool }

func (c *cancellable) SetCancelled(v bool) { c.cancelled = v }
func (c *cancellable) Cancelled() bool     { return c.cancelled }

// EntitySpawn fires after an entity entered a region.
type EntitySpawn struct {
	Region *Region
	Entity *Entity
}

// EntityPickupItem fires when a collector touches a loose item.
type EntityPickupItem struct {
	cancellable
	Region    *Region
	Collector *Entity
	Item      *Entity
}

// InventoryPickupItem fires when an intake device at Device would absorb a loose item.
type InventoryPickupItem struct {
	cancellable
	Region *Region
	Device Vec3i
	Item   *Entity
}

// ItemDespawn fires when a loose item reached its expiry tick.
type ItemDespawn struct {
	cancellable
	Region *Region
	Item   *Entity
}

// EntityDeath fires before drops are spawned. Handlers may edit Drops.
type EntityDeath struct {
	Region        *Region
	Entity        *Entity
	Drops         []*ItemStack
	KeepInventory bool
}

// EntityPortal fires before an entity moves between realms.
type EntityPortal struct {
	cancellable
	Region *Region
	Entity *Entity
	From   Location
	To     Location
}

// PlayerQuit fires before a disconnecting player is removed.
type PlayerQuit struct {
	Region *Region
	Player *Entity
}

// EntityTarget fires when a hostile creature picks a target.
type EntityTarget struct {
	cancellable
	Region *Region
	Entity *Entity
	Target *Entity
}

// EntityTransform fires before Entity is replaced by Transformed.
// The successors are built but not spawned yet.
type EntityTransform struct {
	cancellable
	Region      *Region
	Entity      *Entity
	Transformed []*Entity
	Reason      string
}

// RegionLoad fires after a realm's entities were restored.
type RegionLoad struct {
	Region   *Region
	Entities []*Entity
}

func (*EntitySpawn) EventName() string         { return "ENTITY_SPAWN" }
func (*EntityPickupItem) EventName() string    { return "ENTITY_PICKUP_ITEM" }
func (*InventoryPickupItem) EventName() string { return "INVENTORY_PICKUP_ITEM" }
func (*ItemDespawn) EventName() string         { return "ITEM_DESPAWN" }
func (*EntityDeath) EventName() string         { return "ENTITY_DEATH" }
func (*EntityPortal) EventName() string        { return "ENTITY_PORTAL" }
func (*PlayerQuit) EventName() string          { return "PLAYER_QUIT" }
func (*EntityTarget) EventName() string        { return "ENTITY_TARGET" }
func (*EntityTransform) EventName() string     { return "ENTITY_TRANSFORM" }
func (*RegionLoad) EventName() string          { return "REGION_LOAD" }

const (
	TransformDrowned   = "DROWNED"
	TransformInfection = "INFECTION"
	TransformCured     = "CURED"
	TransformLightning = "LIGHTNING"
	TransformUnknown   = "UNKNOWN"
)

// transformReason picks the reason reported for a from->to transformation.
func transformReason(from, to string) string {
	switch {
	case to == "DROWNED":
		return TransformDrowned
	case to == "ZOMBIE_VILLAGER":
		return TransformInfection
	case from == "ZOMBIE_VILLAGER" && to == "VILLAGER":
		return TransformCured
	case to == "ZOMBIFIED_PIGLIN":
		return TransformLightning
	default:
		return TransformUnknown
	}
}

func (w *World) fire(ev Event) {
	w.mu.RLock()
	ls := append([]Listener(nil), w.listeners...)
	w.mu.RUnlock()
	for _, l := range ls {
		l.HandleEvent(ev)
	}
}
