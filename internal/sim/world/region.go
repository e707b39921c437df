package world

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRegionStopped      = errors.New("region stopped")
	ErrRegionRunning      = errors.New("region already running")
	ErrRealmNotFound      = errors.New("realm not found")
	ErrRealmUnloaded      = errors.New("realm unloaded")
	ErrPortalCancelled    = errors.New("portal cancelled")
	ErrTransformCancelled = errors.New("transform cancelled")
	ErrCannotTransform    = errors.New("entity type cannot transform")
	ErrNothingToDrop      = errors.New("nothing to drop")
	ErrBound              = errors.New("item is bound to its slot")
)

const (
	pickupRadiusSq   = 2
	targetRadiusSq   = 16 * 16
	explodeRadiusSq  = 3 * 3
	explosionDamage  = 10
	explosionSound   = "entity.generic.explode"
	targetMaxDistDef = 10
)

// RealmConfig describes one realm.
type RealmConfig struct {
	ID          string
	Spawn       Vec3i
	BuildHeight int
	// Intakes are passive collector devices; they absorb items resting on top of them.
	Intakes []Vec3i
}

// Region owns the entities of one realm. Mutations happen on its goroutine
// while it runs (or inline on the caller's goroutine when it does not).
type Region struct {
	w   *World
	cfg RealmConfig

	tick    atomic.Uint64
	inbox   chan func()
	running atomic.Bool
	stopped chan struct{}

	sched  atomic.Pointer[Scheduler]
	loaded atomic.Bool

	mu       sync.RWMutex
	entities map[uuid.UUID]*Entity

	// region goroutine only
	intake map[Vec3i][]*ItemStack
}

func newRegion(w *World, cfg RealmConfig) *Region {
	r := &Region{
		w:        w,
		cfg:      cfg,
		inbox:    make(chan func(), 1024),
		stopped:  make(chan struct{}),
		entities: map[uuid.UUID]*Entity{},
		intake:   map[Vec3i][]*ItemStack{},
	}
	r.sched.Store(NewScheduler(r.post))
	r.loaded.Store(true)
	return r
}

func (r *Region) ID() string          { return r.cfg.ID }
func (r *Region) Config() RealmConfig { return r.cfg }
func (r *Region) World() *World       { return r.w }
func (r *Region) Tick() uint64        { return r.tick.Load() }
func (r *Region) Running() bool       { return r.running.Load() }
func (r *Region) Loaded() bool        { return r.loaded.Load() }
func (r *Region) BuildHeight() int    { return r.cfg.BuildHeight }

// Scheduler runs region-level tasks; their ticks execute on the region goroutine.
func (r *Region) Scheduler() *Scheduler { return r.sched.Load() }

func (r *Region) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRegionRunning
	}
	defer close(r.stopped)
	defer r.running.Store(false)

	ticker := time.NewTicker(r.w.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-r.inbox:
			fn()
		case <-ticker.C:
			r.step()
		}
	}
}

// post queues fn for the region goroutine. It reports false when the region is not running.
func (r *Region) post(fn func()) bool {
	if !r.running.Load() {
		return false
	}
	select {
	case r.inbox <- fn:
		return true
	case <-r.stopped:
		return false
	}
}

// Do runs fn on the region goroutine and waits for it. When the region is
// not running fn runs inline.
func (r *Region) Do(ctx context.Context, fn func(r *Region)) error {
	if !r.running.Load() {
		fn(r)
		return nil
	}
	done := make(chan struct{})
	if !r.post(func() {
		defer close(done)
		fn(r)
	}) {
		return ErrRegionStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return ErrRegionStopped
	}
}

// Entities returns the region's entities ordered by id.
func (r *Region) Entities() []*Entity {
	r.mu.RLock()
	out := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id.String() < out[j].id.String() })
	return out
}

func (r *Region) Entity(id uuid.UUID) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[id]
}

// Players returns live players ordered by id. Safe from any goroutine.
func (r *Region) Players() []*Entity {
	var out []*Entity
	for _, e := range r.Entities() {
		if e.IsPlayer() && !e.IsRemoved() {
			out = append(out, e)
		}
	}
	return out
}

func (r *Region) adopt(e *Entity) {
	e.region.Store(r)
	r.mu.Lock()
	r.entities[e.id] = e
	r.mu.Unlock()
	r.w.index.Store(e.id, e)
}

func (r *Region) detach(e *Entity) {
	r.mu.Lock()
	delete(r.entities, e.id)
	r.mu.Unlock()
}

// Spawn adds e to the region and fires EntitySpawn.
func (r *Region) Spawn(e *Entity) {
	loc := e.Location()
	loc.Realm = r.cfg.ID
	now := r.Tick()
	e.locked(func() {
		e.loc = loc
		if e.kind == KindItem {
			e.expiresTick = now + uint64(r.w.cfg.ItemTTLTicks)
			e.pickupReadyTick = now + uint64(r.w.cfg.PickupDelayTicks)
		}
	})
	r.adopt(e)
	r.w.fire(&EntitySpawn{Region: r, Entity: e})
}

// SpawnCreature creates and spawns a creature of typ at pos.
func (r *Region) SpawnCreature(typ string, pos Vec3i) *Entity {
	e := NewEntity(uuid.Nil, typ, Location{Realm: r.cfg.ID, Pos: pos})
	r.Spawn(e)
	return e
}

// DropItemNaturally spawns stack as a loose item at pos.
func (r *Region) DropItemNaturally(pos Vec3i, stack *ItemStack) *Entity {
	if stack.IsEmpty() {
		return nil
	}
	e := NewItemEntity(stack, Location{Realm: r.cfg.ID, Pos: pos})
	r.Spawn(e)
	return e
}

// Remove takes e out of the world and retires its scheduler.
func (r *Region) Remove(e *Entity) {
	if e == nil || !e.removed.CompareAndSwap(false, true) {
		return
	}
	r.detach(e)
	r.w.index.CompareAndDelete(e.id, e)
	Dismount(e)
	for _, p := range e.Passengers() {
		Dismount(p)
	}
	e.sched.Retire()
}

// Move relocates e inside the realm, clamping height to the build range.
func (r *Region) Move(e *Entity, pos Vec3i) {
	if pos.Y < 0 {
		pos.Y = 0
	}
	if r.cfg.BuildHeight > 0 && pos.Y > r.cfg.BuildHeight {
		pos.Y = r.cfg.BuildHeight
	}
	e.setLocation(Location{Realm: r.cfg.ID, Pos: pos})
}

// Pickup lets collector take a loose item. It reports whether the default
// handling consumed any of the item.
func (r *Region) Pickup(collector, item *Entity) bool {
	if collector == nil || item == nil || item.IsRemoved() || !item.IsItem() {
		return false
	}
	ev := &EntityPickupItem{Region: r, Collector: collector, Item: item}
	r.w.fire(ev)
	if ev.Cancelled() || item.IsRemoved() {
		return false
	}
	stack := item.Stack()
	caps := collector.Caps()
	if caps.Inventory != nil {
		rest := caps.Inventory.Add(stack)
		if rest == nil {
			r.w.PickupAnimation(collector, item)
			r.Remove(item)
			return true
		}
		if rest.Count == stack.Count {
			return false
		}
		item.SetStack(rest)
		return true
	}
	if caps.Equipment != nil && caps.Equipment.Get(SlotMainHand).IsEmpty() {
		caps.Equipment.Set(SlotMainHand, stack)
		r.w.PickupAnimation(collector, item)
		r.Remove(item)
		return true
	}
	return false
}

// Intake lets the device at pos absorb a loose item.
func (r *Region) Intake(device Vec3i, item *Entity) bool {
	if item == nil || item.IsRemoved() || !item.IsItem() {
		return false
	}
	ev := &InventoryPickupItem{Region: r, Device: device, Item: item}
	r.w.fire(ev)
	if ev.Cancelled() || item.IsRemoved() {
		return false
	}
	r.intake[device] = append(r.intake[device], item.Stack())
	r.Remove(item)
	return true
}

// Intaken returns what the device at pos has absorbed.
func (r *Region) Intaken(device Vec3i) []*ItemStack {
	return append([]*ItemStack(nil), r.intake[device]...)
}

// Damage hurts e unless it is invulnerable.
func (r *Region) Damage(e *Entity, amount int) {
	if e == nil || e.IsRemoved() || e.Invulnerable() {
		return
	}
	r.SetHealth(e, e.Health()-amount)
}

// SetHealth sets vitality directly. Zero or less kills, bypassing invulnerability.
func (r *Region) SetHealth(e *Entity, hp int) {
	if e == nil || e.IsRemoved() {
		return
	}
	if e.IsItem() {
		if hp <= 0 {
			r.Remove(e)
		}
		return
	}
	alive := false
	e.locked(func() {
		alive = e.hp > 0
		e.hp = min(hp, e.info.MaxHP)
	})
	if hp <= 0 && alive {
		r.die(e)
	}
}

func (r *Region) Kill(e *Entity) { r.SetHealth(e, 0) }

func (r *Region) die(e *Entity) {
	keep := r.w.cfg.KeepInventory && e.IsPlayer()
	var drops []*ItemStack
	if !keep {
		drops = append(drops, e.inventory.Clear()...)
		drops = append(drops, e.equipment.takeDrops()...)
	}
	ev := &EntityDeath{Region: r, Entity: e, Drops: drops, KeepInventory: keep}
	r.w.fire(ev)

	loc := e.Location()
	for _, st := range ev.Drops {
		r.DropItemNaturally(loc.Pos, st)
	}
	if !e.IsPlayer() {
		r.Remove(e)
		return
	}
	Dismount(e)
	e.locked(func() {
		e.hp = e.info.MaxHP
		e.loc = Location{Realm: r.cfg.ID, Pos: r.cfg.Spawn}
		e.target = uuid.Nil
	})
}

// Portal moves e to the spawn of realm after firing EntityPortal.
func (r *Region) Portal(e *Entity, realm string) error {
	to := r.w.Region(realm)
	if to == nil {
		return ErrRealmNotFound
	}
	if to == r {
		return nil
	}
	if !to.Loaded() {
		return ErrRealmUnloaded
	}
	ev := &EntityPortal{
		Region: r,
		Entity: e,
		From:   e.Location(),
		To:     Location{Realm: to.cfg.ID, Pos: to.cfg.Spawn},
	}
	r.w.fire(ev)
	if ev.Cancelled() {
		return ErrPortalCancelled
	}
	r.w.transfer(e, r, to, ev.To.Pos)
	return nil
}

// Transform replaces e with a successor of typ (or the type's default).
// Equipment and custom name carry over; attributes do not.
func (r *Region) Transform(e *Entity, typ string) ([]*Entity, error) {
	if e == nil || e.IsRemoved() {
		return nil, ErrEntityNotFound
	}
	if typ == "" {
		typ = e.info.TransformsTo
	}
	if typ == "" || e.IsItem() || e.IsPlayer() {
		return nil, ErrCannotTransform
	}
	succ := NewEntity(uuid.Nil, typ, e.Location())
	succ.SetCustomName(e.CustomName())
	if e.equipment != nil && succ.equipment != nil {
		for slot, st := range e.equipment.Contents() {
			succ.equipment.Set(slot, st)
			succ.equipment.SetDropChance(slot, e.equipment.DropChance(slot))
		}
	}
	succ.region.Store(r)

	ev := &EntityTransform{
		Region:      r,
		Entity:      e,
		Transformed: []*Entity{succ},
		Reason:      transformReason(e.typ, typ),
	}
	r.w.fire(ev)
	if ev.Cancelled() {
		return nil, ErrTransformCancelled
	}
	r.Remove(e)
	for _, s := range ev.Transformed {
		r.Spawn(s)
	}
	return ev.Transformed, nil
}

// Quit fires PlayerQuit and removes the player.
func (r *Region) Quit(p *Entity) {
	if p == nil || p.IsRemoved() {
		return
	}
	r.w.fire(&PlayerQuit{Region: r, Player: p})
	r.Remove(p)
}

// DropHead throws the helmet of e on the ground. Cursed helmets stay on.
func (r *Region) DropHead(e *Entity) (*Entity, error) {
	eq := e.Caps().Equipment
	head := eq.Head()
	if head.IsEmpty() {
		return nil, ErrNothingToDrop
	}
	if m := head.ItemMeta(); m != nil && m.Enchantments[EnchantBindingCurse] > 0 {
		return nil, ErrBound
	}
	eq.SetHead(nil)
	return r.DropItemNaturally(e.Location().Pos, head), nil
}

// DropMainHand throws the held item on the ground.
func (r *Region) DropMainHand(e *Entity) (*Entity, error) {
	eq := e.Caps().Equipment
	held := eq.Get(SlotMainHand)
	if held.IsEmpty() {
		return nil, ErrNothingToDrop
	}
	eq.Set(SlotMainHand, nil)
	return r.DropItemNaturally(e.Location().Pos, held), nil
}

// TargetEntity returns the entity nearest to viewer within maxDist blocks, or nil.
func (r *Region) TargetEntity(viewer *Entity, maxDist int) *Entity {
	if maxDist <= 0 {
		maxDist = targetMaxDistDef
	}
	from := viewer.Location().Pos
	var best *Entity
	bestD := maxDist*maxDist + 1
	for _, e := range r.Entities() {
		if e == viewer || e.IsRemoved() {
			continue
		}
		if d := e.Location().Pos.DistSq(from); d < bestD {
			best, bestD = e, d
		}
	}
	return best
}

func (r *Region) step() {
	now := r.tick.Add(1)
	if !r.Loaded() {
		return
	}
	ents := r.Entities()
	r.expireItems(now, ents)
	r.intakeItems(ents)
	r.pickupItems(now, ents)
	r.targetAndExplode(ents)
}

// Step advances the region by one tick on the caller's goroutine.
func (r *Region) Step() { r.step() }

func (r *Region) expireItems(now uint64, ents []*Entity) {
	ttl := uint64(r.w.cfg.ItemTTLTicks)
	for _, e := range ents {
		if !e.IsItem() || e.IsRemoved() || e.UnlimitedLifetime() || !e.WillAge() || now < e.ExpiresTick() {
			continue
		}
		ev := &ItemDespawn{Region: r, Item: e}
		r.w.fire(ev)
		if ev.Cancelled() {
			e.locked(func() { e.expiresTick = now + ttl })
			continue
		}
		r.Remove(e)
	}
}

func (r *Region) intakeItems(ents []*Entity) {
	if len(r.cfg.Intakes) == 0 {
		return
	}
	for _, e := range ents {
		if !e.IsItem() || e.IsRemoved() {
			continue
		}
		pos := e.Location().Pos
		for _, dev := range r.cfg.Intakes {
			if pos == dev.Add(Vec3i{Y: 1}) {
				r.Intake(dev, e)
				break
			}
		}
	}
}

func (r *Region) pickupItems(now uint64, ents []*Entity) {
	for _, item := range ents {
		if !item.IsItem() || item.IsRemoved() {
			continue
		}
		var ready uint64
		item.locked(func() { ready = item.pickupReadyTick })
		if now < ready {
			continue
		}
		pos := item.Location().Pos
		for _, c := range ents {
			if c.IsItem() || c.IsRemoved() || !c.info.PicksUp || c.Health() <= 0 {
				continue
			}
			if c.Location().Pos.DistSq(pos) > pickupRadiusSq {
				continue
			}
			r.Pickup(c, item)
			break
		}
	}
}

func (r *Region) targetAndExplode(ents []*Entity) {
	for _, e := range ents {
		if e.IsRemoved() || !e.Caps().Targeting {
			continue
		}
		pos := e.Location().Pos
		var target *Entity
		bestD := targetRadiusSq + 1
		for _, p := range ents {
			if !p.IsPlayer() || p.IsRemoved() {
				continue
			}
			if d := p.Location().Pos.DistSq(pos); d < bestD {
				target, bestD = p, d
			}
		}
		if target == nil {
			e.locked(func() { e.target = uuid.Nil })
			continue
		}
		if e.Target() != target.id {
			ev := &EntityTarget{Region: r, Entity: e, Target: target}
			r.w.fire(ev)
			if ev.Cancelled() {
				e.locked(func() { e.target = uuid.Nil })
				continue
			}
			e.locked(func() { e.target = target.id })
		}
		if e.Caps().SelfDestruct && bestD <= explodeRadiusSq {
			r.explode(e)
		}
	}
}

func (r *Region) explode(e *Entity) {
	loc := e.Location()
	r.Remove(e)
	r.w.PlaySound(loc, explosionSound, 4, 1)
	for _, o := range r.Entities() {
		if o.IsRemoved() || o.Location().Pos.DistSq(loc.Pos) > explodeRadiusSq {
			continue
		}
		if o.IsItem() {
			if !o.Invulnerable() {
				r.Remove(o)
			}
			continue
		}
		r.Damage(o, explosionDamage)
	}
}
