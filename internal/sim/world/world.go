package world

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ctfbuddy.ai/internal/persistence/snapshot"
)

var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrRealmOccupied  = errors.New("realm has players")
	ErrRealmLoaded    = errors.New("realm already loaded")
)

const (
	RealmOverworld = "OVERWORLD"
	RealmNether    = "NETHER"
	RealmEnd       = "END"

	StarterItem = "WHITE_BANNER"
)

type Config struct {
	Realms           []RealmConfig
	DefaultRealm     string
	TickRateHz       int
	ItemTTLTicks     int
	PickupDelayTicks int
	KeepInventory    bool
	// DataDir holds region snapshots. Empty keeps unloaded realms in memory.
	DataDir string
}

func DefaultConfig() Config {
	return Config{
		Realms: []RealmConfig{
			{ID: RealmOverworld, Spawn: Vec3i{X: 0, Y: 64, Z: 0}, BuildHeight: 320},
			{ID: RealmNether, Spawn: Vec3i{X: 0, Y: 64, Z: 0}, BuildHeight: 256},
			{ID: RealmEnd, Spawn: Vec3i{X: 100, Y: 49, Z: 0}, BuildHeight: 256},
		},
		DefaultRealm:     RealmOverworld,
		TickRateHz:       20,
		ItemTTLTicks:     6000,
		PickupDelayTicks: 10,
	}
}

// World is the authoritative simulation: a set of independently running
// regions, one per realm, plus the connected clients.
type World struct {
	cfg     Config
	logger  *log.Logger
	regions map[string]*Region
	realms  []string

	// uuid.UUID -> *Entity, across all regions
	index sync.Map

	mu        sync.RWMutex
	clients   map[uuid.UUID]chan []byte
	listeners []Listener
	audit     AuditLogger
	parked    map[string]snapshot.RegionV1
}

func New(cfg Config, logger *log.Logger) (*World, error) {
	if len(cfg.Realms) == 0 {
		return nil, fmt.Errorf("world: no realms configured")
	}
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("world: tick rate must be > 0")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	w := &World{
		cfg:     cfg,
		logger:  logger,
		regions: map[string]*Region{},
		clients: map[uuid.UUID]chan []byte{},
		parked:  map[string]snapshot.RegionV1{},
	}
	for _, rc := range cfg.Realms {
		id := strings.TrimSpace(rc.ID)
		if id == "" {
			return nil, fmt.Errorf("world: realm id is empty")
		}
		if _, dup := w.regions[id]; dup {
			return nil, fmt.Errorf("world: duplicate realm %s", id)
		}
		rc.ID = id
		w.regions[id] = newRegion(w, rc)
		w.realms = append(w.realms, id)
	}
	if cfg.DefaultRealm == "" {
		w.cfg.DefaultRealm = w.realms[0]
	}
	if w.regions[w.cfg.DefaultRealm] == nil {
		return nil, fmt.Errorf("world: default realm %s not configured", w.cfg.DefaultRealm)
	}
	return w, nil
}

func (w *World) Config() Config { return w.cfg }

func (w *World) tickInterval() time.Duration {
	return time.Second / time.Duration(w.cfg.TickRateHz)
}

// CurrentTick is the tick of the default realm.
func (w *World) CurrentTick() uint64 { return w.regions[w.cfg.DefaultRealm].Tick() }

func (w *World) AddListener(l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

func (w *World) Region(id string) *Region { return w.regions[id] }

// Regions returns all regions in configuration order.
func (w *World) Regions() []*Region {
	out := make([]*Region, 0, len(w.realms))
	for _, id := range w.realms {
		out = append(out, w.regions[id])
	}
	return out
}

func (w *World) RealmIDs() []string { return append([]string(nil), w.realms...) }

// Entity looks up a live entity in any region.
func (w *World) Entity(id uuid.UUID) *Entity {
	v, ok := w.index.Load(id)
	if !ok {
		return nil
	}
	e := v.(*Entity)
	if e.IsRemoved() {
		return nil
	}
	return e
}

// PlayersIn lists the players in realm. Safe from any goroutine.
func (w *World) PlayersIn(realm string) []*Entity {
	r := w.regions[realm]
	if r == nil {
		return nil
	}
	return r.Players()
}

func (w *World) BuildHeight(realm string) int {
	if r := w.regions[realm]; r != nil {
		return r.cfg.BuildHeight
	}
	return 0
}

// Do runs fn on the goroutine of realm's region and waits for it.
func (w *World) Do(ctx context.Context, realm string, fn func(r *Region)) error {
	r := w.regions[realm]
	if r == nil {
		return fmt.Errorf("%w: %s", ErrRealmNotFound, realm)
	}
	return r.Do(ctx, fn)
}

// DoEntity runs fn on the region currently owning entity id.
func (w *World) DoEntity(ctx context.Context, id uuid.UUID, fn func(r *Region, e *Entity)) error {
	for attempt := 0; attempt < 3; attempt++ {
		e := w.Entity(id)
		if e == nil {
			return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
		}
		r := e.Region()
		if r == nil {
			return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
		}
		moved := false
		err := r.Do(ctx, func(r *Region) {
			if e.IsRemoved() || e.Region() != r {
				moved = true
				return
			}
			fn(r, e)
		})
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
}

// Join spawns a player in the default realm and registers its out queue.
// New players hold a starter banner.
func (w *World) Join(ctx context.Context, name string, out chan []byte) (*Entity, error) {
	if strings.TrimSpace(name) == "" {
		name = "player"
	}
	r := w.regions[w.cfg.DefaultRealm]
	p := NewEntity(uuid.Nil, TypePlayer, Location{Realm: r.cfg.ID, Pos: r.cfg.Spawn})
	p.name = name
	p.equipment.Set(SlotMainHand, NewItemStack(StarterItem, 1))
	if out != nil {
		w.mu.Lock()
		w.clients[p.id] = out
		w.mu.Unlock()
	}
	if err := r.Do(ctx, func(r *Region) { r.Spawn(p) }); err != nil {
		w.dropClient(p.id)
		return nil, err
	}
	w.logger.Printf("join player=%s name=%s realm=%s", p.id, name, r.cfg.ID)
	return p, nil
}

// Quit disconnects a player: PlayerQuit fires, then the player is removed.
func (w *World) Quit(ctx context.Context, id uuid.UUID) error {
	defer w.dropClient(id)
	err := w.DoEntity(ctx, id, func(r *Region, e *Entity) { r.Quit(e) })
	if err == nil {
		w.logger.Printf("quit player=%s", id)
	}
	return err
}

func (w *World) dropClient(id uuid.UUID) {
	w.mu.Lock()
	delete(w.clients, id)
	w.mu.Unlock()
}

// Transfer sends entity id through a portal to realm.
func (w *World) Transfer(ctx context.Context, id uuid.UUID, realm string) error {
	var perr error
	err := w.DoEntity(ctx, id, func(r *Region, e *Entity) { perr = r.Portal(e, realm) })
	if err != nil {
		return err
	}
	return perr
}

// transfer moves e from one region to another. It runs on from's goroutine;
// the destination adopts e on its own goroutine.
func (w *World) transfer(e *Entity, from, to *Region, pos Vec3i) {
	Dismount(e)
	for _, p := range e.Passengers() {
		Dismount(p)
	}
	from.detach(e)
	e.setLocation(Location{Realm: to.cfg.ID, Pos: pos})
	e.region.Store(to)
	if !to.post(func() { to.adopt(e) }) {
		to.adopt(e)
	}
}

// Run drives every region until ctx is done.
func (w *World) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range w.Regions() {
		r := r
		g.Go(func() error { return r.Run(gctx) })
	}
	err := g.Wait()
	w.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close retires every scheduler. No tick starts afterwards.
func (w *World) Close() {
	for _, r := range w.Regions() {
		for _, e := range r.Entities() {
			e.sched.Retire()
		}
		r.Scheduler().Retire()
	}
}

// UnloadRealm parks a realm: its entities are saved, removed and their tasks retired.
func (w *World) UnloadRealm(ctx context.Context, realm string) error {
	r := w.regions[realm]
	if r == nil {
		return fmt.Errorf("%w: %s", ErrRealmNotFound, realm)
	}
	var uerr error
	err := r.Do(ctx, func(r *Region) {
		if !r.Loaded() {
			uerr = ErrRealmUnloaded
			return
		}
		if len(r.Players()) > 0 {
			uerr = fmt.Errorf("%w: %s", ErrRealmOccupied, realm)
			return
		}
		snap := r.Export()
		if err := w.park(realm, snap); err != nil {
			uerr = err
			return
		}
		for _, e := range r.Entities() {
			r.Remove(e)
		}
		r.intake = map[Vec3i][]*ItemStack{}
		r.Scheduler().Retire()
		r.loaded.Store(false)
	})
	if err != nil {
		return err
	}
	if uerr == nil {
		w.logger.Printf("unloaded realm=%s", realm)
	}
	return uerr
}

// LoadRealm restores a parked realm (or its snapshot on disk) and fires RegionLoad.
// A loaded realm may be loaded again only while it is empty.
func (w *World) LoadRealm(ctx context.Context, realm string) error {
	r := w.regions[realm]
	if r == nil {
		return fmt.Errorf("%w: %s", ErrRealmNotFound, realm)
	}
	snap, ok, err := w.unpark(realm)
	if err != nil {
		return err
	}
	var lerr error
	var restored []*Entity
	err = r.Do(ctx, func(r *Region) {
		if r.Loaded() && len(r.Entities()) > 0 {
			lerr = fmt.Errorf("%w: %s", ErrRealmLoaded, realm)
			return
		}
		if !r.Loaded() {
			r.sched.Store(NewScheduler(r.post))
		}
		if ok {
			restored = r.Import(snap)
		}
		r.loaded.Store(true)
		r.w.fire(&RegionLoad{Region: r, Entities: restored})
	})
	if err != nil {
		return err
	}
	if lerr == nil {
		w.logger.Printf("loaded realm=%s entities=%d", realm, len(restored))
	}
	return lerr
}

// LoadAll loads every realm from its snapshot, if one exists.
func (w *World) LoadAll(ctx context.Context) error {
	for _, id := range w.realms {
		if err := w.LoadRealm(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// SaveRealm writes the realm snapshot and returns it.
func (w *World) SaveRealm(ctx context.Context, realm string) (snapshot.RegionV1, error) {
	var snap snapshot.RegionV1
	r := w.regions[realm]
	if r == nil {
		return snap, fmt.Errorf("%w: %s", ErrRealmNotFound, realm)
	}
	loaded := true
	if err := r.Do(ctx, func(r *Region) {
		loaded = r.Loaded()
		if loaded {
			snap = r.Export()
		}
	}); err != nil {
		return snap, err
	}
	if !loaded {
		return snap, fmt.Errorf("%w: %s", ErrRealmUnloaded, realm)
	}
	return snap, w.park(realm, snap)
}

// SaveAll saves every loaded realm.
func (w *World) SaveAll(ctx context.Context) ([]snapshot.RegionV1, error) {
	var out []snapshot.RegionV1
	for _, id := range w.realms {
		snap, err := w.SaveRealm(ctx, id)
		if errors.Is(err, ErrRealmUnloaded) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func (w *World) park(realm string, snap snapshot.RegionV1) error {
	if w.cfg.DataDir == "" {
		w.mu.Lock()
		w.parked[realm] = snap
		w.mu.Unlock()
		return nil
	}
	if err := snapshot.WriteRegion(snapshot.RegionPath(w.cfg.DataDir, realm), snap); err != nil {
		return fmt.Errorf("write region %s: %w", realm, err)
	}
	return nil
}

func (w *World) unpark(realm string) (snapshot.RegionV1, bool, error) {
	if w.cfg.DataDir == "" {
		w.mu.RLock()
		defer w.mu.RUnlock()
		snap, ok := w.parked[realm]
		return snap, ok, nil
	}
	snap, err := snapshot.ReadRegion(snapshot.RegionPath(w.cfg.DataDir, realm))
	if errors.Is(err, fs.ErrNotExist) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("read region %s: %w", realm, err)
	}
	return snap, true, nil
}

// Census returns the entity count of each realm.
func (w *World) Census() map[string]int {
	out := make(map[string]int, len(w.realms))
	for _, id := range w.realms {
		out[id] = len(w.regions[id].Entities())
	}
	return out
}
