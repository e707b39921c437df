package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"ctfbuddy.ai/internal/ctf/marker"
	"ctfbuddy.ai/internal/sim/world"
)

type cue struct {
	kind   string
	target uuid.UUID
	value  string
}

type fakePresenter struct{ cues []cue }

func (f *fakePresenter) add(kind string, e *world.Entity, v string) {
	var id uuid.UUID
	if e != nil {
		id = e.ID()
	}
	f.cues = append(f.cues, cue{kind: kind, target: id, value: v})
}

func (f *fakePresenter) PlaySound(_ world.Location, sound string, _, _ float64) {
	f.add(world.CueSound, nil, sound)
}
func (f *fakePresenter) PlaySoundTo(p *world.Entity, sound string, _, _ float64) {
	f.add(world.CueSound, p, sound)
}
func (f *fakePresenter) StopSound(p *world.Entity, sound string) { f.add(world.CueStopSound, p, sound) }
func (f *fakePresenter) ActionBar(p *world.Entity, text string)  { f.add(world.CueActionBar, p, text) }
func (f *fakePresenter) Message(p *world.Entity, _, text string) { f.add(world.CueMessage, p, text) }
func (f *fakePresenter) Particles(world.Location, string, int)   {}
func (f *fakePresenter) PickupAnimation(c, _ *world.Entity)      { f.add(world.CuePickup, c, "") }

func (f *fakePresenter) has(kind, value string) bool {
	for _, c := range f.cues {
		if c.kind == kind && c.value == value {
			return true
		}
	}
	return false
}

type fakeBeacons struct{ tracked map[uuid.UUID]int }

func (b *fakeBeacons) Track(e *world.Entity) bool {
	if b.tracked == nil {
		b.tracked = map[uuid.UUID]int{}
	}
	b.tracked[e.ID()]++
	return b.tracked[e.ID()] == 1
}

type fixture struct {
	w       *world.World
	tr      *Tracker
	present *fakePresenter
	beacons *fakeBeacons
	audit   []world.AuditEntry
}

func newFixture(t *testing.T, mutWorld func(*world.Config), mutCfg func(*Config)) *fixture {
	t.Helper()
	wc := world.DefaultConfig()
	wc.PickupDelayTicks = 0
	wc.Realms[0].Intakes = []world.Vec3i{{X: 30, Y: 63, Z: 30}}
	if mutWorld != nil {
		mutWorld(&wc)
	}
	w, err := world.New(wc, nil)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	t.Cleanup(w.Close)

	cfg := DefaultConfig()
	if mutCfg != nil {
		mutCfg(&cfg)
	}
	f := &fixture{w: w, present: &fakePresenter{}, beacons: &fakeBeacons{}}
	f.tr = New(cfg, f.present, f.beacons, world.AuditFunc(func(e world.AuditEntry) error {
		f.audit = append(f.audit, e)
		return nil
	}), nil)
	w.AddListener(f.tr)
	return f
}

func (f *fixture) region(realm string) *world.Region { return f.w.Region(realm) }

func (f *fixture) audited(action string) int {
	n := 0
	for _, e := range f.audit {
		if e.Action == action {
			n++
		}
	}
	return n
}

func (f *fixture) join(t *testing.T, name string) *world.Entity {
	t.Helper()
	p, err := f.w.Join(context.Background(), name, nil)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	return p
}

func (f *fixture) flagStack(t *testing.T) *world.ItemStack {
	t.Helper()
	st := world.NewItemStack("RED_BANNER", 1)
	if err := f.tr.TrackItem(st); err != nil {
		t.Fatalf("track item: %v", err)
	}
	return st
}

func (f *fixture) dropFlag(t *testing.T, realm string, pos world.Vec3i) *world.Entity {
	t.Helper()
	return f.region(realm).DropItemNaturally(pos, f.flagStack(t))
}

// looseFlags returns the marked item entities of realm.
func (f *fixture) looseFlags(realm string) []*world.Entity {
	var out []*world.Entity
	for _, e := range f.region(realm).Entities() {
		if e.IsItem() && marker.Bears(e) {
			out = append(out, e)
		}
	}
	return out
}

func TestParseQuitPolicy(t *testing.T) {
	cases := map[string]QuitPolicy{
		"":                QuitDropFlag,
		"drop":            QuitDropFlag,
		"DROP_FLAG":       QuitDropFlag,
		"KILL":            QuitDestroyCarrier,
		"destroy_carrier": QuitDestroyCarrier,
	}
	for in, want := range cases {
		got, err := ParseQuitPolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParseQuitPolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseQuitPolicy("EXPLODE"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestTrackItem(t *testing.T) {
	f := newFixture(t, nil, nil)
	if err := f.tr.TrackItem(world.NewItemStack(world.ItemAir, 1)); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("air: expected ErrInvalidTarget, got %v", err)
	}
	if err := f.tr.TrackItem(nil); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("nil: expected ErrInvalidTarget, got %v", err)
	}

	st := f.flagStack(t)
	m := st.ItemMeta()
	if !marker.StackIsFlag(st) {
		t.Fatalf("stack not marked")
	}
	if m.Enchantments[world.EnchantBindingCurse] != 1 || !m.GlintOverride || !m.Unbreakable || !m.FireResistant {
		t.Fatalf("stack not hardened: %+v", m)
	}
	if m.MaxStackSize != 1 || m.Rarity != world.RarityEpic {
		t.Fatalf("unexpected stack limits: %+v", m)
	}
	if err := f.tr.TrackItem(st); err != nil || !marker.StackIsFlag(st) {
		t.Fatalf("tracking twice must be harmless: %v", err)
	}
}

func TestSpawn_HardensLooseFlag(t *testing.T) {
	f := newFixture(t, nil, nil)
	flag := f.dropFlag(t, world.RealmOverworld, world.Vec3i{X: 5, Y: 64, Z: 5})

	if !marker.IsFlag(flag) {
		t.Fatalf("marker not stamped on the item entity")
	}
	if !flag.UnlimitedLifetime() || flag.WillAge() || !flag.Invulnerable() || !flag.Persistent() || !flag.Glowing() {
		t.Fatalf("loose flag not hardened")
	}
	if flag.CustomName() != "Red Banner" || !flag.CustomNameVisible() {
		t.Fatalf("unexpected name %q", flag.CustomName())
	}
	if f.beacons.tracked[flag.ID()] != 1 {
		t.Fatalf("expected a beacon for the loose flag")
	}
	if !f.present.has(world.CueSound, SoundThrown) || f.audited(ActionGrounded) != 1 {
		t.Fatalf("expected thrown sound and audit entry")
	}

	plain := f.region(world.RealmOverworld).DropItemNaturally(world.Vec3i{X: 6, Y: 64, Z: 6}, world.NewItemStack("DIRT", 1))
	if plain.Invulnerable() || plain.Glowing() || marker.IsFlag(plain) {
		t.Fatalf("plain items must be left alone")
	}
}

func TestSpawn_BeaconDisabled(t *testing.T) {
	f := newFixture(t, nil, func(c *Config) { c.BeaconEnabled = false })
	flag := f.dropFlag(t, world.RealmOverworld, world.Vec3i{X: 5, Y: 64, Z: 5})
	if f.beacons.tracked[flag.ID()] != 0 {
		t.Fatalf("beacons are disabled")
	}
}

func TestPickup_PlayerWearsFlag(t *testing.T) {
	f := newFixture(t, nil, nil)
	p := f.join(t, "alex")
	p.Equipment().SetHead(world.NewItemStack("IRON_HELMET", 1))
	r := f.region(world.RealmOverworld)
	flag := f.dropFlag(t, world.RealmOverworld, p.Location().Pos)

	r.Step()

	if !flag.IsRemoved() {
		t.Fatalf("loose flag should be consumed")
	}
	if !marker.HeadIsFlag(p) {
		t.Fatalf("flag not on the carrier's head")
	}
	if held := p.Equipment().Get(world.SlotMainHand); held == nil || held.Type != world.StarterItem {
		t.Fatalf("main hand must be untouched")
	}
	inv := p.Inventory().Contents()
	if len(inv) != 1 || inv[0].Type != "IRON_HELMET" {
		t.Fatalf("displaced helmet should go to the inventory, got %v", inv)
	}
	if !p.Glowing() {
		t.Fatalf("carrier should glow")
	}
	if !f.present.has(world.CueActionBar, "You picked up Red Banner") {
		t.Fatalf("missing action bar, cues=%+v", f.present.cues)
	}
	for _, s := range []string{SoundGiven, SoundEquip, MusicFlag} {
		if !f.present.has(world.CueSound, s) {
			t.Fatalf("missing sound %s", s)
		}
	}
	if !f.present.has(world.CueStopSound, MusicCategory) || !f.present.has(world.CuePickup, "") {
		t.Fatalf("expected music stop and pickup animation")
	}
	if f.beacons.tracked[p.ID()] != 1 || f.audited(ActionPickup) != 1 {
		t.Fatalf("expected carrier beacon and pickup audit")
	}
	if len(f.looseFlags(world.RealmOverworld)) != 0 {
		t.Fatalf("flag must exist exactly once")
	}
}

func TestPickup_DisplacedHelmetDroppedWhenInventoryFull(t *testing.T) {
	f := newFixture(t, nil, nil)
	p := f.join(t, "full")
	for i := 0; i < world.InventorySize; i++ {
		p.Inventory().SetSlot(i, world.NewItemStack("STONE", 64))
	}
	p.Equipment().SetHead(world.NewItemStack("GOLDEN_HELMET", 1))
	r := f.region(world.RealmOverworld)
	f.dropFlag(t, world.RealmOverworld, p.Location().Pos)

	r.Step()

	if !marker.HeadIsFlag(p) {
		t.Fatalf("flag not on head")
	}
	var helmet *world.Entity
	for _, e := range r.Entities() {
		if e.IsItem() && e.Stack().Type == "GOLDEN_HELMET" {
			helmet = e
		}
	}
	if helmet == nil {
		t.Fatalf("displaced helmet should be dropped")
	}
}

func TestPickup_CreatureCarrierAlwaysDropsFlag(t *testing.T) {
	f := newFixture(t, nil, nil)
	r := f.region(world.RealmOverworld)
	pos := world.Vec3i{X: 20, Y: 64, Z: 20}
	zombie := r.SpawnCreature("ZOMBIE", pos)
	f.dropFlag(t, world.RealmOverworld, pos)

	r.Step()

	if !marker.HeadIsFlag(zombie) || !zombie.Glowing() {
		t.Fatalf("zombie should carry the flag")
	}
	if got := zombie.Equipment().DropChance(world.SlotHead); got != carrierHeadDropChance {
		t.Fatalf("expected head drop chance %v, got %v", carrierHeadDropChance, got)
	}
	if f.present.has(world.CueActionBar, "You picked up Red Banner") {
		t.Fatalf("creatures get no action bar")
	}

	r.Kill(zombie)
	loose := f.looseFlags(world.RealmOverworld)
	if len(loose) != 1 || !loose[0].Invulnerable() {
		t.Fatalf("expected the hardened flag on the ground, got %d", len(loose))
	}
	if f.audited(ActionCarrierDied) != 1 {
		t.Fatalf("expected carrier death audit")
	}
}

func TestPickup_CollectorWithoutEquipment(t *testing.T) {
	f := newFixture(t, nil, nil)
	r := f.region(world.RealmOverworld)
	flag := f.dropFlag(t, world.RealmOverworld, world.Vec3i{X: 1, Y: 64, Z: 1})
	other := r.DropItemNaturally(world.Vec3i{X: 1, Y: 64, Z: 1}, world.NewItemStack("DIRT", 1))

	ev := &world.EntityPickupItem{Region: r, Collector: other, Item: flag}
	f.tr.HandleEvent(ev)
	if !ev.Cancelled() || flag.IsRemoved() {
		t.Fatalf("pickup must be cancelled and the flag left in place")
	}
}

func TestDespawnAndIntake_Cancelled(t *testing.T) {
	f := newFixture(t, nil, nil)
	r := f.region(world.RealmOverworld)
	flag := f.dropFlag(t, world.RealmOverworld, world.Vec3i{X: 30, Y: 64, Z: 30})

	ev := &world.ItemDespawn{Region: r, Item: flag}
	f.tr.HandleEvent(ev)
	if !ev.Cancelled() {
		t.Fatalf("despawn of the flag must be cancelled")
	}

	r.Step()
	if flag.IsRemoved() || len(r.Intaken(world.Vec3i{X: 30, Y: 63, Z: 30})) != 0 {
		t.Fatalf("intake device must not absorb the flag")
	}

	plain := r.DropItemNaturally(world.Vec3i{X: 30, Y: 64, Z: 30}, world.NewItemStack("DIRT", 1))
	r.Step()
	if !plain.IsRemoved() {
		t.Fatalf("plain items are still absorbed")
	}
}

func TestDeath_KeepInventoryDropsFlaggedHead(t *testing.T) {
	f := newFixture(t, func(c *world.Config) { c.KeepInventory = true }, nil)
	p := f.join(t, "keeper")
	r := f.region(world.RealmOverworld)
	deathPos := world.Vec3i{X: 40, Y: 64, Z: 40}
	r.Move(p, deathPos)
	p.Equipment().SetHead(f.flagStack(t))
	p.SetGlowing(true)

	r.Kill(p)

	if marker.HeadIsFlag(p) || p.Glowing() {
		t.Fatalf("flag should leave the carrier")
	}
	loose := f.looseFlags(world.RealmOverworld)
	if len(loose) != 1 || loose[0].Location().Pos != deathPos {
		t.Fatalf("expected flag dropped at the death location")
	}
	if !f.present.has(world.CueStopSound, MusicFlag) {
		t.Fatalf("expected flag music stopped")
	}
	if len(p.Inventory().Contents()) != 0 || p.Equipment().Get(world.SlotMainHand) == nil {
		t.Fatalf("keep-inventory must keep everything else")
	}
}

func TestDeath_MarkedCreatureOnlyAudited(t *testing.T) {
	f := newFixture(t, nil, nil)
	r := f.region(world.RealmOverworld)
	sheep := r.SpawnCreature("SHEEP", world.Vec3i{X: 2, Y: 64, Z: 2})
	if err := f.tr.TrackEntity(sheep); err != nil {
		t.Fatalf("track: %v", err)
	}
	r.SetHealth(sheep, 0)
	if !sheep.IsRemoved() || f.audited(ActionEntityDied) != 1 {
		t.Fatalf("expected death audit only")
	}
}

func TestDeath_MarkedCarrierReleased(t *testing.T) {
	f := newFixture(t, nil, nil)
	p := f.join(t, "marked")
	r := f.region(world.RealmOverworld)
	marker.SetFlag(p)
	p.Equipment().SetHead(f.flagStack(t))
	p.SetGlowing(true)

	r.Kill(p)

	if p.Glowing() || !f.present.has(world.CueStopSound, MusicFlag) {
		t.Fatalf("carrier cues must be cleared even when the carrier is marked")
	}
	if f.audited(ActionCarrierDied) != 1 || f.audited(ActionEntityDied) != 0 {
		t.Fatalf("expected a carrier death audit, got %+v", f.audit)
	}
	if len(f.looseFlags(world.RealmOverworld)) != 1 {
		t.Fatalf("expected the flag among the drops")
	}
}

func TestPortal_RestrictedRealmIsSymmetric(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	p := f.join(t, "runner")

	p.Inventory().Add(f.flagStack(t))
	if err := f.w.Transfer(ctx, p.ID(), world.RealmEnd); !errors.Is(err, world.ErrPortalCancelled) {
		t.Fatalf("entering with the flag: expected ErrPortalCancelled, got %v", err)
	}
	if err := f.w.Transfer(ctx, p.ID(), world.RealmNether); err != nil {
		t.Fatalf("nether is open: %v", err)
	}

	q := f.join(t, "visitor")
	if err := f.w.Transfer(ctx, q.ID(), world.RealmEnd); err != nil {
		t.Fatalf("no flag, no restriction: %v", err)
	}
	q.Equipment().SetHead(f.flagStack(t))
	if err := f.w.Transfer(ctx, q.ID(), world.RealmOverworld); !errors.Is(err, world.ErrPortalCancelled) {
		t.Fatalf("leaving with the flag: expected ErrPortalCancelled, got %v", err)
	}
	if f.audited(ActionBlocked) != 2 {
		t.Fatalf("expected two blocked audits")
	}
}

func TestPortal_AllowedRestrictedRealm(t *testing.T) {
	f := newFixture(t, nil, func(c *Config) { c.AllowRestrictedRealm = true })
	p := f.join(t, "runner")
	p.Equipment().SetHead(f.flagStack(t))
	if err := f.w.Transfer(context.Background(), p.ID(), world.RealmEnd); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if p.Location().Realm != world.RealmEnd {
		t.Fatalf("expected the carrier in the end")
	}
}

func TestQuit_DropFlag(t *testing.T) {
	f := newFixture(t, nil, nil)
	p := f.join(t, "leaver")
	r := f.region(world.RealmOverworld)
	pos := world.Vec3i{X: 12, Y: 70, Z: -4}
	r.Move(p, pos)
	p.Equipment().SetHead(f.flagStack(t))
	p.SetGlowing(true)

	if err := f.w.Quit(context.Background(), p.ID()); err != nil {
		t.Fatalf("quit: %v", err)
	}
	if !p.IsRemoved() || p.Glowing() {
		t.Fatalf("player should be gone and dark")
	}
	loose := f.looseFlags(world.RealmOverworld)
	if len(loose) != 1 || loose[0].Location().Pos != pos {
		t.Fatalf("expected flag at the quit location")
	}
	if f.audited(ActionCarrierQuit) != 1 {
		t.Fatalf("expected quit audit")
	}
}

func TestQuit_DestroyCarrier(t *testing.T) {
	f := newFixture(t, nil, func(c *Config) { c.QuitPolicy = QuitDestroyCarrier })
	p := f.join(t, "leaver")
	r := f.region(world.RealmOverworld)
	r.Move(p, world.Vec3i{X: -7, Y: 64, Z: 9})
	p.Equipment().SetHead(f.flagStack(t))

	if err := f.w.Quit(context.Background(), p.ID()); err != nil {
		t.Fatalf("quit: %v", err)
	}
	if f.audited(ActionCarrierDied) != 1 {
		t.Fatalf("carrier should die")
	}
	var banners int
	for _, e := range r.Entities() {
		if e.IsItem() && e.Stack().Type == world.StarterItem {
			banners++
		}
	}
	if len(f.looseFlags(world.RealmOverworld)) != 1 || banners != 1 {
		t.Fatalf("death drops should contain the flag and the held banner")
	}
}

func TestQuit_DetachesMarkedPassengers(t *testing.T) {
	f := newFixture(t, nil, nil)
	r := f.region(world.RealmOverworld)
	p := f.join(t, "rider")
	horse := r.SpawnCreature("HORSE", world.Vec3i{X: 3, Y: 64, Z: 3})
	sheep := r.SpawnCreature("SHEEP", world.Vec3i{X: 3, Y: 64, Z: 3})
	_ = f.tr.TrackEntity(sheep)
	world.Mount(horse, p)
	world.Mount(horse, sheep)

	if err := f.w.Quit(context.Background(), p.ID()); err != nil {
		t.Fatalf("quit: %v", err)
	}
	if sheep.Vehicle() != nil {
		t.Fatalf("marked passenger should be detached")
	}
	if sheep.IsRemoved() {
		t.Fatalf("flag entity must survive")
	}
}

func TestTarget_FlagNeverSelfDestructs(t *testing.T) {
	f := newFixture(t, nil, nil)
	r := f.region(world.RealmOverworld)
	p := f.join(t, "victim")
	creeper := r.SpawnCreature("CREEPER", p.Location().Pos)
	_ = f.tr.TrackEntity(creeper)

	r.Step()
	if creeper.IsRemoved() {
		t.Fatalf("flag creeper exploded")
	}
	if creeper.Target() != uuid.Nil {
		t.Fatalf("flag creeper must not acquire targets")
	}

	zombie := r.SpawnCreature("ZOMBIE", p.Location().Pos)
	_ = f.tr.TrackEntity(zombie)
	r.Step()
	if zombie.Target() != p.ID() {
		t.Fatalf("only self-destructing flags lose targeting")
	}
}

func TestTransform_SuccessorInheritsFlag(t *testing.T) {
	f := newFixture(t, nil, nil)
	r := f.region(world.RealmOverworld)
	zombie := r.SpawnCreature("ZOMBIE", world.Vec3i{X: 8, Y: 64, Z: 8})
	if err := f.tr.TrackEntity(zombie); err != nil {
		t.Fatalf("track: %v", err)
	}

	succ, err := r.Transform(zombie, "")
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if len(succ) != 1 || succ[0].Type() != "DROWNED" {
		t.Fatalf("unexpected successors %v", succ)
	}
	d := succ[0]
	if !marker.IsFlag(d) || !d.Glowing() || !d.Invulnerable() || !d.Persistent() || d.RemoveWhenFarAway() {
		t.Fatalf("successor not tracked")
	}
	if f.beacons.tracked[d.ID()] != 1 || !zombie.IsRemoved() {
		t.Fatalf("expected beacon on the successor and the source gone")
	}
	if f.audited(ActionTransformed) != 1 {
		t.Fatalf("expected transform audit")
	}
}

func TestTransform_CarrierHeadFollows(t *testing.T) {
	f := newFixture(t, nil, nil)
	r := f.region(world.RealmOverworld)
	villager := r.SpawnCreature("VILLAGER", world.Vec3i{X: 9, Y: 64, Z: 9})
	villager.Equipment().SetHead(f.flagStack(t))

	succ, err := r.Transform(villager, "")
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	zv := succ[0]
	if marker.IsFlag(zv) {
		t.Fatalf("the carrier itself must not become the flag")
	}
	if !marker.HeadIsFlag(zv) || !zv.Glowing() || zv.Equipment().DropChance(world.SlotHead) != carrierHeadDropChance {
		t.Fatalf("successor should carry the flag")
	}
	if f.beacons.tracked[zv.ID()] != 1 {
		t.Fatalf("expected carrier beacon")
	}
}

func TestRegionLoad_ReestablishesBeacons(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	r := f.region(world.RealmNether)
	pig := r.SpawnCreature("PIG", world.Vec3i{X: 1, Y: 64, Z: 1})
	_ = f.tr.TrackEntity(pig)
	carrier := r.SpawnCreature("SKELETON", world.Vec3i{X: 2, Y: 64, Z: 2})
	carrier.Equipment().SetHead(f.flagStack(t))
	r.SpawnCreature("SHEEP", world.Vec3i{X: 3, Y: 64, Z: 3})

	if err := f.w.UnloadRealm(ctx, world.RealmNether); err != nil {
		t.Fatalf("unload: %v", err)
	}
	f.beacons.tracked = nil
	if err := f.w.LoadRealm(ctx, world.RealmNether); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(f.beacons.tracked) != 2 || f.beacons.tracked[pig.ID()] != 1 || f.beacons.tracked[carrier.ID()] != 1 {
		t.Fatalf("expected beacons for the flag and its carrier, got %v", f.beacons.tracked)
	}
	if restored := f.w.Entity(pig.ID()); restored == nil || !marker.IsFlag(restored) {
		t.Fatalf("marker must survive reload")
	}
}

func TestTrackEntityID(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	if err := f.tr.TrackEntityID(ctx, f.w, uuid.New()); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
	horse := f.region(world.RealmOverworld).SpawnCreature("HORSE", world.Vec3i{X: 4, Y: 64, Z: 4})
	if err := f.tr.TrackEntityID(ctx, f.w, horse.ID()); err != nil {
		t.Fatalf("track: %v", err)
	}
	if !marker.IsFlag(horse) || f.audited(ActionMarked) != 1 {
		t.Fatalf("horse should be the flag")
	}
	if !strings.Contains(f.audit[0].Details["type"].(string), "HORSE") {
		t.Fatalf("audit details missing type: %+v", f.audit[0])
	}
}
