package world

import (
	"sort"
	"strings"
	"sync"
)

const (
	ItemAir = "AIR"

	EnchantBindingCurse = "binding_curse"

	RarityCommon = "COMMON"
	RarityEpic   = "EPIC"

	DefaultMaxStack = 64
)

// ItemMeta is the mutable metadata of a stack. Stacks of AIR carry none.
type ItemMeta struct {
	DisplayName   string
	Unbreakable   bool
	FireResistant bool
	GlintOverride bool
	MaxStackSize  int
	Rarity        string
	Enchantments  map[string]int

	attrs Attributes
}

func (m *ItemMeta) Attributes() *Attributes {
	if m == nil {
		return nil
	}
	return &m.attrs
}

func (m *ItemMeta) clone() *ItemMeta {
	if m == nil {
		return nil
	}
	out := &ItemMeta{
		DisplayName:   m.DisplayName,
		Unbreakable:   m.Unbreakable,
		FireResistant: m.FireResistant,
		GlintOverride: m.GlintOverride,
		MaxStackSize:  m.MaxStackSize,
		Rarity:        m.Rarity,
	}
	if len(m.Enchantments) > 0 {
		out.Enchantments = make(map[string]int, len(m.Enchantments))
		for k, v := range m.Enchantments {
			out.Enchantments[k] = v
		}
	}
	out.attrs.Import(m.attrs.Export())
	return out
}

type ItemStack struct {
	Type  string
	Count int
	Meta  *ItemMeta
}

// NewItemStack returns a stack of typ. AIR and empty stacks get no metadata.
func NewItemStack(typ string, count int) *ItemStack {
	s := &ItemStack{Type: typ, Count: count}
	if typ != "" && typ != ItemAir && count > 0 {
		s.Meta = &ItemMeta{MaxStackSize: DefaultMaxStack, Rarity: RarityCommon}
	}
	return s
}

func (s *ItemStack) IsEmpty() bool {
	return s == nil || s.Count <= 0 || s.Type == "" || s.Type == ItemAir
}

// ItemMeta returns the stack metadata, nil for empty stacks.
func (s *ItemStack) ItemMeta() *ItemMeta {
	if s.IsEmpty() {
		return nil
	}
	return s.Meta
}

func (s *ItemStack) Clone() *ItemStack {
	if s == nil {
		return nil
	}
	return &ItemStack{Type: s.Type, Count: s.Count, Meta: s.Meta.clone()}
}

func (s *ItemStack) AddEnchantment(name string, level int) {
	m := s.ItemMeta()
	if m == nil {
		return
	}
	if m.Enchantments == nil {
		m.Enchantments = map[string]int{}
	}
	m.Enchantments[name] = level
}

// DisplayName is the custom name if set, else a readable form of the type.
func (s *ItemStack) DisplayName() string {
	if s == nil {
		return ""
	}
	if m := s.ItemMeta(); m != nil && m.DisplayName != "" {
		return m.DisplayName
	}
	parts := strings.Split(strings.ToLower(s.Type), "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

func (s *ItemStack) maxStack() int {
	if m := s.ItemMeta(); m != nil && m.MaxStackSize > 0 {
		return m.MaxStackSize
	}
	return DefaultMaxStack
}

// stackable reports whether two stacks may merge: same type and no distinguishing metadata.
func stackable(a, b *ItemStack) bool {
	if a.IsEmpty() || b.IsEmpty() || a.Type != b.Type {
		return false
	}
	plain := func(s *ItemStack) bool {
		m := s.ItemMeta()
		return m == nil || (m.DisplayName == "" && len(m.Enchantments) == 0 && len(m.attrs.Export()) == 0 && m.MaxStackSize == DefaultMaxStack)
	}
	return plain(a) && plain(b)
}

const InventorySize = 36

// Inventory is a player's storage grid. Safe for concurrent use.
type Inventory struct {
	mu    sync.Mutex
	slots [InventorySize]*ItemStack
}

// Add stores s, merging into compatible stacks first. It returns what did not fit (nil if all fit).
func (inv *Inventory) Add(s *ItemStack) *ItemStack {
	if inv == nil {
		return s
	}
	if s.IsEmpty() {
		return nil
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	rest := s.Clone()
	for i := range inv.slots {
		cur := inv.slots[i]
		if !stackable(cur, rest) {
			continue
		}
		room := cur.maxStack() - cur.Count
		if room <= 0 {
			continue
		}
		n := min(room, rest.Count)
		cur.Count += n
		rest.Count -= n
		if rest.Count == 0 {
			return nil
		}
	}
	for i := range inv.slots {
		if inv.slots[i].IsEmpty() {
			inv.slots[i] = rest
			return nil
		}
	}
	return rest
}

func (inv *Inventory) Slot(i int) *ItemStack {
	if inv == nil || i < 0 || i >= InventorySize {
		return nil
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.slots[i]
}

func (inv *Inventory) SetSlot(i int, s *ItemStack) {
	if inv == nil || i < 0 || i >= InventorySize {
		return
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.slots[i] = s
}

// Contents returns the non-empty stacks.
func (inv *Inventory) Contents() []*ItemStack {
	if inv == nil {
		return nil
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]*ItemStack, 0, len(inv.slots))
	for _, s := range inv.slots {
		if !s.IsEmpty() {
			out = append(out, s)
		}
	}
	return out
}

// Clear empties the inventory and returns what it held.
func (inv *Inventory) Clear() []*ItemStack {
	if inv == nil {
		return nil
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]*ItemStack, 0)
	for i, s := range inv.slots {
		if !s.IsEmpty() {
			out = append(out, s)
		}
		inv.slots[i] = nil
	}
	return out
}

type Slot int

const (
	SlotHead Slot = iota
	SlotChest
	SlotLegs
	SlotFeet
	SlotMainHand

	slotCount
)

var slotNames = [...]string{"HEAD", "CHEST", "LEGS", "FEET", "MAIN_HAND"}

func (s Slot) String() string {
	if s < 0 || s >= slotCount {
		return "UNKNOWN"
	}
	return slotNames[s]
}

// DefaultDropChance is the chance a creature drops a worn item on death.
// Only chances >= 1 drop; the simulation keeps death drops deterministic.
const DefaultDropChance = 0.085

// Equipment holds worn and held items. Safe for concurrent use.
type Equipment struct {
	mu          sync.RWMutex
	slots       [slotCount]*ItemStack
	dropChances [slotCount]float64
}

func newEquipment(player bool) *Equipment {
	e := &Equipment{}
	for i := range e.dropChances {
		if player {
			e.dropChances[i] = 1
		} else {
			e.dropChances[i] = DefaultDropChance
		}
	}
	return e
}

func (e *Equipment) Get(s Slot) *ItemStack {
	if e == nil || s < 0 || s >= slotCount {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.slots[s]
}

// Set stores st in slot s and returns the previous occupant.
func (e *Equipment) Set(s Slot, st *ItemStack) *ItemStack {
	if e == nil || s < 0 || s >= slotCount {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.slots[s]
	if st.IsEmpty() {
		st = nil
	}
	e.slots[s] = st
	return prev
}

func (e *Equipment) Head() *ItemStack                 { return e.Get(SlotHead) }
func (e *Equipment) SetHead(st *ItemStack) *ItemStack { return e.Set(SlotHead, st) }

func (e *Equipment) DropChance(s Slot) float64 {
	if e == nil || s < 0 || s >= slotCount {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dropChances[s]
}

func (e *Equipment) SetDropChance(s Slot, chance float64) {
	if e == nil || s < 0 || s >= slotCount {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropChances[s] = chance
}

// Contents returns the non-empty slots keyed by slot.
func (e *Equipment) Contents() map[Slot]*ItemStack {
	out := map[Slot]*ItemStack{}
	if e == nil {
		return out
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i, st := range e.slots {
		if !st.IsEmpty() {
			out[Slot(i)] = st
		}
	}
	return out
}

// takeDrops empties every slot whose drop chance is >= 1 and returns those stacks in slot order.
func (e *Equipment) takeDrops() []*ItemStack {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*ItemStack
	for i, st := range e.slots {
		if st.IsEmpty() || e.dropChances[i] < 1 {
			continue
		}
		out = append(out, st)
		e.slots[i] = nil
	}
	return out
}

// enchantNames returns enchantment names in sorted order.
func enchantNames(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
