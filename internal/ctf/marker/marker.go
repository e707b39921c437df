// Package marker reads and writes the durable flag attribute.
package marker

import (
	"reflect"

	"ctfbuddy.ai/internal/sim/world"
)

// Key is the attribute that identifies the flag.
var Key = world.NamespacedKey{Namespace: "ctfbuddy", Key: "flag"}

// IsFlag reports whether holder carries a true marker. Nil holders
// (including typed nils) are never flags.
func IsFlag(holder world.AttributeHolder) bool {
	if isNil(holder) {
		return false
	}
	v, ok := holder.Attributes().Bool(Key)
	return ok && v
}

// SetFlag marks holder. Idempotent; a nil holder is ignored.
func SetFlag(holder world.AttributeHolder) {
	if isNil(holder) {
		return
	}
	holder.Attributes().SetBool(Key, true)
}

// Copy marks dst when src is marked.
func Copy(dst, src world.AttributeHolder) {
	if IsFlag(src) {
		SetFlag(dst)
	}
}

// StackIsFlag reports whether the stack's metadata is marked.
func StackIsFlag(s *world.ItemStack) bool {
	m := s.ItemMeta()
	if m == nil {
		return false
	}
	return IsFlag(m)
}

// HeadIsFlag reports whether e wears a marked stack in its head slot.
func HeadIsFlag(e *world.Entity) bool {
	if e == nil {
		return false
	}
	return StackIsFlag(e.Caps().Equipment.Head())
}

// Bears reports whether e is a flag representation: the entity itself is
// marked, it is a loose item whose stack is marked, or it wears a marked head.
func Bears(e *world.Entity) bool {
	if e == nil {
		return false
	}
	if IsFlag(e) {
		return true
	}
	if e.IsItem() {
		return StackIsFlag(e.Stack())
	}
	return HeadIsFlag(e)
}

// Carries reports whether anything e holds (stack, equipment, inventory) is marked.
func Carries(e *world.Entity) bool {
	if Bears(e) {
		return true
	}
	if e == nil {
		return false
	}
	caps := e.Caps()
	for _, st := range caps.Equipment.Contents() {
		if StackIsFlag(st) {
			return true
		}
	}
	for _, st := range caps.Inventory.Contents() {
		if StackIsFlag(st) {
			return true
		}
	}
	return false
}

func isNil(h world.AttributeHolder) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
