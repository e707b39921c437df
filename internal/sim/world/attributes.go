package world

import (
	"sort"
	"sync"
)

// NamespacedKey identifies a durable attribute, rendered as "namespace:key".
type NamespacedKey struct {
	Namespace string
	Key       string
}

func (k NamespacedKey) String() string { return k.Namespace + ":" + k.Key }

// Attributes is the durable key->bool store carried by entities and item metadata.
// It is written to region snapshots, so values survive unload/reload and restarts.
// Safe for concurrent use; beacon workers read it off the region goroutine.
type Attributes struct {
	mu sync.RWMutex
	m  map[string]bool
}

// AttributeHolder is anything exposing a durable attribute store.
// Implementations return nil when the holder cannot carry attributes.
type AttributeHolder interface {
	Attributes() *Attributes
}

func (a *Attributes) Bool(k NamespacedKey) (v bool, ok bool) {
	if a == nil {
		return false, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok = a.m[k.String()]
	return v, ok
}

func (a *Attributes) SetBool(k NamespacedKey, v bool) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.m == nil {
		a.m = map[string]bool{}
	}
	a.m[k.String()] = v
}

// Export returns a copy of the raw key->value map (nil when empty).
func (a *Attributes) Export() map[string]bool {
	if a == nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.m) == 0 {
		return nil
	}
	out := make(map[string]bool, len(a.m))
	for k, v := range a.m {
		out[k] = v
	}
	return out
}

// Import replaces the store contents with m.
func (a *Attributes) Import(m map[string]bool) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.m = nil
	if len(m) == 0 {
		return
	}
	a.m = make(map[string]bool, len(m))
	for k, v := range m {
		a.m[k] = v
	}
}

// CopyFrom merges every key of src into a.
func (a *Attributes) CopyFrom(src *Attributes) {
	if a == nil || src == nil || a == src {
		return
	}
	for k, v := range src.Export() {
		a.mu.Lock()
		if a.m == nil {
			a.m = map[string]bool{}
		}
		a.m[k] = v
		a.mu.Unlock()
	}
}

// Keys returns the stored keys in sorted order.
func (a *Attributes) Keys() []string {
	m := a.Export()
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
