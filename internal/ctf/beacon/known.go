package beacon

import "sync"

// KnownSet is a concurrency-safe set. Each operation is atomic on its own.
type KnownSet[K comparable] struct {
	mu sync.Mutex
	m  map[K]struct{}
}

func NewKnownSet[K comparable]() *KnownSet[K] {
	return &KnownSet[K]{m: map[K]struct{}{}}
}

// Add inserts k and reports whether it was absent.
func (s *KnownSet[K]) Add(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[k]; ok {
		return false
	}
	s.m[k] = struct{}{}
	return true
}

// Remove deletes k and reports whether it was present.
func (s *KnownSet[K]) Remove(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[k]; !ok {
		return false
	}
	delete(s.m, k)
	return true
}

func (s *KnownSet[K]) Has(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[k]
	return ok
}

func (s *KnownSet[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// Keys returns a copy of the members in no particular order.
func (s *KnownSet[K]) Keys() []K {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]K, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	return out
}
