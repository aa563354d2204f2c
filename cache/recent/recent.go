// Package recent tracks the last few items handed out so callers can avoid
// showing the same thing twice in a row.
package recent

import "sync"

// DefaultCapacity is the tracking window used by the feeds.
const DefaultCapacity = 5

// Set is a bounded insertion-ordered set. Adding past capacity evicts the
// oldest-inserted member. Safe for concurrent use.
type Set[K comparable] struct {
	mu       sync.Mutex
	capacity int
	// queue keeps keys in insertion order; queue[0] is the oldest.
	queue []K
	set   map[K]struct{}
}

// New returns a set holding at most capacity members (DefaultCapacity when <= 0).
func New[K comparable](capacity int) *Set[K] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Set[K]{capacity: capacity, set: make(map[K]struct{}, capacity+1)}
}

// Add records k. Re-adding a tracked key keeps its original position.
func (s *Set[K]) Add(k K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[k]; ok {
		return
	}
	s.queue = append(s.queue, k)
	s.set[k] = struct{}{}
	for len(s.queue) > s.capacity {
		oldest := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.set, oldest)
	}
}

// Contains reports whether k is currently tracked.
func (s *Set[K]) Contains(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[k]
	return ok
}

// Filter returns the members of candidates not currently tracked, in order.
func (s *Set[K]) Filter(candidates []K) []K {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]K, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := s.set[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets everything and then tracks keep, if given.
func (s *Set[K]) Reset(keep ...K) {
	s.mu.Lock()
	s.queue = s.queue[:0]
	clear(s.set)
	s.mu.Unlock()
	for _, k := range keep {
		s.Add(k)
	}
}

// Len returns the number of tracked keys.
func (s *Set[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Snapshot returns tracked keys oldest first.
func (s *Set[K]) Snapshot() []K {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]K(nil), s.queue...)
}
