// Package fallback produces substitute payloads when every live provider fails.
package fallback

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/adeilh/tileproxy/cache/recent"
)

// ErrEmptyPool is returned by synthesizers whose pool has no entries.
var ErrEmptyPool = errors.New("fallback pool is empty")

// Pool is a small fixed set of canned entries. Pick avoids the entries handed out
// most recently.
type Pool[E any] struct {
	mu      sync.Mutex
	entries []E
	recent  *recent.Set[int]
	rng     Rand
	last    int
}

// NewPool builds a pool over entries, tracking the last window picks
// (recent.DefaultCapacity when window <= 0).
func NewPool[E any](entries []E, rng Rand, window int) *Pool[E] {
	if rng == nil {
		rng = NewRand(0)
	}
	return &Pool[E]{
		entries: append([]E(nil), entries...),
		recent:  recent.New[int](window),
		rng:     rng,
		last:    -1,
	}
}

// Len returns the pool size.
func (p *Pool[E]) Len() int { return len(p.entries) }

// Pick returns a uniformly random entry not among the recently returned ones. When
// every entry is recent the window restarts, still excluding the last pick if the
// pool has an alternative. ok is false for an empty pool.
func (p *Pool[E]) Pick() (entry E, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return entry, false
	}

	all := make([]int, len(p.entries))
	for i := range all {
		all[i] = i
	}
	available := p.recent.Filter(all)
	if len(available) == 0 {
		if p.last >= 0 && len(p.entries) > 1 {
			p.recent.Reset(p.last)
		} else {
			p.recent.Reset()
		}
		available = p.recent.Filter(all)
	}

	idx := available[p.rng.IntN(len(available))]
	p.recent.Add(idx)
	p.last = idx
	return p.entries[idx], true
}
