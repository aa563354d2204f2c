package wiki

import (
	"sync"

	"github.com/adeilh/tileproxy/cache/recent"
)

// assignments remembers which list index each tile is showing. Only the most
// recently assigned tiles are kept.
type assignments struct {
	mu    sync.Mutex
	order *recent.Set[string]
	index map[string]int
}

func newAssignments(limit int) *assignments {
	if limit <= 0 {
		limit = 64
	}
	return &assignments{order: recent.New[string](limit), index: make(map[string]int, limit)}
}

func (a *assignments) get(tile string) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i, ok := a.index[tile]
	return i, ok
}

func (a *assignments) set(tile string, i int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.order.Add(tile)
	a.index[tile] = i
	if len(a.index) > a.order.Len() {
		for t := range a.index {
			if !a.order.Contains(t) {
				delete(a.index, t)
			}
		}
	}
}

// held returns the indices assigned to tiles other than tile.
func (a *assignments) held(tile string) map[int]bool {
	out := make(map[int]bool, len(a.index))
	for t, i := range a.index {
		if t != tile {
			out[i] = true
		}
	}
	return out
}

// firstFree returns the lowest index below n that no other tile holds, or 0.
func (a *assignments) firstFree(tile string, n int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	held := a.held(tile)
	for i := 0; i < n; i++ {
		if !held[i] {
			return i
		}
	}
	return 0
}

// free lists the indices below n that no other tile holds.
func (a *assignments) free(tile string, n int) []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	held := a.held(tile)
	var out []int
	for i := 0; i < n; i++ {
		if !held[i] {
			out = append(out, i)
		}
	}
	return out
}
