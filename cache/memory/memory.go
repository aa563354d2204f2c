// Package memory is the in-process cache.Store used when no shared backend is
// configured. Values live for the lifetime of the process unless written with a TTL.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/adeilh/tileproxy/cache"
)

type item struct {
	value    []byte
	expireAt time.Time // zero => no TTL
}

// Store implements cache.Store over a mutex-protected map.
type Store struct {
	mu    sync.RWMutex
	items map[string]item
	now   func() time.Time
}

// NewStore builds an empty in-memory store.
func NewStore() *Store {
	return &Store{items: make(map[string]item), now: time.Now}
}

// WithClock overrides the time source used for TTL checks (tests).
func (s *Store) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	it, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, cache.ErrNotFound
	}
	if !it.expireAt.IsZero() && !s.now().Before(it.expireAt) {
		s.mu.Lock()
		// re-check: a concurrent Set may have replaced the expired item
		if cur, ok := s.items[key]; ok && cur.expireAt.Equal(it.expireAt) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return nil, cache.ErrNotFound
	}
	return append([]byte(nil), it.value...), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	it := item{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expireAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = it
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return cache.ErrNotFound
	}
	delete(s.items, key)
	return nil
}

// Len reports the number of stored keys, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

var _ cache.Store = (*Store)(nil)
