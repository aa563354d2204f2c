package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Entry is one cached payload together with the time it was fetched.
// Entries are replaced wholesale; callers must not mutate Payload in place.
type Entry[T any] struct {
	Payload   T         `json:"payload"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// IsFresh reports whether the entry is younger than maxAge at now.
// A non-positive maxAge is never fresh.
func (e Entry[T]) IsFresh(maxAge time.Duration, now time.Time) bool {
	if maxAge <= 0 || e.FetchedAt.IsZero() {
		return false
	}
	return now.Sub(e.FetchedAt) < maxAge
}

// Age returns how old the entry is at now.
func (e Entry[T]) Age(now time.Time) time.Duration { return now.Sub(e.FetchedAt) }

// Table is a typed view over a Store. Keys are namespaced with the table prefix and
// payloads are JSON encoded, so every backend stores the same bytes.
type Table[T any] struct {
	store  Store
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type TableOption func(*tableOptions)

type tableOptions struct {
	ttl time.Duration
	now func() time.Time
}

// WithRetention sets a backend TTL on written entries. Zero keeps entries for the
// lifetime of the backend, which is the default.
func WithRetention(ttl time.Duration) TableOption {
	return func(o *tableOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) TableOption {
	return func(o *tableOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewTable builds a typed table on top of store.
func NewTable[T any](store Store, prefix string, opts ...TableOption) *Table[T] {
	cfg := tableOptions{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Table[T]{store: store, prefix: prefix, ttl: cfg.ttl, now: cfg.now}
}

// Key returns the backend key for a logical key.
func (t *Table[T]) Key(key string) string {
	if t.prefix == "" {
		return key
	}
	return t.prefix + ":" + key
}

// Get returns the entry stored under key. ok is false when nothing is cached.
func (t *Table[T]) Get(ctx context.Context, key string) (Entry[T], bool, error) {
	var entry Entry[T]
	raw, err := t.store.Get(ctx, t.Key(key))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return entry, false, nil
		}
		return entry, false, err
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, false, fmt.Errorf("cache: decode %s: %w", t.Key(key), err)
	}
	return entry, true, nil
}

// Put overwrites the entry for key, stamping it with the current time.
func (t *Table[T]) Put(ctx context.Context, key string, payload T) (Entry[T], error) {
	entry := Entry[T]{Payload: payload, FetchedAt: t.now()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return entry, fmt.Errorf("cache: encode %s: %w", t.Key(key), err)
	}
	if err := t.store.Set(ctx, t.Key(key), raw, t.ttl); err != nil {
		return entry, err
	}
	return entry, nil
}
