package cache

import (
	"context"
	"time"

	"github.com/roach88/parceltrack/internal/clock"
)

// EntryStore is the durable table behind SQLiteBackend.
type EntryStore interface {
	CacheGet(ctx context.Context, key string, now time.Time) (string, bool, error)
	CachePut(ctx context.Context, key, value string, expiresAt time.Time) error
	CachePurge(ctx context.Context, now time.Time) (int64, error)
	CacheClear(ctx context.Context) (int64, error)
}

// SQLiteBackend keeps entries in the cache_entries table with an absolute
// expiry evaluated against the clock.
type SQLiteBackend struct {
	store EntryStore
	clock clock.Clock
}

// NewSQLiteBackend creates a backend on store.
func NewSQLiteBackend(store EntryStore, clk clock.Clock) *SQLiteBackend {
	return &SQLiteBackend{store: store, clock: clk}
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) (string, bool, error) {
	return b.store.CacheGet(ctx, key, b.clock.Now())
}

func (b *SQLiteBackend) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.store.CachePut(ctx, key, value, b.clock.Now().Add(ttl))
}

// Purge deletes entries that have expired.
func (b *SQLiteBackend) Purge(ctx context.Context) (int64, error) {
	return b.store.CachePurge(ctx, b.clock.Now())
}

// Clear deletes every entry. Used after the buster rotates, when no
// stored key can be reached again.
func (b *SQLiteBackend) Clear(ctx context.Context) (int64, error) {
	return b.store.CacheClear(ctx)
}
