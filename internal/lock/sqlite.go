package lock

import (
	"context"
	"time"

	"github.com/roach88/parceltrack/internal/clock"
)

// LeaseStore is the durable table behind SQLite.
type LeaseStore interface {
	TryAcquireLock(ctx context.Context, name, owner string, now time.Time, lease time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) error
}

// SQLite holds locks as lease rows. A holder that dies without releasing
// loses the lock once its lease expires.
type SQLite struct {
	store LeaseStore
	clock clock.Clock
	lease time.Duration
}

// NewSQLite creates a lease backend on store.
func NewSQLite(store LeaseStore, clk clock.Clock, lease time.Duration) *SQLite {
	return &SQLite{store: store, clock: clk, lease: lease}
}

func (s *SQLite) TryLock(ctx context.Context, name, owner string) (bool, error) {
	return s.store.TryAcquireLock(ctx, name, owner, s.clock.Now(), s.lease)
}

func (s *SQLite) Unlock(ctx context.Context, name, owner string) error {
	return s.store.ReleaseLock(ctx, name, owner)
}
