// Package lock provides the named cross-process mutex that serializes job
// mutations. Three backends share one contract: a SQLite lease row, a
// Redis key and a PostgreSQL session advisory lock.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/parceltrack/internal/clock"
	"github.com/roach88/parceltrack/internal/model"
)

// pollInterval spaces acquisition attempts while waiting.
const pollInterval = 100 * time.Millisecond

// Backend attempts and releases named locks on behalf of an owner token.
type Backend interface {
	// TryLock takes name for owner without waiting. Reports success.
	TryLock(ctx context.Context, name, owner string) (bool, error)

	// Unlock releases name if owner holds it.
	Unlock(ctx context.Context, name, owner string) error
}

// Lease is a held lock.
type Lease struct {
	backend Backend
	name    string
	owner   string
}

// Release frees the lock. Safe to call more than once.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.backend == nil {
		return nil
	}
	b := l.backend
	l.backend = nil
	return b.Unlock(ctx, l.name, l.owner)
}

// Name returns the lock name.
func (l *Lease) Name() string { return l.name }

// Acquire polls b until name is held by owner or wait elapses on clk.
// Timing out returns a LOCK_TIMEOUT error.
func Acquire(ctx context.Context, b Backend, clk clock.Clock, name, owner string, wait time.Duration) (*Lease, error) {
	deadline := clk.Now().Add(wait)
	for {
		ok, err := b.TryLock(ctx, name, owner)
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", name, err)
		}
		if ok {
			return &Lease{backend: b, name: name, owner: owner}, nil
		}
		if !clk.Now().Before(deadline) {
			return nil, model.NewError(model.ErrCodeLockTimeout, "",
				fmt.Sprintf("lock %s not acquired within %s", name, wait))
		}
		if err := clk.Sleep(ctx, min(pollInterval, deadline.Sub(clk.Now()))); err != nil {
			return nil, err
		}
	}
}
