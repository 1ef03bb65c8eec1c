package store

import (
	"context"
	"fmt"
	"time"
)

// TryAcquireLock takes the lease on name for owner until now+lease.
// The lease is granted when the lock is free, expired, or already held by
// owner (which extends it). It reports whether owner now holds the lock.
func (s *Store) TryAcquireLock(ctx context.Context, name, owner string, now time.Time, lease time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO locks (name, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			owner = excluded.owner,
			expires_at = excluded.expires_at
		WHERE locks.expires_at <= ? OR locks.owner = excluded.owner
	`, name, owner, toMillis(now.Add(lease)), toMillis(now))
	if err != nil {
		return false, fmt.Errorf("acquire lock %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lock %q: %w", name, err)
	}
	return n > 0, nil
}

// ReleaseLock frees name if owner holds it. Releasing a lock held by
// someone else is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, name, owner string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE name = ? AND owner = ?`, name, owner)
	if err != nil {
		return fmt.Errorf("release lock %q: %w", name, err)
	}
	return nil
}
