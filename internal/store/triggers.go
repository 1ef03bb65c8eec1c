package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/parceltrack/internal/model"
)

// PutTrigger registers or replaces a recurring trigger.
func (s *Store) PutTrigger(ctx context.Context, tr model.Trigger) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO triggers (name, interval_seconds, created_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			interval_seconds = excluded.interval_seconds,
			created_at = excluded.created_at
	`, tr.Name, int64(tr.Interval/time.Second), toMillis(tr.CreatedAt))
	if err != nil {
		return fmt.Errorf("put trigger %q: %w", tr.Name, err)
	}
	return nil
}

// DeleteTrigger removes the trigger called name. It reports whether one existed.
func (s *Store) DeleteTrigger(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM triggers WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete trigger %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete trigger %q: %w", name, err)
	}
	return n > 0, nil
}

// ListTriggers returns every trigger in name order.
func (s *Store) ListTriggers(ctx context.Context) ([]model.Trigger, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, interval_seconds, created_at FROM triggers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	var out []model.Trigger
	for rows.Next() {
		var (
			tr      model.Trigger
			secs    int64
			created int64
		)
		if err := rows.Scan(&tr.Name, &secs, &created); err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		tr.Interval = time.Duration(secs) * time.Second
		tr.CreatedAt = fromMillis(created)
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	return out, nil
}
