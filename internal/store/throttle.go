package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/parceltrack/internal/model"
)

// GetThrottle returns the pacing state of tag. A tag never seen before has
// a zero LastCallAt.
func (s *Store) GetThrottle(ctx context.Context, tag string) (model.ThrottleState, error) {
	st := model.ThrottleState{Tag: tag}
	var last int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_call_at, min_interval_ms FROM throttle_state WHERE tag = ?`, tag,
	).Scan(&last, &st.MinIntervalMs)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("get throttle %q: %w", tag, err)
	}
	st.LastCallAt = fromMillis(last)
	return st, nil
}

// MarkThrottleCall records at as the last call time of tag and stores the
// interval that was in effect.
func (s *Store) MarkThrottleCall(ctx context.Context, tag string, at time.Time, intervalMs int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO throttle_state (tag, last_call_at, min_interval_ms) VALUES (?, ?, ?)
		ON CONFLICT(tag) DO UPDATE SET
			last_call_at = excluded.last_call_at,
			min_interval_ms = excluded.min_interval_ms
	`, tag, toMillis(at), intervalMs)
	if err != nil {
		return fmt.Errorf("mark throttle %q: %w", tag, err)
	}
	return nil
}
