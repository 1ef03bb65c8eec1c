package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/parceltrack/internal/model"
)

// AppendDiagnostic records one non-success remote call.
func (s *Store) AppendDiagnostic(ctx context.Context, e model.DiagnosticEntry) error {
	var retry sql.NullInt64
	if e.RetryAfter != nil {
		retry = sql.NullInt64{Int64: int64(*e.RetryAfter), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO http_log (logged_at, carrier, function, http_code, tag, code, retry_after, body_snippet)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		toMillis(e.Time),
		e.Carrier,
		e.Function,
		e.HTTPCode,
		e.Tag,
		e.Code,
		retry,
		e.BodySnippet,
	)
	if err != nil {
		return fmt.Errorf("append diagnostic: %w", err)
	}
	return nil
}

// ListDiagnostics returns up to limit entries, newest first.
// A limit of zero or less returns every entry.
func (s *Store) ListDiagnostics(ctx context.Context, limit int) ([]model.DiagnosticEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, logged_at, carrier, function, http_code, tag, code, retry_after, body_snippet
		FROM http_log
		ORDER BY logged_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list diagnostics: %w", err)
	}
	defer rows.Close()

	var out []model.DiagnosticEntry
	for rows.Next() {
		var (
			e      model.DiagnosticEntry
			logged int64
			retry  sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &logged, &e.Carrier, &e.Function, &e.HTTPCode, &e.Tag, &e.Code, &retry, &e.BodySnippet); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		e.Time = fromMillis(logged)
		if retry.Valid {
			v := int(retry.Int64)
			e.RetryAfter = &v
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list diagnostics: %w", err)
	}
	return out, nil
}

// TrimDiagnostics keeps the newest keep entries and deletes the rest.
func (s *Store) TrimDiagnostics(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM http_log WHERE id NOT IN (
			SELECT id FROM http_log ORDER BY logged_at DESC, id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("trim diagnostics: %w", err)
	}
	return res.RowsAffected()
}
