package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// ReadTable returns the full matrix of table name, header first.
// A table that does not exist reads as nil.
func (s *Store) ReadTable(ctx context.Context, name string) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cells FROM sheet_rows WHERE table_name = ? ORDER BY row_num ASC`, name)
	if err != nil {
		return nil, fmt.Errorf("read table %q: %w", name, err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("read table %q: %w", name, err)
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, fmt.Errorf("read table %q: decode row: %w", name, err)
		}
		out = append(out, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read table %q: %w", name, err)
	}
	return out, nil
}

// WriteTable replaces the contents of table name with m, creating the table
// if needed. The write is atomic.
func (s *Store) WriteTable(ctx context.Context, name string, m [][]string) error {
	return s.WriteTables(ctx, map[string][][]string{name: m})
}

// WriteTables replaces several tables in one transaction. Either every
// table is written or none is.
func (s *Store) WriteTables(ctx context.Context, tables map[string][][]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write tables: %w", err)
	}
	defer tx.Rollback()

	now := toMillis(s.clock.Now())
	for _, name := range slices.Sorted(maps.Keys(tables)) {
		if err := writeTableTx(ctx, tx, name, tables[name], now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write tables: commit: %w", err)
	}
	return nil
}

func writeTableTx(ctx context.Context, tx *sql.Tx, name string, m [][]string, now int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sheet_tables (name, updated_at) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET updated_at = excluded.updated_at
	`, name, now)
	if err != nil {
		return fmt.Errorf("write table %q: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sheet_rows WHERE table_name = ?`, name); err != nil {
		return fmt.Errorf("write table %q: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sheet_rows (table_name, row_num, cells) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("write table %q: %w", name, err)
	}
	defer stmt.Close()

	for i, row := range m {
		if row == nil {
			row = []string{}
		}
		raw, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("write table %q: encode row %d: %w", name, i+1, err)
		}
		if _, err := stmt.ExecContext(ctx, name, i+1, string(raw)); err != nil {
			return fmt.Errorf("write table %q: row %d: %w", name, i+1, err)
		}
	}
	return nil
}

// DeleteTable drops table name and its rows.
func (s *Store) DeleteTable(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sheet_tables WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete table %q: %w", name, err)
	}
	return nil
}

// TableNames lists existing tables in name order.
func (s *Store) TableNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sheet_tables ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
