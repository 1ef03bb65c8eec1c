package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/parceltrack/internal/model"
)

const jobColumns = `table_name, cursor_row, calls_made, started_at, total_rows, done, remaining, updated_at`

// PutJob inserts job, replacing any job already stored for the same table.
func (s *Store) PutJob(ctx context.Context, job model.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(table_name) DO UPDATE SET
			cursor_row = excluded.cursor_row,
			calls_made = excluded.calls_made,
			started_at = excluded.started_at,
			total_rows = excluded.total_rows,
			done = excluded.done,
			remaining = excluded.remaining,
			updated_at = excluded.updated_at
	`,
		job.Table,
		job.CursorRow,
		job.CallsMade,
		toMillis(job.StartedAt),
		job.TotalRows,
		job.Done,
		job.Remaining,
		toMillis(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put job %q: %w", job.Table, err)
	}
	return nil
}

// GetJob returns the job for table, or nil if none exists.
func (s *Store) GetJob(ctx context.Context, table string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE table_name = ?`, table)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %q: %w", table, err)
	}
	return &job, nil
}

// UpdateJob applies the non-nil fields of patch to the job for table.
// It reports whether a job was found.
func (s *Store) UpdateJob(ctx context.Context, table string, patch model.JobPatch) (bool, error) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.CursorRow != nil {
		add("cursor_row", *patch.CursorRow)
	}
	if patch.CallsMade != nil {
		add("calls_made", *patch.CallsMade)
	}
	if patch.TotalRows != nil {
		add("total_rows", *patch.TotalRows)
	}
	if patch.Done != nil {
		add("done", *patch.Done)
	}
	if patch.Remaining != nil {
		add("remaining", *patch.Remaining)
	}
	if patch.UpdatedAt != nil {
		add("updated_at", toMillis(*patch.UpdatedAt))
	}
	if len(sets) == 0 {
		job, err := s.GetJob(ctx, table)
		return job != nil, err
	}

	args = append(args, table)
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE table_name = ?`, args...)
	if err != nil {
		return false, fmt.Errorf("update job %q: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update job %q: %w", table, err)
	}
	return n > 0, nil
}

// DeleteJob removes the job for table. Deleting a missing job is not an error.
func (s *Store) DeleteJob(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE table_name = ?`, table); err != nil {
		return fmt.Errorf("delete job %q: %w", table, err)
	}
	return nil
}

// DeleteAllJobs removes every job and returns how many were removed.
func (s *Store) DeleteAllJobs(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("delete jobs: %w", err)
	}
	return res.RowsAffected()
}

// ListJobs returns all jobs in start order. Ties break on table name.
func (s *Store) ListJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		ORDER BY started_at ASC, table_name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (model.Job, error) {
	var (
		job                  model.Job
		startedAt, updatedAt int64
	)
	err := r.Scan(
		&job.Table,
		&job.CursorRow,
		&job.CallsMade,
		&startedAt,
		&job.TotalRows,
		&job.Done,
		&job.Remaining,
		&updatedAt,
	)
	if err != nil {
		return model.Job{}, err
	}
	job.StartedAt = fromMillis(startedAt)
	job.UpdatedAt = fromMillis(updatedAt)
	return job, nil
}
