// Package jobs manages the persisted cursors of bulk refresh jobs.
//
// Every mutation is expected to run inside WithLock so that concurrent
// ticks, start and stop commands never interleave on the same job rows.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/parceltrack/internal/clock"
	"github.com/roach88/parceltrack/internal/ident"
	"github.com/roach88/parceltrack/internal/lock"
	"github.com/roach88/parceltrack/internal/model"
)

const (
	// LockName is the global lock guarding every job mutation.
	LockName = "BULK"

	// DefaultLockWait bounds how long WithLock waits for the lock.
	DefaultLockWait = 5 * time.Second
)

// Store persists jobs.
type Store interface {
	PutJob(ctx context.Context, job model.Job) error
	GetJob(ctx context.Context, table string) (*model.Job, error)
	UpdateJob(ctx context.Context, table string, patch model.JobPatch) (bool, error)
	DeleteJob(ctx context.Context, table string) error
	DeleteAllJobs(ctx context.Context) (int64, error)
	ListJobs(ctx context.Context) ([]model.Job, error)
}

// Manager owns the job table and the global lock.
type Manager struct {
	store  Store
	locks  lock.Backend
	clock  clock.Clock
	owners ident.Generator
	wait   time.Duration
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLockWait overrides DefaultLockWait.
func WithLockWait(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.wait = d
		}
	}
}

// WithOwners overrides the lock owner token generator.
func WithOwners(g ident.Generator) Option {
	return func(m *Manager) { m.owners = g }
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a Manager.
func NewManager(store Store, locks lock.Backend, clk clock.Clock, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		locks:  locks,
		clock:  clk,
		owners: ident.UUIDv7Generator{},
		wait:   DefaultLockWait,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// WithLock runs fn while holding the global lock. A lock that cannot be
// taken within the configured wait yields a LOCK_TIMEOUT error and fn is
// not run.
func (m *Manager) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	owner := m.owners.Generate()
	lease, err := lock.Acquire(ctx, m.locks, m.clock, LockName, owner, m.wait)
	if err != nil {
		m.logger.Warn("jobs.lock.failed", "owner", owner, "error", err)
		return err
	}
	defer func() {
		// Release on a fresh context so a cancelled caller still frees the lock.
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			m.logger.Error("jobs.lock.release_failed", "owner", owner, "error", err)
		}
	}()
	return fn(ctx)
}

// Start creates (or restarts) the job for table at the first data row.
func (m *Manager) Start(ctx context.Context, table string, totalRows int) (model.Job, error) {
	if totalRows <= 0 {
		return model.Job{}, model.NewError(model.ErrCodeNoRows, table, "table has no data rows")
	}
	now := m.clock.Now()
	job := model.Job{
		Table:     table,
		CursorRow: 2,
		StartedAt: now,
		TotalRows: totalRows,
		Remaining: totalRows,
		UpdatedAt: now,
	}
	if err := m.store.PutJob(ctx, job); err != nil {
		return model.Job{}, fmt.Errorf("start job: %w", err)
	}
	m.logger.Info("jobs.started", "table", table, "total_rows", totalRows)
	return job, nil
}

// Get returns the job for table, or nil.
func (m *Manager) Get(ctx context.Context, table string) (*model.Job, error) {
	return m.store.GetJob(ctx, table)
}

// Update applies patch to the job for table and stamps UpdatedAt.
// It reports whether the job existed.
func (m *Manager) Update(ctx context.Context, table string, patch model.JobPatch) (bool, error) {
	if patch.UpdatedAt == nil {
		now := m.clock.Now()
		patch.UpdatedAt = &now
	}
	return m.store.UpdateJob(ctx, table, patch)
}

// Delete removes the job for table.
func (m *Manager) Delete(ctx context.Context, table string) error {
	return m.store.DeleteJob(ctx, table)
}

// DeleteAll removes every job.
func (m *Manager) DeleteAll(ctx context.Context) (int64, error) {
	return m.store.DeleteAllJobs(ctx)
}

// List returns active jobs in start order.
func (m *Manager) List(ctx context.Context) ([]model.Job, error) {
	return m.store.ListJobs(ctx)
}
