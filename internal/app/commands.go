package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/model"
	"github.com/roach88/parceltrack/internal/pending"
	"github.com/roach88/parceltrack/internal/reconcile"
	"github.com/roach88/parceltrack/internal/workbook"
	"github.com/roach88/parceltrack/internal/worker"
)

// StartBulk registers a bulk job over table, ensures the recurring tick
// trigger exists and runs the first tick immediately. A table without data
// rows fails with NO_ROWS.
func (s *Service) StartBulk(ctx context.Context, table string) (model.Job, worker.TickReport, error) {
	var job model.Job
	err := s.jobs.WithLock(ctx, func(ctx context.Context) error {
		m, err := s.tables.ReadTable(ctx, table)
		if err != nil {
			return err
		}
		job, err = s.jobs.Start(ctx, table, max(0, len(m)-1))
		return err
	})
	if err != nil {
		return job, worker.TickReport{}, err
	}

	if err := s.scheduler.ScheduleRecurring(ctx, TriggerBulkTick, s.settings.Bulk.TickInterval); err != nil {
		return job, worker.TickReport{}, err
	}
	report, err := s.Tick(ctx)
	if model.IsCode(err, model.ErrCodeLockTimeout) {
		s.logger.Info("bulk.start.deferred", "table", table)
		return job, report, nil
	}
	return job, report, err
}

// StopBulk removes the tick trigger and every job. It returns the number
// of jobs removed.
func (s *Service) StopBulk(ctx context.Context) (int64, error) {
	if _, err := s.scheduler.Cancel(ctx, TriggerBulkTick); err != nil {
		return 0, err
	}
	var n int64
	err := s.jobs.WithLock(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.jobs.DeleteAll(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("bulk.stopped", "jobs", n)
	return n, nil
}

// Tick runs one worker tick, then trims the diagnostic log and purges
// expired cache entries.
func (s *Service) Tick(ctx context.Context) (worker.TickReport, error) {
	report, err := s.worker.Tick(ctx)
	if err != nil {
		return report, err
	}
	if keep := s.settings.Diagnostics.Keep; keep > 0 {
		if _, err := s.store.TrimDiagnostics(ctx, keep); err != nil {
			s.logger.Warn("diagnostics.trim.failed", "error", err)
		}
	}
	if _, err := s.cache.Purge(ctx); err != nil {
		s.logger.Warn("cache.purge.failed", "error", err)
	}
	return report, nil
}

// RefreshNow polls every row of table whose carrier matches one of
// carriers (all rows when empty), ignoring backoff.
func (s *Service) RefreshNow(ctx context.Context, table string, carriers ...string) (worker.RefreshReport, error) {
	return s.worker.RefreshNow(ctx, table, worker.RefreshOptions{Carriers: carriers})
}

// Jobs lists the active bulk jobs.
func (s *Service) Jobs(ctx context.Context) ([]model.Job, error) {
	return s.jobs.List(ctx)
}

// ImportFile stores the report at path as Import_Latest and returns its
// data row count.
func (s *Service) ImportFile(ctx context.Context, path string) (int, error) {
	_, rows, err := s.importer.ImportFile(ctx, path)
	return rows, err
}

// ImportAdhoc builds Adhoc_Tracking from the report at path.
func (s *Service) ImportAdhoc(ctx context.Context, path string) (int, error) {
	return s.importer.ImportAdhoc(ctx, path)
}

// RebuildCanonicalTable reconciles Packages with m.
func (s *Service) RebuildCanonicalTable(ctx context.Context, m [][]string) (reconcile.Report, error) {
	return s.reconcile.Rebuild(ctx, m)
}

// BuildPendingTable rebuilds Pending from Packages and Packages_Archive.
func (s *Service) BuildPendingTable(ctx context.Context) (pending.Report, error) {
	return s.pending.Build(ctx)
}

// CheckArchiveDuplicates reports repeated keys in Packages_Archive.
func (s *Service) CheckArchiveDuplicates(ctx context.Context) ([]reconcile.Duplicate, error) {
	return s.reconcile.CheckArchiveDuplicates(ctx)
}

// Readiness lists missing configuration keys.
func (s *Service) Readiness(ctx context.Context) (config.Readiness, error) {
	return config.CheckReadiness(ctx, s.cfg)
}

// Ping checks that the durable store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SeedDefaults writes default URL templates that are not yet set.
func (s *Service) SeedDefaults(ctx context.Context) ([]string, error) {
	return config.SeedDefaults(ctx, s.cfg)
}

// InvalidateCache makes every cached carrier result miss.
func (s *Service) InvalidateCache(ctx context.Context) error {
	return s.cache.InvalidateAll(ctx)
}

// Diagnostics returns up to limit entries of the diagnostic log, newest
// first.
func (s *Service) Diagnostics(ctx context.Context, limit int) ([]model.DiagnosticEntry, error) {
	return s.store.ListDiagnostics(ctx, limit)
}

// ConfigGet returns a durable configuration value.
func (s *Service) ConfigGet(ctx context.Context, key string) (string, bool, error) {
	return s.cfg.Lookup(ctx, key)
}

// ConfigSet writes a durable configuration value. An empty value deletes
// the key.
func (s *Service) ConfigSet(ctx context.Context, key, value string) error {
	if value == "" {
		return s.cfg.Delete(ctx, key)
	}
	return s.cfg.Set(ctx, key, value)
}

// Export writes the named tables, or every table when names is empty, as
// an xlsx workbook to out.
func (s *Service) Export(ctx context.Context, names []string, out io.Writer) (int, error) {
	if len(names) == 0 {
		all, err := s.tables.TableNames(ctx)
		if err != nil {
			return 0, err
		}
		names = all
	}
	n, err := workbook.Export(ctx, s.tables, names, out, s.logger)
	if err != nil {
		return n, fmt.Errorf("export: %w", err)
	}
	return n, nil
}

// ScheduleDailyFlow registers the daily flow as a recurring trigger.
func (s *Service) ScheduleDailyFlow(ctx context.Context, every time.Duration) error {
	return s.scheduler.ScheduleRecurring(ctx, TriggerDailyFlow, every)
}

// CancelDailyFlow removes the daily flow trigger.
func (s *Service) CancelDailyFlow(ctx context.Context) (bool, error) {
	return s.scheduler.Cancel(ctx, TriggerDailyFlow)
}
