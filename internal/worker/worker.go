// Package worker runs the time-boxed bulk refresh over job tables.
//
// A tick takes the global lock, then walks each active job from its saved
// cursor. Rows whose next eligible time lies in the future are passed over
// without spending budget; the rest are prechecked, served from cache or
// polled through the throttle, folded through the backoff policy and
// buffered. Each table is written back in one bulk write.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/parceltrack/internal/backoff"
	"github.com/roach88/parceltrack/internal/carrier"
	"github.com/roach88/parceltrack/internal/clock"
	"github.com/roach88/parceltrack/internal/jobs"
	"github.com/roach88/parceltrack/internal/model"
	"github.com/roach88/parceltrack/internal/sheet"
	"github.com/roach88/parceltrack/internal/throttle"
)

// Tracker answers a status lookup for a carrier label.
type Tracker interface {
	Track(ctx context.Context, label, code string) model.StatusResult
}

// ResultCache stores carrier answers.
type ResultCache interface {
	Get(ctx context.Context, carrier, code string) (model.StatusResult, bool)
	Put(ctx context.Context, carrier, code string, res model.StatusResult, ttl time.Duration)
}

// Throttler paces calls per carrier tag.
type Throttler interface {
	Wait(ctx context.Context, tag string) error
	Widen(ctx context.Context, tag string) (int, error)
}

// Budget bounds one tick.
type Budget struct {
	// MaxCalls is the base number of remote calls per tick.
	MaxCalls int

	// PriorityBonus caps the extra calls earned by priority carrier calls.
	PriorityBonus int

	// PriorityCarriers are canonical carrier ids that earn bonus calls.
	PriorityCarriers []string

	// TimeLimit is the wall-clock box of a tick.
	TimeLimit time.Duration
}

// DefaultBudget matches the built-in bulk settings.
var DefaultBudget = Budget{
	MaxCalls:         20,
	PriorityBonus:    150,
	PriorityCarriers: []string{carrier.IDPosti, carrier.IDGLS},
	TimeLimit:        20 * time.Second,
}

// Deps wires a Worker.
type Deps struct {
	Tables   sheet.Tables
	Jobs     *jobs.Manager
	Tracker  Tracker
	Cache    ResultCache
	Throttle Throttler
	Policy   *backoff.Policy
	Clock    clock.Clock
	Location *time.Location
	Budget   Budget
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// Worker executes ticks and ad hoc refreshes.
type Worker struct {
	d Deps
}

// New creates a Worker. Zero budget fields take DefaultBudget values.
func New(d Deps) *Worker {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Budget.MaxCalls <= 0 {
		d.Budget.MaxCalls = DefaultBudget.MaxCalls
	}
	if d.Budget.PriorityBonus < 0 {
		d.Budget.PriorityBonus = 0
	}
	if d.Budget.PriorityCarriers == nil {
		d.Budget.PriorityCarriers = DefaultBudget.PriorityCarriers
	}
	if d.Budget.TimeLimit <= 0 {
		d.Budget.TimeLimit = DefaultBudget.TimeLimit
	}
	return &Worker{d: d}
}

// Outcome describes what a tick did to one job.
type Outcome string

const (
	OutcomeProgress       Outcome = "progress"
	OutcomeCompleted      Outcome = "completed"
	OutcomeNoRows         Outcome = "no_rows"
	OutcomeMissingColumns Outcome = "missing_columns"
)

// JobResult is the per-job part of a TickReport. TotalCalls is the
// lifetime call count of the job.
type JobResult struct {
	Table      string  `json:"table"`
	Outcome    Outcome `json:"outcome"`
	Calls      int     `json:"calls"`
	Touched    int     `json:"touched"`
	CursorRow  int     `json:"cursor_row"`
	Done       int     `json:"done"`
	Remaining  int     `json:"remaining"`
	TotalCalls int     `json:"total_calls"`
	Notice     string  `json:"notice,omitempty"`
}

// TickReport summarizes one tick.
type TickReport struct {
	Calls   int           `json:"calls"`
	Elapsed time.Duration `json:"elapsed"`
	Jobs    []JobResult   `json:"jobs"`
	Notices []string      `json:"notices,omitempty"`
}

// spend tracks the call budget shared by every job of a tick.
type spend struct {
	budget   Budget
	calls    int
	priority int
	start    time.Time
}

func (s *spend) allowed() int {
	return s.budget.MaxCalls + min(s.budget.PriorityBonus, s.priority)
}

func (s *spend) count(canonical string) {
	s.calls++
	if slices.Contains(s.budget.PriorityCarriers, canonical) {
		s.priority++
	}
}

// Tick runs one bounded pass over the active jobs. A lock timeout is
// returned as a LOCK_TIMEOUT error.
func (w *Worker) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport
	err := w.d.Jobs.WithLock(ctx, func(ctx context.Context) error {
		list, err := w.d.Jobs.List(ctx)
		if err != nil {
			return err
		}
		s := &spend{budget: w.d.Budget, start: w.d.Clock.Now()}
		for _, job := range list {
			res, err := w.runJob(ctx, job, s)
			if err != nil {
				return fmt.Errorf("job %s: %w", job.Table, err)
			}
			report.Jobs = append(report.Jobs, res)
			if res.Notice != "" {
				report.Notices = append(report.Notices, res.Notice)
			}
			if w.expired(s) || s.calls >= s.budget.MaxCalls {
				break
			}
		}
		report.Calls = s.calls
		report.Elapsed = clock.Since(w.d.Clock, s.start)
		return nil
	})
	if err != nil {
		return report, err
	}
	w.d.Logger.Info("worker.tick.done",
		"jobs", len(report.Jobs),
		"calls", report.Calls,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

func (w *Worker) expired(s *spend) bool {
	return clock.Since(w.d.Clock, s.start) >= s.budget.TimeLimit
}

func (w *Worker) runJob(ctx context.Context, job model.Job, s *spend) (JobResult, error) {
	res := JobResult{Table: job.Table, TotalCalls: job.CallsMade}
	log := w.d.Logger.With("table", job.Table)

	m, err := w.d.Tables.ReadTable(ctx, job.Table)
	if err != nil {
		return res, err
	}
	if len(m) < 2 {
		res.Outcome = OutcomeNoRows
		res.Notice = fmt.Sprintf("%s: %s", job.Table, model.ErrCodeNoRows)
		log.Warn("worker.job.dropped", "reason", model.ErrCodeNoRows)
		return res, w.d.Jobs.Delete(ctx, job.Table)
	}

	hdr, grew := sheet.EnsureRefreshColumns(trimAll(m[0]))
	layout := sheet.ResolveLayout(hdr)
	if !layout.Resolved() {
		res.Outcome = OutcomeMissingColumns
		res.Notice = fmt.Sprintf("%s: %s: carrier or tracking column not found", job.Table, model.ErrCodeMissingColumns)
		log.Warn("worker.job.dropped", "reason", model.ErrCodeMissingColumns)
		return res, w.d.Jobs.Delete(ctx, job.Table)
	}

	rows := sheet.PadAll(m[1:], layout.Width())
	last := len(rows) + 1
	r := max(2, job.CursorRow)

	// stopErr interrupts the pass; rows polled before it are still saved.
	var stopErr error
	for r <= last {
		if w.expired(s) || s.calls >= s.allowed() {
			break
		}
		if stopErr = ctx.Err(); stopErr != nil {
			break
		}

		row := rows[r-2]
		rec := layout.Read(row, w.d.Location)
		now := w.d.Clock.Now()

		if !rec.EligibleAt(now) {
			r++
			continue
		}

		if next, skip := w.d.Policy.Precheck(rec, now); skip {
			layout.Write(row, next, w.d.Location)
			res.Touched++
			r++
			continue
		}

		result, called, err := w.lookup(ctx, rec, s, true)
		if err != nil {
			stopErr = err
			break
		}
		if called {
			res.Calls++
		}
		layout.Write(row, w.d.Policy.Apply(ctx, rec, result, now), w.d.Location)
		res.Touched++
		r++
	}

	// Progress is persisted even when ctx is already cancelled.
	ctx = context.WithoutCancel(ctx)
	if res.Touched > 0 || grew {
		out := make([][]string, 0, len(rows)+1)
		out = append(out, hdr)
		out = append(out, rows...)
		if err := w.d.Tables.WriteTable(ctx, job.Table, out); err != nil {
			return res, errors.Join(stopErr, err)
		}
	}

	res.TotalCalls = job.CallsMade + res.Calls
	res.CursorRow = r

	if r > last && stopErr == nil {
		res.Outcome = OutcomeCompleted
		res.Done = len(rows)
		res.Notice = fmt.Sprintf("%s: bulk refresh complete (calls: %d)", job.Table, res.TotalCalls)
		log.Info("worker.job.completed", "calls", res.TotalCalls)
		return res, w.d.Jobs.Delete(ctx, job.Table)
	}

	total := job.TotalRows
	if total <= 0 {
		total = len(rows)
	}
	res.Outcome = OutcomeProgress
	res.Done = r - 2
	res.Remaining = max(0, total-res.Done)
	if _, err := w.d.Jobs.Update(ctx, job.Table, model.JobPatch{
		CursorRow: &res.CursorRow,
		CallsMade: &res.TotalCalls,
		TotalRows: &total,
		Done:      &res.Done,
		Remaining: &res.Remaining,
	}); err != nil {
		return res, errors.Join(stopErr, err)
	}
	if stopErr != nil {
		log.Warn("worker.job.interrupted",
			"cursor_row", res.CursorRow,
			"calls", res.Calls,
			"error", stopErr,
		)
		return res, stopErr
	}
	log.Info("worker.job.progress",
		"cursor_row", res.CursorRow,
		"calls", res.Calls,
		"remaining", res.Remaining,
	)
	return res, nil
}

// lookup answers rec from the cache when useCache is set, otherwise from
// the carrier through the throttle. It reports whether a remote call was
// made.
func (w *Worker) lookup(ctx context.Context, rec model.Record, s *spend, useCache bool) (model.StatusResult, bool, error) {
	if useCache {
		if res, ok := w.d.Cache.Get(ctx, rec.Carrier, rec.Code); ok {
			return res, false, nil
		}
	}

	canonical := carrier.Canonical(rec.Carrier)
	tag := throttle.TagFor(canonical)
	if s != nil {
		s.count(canonical)
	}
	if err := w.d.Throttle.Wait(ctx, tag); err != nil {
		return model.StatusResult{}, false, err
	}

	res := w.d.Tracker.Track(ctx, rec.Carrier, rec.Code)
	if cacheable(res) {
		w.d.Cache.Put(ctx, rec.Carrier, rec.Code, res, w.d.CacheTTL)
	}
	if res.Status == model.StatusRateLimited {
		ms, err := w.d.Throttle.Widen(ctx, tag)
		if err != nil {
			w.d.Logger.Warn("worker.throttle.widen_failed", "tag", tag, "error", err)
		} else {
			w.d.Logger.Info("worker.throttle.widened", "tag", tag, "min_interval_ms", ms)
		}
	}
	return res, true, nil
}

// cacheable excludes transient outcomes so a retry after the backoff
// reaches the carrier again.
func cacheable(res model.StatusResult) bool {
	switch res.Status {
	case model.StatusRateLimited, model.StatusNetworkError:
		return false
	}
	return true
}

func trimAll(row []string) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = strings.TrimSpace(v)
	}
	return out
}
