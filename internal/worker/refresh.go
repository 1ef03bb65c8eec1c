package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/parceltrack/internal/backoff"
	"github.com/roach88/parceltrack/internal/model"
	"github.com/roach88/parceltrack/internal/sheet"
)

// RefreshOptions narrows an ad hoc refresh.
type RefreshOptions struct {
	// Carriers limits polling to rows whose carrier label contains one of
	// these, case-insensitively. Empty polls every row.
	Carriers []string

	// RemoveDelivered drops rows that are, or just became, delivered.
	RemoveDelivered bool
}

// RefreshReport summarizes an ad hoc refresh.
type RefreshReport struct {
	Table   string `json:"table"`
	Rows    int    `json:"rows"`
	Polled  int    `json:"polled"`
	Calls   int    `json:"calls"`
	Removed int    `json:"removed"`
}

// RefreshNow polls every matching row of table in one pass. It ignores
// next eligible times, bypasses the cache lookup and does not take the
// global lock, so it may race a bulk job on the same table.
func (w *Worker) RefreshNow(ctx context.Context, table string, opts RefreshOptions) (RefreshReport, error) {
	report := RefreshReport{Table: table}

	m, err := w.d.Tables.ReadTable(ctx, table)
	if err != nil {
		return report, err
	}
	if len(m) < 2 {
		return report, model.NewError(model.ErrCodeNoRows, table, "table has no data rows")
	}

	hdr, _ := sheet.EnsureRefreshColumns(trimAll(m[0]))
	layout := sheet.ResolveLayout(hdr)
	if !layout.Resolved() {
		return report, model.NewError(model.ErrCodeMissingColumns, table, "carrier or tracking column not found")
	}
	deliveredCol := sheet.PickIndex(hdr, sheet.DeliveredDateCandidates)

	want := make([]string, 0, len(opts.Carriers))
	for _, c := range opts.Carriers {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			want = append(want, c)
		}
	}

	rows := sheet.PadAll(m[1:], layout.Width())
	out := make([][]string, 0, len(rows)+1)
	out = append(out, hdr)

	// stopErr interrupts the pass; the rest of the table is kept as read
	// and rows polled so far are still written.
	var stopErr error
	for i, row := range rows {
		if stopErr = ctx.Err(); stopErr != nil {
			out = append(out, rows[i:]...)
			break
		}
		rec := layout.Read(row, w.d.Location)
		if !matchesCarrier(rec.Carrier, want) {
			out = append(out, row)
			continue
		}

		now := w.d.Clock.Now()
		report.Polled++
		if next, skip := w.d.Policy.Precheck(rec, now); skip {
			layout.Write(row, next, w.d.Location)
			out = append(out, row)
			continue
		}

		res, called, err := w.lookup(ctx, rec, nil, false)
		if err != nil {
			stopErr = err
			out = append(out, rows[i:]...)
			break
		}
		if called {
			report.Calls++
		}
		next := w.d.Policy.Apply(ctx, rec, res, now)
		layout.Write(row, next, w.d.Location)

		if opts.RemoveDelivered && delivered(row, deliveredCol, next) {
			report.Removed++
			continue
		}
		out = append(out, row)
	}

	if err := w.d.Tables.WriteTable(context.WithoutCancel(ctx), table, out); err != nil {
		return report, errors.Join(stopErr, fmt.Errorf("write %s: %w", table, err))
	}
	report.Rows = len(out) - 1
	if stopErr != nil {
		w.d.Logger.Warn("worker.refresh.interrupted", "table", table, "polled", report.Polled, "error", stopErr)
		return report, stopErr
	}
	w.d.Logger.Info("worker.refresh.done",
		"table", table,
		"polled", report.Polled,
		"calls", report.Calls,
		"removed", report.Removed,
	)
	return report, nil
}

func matchesCarrier(label string, want []string) bool {
	if len(want) == 0 {
		return true
	}
	l := strings.ToLower(label)
	for _, w := range want {
		if strings.Contains(l, w) {
			return true
		}
	}
	return false
}

func delivered(row []string, deliveredCol int, rec model.Record) bool {
	if deliveredCol >= 0 && deliveredCol < len(row) && strings.TrimSpace(row[deliveredCol]) != "" {
		return true
	}
	return rec.DeliveredConfirmedAt != "" || backoff.IsDelivered(rec.Status)
}
