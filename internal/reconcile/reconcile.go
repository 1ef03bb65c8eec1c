// Package reconcile merges imported shipment reports into the canonical
// Packages table and moves vanished rows to the archive.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/parceltrack/internal/clock"
	"github.com/roach88/parceltrack/internal/ident"
	"github.com/roach88/parceltrack/internal/model"
	"github.com/roach88/parceltrack/internal/sheet"
)

// Archive stamp columns, appended after the canonical header.
const (
	ColArchivedOn = "ArchivedOn"
	ColBatchID    = "BatchId"
	ColReason     = "Reason"

	// ReasonNotInLatest marks rows that disappeared from the latest import.
	ReasonNotInLatest = "not in latest file"
)

// Report summarizes one rebuild.
type Report struct {
	KeyColumn     string `json:"key_column"`
	Imported      int    `json:"imported"`
	Updated       int    `json:"updated"`
	Added         int    `json:"added"`
	Archived      int    `json:"archived"`
	Rows          int    `json:"rows"`
	HeaderChanged bool   `json:"header_changed"`
	BatchID       string `json:"batch_id,omitempty"`
}

// Reconciler rebuilds the canonical table from imports.
type Reconciler struct {
	tables  sheet.Tables
	clock   clock.Clock
	ids     ident.Generator
	loc     *time.Location
	logger  *slog.Logger
	target  string
	archive string
}

// New creates a Reconciler over the Packages and Packages_Archive tables.
func New(tables sheet.Tables, clk clock.Clock, ids ident.Generator, loc *time.Location, logger *slog.Logger) *Reconciler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		tables:  tables,
		clock:   clk,
		ids:     ids,
		loc:     loc,
		logger:  logger,
		target:  sheet.TablePackages,
		archive: sheet.TableArchive,
	}
}

// Rebuild merges the imported matrix m into the canonical table.
//
// Rows are matched on the first key column found in the import. Matched
// rows take the imported value of every imported column and keep all other
// columns. Unmatched canonical rows move to the archive. Rows only present
// in the import are prepended in reverse import order.
func (r *Reconciler) Rebuild(ctx context.Context, m [][]string) (Report, error) {
	var rep Report
	if len(m) == 0 || sheet.IsBlank(m[0]) {
		return rep, model.NewError(model.ErrCodeEmptyImport, r.target, "import has no header")
	}

	srcHdr := trimAll(m[0])
	keyIdx := sheet.ChooseKeyIndex(srcHdr)
	if keyIdx < 0 {
		return rep, model.NewError(model.ErrCodeMissingColumns, r.target, "no unique key column in import")
	}
	rep.KeyColumn = srcHdr[keyIdx]

	existing, err := r.tables.ReadTable(ctx, r.target)
	if err != nil {
		return rep, err
	}
	var oldHdr []string
	if len(existing) > 0 {
		oldHdr = existing[0]
	}
	union := sheet.MergeHeaders(oldHdr, srcHdr)
	rep.HeaderChanged = !sheet.SameHeaders(oldHdr, union)

	dstIdx := sheet.IndexMap(union)
	project := make([]int, len(srcHdr))
	for i, h := range srcHdr {
		project[i] = dstIdx[sheet.Normalize(h)]
	}
	dstKey := project[keyIdx]

	// Imported rows keyed in first-seen order. A repeated key keeps its
	// first position and takes the last row's values.
	var order []string
	incoming := make(map[string][]string)
	for _, row := range m[1:] {
		if sheet.IsBlank(row) {
			continue
		}
		key := cell(row, keyIdx)
		if key == "" {
			continue
		}
		out := make([]string, len(union))
		for i, di := range project {
			out[di] = cellRaw(row, i)
		}
		if _, seen := incoming[key]; !seen {
			order = append(order, key)
		}
		incoming[key] = out
	}
	rep.Imported = len(order)

	var current [][]string
	if len(existing) > 1 {
		current = sheet.PadAll(existing[1:], len(union))
	}

	consumed := make(map[string]bool, len(order))
	kept := make([][]string, 0, len(current))
	var gone [][]string
	for _, row := range current {
		if sheet.IsBlank(row) {
			continue
		}
		key := strings.TrimSpace(row[dstKey])
		if key == "" {
			kept = append(kept, row)
			continue
		}
		upd, ok := incoming[key]
		if !ok {
			gone = append(gone, row)
			continue
		}
		for _, di := range project {
			row[di] = upd[di]
		}
		if !consumed[key] {
			consumed[key] = true
			rep.Updated++
		}
		kept = append(kept, row)
	}

	var added [][]string
	for _, key := range order {
		if !consumed[key] {
			added = append(added, incoming[key])
		}
	}
	slices.Reverse(added)
	rep.Added = len(added)

	out := make([][]string, 0, 1+len(added)+len(kept))
	out = append(out, union)
	out = append(out, added...)
	out = append(out, kept...)

	writes := map[string][][]string{r.target: out}
	if len(gone) > 0 {
		rep.BatchID = r.ids.Generate()
		arch, err := r.archiveTable(ctx, union, gone, rep.BatchID)
		if err != nil {
			return rep, err
		}
		writes[r.archive] = arch
	}
	if err := r.commit(ctx, writes); err != nil {
		return rep, err
	}
	rep.Archived = len(gone)
	rep.Rows = len(out) - 1

	r.logger.Info("reconcile.rebuilt",
		"key", rep.KeyColumn,
		"updated", rep.Updated,
		"added", rep.Added,
		"archived", rep.Archived,
		"header_changed", rep.HeaderChanged,
	)
	return rep, nil
}

// commit writes the rebuilt canonical table and archive together. Without
// a multi-table writer the archive goes first: a failure in between leaves
// duplicate archive rows, which CheckArchiveDuplicates reports, instead of
// dropping rows from both tables.
func (r *Reconciler) commit(ctx context.Context, writes map[string][][]string) error {
	if bw, ok := r.tables.(batchWriter); ok {
		if err := bw.WriteTables(ctx, writes); err != nil {
			return fmt.Errorf("write %s: %w", r.target, err)
		}
		return nil
	}
	if arch, ok := writes[r.archive]; ok {
		if err := r.tables.WriteTable(ctx, r.archive, arch); err != nil {
			return fmt.Errorf("write %s: %w", r.archive, err)
		}
	}
	if err := r.tables.WriteTable(ctx, r.target, writes[r.target]); err != nil {
		return fmt.Errorf("write %s: %w", r.target, err)
	}
	return nil
}

// batchWriter replaces several tables atomically.
type batchWriter interface {
	WriteTables(ctx context.Context, tables map[string][][]string) error
}

// archiveTable returns the archive with rows, laid out by hdr, prepended
// and stamped. The archive header grows to cover hdr and never loses
// columns.
func (r *Reconciler) archiveTable(ctx context.Context, hdr []string, rows [][]string, batchID string) ([][]string, error) {
	existing, err := r.tables.ReadTable(ctx, r.archive)
	if err != nil {
		return nil, err
	}
	var oldHdr []string
	if len(existing) > 0 {
		oldHdr = existing[0]
	}
	want := append(slices.Clone(hdr), ColArchivedOn, ColBatchID, ColReason)
	archHdr := sheet.MergeHeaders(oldHdr, want)
	idx := sheet.IndexMap(archHdr)

	stamp := model.FormatCellTime(r.clock.Now(), r.loc)
	out := make([][]string, 0, 1+len(rows)+len(existing))
	out = append(out, archHdr)
	for _, row := range rows {
		a := make([]string, len(archHdr))
		for i, h := range hdr {
			a[idx[sheet.Normalize(h)]] = row[i]
		}
		a[idx[sheet.Normalize(ColArchivedOn)]] = stamp
		a[idx[sheet.Normalize(ColBatchID)]] = batchID
		a[idx[sheet.Normalize(ColReason)]] = ReasonNotInLatest
		out = append(out, a)
	}
	if len(existing) > 1 {
		out = append(out, sheet.PadAll(existing[1:], len(archHdr))...)
	}
	return out, nil
}

func cell(row []string, i int) string {
	return strings.TrimSpace(cellRaw(row, i))
}

func cellRaw(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func trimAll(row []string) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = strings.TrimSpace(v)
	}
	return out
}
