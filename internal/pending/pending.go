// Package pending builds the table of shipments that still need attention:
// every canonical or archived row that is not yet delivered.
package pending

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/parceltrack/internal/backoff"
	"github.com/roach88/parceltrack/internal/model"
	"github.com/roach88/parceltrack/internal/sheet"
)

// Report summarizes one build.
type Report struct {
	Sources   int `json:"sources"`
	Scanned   int `json:"scanned"`
	Delivered int `json:"delivered"`
	NoKey     int `json:"no_key"`
	Rows      int `json:"rows"`
}

// Builder assembles the pending table.
type Builder struct {
	tables  sheet.Tables
	sources []string
	target  string
	logger  *slog.Logger
}

// New creates a Builder reading Packages and Packages_Archive and writing
// the pending table.
func New(tables sheet.Tables, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		tables:  tables,
		sources: []string{sheet.TablePackages, sheet.TableArchive},
		target:  sheet.TablePending,
		logger:  logger,
	}
}

type source struct {
	hdr  []string
	rows [][]string
}

// Build unions the source tables under a merged header, drops delivered
// rows and rows without a key, dedupes by key with later rows winning and
// writes the result with the refresh block appended.
func (b *Builder) Build(ctx context.Context) (Report, error) {
	var rep Report
	var srcs []source
	var union []string
	for _, name := range b.sources {
		m, err := b.tables.ReadTable(ctx, name)
		if err != nil {
			return rep, err
		}
		if len(m) < 2 {
			continue
		}
		srcs = append(srcs, source{hdr: m[0], rows: m[1:]})
		union = sheet.MergeHeaders(union, m[0])
	}
	if len(srcs) == 0 {
		return rep, model.NewError(model.ErrCodeNoRows, b.target, "no rows in source tables")
	}
	rep.Sources = len(srcs)

	deliveredCol := sheet.PickIndex(union, sheet.DeliveredDateCandidates)
	statusCol := sheet.PickIndex(union, sheet.StatusCandidates)
	keyCol := sheet.ChooseKeyIndex(union)
	dst := sheet.IndexMap(union)

	var order []string
	byKey := make(map[string][]string)
	for _, src := range srcs {
		project := make([]int, len(src.hdr))
		for i, h := range src.hdr {
			project[i] = dst[sheet.Normalize(h)]
		}
		for _, row := range src.rows {
			if sheet.IsBlank(row) {
				continue
			}
			rep.Scanned++
			u := make([]string, len(union))
			for i, di := range project {
				if i < len(row) {
					u[di] = row[i]
				}
			}
			key := ""
			if keyCol >= 0 {
				key = strings.TrimSpace(u[keyCol])
			}
			if key == "" {
				rep.NoKey++
				continue
			}
			if isDelivered(u, statusCol, deliveredCol) {
				rep.Delivered++
				continue
			}
			if _, seen := byKey[key]; !seen {
				order = append(order, key)
			}
			byKey[key] = u
		}
	}

	hdr, _ := sheet.EnsureRefreshColumns(union)
	out := make([][]string, 0, len(order)+1)
	out = append(out, hdr)
	for _, key := range order {
		out = append(out, sheet.Pad(byKey[key], len(hdr)))
	}
	if err := b.tables.WriteTable(ctx, b.target, out); err != nil {
		return rep, fmt.Errorf("write %s: %w", b.target, err)
	}
	rep.Rows = len(order)

	b.logger.Info("pending.built",
		"rows", rep.Rows,
		"delivered", rep.Delivered,
		"no_key", rep.NoKey,
	)
	return rep, nil
}

func isDelivered(row []string, statusCol, deliveredCol int) bool {
	if deliveredCol >= 0 && strings.TrimSpace(row[deliveredCol]) != "" {
		return true
	}
	return statusCol >= 0 && backoff.IsDelivered(row[statusCol])
}
