package reconcile

import (
	"context"
	"strconv"
	"strings"

	"github.com/roach88/parceltrack/internal/sheet"
)

// Duplicate is a repeated archive key. Rows are 1-based table rows.
type Duplicate struct {
	Key      string `json:"key"`
	Row      int    `json:"row"`
	FirstRow int    `json:"first_row"`
}

// CheckArchiveDuplicates lists archive rows whose key appeared on an
// earlier row. The findings replace the Archive_Duplicates table, which is
// dropped when there are none.
func (r *Reconciler) CheckArchiveDuplicates(ctx context.Context) ([]Duplicate, error) {
	m, err := r.tables.ReadTable(ctx, r.archive)
	if err != nil {
		return nil, err
	}
	dups := findDuplicates(m)

	if len(dups) == 0 {
		if err := r.tables.DeleteTable(ctx, sheet.TableArchiveDuplicates); err != nil {
			return nil, err
		}
	} else {
		out := [][]string{{"Key", "Row", "FirstRow"}}
		for _, d := range dups {
			out = append(out, []string{d.Key, strconv.Itoa(d.Row), strconv.Itoa(d.FirstRow)})
		}
		if err := r.tables.WriteTable(ctx, sheet.TableArchiveDuplicates, out); err != nil {
			return dups, err
		}
	}
	r.logger.Info("reconcile.archive_duplicates", "count", len(dups))
	return dups, nil
}

func findDuplicates(m [][]string) []Duplicate {
	if len(m) < 2 {
		return nil
	}
	keyIdx := sheet.ChooseKeyIndex(m[0])
	if keyIdx < 0 {
		return nil
	}

	seen := make(map[string]int)
	var dups []Duplicate
	for i, row := range m[1:] {
		key := strings.TrimSpace(cellRaw(row, keyIdx))
		if key == "" {
			continue
		}
		rowNum := i + 2
		if first, ok := seen[key]; ok {
			dups = append(dups, Duplicate{Key: key, Row: rowNum, FirstRow: first})
			continue
		}
		seen[key] = rowNum
	}
	return dups
}
