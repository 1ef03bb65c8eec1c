// Package workbook stores named tables as the sheets of an XLSX file and
// converts between tables and workbooks for import and export.
package workbook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/xuri/excelize/v2"
)

// placeholder is the sheet excelize creates in a new file. It is hidden
// from TableNames while empty because a workbook cannot have zero sheets.
const placeholder = "Sheet1"

// Workbook is a table store backed by one XLSX file. Every mutation is
// saved immediately.
//
// Thread-safety: Workbook is safe for concurrent use via internal mutex.
type Workbook struct {
	mu   sync.Mutex
	f    *excelize.File
	path string
}

// Open loads the workbook at path, or starts an empty one if the file
// does not exist yet.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if errors.Is(err, os.ErrNotExist) {
		f = excelize.NewFile()
	} else if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	return &Workbook{f: f, path: path}, nil
}

// Close releases the underlying file.
func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

func (w *Workbook) has(name string) bool {
	idx, err := w.f.GetSheetIndex(name)
	return err == nil && idx >= 0
}

// ReadTable returns the rows of sheet name. Missing or empty sheets read
// as nil. Rows are not padded.
func (w *Workbook) ReadTable(_ context.Context, name string) ([][]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.has(name) {
		return nil, nil
	}
	rows, err := w.f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows, nil
}

// WriteTable replaces sheet name with m and saves the file.
func (w *Workbook) WriteTable(ctx context.Context, name string, m [][]string) error {
	return w.WriteTables(ctx, map[string][][]string{name: m})
}

// WriteTables replaces several sheets and saves the file once, so the file
// on disk holds either all of them or none.
func (w *Workbook) WriteTables(_ context.Context, tables map[string][][]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, name := range slices.Sorted(maps.Keys(tables)) {
		if !w.has(name) && w.onlyPlaceholder() {
			if err := w.f.SetSheetName(placeholder, name); err != nil {
				return fmt.Errorf("write sheet %s: %w", name, err)
			}
		}
		if err := replaceSheet(w.f, name, tables[name]); err != nil {
			return err
		}
	}
	return w.save()
}

// DeleteTable removes sheet name and saves the file.
func (w *Workbook) DeleteTable(_ context.Context, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.has(name) {
		return nil
	}
	if len(w.f.GetSheetList()) == 1 {
		if name == placeholder {
			if err := replaceSheet(w.f, placeholder, nil); err != nil {
				return err
			}
			return w.save()
		}
		if _, err := w.f.NewSheet(placeholder); err != nil {
			return fmt.Errorf("delete sheet %s: %w", name, err)
		}
	}
	if err := w.f.DeleteSheet(name); err != nil {
		return fmt.Errorf("delete sheet %s: %w", name, err)
	}
	return w.save()
}

// TableNames lists the sheets in workbook order.
func (w *Workbook) TableNames(_ context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, name := range w.f.GetSheetList() {
		if name == placeholder {
			rows, err := w.f.GetRows(name)
			if err != nil || len(rows) == 0 {
				continue
			}
		}
		out = append(out, name)
	}
	return out, nil
}

// onlyPlaceholder reports whether the workbook holds nothing but the empty
// sheet of a new file.
func (w *Workbook) onlyPlaceholder() bool {
	list := w.f.GetSheetList()
	if len(list) != 1 || list[0] != placeholder {
		return false
	}
	rows, err := w.f.GetRows(placeholder)
	return err == nil && len(rows) == 0
}

func (w *Workbook) save() error {
	if err := w.f.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook %s: %w", w.path, err)
	}
	return nil
}

// replaceSheet writes m into a fresh sheet called name. The old sheet is
// swapped out through a scratch sheet so the workbook never drops to zero
// sheets.
func replaceSheet(f *excelize.File, name string, m [][]string) error {
	const scratch = "~parceltrack"
	if _, err := f.NewSheet(scratch); err != nil {
		return fmt.Errorf("write sheet %s: %w", name, err)
	}
	for i, row := range m {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := slices.Clone(row)
		if err := f.SetSheetRow(scratch, cell, &r); err != nil {
			return fmt.Errorf("write sheet %s row %d: %w", name, i+1, err)
		}
	}
	if idx, err := f.GetSheetIndex(name); err == nil && idx >= 0 {
		if err := f.DeleteSheet(name); err != nil {
			return fmt.Errorf("write sheet %s: %w", name, err)
		}
	}
	if err := f.SetSheetName(scratch, name); err != nil {
		return fmt.Errorf("write sheet %s: %w", name, err)
	}
	return nil
}

// ReadFirstSheet decodes an XLSX stream and returns the rows of its first
// sheet as display strings.
func ReadFirstSheet(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}
