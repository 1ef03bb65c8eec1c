package workbook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/roach88/parceltrack/internal/sheet"
)

// Export writes the named tables of src as sheets of a new XLSX workbook.
// Missing tables are skipped. Header rows are bold and frozen.
func Export(ctx context.Context, src sheet.Tables, names []string, out io.Writer, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return 0, fmt.Errorf("header style: %w", err)
	}

	written := 0
	first := ""
	for _, name := range names {
		m, err := src.ReadTable(ctx, name)
		if err != nil {
			return written, err
		}
		if len(m) == 0 {
			continue
		}
		if err := replaceSheet(f, name, m); err != nil {
			return written, err
		}
		if err := f.SetRowStyle(name, 1, 1, bold); err != nil {
			return written, fmt.Errorf("style %s: %w", name, err)
		}
		if err := f.SetPanes(name, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return written, fmt.Errorf("freeze %s: %w", name, err)
		}
		if first == "" {
			first = name
		}
		written++
	}

	if written > 0 {
		if !slices.Contains(names, placeholder) {
			if err := f.DeleteSheet(placeholder); err != nil {
				return written, fmt.Errorf("xlsx write: %w", err)
			}
		}
		if idx, err := f.GetSheetIndex(first); err == nil && idx >= 0 {
			f.SetActiveSheet(idx)
		}
	}

	if _, err := f.WriteTo(out); err != nil {
		return written, fmt.Errorf("xlsx write: %w", err)
	}
	logger.Info("export.xlsx.ok",
		"sheets", written,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return written, nil
}
