// Package importer reads shipment report files into table matrices.
package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/parceltrack/internal/model"
	"github.com/roach88/parceltrack/internal/sheet"
	"github.com/roach88/parceltrack/internal/workbook"
)

// Extensions accepted by ReadFile and FindLatest.
const (
	ExtCSV  = ".csv"
	ExtXLSX = ".xlsx"
)

// ReadFile reads a CSV or XLSX report and returns the sanitized matrix.
func ReadFile(path string) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ExtCSV && ext != ExtXLSX {
		return nil, model.NewError(model.ErrCodeUnsupportedFile, "", "unsupported file type: "+filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	var raw [][]string
	if ext == ExtCSV {
		raw, err = ReadCSV(f)
	} else {
		raw, err = workbook.ReadFirstSheet(f)
	}
	if err != nil {
		return nil, err
	}

	m := sheet.Sanitize(raw)
	if len(m) == 0 || sheet.IsBlank(m[0]) {
		return nil, model.NewError(model.ErrCodeEmptyImport, "", filepath.Base(path)+" has no header")
	}
	return m, nil
}

// ReadCSV parses delimited UTF-8 text. The delimiter is sniffed from the
// header line: comma, semicolon or tab. Rows may be ragged.
func ReadCSV(r io.Reader) ([][]string, error) {
	br := bufio.NewReader(r)
	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}

var delimiters = []rune{',', ';', '\t'}

// sniffDelimiter picks the delimiter occurring most often outside quotes in
// the first line. Ties and header-only files without any fall back to comma.
func sniffDelimiter(br *bufio.Reader) rune {
	// Peek fails with a short buffer at EOF; the bytes returned are still valid.
	head, _ := br.Peek(br.Size())
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	counts := make(map[rune]int, len(delimiters))
	quoted := false
	for _, c := range string(head) {
		if c == '"' {
			quoted = !quoted
			continue
		}
		if !quoted {
			counts[c]++
		}
	}
	best := ','
	for _, d := range delimiters[1:] {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}

// FindLatest returns the most recently modified report in dir.
func FindLatest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", dir, err)
	}
	var (
		best     string
		bestTime time.Time
	)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ExtCSV && ext != ExtXLSX {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		if best == "" || info.ModTime().After(bestTime) {
			best, bestTime = filepath.Join(dir, e.Name()), info.ModTime()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no report files in %s: %w", dir, fs.ErrNotExist)
	}
	return best, nil
}

// Importer stores report files as tables.
type Importer struct {
	tables sheet.Tables
	logger *slog.Logger
}

// New creates an Importer.
func New(tables sheet.Tables, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{tables: tables, logger: logger}
}

// ImportFile stores the report at path in the Import_Latest table and
// returns the matrix and its data row count.
func (i *Importer) ImportFile(ctx context.Context, path string) ([][]string, int, error) {
	m, err := ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	if err := i.tables.WriteTable(ctx, sheet.TableImportLatest, m); err != nil {
		return nil, 0, fmt.Errorf("store import: %w", err)
	}
	rows := len(m) - 1
	i.logger.Info("import.stored", "file", filepath.Base(path), "rows", rows)
	return m, rows, nil
}

// ImportAdhoc builds the Adhoc_Tracking table from the carrier and code
// columns of the report at path, with an empty refresh block.
func (i *Importer) ImportAdhoc(ctx context.Context, path string) (int, error) {
	m, err := ReadFile(path)
	if err != nil {
		return 0, err
	}
	carrierCol := sheet.PickIndex(m[0], sheet.CarrierCandidates)
	codeCol := sheet.PickIndex(m[0], sheet.TrackingCodeCandidates)
	if carrierCol < 0 || codeCol < 0 {
		return 0, model.NewError(model.ErrCodeMissingColumns, sheet.TableAdhoc, "carrier or tracking column not found")
	}

	hdr, _ := sheet.EnsureRefreshColumns([]string{"Carrier", "Tracking number"})
	out := [][]string{hdr}
	for _, row := range m[1:] {
		r := make([]string, len(hdr))
		r[0], r[1] = row[carrierCol], row[codeCol]
		out = append(out, r)
	}
	if err := i.tables.WriteTable(ctx, sheet.TableAdhoc, out); err != nil {
		return 0, fmt.Errorf("store adhoc: %w", err)
	}
	i.logger.Info("import.adhoc", "file", filepath.Base(path), "rows", len(out)-1)
	return len(out) - 1, nil
}
