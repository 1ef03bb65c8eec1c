package sheet

import "strings"

// Pad returns row cut or extended with empty cells to exactly n columns.
// The input slice is never modified.
func Pad(row []string, n int) []string {
	out := make([]string, n)
	copy(out, row)
	return out
}

// PadAll pads every data row of rows to n columns.
func PadAll(rows [][]string, n int) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = Pad(r, n)
	}
	return out
}

// IsBlank reports whether every cell of row is empty after trimming.
func IsBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// FirstCode returns the first tracking code of a cell that may hold several
// codes separated by commas, semicolons or newlines.
func FirstCode(v string) string {
	s := strings.TrimSpace(v)
	if s == "" {
		return ""
	}
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			return p
		}
	}
	return s
}

// Sanitize cleans an imported matrix: nil-safe, BOM stripped from the first
// cell, header labels trimmed, blank data rows dropped and trailing columns
// that are blank in every row removed.
func Sanitize(m [][]string) [][]string {
	if len(m) == 0 {
		return nil
	}
	width := 0
	for _, r := range m {
		if len(r) > width {
			width = len(r)
		}
	}
	out := make([][]string, 0, len(m))
	for i, r := range m {
		if i > 0 && IsBlank(r) {
			continue
		}
		out = append(out, Pad(r, width))
	}
	hdr := out[0]
	if len(hdr) > 0 {
		hdr[0] = strings.TrimPrefix(hdr[0], "\ufeff")
	}
	for i := range hdr {
		hdr[i] = strings.TrimSpace(hdr[i])
	}

	last := width - 1
	for last > 0 && columnBlank(out, last) {
		last--
	}
	for i := range out {
		out[i] = out[i][:last+1]
	}
	return out
}

func columnBlank(m [][]string, col int) bool {
	for _, r := range m {
		if strings.TrimSpace(r[col]) != "" {
			return false
		}
	}
	return true
}
