// Package sheet holds the table-shape helpers shared by the worker, the
// reconciler and the pending builder: header normalization, ordered
// candidate lookup, row padding and the refresh column block.
//
// Header matching is exact after normalization. Normalization folds case,
// strips diacritics and collapses every run of non letter/digit characters
// into one space. Nothing fuzzier is attempted.
package sheet

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize returns the comparison form of a header label.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := folder.String(stripped)

	var b strings.Builder
	space := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// PickIndex returns the index of the first candidate present in headers,
// trying candidates in order. Returns -1 if none matches.
func PickIndex(headers []string, candidates []string) int {
	norm := make([]string, len(headers))
	for i, h := range headers {
		norm[i] = Normalize(h)
	}
	for _, c := range candidates {
		want := Normalize(c)
		for i, h := range norm {
			if h == want {
				return i
			}
		}
	}
	return -1
}

// ChooseKeyIndex returns the key column of headers using KeyCandidates:
// groups are tried in order, names within a group in order.
func ChooseKeyIndex(headers []string) int {
	for _, group := range KeyCandidates {
		if i := PickIndex(headers, group); i >= 0 {
			return i
		}
	}
	return -1
}

// MergeHeaders returns oldHdr followed by every header of newHdr whose
// normalized form is not already present. Order is never changed.
func MergeHeaders(oldHdr, newHdr []string) []string {
	out := make([]string, 0, len(oldHdr)+len(newHdr))
	out = append(out, oldHdr...)
	have := make(map[string]bool, len(out))
	for _, h := range oldHdr {
		have[Normalize(h)] = true
	}
	for _, h := range newHdr {
		n := Normalize(h)
		if !have[n] {
			out = append(out, h)
			have[n] = true
		}
	}
	return out
}

// IndexMap maps normalized header labels to their first column index.
func IndexMap(headers []string) map[string]int {
	m := make(map[string]int, len(headers))
	for i, h := range headers {
		n := Normalize(h)
		if _, ok := m[n]; !ok {
			m[n] = i
		}
	}
	return m
}

// SameHeaders reports whether a and b are identical label for label.
func SameHeaders(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
