package model

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CellTimeLayout is the layout of every timestamp written into a table cell.
const CellTimeLayout = "2006-01-02 15:04:05"

// FormatCellTime renders t in loc using CellTimeLayout.
func FormatCellTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(CellTimeLayout)
}

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

var (
	dottedDate = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})(?:[ T](\d{1,2})[:.](\d{2})(?::(\d{2}))?)?$`)
	slashDate  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
)

// ParseFlexible parses the date formats found in carrier responses and
// imported reports. Values without a zone are read in loc.
//
// Accepted: ISO 8601 / RFC 3339 variants, "yyyy-MM-dd[ HH:mm[:ss]]",
// "dd.MM.yyyy[ HH:mm[:ss]]" and "dd/MM/yyyy".
func ParseFlexible(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	if m := dottedDate.FindStringSubmatch(s); m != nil {
		return civil(m[3], m[2], m[1], m[4], m[5], m[6], loc)
	}
	if m := slashDate.FindStringSubmatch(s); m != nil {
		return civil(m[3], m[2], m[1], "", "", "", loc)
	}
	return time.Time{}, false
}

func civil(y, mo, d, hh, mi, ss string, loc *time.Location) (time.Time, bool) {
	n := func(s string) int {
		v, _ := strconv.Atoi(s)
		return v
	}
	month, day := n(mo), n(d)
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(n(y), time.Month(month), day, n(hh), n(mi), n(ss), 0, loc), true
}
