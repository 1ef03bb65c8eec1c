package sheet

import (
	"strconv"
	"strings"
	"time"

	"github.com/roach88/parceltrack/internal/model"
)

// Refresh column labels, appended in this order to every polled table.
const (
	ColRefreshCarrier     = "RefreshCarrier"
	ColRefreshStatus      = "RefreshStatus"
	ColRefreshTime        = "RefreshTime"
	ColRefreshLocation    = "RefreshLocation"
	ColRefreshRaw         = "RefreshRaw"
	ColRefreshAt          = "RefreshAt"
	ColRefreshAttempts    = "RefreshAttempts"
	ColRefreshNextAt      = "RefreshNextAt"
	ColDeliveredConfirmed = "Delivered date (Confirmed)"
	ColDeliveredSource    = "Delivered_Source"
)

// RefreshColumns lists the refresh block in column order.
var RefreshColumns = []string{
	ColRefreshCarrier,
	ColRefreshStatus,
	ColRefreshTime,
	ColRefreshLocation,
	ColRefreshRaw,
	ColRefreshAt,
	ColRefreshAttempts,
	ColRefreshNextAt,
	ColDeliveredConfirmed,
	ColDeliveredSource,
}

// EnsureRefreshColumns appends any missing refresh column to headers.
// It reports whether the header grew.
func EnsureRefreshColumns(headers []string) ([]string, bool) {
	idx := IndexMap(headers)
	out := append([]string(nil), headers...)
	grew := false
	for _, c := range RefreshColumns {
		if _, ok := idx[Normalize(c)]; !ok {
			out = append(out, c)
			grew = true
		}
	}
	return out, grew
}

// Layout holds the resolved column positions of a polled table.
type Layout struct {
	Carrier int
	Code    int

	refresh map[string]int
	width   int
}

// ResolveLayout maps the source and refresh columns of headers. Carrier or
// Code is -1 when no candidate matched. headers must already contain the
// refresh block (see EnsureRefreshColumns).
func ResolveLayout(headers []string) Layout {
	idx := IndexMap(headers)
	l := Layout{
		Carrier: PickIndex(headers, CarrierCandidates),
		Code:    PickIndex(headers, TrackingCodeCandidates),
		refresh: make(map[string]int, len(RefreshColumns)),
		width:   len(headers),
	}
	for _, c := range RefreshColumns {
		if i, ok := idx[Normalize(c)]; ok {
			l.refresh[c] = i
		}
	}
	return l
}

// Resolved reports whether both source columns were found.
func (l Layout) Resolved() bool {
	return l.Carrier >= 0 && l.Code >= 0
}

// Width is the column count of the table the layout was built from.
func (l Layout) Width() int {
	return l.width
}

func (l Layout) cell(row []string, col string) string {
	i, ok := l.refresh[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (l Layout) set(row []string, col, v string) {
	if i, ok := l.refresh[col]; ok && i < len(row) {
		row[i] = v
	}
}

// Read decodes the record held by row. Timestamps are parsed in loc.
func (l Layout) Read(row []string, loc *time.Location) model.Record {
	r := model.Record{
		RefreshCarrier:       l.cell(row, ColRefreshCarrier),
		Status:               l.cell(row, ColRefreshStatus),
		LastEventTime:        l.cell(row, ColRefreshTime),
		LastEventLocation:    l.cell(row, ColRefreshLocation),
		RawSnippet:           l.cell(row, ColRefreshRaw),
		DeliveredConfirmedAt: l.cell(row, ColDeliveredConfirmed),
		DeliveredSource:      l.cell(row, ColDeliveredSource),
	}
	if l.Carrier >= 0 && l.Carrier < len(row) {
		r.Carrier = strings.TrimSpace(row[l.Carrier])
	}
	if l.Code >= 0 && l.Code < len(row) {
		r.Code = FirstCode(row[l.Code])
	}
	if n, err := strconv.Atoi(l.cell(row, ColRefreshAttempts)); err == nil {
		r.Attempts = n
	}
	if t, ok := model.ParseFlexible(l.cell(row, ColRefreshAt), loc); ok {
		r.LastPolledAt = &t
	}
	if t, ok := model.ParseFlexible(l.cell(row, ColRefreshNextAt), loc); ok {
		r.NextEligibleAt = &t
	}
	return r
}

// Write stores the refresh fields of r into row. Source columns are left
// untouched.
func (l Layout) Write(row []string, r model.Record, loc *time.Location) {
	l.set(row, ColRefreshCarrier, r.RefreshCarrier)
	l.set(row, ColRefreshStatus, r.Status)
	l.set(row, ColRefreshTime, r.LastEventTime)
	l.set(row, ColRefreshLocation, r.LastEventLocation)
	l.set(row, ColRefreshRaw, r.RawSnippet)
	l.set(row, ColRefreshAt, formatPtr(r.LastPolledAt, loc))
	l.set(row, ColRefreshAttempts, strconv.Itoa(r.Attempts))
	l.set(row, ColRefreshNextAt, formatPtr(r.NextEligibleAt, loc))
	l.set(row, ColDeliveredConfirmed, r.DeliveredConfirmedAt)
	l.set(row, ColDeliveredSource, r.DeliveredSource)
}

func formatPtr(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return model.FormatCellTime(*t, loc)
}
