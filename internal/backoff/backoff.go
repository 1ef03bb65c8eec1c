// Package backoff decides, after each poll, when a record may be polled
// again and how its retry counters and delivery stamp change.
package backoff

import (
	"context"
	"strings"
	"time"

	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/model"
)

const (
	// DefaultBaseMinutes is the first exponential step when
	// BULK_BACKOFF_MINUTES_BASE is unset.
	DefaultBaseMinutes = 5

	// MaxDelay caps the exponential step.
	MaxDelay = 60 * time.Minute

	// NoCodeCooldown delays rows missing a carrier or code.
	NoCodeCooldown = time.Hour

	// MinCodeLength is the shortest code worth sending to a carrier.
	MinCodeLength = 4

	// DeliveredSource marks delivery dates confirmed by tracking.
	DeliveredSource = "tracking"
)

// DeliveredKeywords mark a status text as delivered, matched as
// case-insensitive substrings.
var DeliveredKeywords = []string{
	"delivered",
	"toimitettu",
	"luovutettu",
	"delivered to pickup point",
	"delivered to recipient",
	"delivered - picked up",
}

// IsDelivered reports whether status contains a delivered keyword.
func IsDelivered(status string) bool {
	s := strings.ToLower(status)
	if s == "" {
		return false
	}
	for _, k := range DeliveredKeywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// IsCodeLikely reports whether code is long enough to be a tracking code.
func IsCodeLikely(code string) bool {
	return len([]rune(strings.TrimSpace(code))) >= MinCodeLength
}

// Policy applies the retry rules. Timestamps written into records are
// rendered in loc.
type Policy struct {
	cfg config.Provider
	loc *time.Location
}

// New creates a Policy. The exponential base is read from cfg on every
// call so operators can change it between ticks.
func New(cfg config.Provider, loc *time.Location) *Policy {
	if loc == nil {
		loc = time.UTC
	}
	return &Policy{cfg: cfg, loc: loc}
}

// Delay returns the exponential wait after the given attempt count:
// base*2^(attempts-1) minutes, capped at MaxDelay.
func (p *Policy) Delay(ctx context.Context, attempts int) time.Duration {
	base, ok := config.Int(ctx, p.cfg, config.KeyBackoffBaseMinutes)
	if !ok || base <= 0 {
		base = DefaultBaseMinutes
	}
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(base) * time.Minute
	for i := 1; i < attempts && d < MaxDelay; i++ {
		d *= 2
	}
	return min(d, MaxDelay)
}

// Precheck validates the input of rec before any lookup. It returns the
// updated record and true when the row must be skipped without a call.
func (p *Policy) Precheck(rec model.Record, now time.Time) (model.Record, bool) {
	if rec.Carrier == "" || rec.Code == "" {
		next := now.Add(NoCodeCooldown)
		rec.Status = model.StatusSkipNoCode
		rec.LastPolledAt = &now
		rec.NextEligibleAt = &next
		return rec, true
	}
	if !IsCodeLikely(rec.Code) {
		rec.Status = model.StatusSkipInvalidCode
		rec.LastPolledAt = &now
		return rec, true
	}
	return rec, false
}

// Apply folds a carrier result into rec and schedules the next poll.
func (p *Policy) Apply(ctx context.Context, rec model.Record, res model.StatusResult, now time.Time) model.Record {
	rec.RefreshCarrier = firstNonEmpty(res.Carrier, rec.Carrier)
	rec.Status = firstNonEmpty(res.Status, rec.Status)
	rec.LastEventTime = firstNonEmpty(res.Time, rec.LastEventTime)
	rec.LastEventLocation = firstNonEmpty(res.Location, rec.LastEventLocation)
	rec.RawSnippet = res.Raw
	rec.LastPolledAt = &now

	if res.RateLimited() {
		next := now.Add(time.Duration(max(1, *res.RetryAfter)) * time.Second)
		rec.Attempts++
		rec.NextEligibleAt = &next
		return rec
	}

	delivered := IsDelivered(res.Status)
	if delivered && rec.DeliveredConfirmedAt == "" {
		rec.DeliveredConfirmedAt = firstNonEmpty(res.Time, model.FormatCellTime(now, p.loc))
		rec.DeliveredSource = DeliveredSource
	}

	if !delivered && !res.Found {
		rec.Attempts++
		next := now.Add(p.Delay(ctx, rec.Attempts))
		rec.NextEligibleAt = &next
		return rec
	}

	rec.NextEligibleAt = nil
	return rec
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
