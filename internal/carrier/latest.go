package carrier

import (
	"time"

	"github.com/roach88/parceltrack/internal/model"
)

// latestEvent returns the event with the greatest parsed timestamp.
// Ties, including events whose timestamps do not parse, go to the one
// appearing last.
func latestEvent[E any](events []E, stamp func(E) string, loc *time.Location) (E, bool) {
	var (
		best   E
		bestAt time.Time
		found  bool
	)
	for _, e := range events {
		at, _ := model.ParseFlexible(stamp(e), loc)
		if !found || !at.Before(bestAt) {
			best, bestAt, found = e, at, true
		}
	}
	return best, found
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
