// Package throttle paces remote calls per carrier tag.
//
// The pacing state lives in the durable store so that separate process
// invocations (CLI ticks, the scheduler, ad hoc refreshes) share it.
package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/roach88/parceltrack/internal/clock"
	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/model"
)

// Carrier tags.
const (
	TagPosti = "POSTI"
	TagGLS   = "GLS"
	TagDHL   = "DHL"
	TagMH    = "MH"
	TagBring = "BRING"
	TagOther = "OTHER"
)

// DefaultIntervals holds the built-in minimum spacing per tag, in ms.
var DefaultIntervals = map[string]int{
	TagPosti: 500,
	TagGLS:   800,
	TagDHL:   800,
	TagBring: 800,
	TagMH:    500,
	TagOther: 0,
}

const (
	// maxSleep caps a computed wait. Longer waits are treated as zero so a
	// skewed lastCallAt cannot stall a tick.
	maxSleep = 30 * time.Second

	widenStepMs = 200
	widenMinMs  = 200
	widenMaxMs  = 2000
)

// TagFor returns the throttle tag of a canonical carrier id.
func TagFor(carrier string) string {
	switch carrier {
	case "posti":
		return TagPosti
	case "gls":
		return TagGLS
	case "dhl":
		return TagDHL
	case "matkahuolto":
		return TagMH
	case "bring":
		return TagBring
	default:
		return TagOther
	}
}

// StateStore persists per-tag pacing state.
type StateStore interface {
	GetThrottle(ctx context.Context, tag string) (model.ThrottleState, error)
	MarkThrottleCall(ctx context.Context, tag string, at time.Time, intervalMs int) error
}

// Throttle spaces calls to each carrier tag.
type Throttle struct {
	state  StateStore
	cfg    config.Provider
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Throttle. A nil logger uses slog.Default().
func New(state StateStore, cfg config.Provider, clk clock.Clock, logger *slog.Logger) *Throttle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Throttle{state: state, cfg: cfg, clock: clk, logger: logger}
}

// Interval returns the effective minimum spacing of tag in ms: the
// RATE_MINMS_<TAG> override when set, else the built-in default.
func (t *Throttle) Interval(ctx context.Context, tag string) int {
	if n, ok := config.Int(ctx, t.cfg, config.KeyRateMinMsPrefix+tag); ok && n >= 0 {
		return n
	}
	return DefaultIntervals[tag]
}

// Wait blocks until the interval of tag has elapsed since its last call,
// then records the current time as the last call. A zero interval returns
// at once without recording.
func (t *Throttle) Wait(ctx context.Context, tag string) error {
	interval := t.Interval(ctx, tag)
	if interval <= 0 {
		return nil
	}

	st, err := t.state.GetThrottle(ctx, tag)
	if err != nil {
		return fmt.Errorf("throttle %s: %w", tag, err)
	}

	if !st.LastCallAt.IsZero() {
		sleep := st.LastCallAt.Add(time.Duration(interval) * time.Millisecond).Sub(t.clock.Now())
		if sleep > 0 && sleep < maxSleep {
			t.logger.Debug("throttle.wait", "tag", tag, "sleep_ms", sleep.Milliseconds())
			if err := t.clock.Sleep(ctx, sleep); err != nil {
				return err
			}
		}
	}

	if err := t.state.MarkThrottleCall(ctx, tag, t.clock.Now(), interval); err != nil {
		return fmt.Errorf("throttle %s: %w", tag, err)
	}
	return nil
}

// Widen raises the interval of tag after a rate-limit response and
// persists it as the RATE_MINMS_<TAG> override. It returns the new interval.
func (t *Throttle) Widen(ctx context.Context, tag string) (int, error) {
	next := min(widenMaxMs, max(widenMinMs, t.Interval(ctx, tag)+widenStepMs))
	if err := t.cfg.Set(ctx, config.KeyRateMinMsPrefix+tag, strconv.Itoa(next)); err != nil {
		return 0, fmt.Errorf("widen %s: %w", tag, err)
	}
	t.logger.Info("throttle.widened", "tag", tag, "interval_ms", next)
	return next, nil
}
