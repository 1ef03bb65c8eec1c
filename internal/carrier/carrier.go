// Package carrier translates tracking lookups into carrier API calls and
// normalizes the answers into model.StatusResult values.
//
// Adapters never return errors: every failure is a status value
// (MISSING_CREDENTIALS, NOT_FOUND, RATE_LIMIT_429, HTTP_<code>,
// NETWORK_ERROR, PARSING_ERROR). Adapters do not retry and do not pace
// themselves; both belong to the caller.
package carrier

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/parceltrack/internal/clock"
	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/model"
)

// Canonical carrier ids.
const (
	IDPosti       = "posti"
	IDGLS         = "gls"
	IDDHL         = "dhl"
	IDBring       = "bring"
	IDMatkahuolto = "matkahuolto"
	IDOther       = "other"
)

// Canonical maps a free-text carrier label to a canonical id by
// case-insensitive substring match. Unrecognized labels map to IDOther.
func Canonical(label string) string {
	c := strings.ToLower(label)
	switch {
	case strings.Contains(c, "posti"), strings.Contains(c, "itella"):
		return IDPosti
	case strings.Contains(c, "gls"):
		return IDGLS
	case strings.Contains(c, "dhl"):
		return IDDHL
	case strings.Contains(c, "bring"):
		return IDBring
	case strings.Contains(c, "matkahuolto"), strings.Contains(c, "mh"):
		return IDMatkahuolto
	default:
		return IDOther
	}
}

// Adapter looks up one tracking code at one carrier.
type Adapter interface {
	Track(ctx context.Context, code string) model.StatusResult
}

// DiagnosticRecorder receives one entry per non-success remote call.
type DiagnosticRecorder interface {
	AppendDiagnostic(ctx context.Context, e model.DiagnosticEntry) error
}

// Deps are the collaborators shared by every adapter.
type Deps struct {
	// Config supplies credentials, URL templates and the token cache.
	Config config.Provider

	// HTTP performs the calls. Its Timeout bounds each call.
	HTTP *http.Client

	// Diagnostics records failed calls. May be nil.
	Diagnostics DiagnosticRecorder

	Clock    clock.Clock
	Location *time.Location
	Logger   *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.HTTP == nil {
		d.HTTP = &http.Client{Timeout: 25 * time.Second}
	}
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// Registry routes lookups to the adapter of a carrier label.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds the registry of every supported carrier.
func NewRegistry(d Deps) *Registry {
	d = d.withDefaults()
	f := &fetcher{deps: d}
	return &Registry{adapters: map[string]Adapter{
		IDPosti:       &posti{f: f, tokens: newTokenCache(d, "POSTI")},
		IDGLS:         &gls{f: f, tokens: newTokenCache(d, "GLS")},
		IDDHL:         &dhl{f: f},
		IDBring:       &bring{f: f},
		IDMatkahuolto: &matkahuolto{f: f},
	}}
}

// Register installs or replaces the adapter for a canonical id.
func (r *Registry) Register(id string, a Adapter) {
	r.adapters[id] = a
}

// Track looks up code at the carrier named by label.
func (r *Registry) Track(ctx context.Context, label, code string) model.StatusResult {
	a, ok := r.adapters[Canonical(label)]
	if !ok {
		return model.StatusResult{Carrier: label, Status: model.StatusUnknownCarrier}
	}
	return a.Track(ctx, code)
}
