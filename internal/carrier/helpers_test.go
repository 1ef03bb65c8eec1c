package carrier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/model"
	"github.com/roach88/parceltrack/internal/testutil"
)

var testNow = time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)

type memDiag struct {
	mu      sync.Mutex
	entries []model.DiagnosticEntry
}

func (m *memDiag) AppendDiagnostic(_ context.Context, e model.DiagnosticEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memDiag) all() []model.DiagnosticEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.DiagnosticEntry(nil), m.entries...)
}

type fixture struct {
	cfg  *config.Map
	diag *memDiag
	reg  *Registry
}

func newFixture(t *testing.T, values map[string]string) *fixture {
	t.Helper()
	f := &fixture{cfg: config.NewMap(values), diag: &memDiag{}}
	f.reg = NewRegistry(Deps{
		Config:      f.cfg,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		Diagnostics: f.diag,
		Clock:       testutil.NewFakeClock(testNow),
		Location:    time.UTC,
	})
	return f
}

// serve starts a test server that answers every request with h.
func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func jsonBody(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func jsonUnmarshal(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}
