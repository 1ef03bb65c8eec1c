package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/model"
	"github.com/roach88/parceltrack/internal/worker"
)

type fakeCommands struct {
	jobs        []model.Job
	startErr    error
	started     string
	refreshed   string
	carriers    []string
	invalidated bool
	limit       int
	readiness   config.Readiness
	pingErr     error
}

func (f *fakeCommands) Jobs(context.Context) ([]model.Job, error) { return f.jobs, nil }

func (f *fakeCommands) StartBulk(_ context.Context, table string) (model.Job, worker.TickReport, error) {
	f.started = table
	if f.startErr != nil {
		return model.Job{}, worker.TickReport{}, f.startErr
	}
	return model.Job{Table: table, CursorRow: 2, TotalRows: 5}, worker.TickReport{Calls: 5}, nil
}

func (f *fakeCommands) StopBulk(context.Context) (int64, error) { return 2, nil }

func (f *fakeCommands) RefreshNow(_ context.Context, table string, carriers ...string) (worker.RefreshReport, error) {
	f.refreshed, f.carriers = table, carriers
	return worker.RefreshReport{Table: table, Polled: 3}, nil
}

func (f *fakeCommands) Tick(context.Context) (worker.TickReport, error) {
	return worker.TickReport{}, model.NewError(model.ErrCodeLockTimeout, "", "lock BULK not acquired within 5s")
}

func (f *fakeCommands) Readiness(context.Context) (config.Readiness, error) { return f.readiness, nil }

func (f *fakeCommands) InvalidateCache(context.Context) error {
	f.invalidated = true
	return nil
}

func (f *fakeCommands) Diagnostics(_ context.Context, limit int) ([]model.DiagnosticEntry, error) {
	f.limit = limit
	return nil, nil
}

func (f *fakeCommands) Ping(context.Context) error { return f.pingErr }

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestJobs_EmptyListIsArray(t *testing.T) {
	h := NewRouter(&fakeCommands{}, nil)
	rec := do(t, h, http.MethodGet, "/jobs")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestStartBulk(t *testing.T) {
	f := &fakeCommands{}
	rec := do(t, NewRouter(f, nil), http.MethodPost, "/bulk/Packages")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "Packages", f.started)

	var body StartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 5, body.Job.TotalRows)
	assert.Equal(t, 5, body.Tick.Calls)
}

func TestStartBulk_NoRowsIs404(t *testing.T) {
	f := &fakeCommands{startErr: model.NewError(model.ErrCodeNoRows, "Nope", "table has no data rows")}
	rec := do(t, NewRouter(f, nil), http.MethodPost, "/bulk/Nope")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NO_ROWS", body.Error.Code)
}

func TestStopBulk(t *testing.T) {
	rec := do(t, NewRouter(&fakeCommands{}, nil), http.MethodDelete, "/bulk")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":2}`, rec.Body.String())
}

func TestRefresh_PassesCarrierFilter(t *testing.T) {
	f := &fakeCommands{}
	rec := do(t, NewRouter(f, nil), http.MethodPost, "/refresh/Pending?carrier=posti&carrier=gls")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Pending", f.refreshed)
	assert.Equal(t, []string{"posti", "gls"}, f.carriers)
}

func TestTick_LockTimeoutIsConflict(t *testing.T) {
	rec := do(t, NewRouter(&fakeCommands{}, nil), http.MethodPost, "/tick")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReadiness(t *testing.T) {
	f := &fakeCommands{readiness: config.Readiness{
		MissingRequired: []string{config.KeyDHLAPIKey},
		MissingOptional: []string{},
	}}
	rec := do(t, NewRouter(f, nil), http.MethodGet, "/readiness")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ready":false,"missing_required":["DHL_API_KEY"],"missing_optional":[]}`, rec.Body.String())
}

func TestInvalidateCache(t *testing.T) {
	f := &fakeCommands{}
	rec := do(t, NewRouter(f, nil), http.MethodPost, "/cache/invalidate")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, f.invalidated)
}

func TestDiagnostics_Limit(t *testing.T) {
	f := &fakeCommands{}
	h := NewRouter(f, nil)

	rec := do(t, h, http.MethodGet, "/diagnostics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DefaultDiagnosticsLimit, f.limit)
	assert.JSONEq(t, `[]`, rec.Body.String())

	do(t, h, http.MethodGet, "/diagnostics?limit=7")
	assert.Equal(t, 7, f.limit)

	rec = do(t, h, http.MethodGet, "/diagnostics?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	rec := do(t, NewRouter(&fakeCommands{}, nil), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	f := &fakeCommands{pingErr: errors.New("database is closed")}
	rec = do(t, NewRouter(f, nil), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, rec.Body.String())
}
