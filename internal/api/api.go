// Package api exposes the operator commands over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/model"
	"github.com/roach88/parceltrack/internal/worker"
)

// DefaultDiagnosticsLimit applies when GET /diagnostics has no limit.
const DefaultDiagnosticsLimit = 100

// Commands is the part of the application service the API serves.
type Commands interface {
	Jobs(ctx context.Context) ([]model.Job, error)
	StartBulk(ctx context.Context, table string) (model.Job, worker.TickReport, error)
	StopBulk(ctx context.Context) (int64, error)
	RefreshNow(ctx context.Context, table string, carriers ...string) (worker.RefreshReport, error)
	Tick(ctx context.Context) (worker.TickReport, error)
	Readiness(ctx context.Context) (config.Readiness, error)
	InvalidateCache(ctx context.Context) error
	Diagnostics(ctx context.Context, limit int) ([]model.DiagnosticEntry, error)
	Ping(ctx context.Context) error
}

// ErrorBody is the JSON shape of a failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failure.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StartResponse is returned by POST /bulk/{table}.
type StartResponse struct {
	Job  model.Job         `json:"job"`
	Tick worker.TickReport `json:"tick"`
}

// StopResponse is returned by DELETE /bulk.
type StopResponse struct {
	Removed int64 `json:"removed"`
}

// ReadinessResponse is returned by GET /readiness.
type ReadinessResponse struct {
	Ready bool `json:"ready"`
	config.Readiness
}

// NewRouter builds the HTTP handler over cmds.
func NewRouter(cmds Commands, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{cmds: cmds, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/jobs", h.jobs)
	r.Post("/bulk/{table}", h.startBulk)
	r.Delete("/bulk", h.stopBulk)
	r.Post("/refresh/{table}", h.refresh)
	r.Post("/tick", h.tick)
	r.Get("/readiness", h.readiness)
	r.Post("/cache/invalidate", h.invalidate)
	r.Get("/diagnostics", h.diagnostics)
	r.Get("/healthz", h.healthz)
	return r
}

type handler struct {
	cmds   Commands
	logger *slog.Logger
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("api.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *handler) jobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.cmds.Jobs(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if list == nil {
		list = []model.Job{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) startBulk(w http.ResponseWriter, r *http.Request) {
	job, tick, err := h.cmds.StartBulk(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, StartResponse{Job: job, Tick: tick})
}

func (h *handler) stopBulk(w http.ResponseWriter, r *http.Request) {
	n, err := h.cmds.StopBulk(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StopResponse{Removed: n})
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	rep, err := h.cmds.RefreshNow(r.Context(), chi.URLParam(r, "table"), r.URL.Query()["carrier"]...)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *handler) tick(w http.ResponseWriter, r *http.Request) {
	rep, err := h.cmds.Tick(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *handler) readiness(w http.ResponseWriter, r *http.Request) {
	rd, err := h.cmds.Readiness(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReadinessResponse{Ready: rd.Ready(), Readiness: rd})
}

// healthz reports 503 when the durable store cannot be reached.
func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.cmds.Ping(r.Context()); err != nil {
		h.logger.Warn("api.healthz.failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) invalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.cmds.InvalidateCache(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) diagnostics(w http.ResponseWriter, r *http.Request) {
	limit := DefaultDiagnosticsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{
				Code:    "BAD_REQUEST",
				Message: "limit must be a positive integer",
			}})
			return
		}
		limit = n
	}
	list, err := h.cmds.Diagnostics(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if list == nil {
		list = []model.DiagnosticEntry{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) fail(w http.ResponseWriter, err error) {
	status := statusOf(err)
	code := string(model.CodeOf(err))
	if code == "" {
		code = "INTERNAL"
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("api.request.failed", "error", err)
	}
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: err.Error()}})
}

func statusOf(err error) int {
	switch model.CodeOf(err) {
	case model.ErrCodeNoRows:
		return http.StatusNotFound
	case model.ErrCodeMissingColumns, model.ErrCodeEmptyImport, model.ErrCodeUnsupportedFile:
		return http.StatusUnprocessableEntity
	case model.ErrCodeLockTimeout:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
