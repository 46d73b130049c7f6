package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
)

// SyncAPI is the part of [tasks.SyncService] exposed over HTTP.
type SyncAPI interface {
	ListJobs(subject string) ([]*models.SyncJob, error)
	RunJobNow(ctx context.Context, ref string) (*tasks.RunResult, error)
	ListRecentLogs(subject, ref string) ([]*models.SyncLogEntry, error)
	GetStats(subject string) (*models.Stats, error)
}

// APIHandler serves the daemon's JSON API.
//
//	GET  /health
//	GET  /jobs
//	POST /jobs/{id}/sync
//	GET  /logs?job=<ref>
//	GET  /stats
//
// Every route accepts a subject query parameter that defaults to the configured subject.
type APIHandler struct {
	svc     SyncAPI
	subject string
	logger  *log.Logger
}

// NewAPIHandler creates an API handler answering for defaultSubject unless a request names another.
func NewAPIHandler(svc SyncAPI, defaultSubject string, logger *log.Logger) *APIHandler {
	return &APIHandler{svc: svc, subject: defaultSubject, logger: logger}
}

// Register mounts the API routes on r.
func (h *APIHandler) Register(r Router) {
	r.Handle(http.MethodGet, "/health", http.HandlerFunc(h.health))
	r.Handle(http.MethodGet, "/jobs", http.HandlerFunc(h.jobs))
	r.Handle(http.MethodPost, "/jobs/{id}/sync", http.HandlerFunc(h.sync))
	r.Handle(http.MethodGet, "/logs", http.HandlerFunc(h.logs))
	r.Handle(http.MethodGet, "/stats", http.HandlerFunc(h.stats))
}

func (h *APIHandler) subjectOf(r *http.Request) string {
	if s := r.URL.Query().Get("subject"); s != "" {
		return s
	}
	return h.subject
}

func (h *APIHandler) health(w http.ResponseWriter, r *http.Request) {
	h.write(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) jobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.ListJobs(h.subjectOf(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	if jobs == nil {
		jobs = []*models.SyncJob{}
	}
	h.write(w, http.StatusOK, jobs)
}

func (h *APIHandler) sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RunJobNow(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, http.StatusOK, res)
}

func (h *APIHandler) logs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListRecentLogs(h.subjectOf(r), r.URL.Query().Get("job"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if entries == nil {
		entries = []*models.SyncLogEntry{}
	}
	h.write(w, http.StatusOK, entries)
}

func (h *APIHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetStats(h.subjectOf(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, http.StatusOK, stats)
}

func (h *APIHandler) write(w http.ResponseWriter, status int, v any) {
	body, err := shared.MarshalJSON(v, false)
	if err != nil {
		h.logger.Error("failed to encode response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func (h *APIHandler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("api request failed", "error", err)
	}
	h.write(w, status, map[string]string{"error": err.Error(), "kind": shared.Classify(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrUnknownPlatform):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
