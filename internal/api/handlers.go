// Package api exposes the read-only operational surface: a health probe and
// the current sync status (watermark plus last run).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hyperengineering/invoicesync/internal/store"
	"github.com/hyperengineering/invoicesync/internal/types"
)

// StatusStore defines the store operations needed by the status endpoints.
// Implemented by store.SQLiteStore.
type StatusStore interface {
	LoadWatermark(ctx context.Context, jobName string) (time.Time, error)
	LastRun(ctx context.Context, jobName string) (*types.SyncRun, error)
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	store   StatusStore
	jobName string
	version string
}

// NewHandler creates a handler backed by the given store.
func NewHandler(store StatusStore, jobName, version string) *Handler {
	return &Handler{store: store, jobName: jobName, version: version}
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type runResponse struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	RowsProcessed int       `json:"rows_processed"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
}

type statusResponse struct {
	Job       string       `json:"job"`
	Watermark *time.Time   `json:"watermark"`
	LastRun   *runResponse `json:"last_run"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Version: h.version})
}

// Status handles GET /api/v1/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Job: h.jobName}

	watermark, err := h.store.LoadWatermark(r.Context(), h.jobName)
	switch {
	case errors.Is(err, store.ErrWatermarkNotFound):
		// Watermark row not provisioned yet; report null rather than fail.
	case err != nil:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	default:
		resp.Watermark = &watermark
	}

	run, err := h.store.LastRun(r.Context(), h.jobName)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if run != nil {
		resp.LastRun = &runResponse{
			ID:            run.ID,
			StartedAt:     run.StartedAt,
			FinishedAt:    run.FinishedAt,
			RowsProcessed: run.RowsProcessed,
			Status:        run.Status,
			Error:         run.Error,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
