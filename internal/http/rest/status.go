package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/italolelis/enadl/internal/downloader"
	"github.com/italolelis/enadl/internal/logctx"
	"github.com/italolelis/enadl/internal/storage"
	"github.com/italolelis/enadl/internal/transfer"
)

// RowResponse is the JSON form of a tracking row.
type RowResponse struct {
	RunID     string    `json:"run_id"`
	Role      string    `json:"file_role"`
	LocalPath string    `json:"local_path"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	URL       string    `json:"url,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SummaryResponse struct {
	Project string             `json:"project"`
	Summary downloader.Summary `json:"summary"`
	Total   int                `json:"total"`
}

// StatusHandler serves the tracking table of one project read-only.
type StatusHandler struct {
	project  string
	store    storage.Store
	expected int
}

// NewStatusHandler creates a status handler. expected is the number of files the metadata
// lists, used to count files not attempted yet; pass 0 when unknown.
func NewStatusHandler(project string, store storage.Store, expected int) *StatusHandler {
	return &StatusHandler{project: project, store: store, expected: expected}
}

func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/rows", h.HandleRows)
	r.Get("/summary", h.HandleSummary)

	return r
}

// HandleRows lists tracking rows, optionally filtered with ?status=.
func (h *StatusHandler) HandleRows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	table, err := h.store.Load(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load tracking table", "err", err)
		http.Error(w, "failed to load tracking table", http.StatusInternalServerError)

		return
	}

	rows := table.Rows()

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := transfer.ParseStatus(raw)
		if !ok {
			http.Error(w, fmt.Sprintf("unknown status %s", raw), http.StatusBadRequest)

			return
		}

		rows = table.WithStatus(status)
	}

	out := make([]RowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, RowResponse{
			RunID:     row.RunID,
			Role:      string(row.Role),
			LocalPath: row.LocalPath,
			Status:    string(row.Status),
			Detail:    row.Detail,
			URL:       row.URL,
			UpdatedAt: row.UpdatedAt,
		})
	}

	writeJSON(w, r, out)
}

func (h *StatusHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	table, err := h.store.Load(ctx)
	if err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to load tracking table", "err", err)
		http.Error(w, "failed to load tracking table", http.StatusInternalServerError)

		return
	}

	s := downloader.Summarize(table, h.expected)

	writeJSON(w, r, SummaryResponse{Project: h.project, Summary: s, Total: s.Total()})
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to encode response", "err", err)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
