// Package stats reports pipeline counters for the dashboard.
package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"marketlens/backend/internal/middleware"
)

type ScrapeJobs interface {
	CountInFlight(ctx context.Context) (int, error)
	CountFailed(ctx context.Context) (int, error)
}

type DeadLetters interface {
	Count(ctx context.Context) (int, error)
}

type VectorStore interface {
	CountChunks(ctx context.Context) (int, error)
}

type Handler struct {
	jobs        ScrapeJobs
	deadLetters DeadLetters
	vectorStore VectorStore
}

func NewHandler(j ScrapeJobs, d DeadLetters, v VectorStore) *Handler {
	return &Handler{jobs: j, deadLetters: d, vectorStore: v}
}

type StatsResponse struct {
	InFlightJobs int `json:"inFlightJobs"`
	FailedJobs   int `json:"failedJobs"`
	DeadLetters  int `json:"deadLetters"`
	Chunks       int `json:"chunks"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var resp StatsResponse

	counters := []struct {
		name  string
		count func(context.Context) (int, error)
		dst   *int
	}{
		{"in-flight jobs", h.jobs.CountInFlight, &resp.InFlightJobs},
		{"failed jobs", h.jobs.CountFailed, &resp.FailedJobs},
		{"dead letters", h.deadLetters.Count, &resp.DeadLetters},
		{"chunks", h.vectorStore.CountChunks, &resp.Chunks},
	}
	for _, c := range counters {
		n, err := c.count(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count "+c.name, "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count "+c.name, http.StatusInternalServerError)
			return
		}
		*c.dst = n
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode error response", "error", err)
	}
}
