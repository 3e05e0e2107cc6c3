package scrapejob

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"marketlens/backend/internal/middleware"
	"marketlens/backend/internal/review"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// Latest serves GET /scrape-jobs/latest?source=&identifier=.
func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	source, err := review.ParseSource(r.URL.Query().Get("source"))
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "identifier is required", http.StatusBadRequest)
		return
	}

	job, err := h.service.GetStatus(ctx, source, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "no scrape job for this source", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to get scrape job", "error", err, "source", source)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": job,
		"meta": map[string]bool{"inFlight": job.Status.InFlight()},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
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
		slog.Error("failed to encode error response", "error", err)
	}
}
