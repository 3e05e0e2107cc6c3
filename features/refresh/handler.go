package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"marketlens/backend/features/product"
	"marketlens/backend/internal/middleware"
	"marketlens/backend/internal/review"
)

type Handler struct {
	service Refresher
}

func NewHandler(service Refresher) *Handler {
	return &Handler{service: service}
}

// Refresh handles POST /products/{id}/reviews/refresh. The body is optional.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		ForceRefresh       bool     `json:"forceRefresh"`
		IncludeCompetitors bool     `json:"includeCompetitors"`
		Sources            []string `json:"sources"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	opts := Options{ForceRefresh: req.ForceRefresh, IncludeCompetitors: req.IncludeCompetitors}
	for _, s := range req.Sources {
		src, err := review.ParseSource(s)
		if err != nil {
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		opts.Sources = append(opts.Sources, src)
	}

	res, err := h.service.RefreshAllReviews(ctx, r.PathValue("id"), opts)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "Product not found", http.StatusNotFound)
			return
		}
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusAccepted
	if res.FromCache {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": res}); err != nil {
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
