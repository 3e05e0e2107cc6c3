package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"marketlens/backend/internal/middleware"
)

const maxBodyBytes = 1 << 20

type Processor interface {
	Process(ctx context.Context, p Payload) (*Outcome, error)
}

type Handler struct {
	processor Processor
	secret    string
}

// NewHandler builds the webhook endpoint. An empty secret accepts unsigned
// deliveries.
func NewHandler(p Processor, secret string) *Handler {
	if secret == "" {
		slog.Warn("webhook secret not configured, accepting unsigned deliveries")
	}
	return &Handler{processor: p, secret: secret}
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		slog.WarnContext(ctx, "webhook body unreadable", "event", "webhook_invalid_payload", "error", err)
		h.writeError(ctx, w, "VALIDATION_ERROR", "Unreadable body", http.StatusBadRequest)
		return
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		slog.WarnContext(ctx, "webhook payload is not JSON", "event", "webhook_invalid_payload", "error", err)
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	if h.secret != "" {
		if err := Verify(h.secret, body, r.Header.Get(SignatureHeader)); err != nil {
			slog.WarnContext(ctx, "webhook signature rejected", "event", "webhook_auth_failed", "remote_addr", r.RemoteAddr, "run_id", p.Resource.ID)
			h.writeError(ctx, w, "UNAUTHORIZED", "Invalid signature", http.StatusUnauthorized)
			return
		}
	}

	if p.EventType == "" {
		slog.WarnContext(ctx, "webhook payload without eventType", "event", "webhook_invalid_payload")
		h.writeError(ctx, w, "VALIDATION_ERROR", "eventType is required", http.StatusBadRequest)
		return
	}

	out, err := h.processor.Process(ctx, p)
	if err != nil {
		if errors.Is(err, ErrInvalidPayload) {
			slog.WarnContext(ctx, "webhook payload incomplete", "event", "webhook_invalid_payload", "error", err)
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "webhook processing failed", "error", err, "run_id", p.Resource.ID)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
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
