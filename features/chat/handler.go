package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"marketlens/backend/features/product"
	ragchat "marketlens/backend/internal/chat"
	"marketlens/backend/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type chatRequest struct {
	Messages           []ragchat.Message `json:"messages"`
	ProductID          string            `json:"productId"`
	SessionID          string            `json:"sessionId"`
	Stream             bool              `json:"stream"`
	IncludeCompetitors bool              `json:"includeCompetitors"`
	Metadata           struct {
		HiddenPrompt string `json:"hiddenPrompt"`
	} `json:"metadata"`
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	req := Request{
		Messages:           body.Messages,
		ProductID:          body.ProductID,
		SessionID:          body.SessionID,
		IncludeCompetitors: body.IncludeCompetitors,
		HiddenPrompt:       body.Metadata.HiddenPrompt,
	}

	if body.Stream {
		h.stream(w, r, req)
		return
	}

	res, err := h.service.Chat(ctx, req)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": res}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// stream answers as server-sent events: "delta" per token batch, then one
// "done" or "error". Headers are only committed once the first token arrives,
// so failures before that still get a normal JSON error.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, req Request) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(ctx, w, "INTERNAL_ERROR", "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	sse := &sseWriter{w: w, flusher: flusher}
	res, err := h.service.Stream(ctx, req, func(delta string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return sse.send("delta", map[string]string{"text": delta})
	})

	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			slog.InfoContext(ctx, "chat stream cancelled by client")
			return
		}
		if !sse.started {
			h.handleError(ctx, w, err)
			return
		}
		slog.ErrorContext(ctx, "chat stream failed", "error", err)
		_ = sse.send("error", map[string]string{"code": "INTERNAL_ERROR", "message": ragchat.ErrNoLLMResponse.Error()})
		return
	}

	if err := sse.send("done", res); err != nil {
		slog.WarnContext(ctx, "failed to write final chat event", "error", err)
	}
}

func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.service.Messages(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleError(r.Context(), w, err)
		return
	}
	if msgs == nil {
		msgs = []StoredMessage{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": msgs}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func (h *Handler) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ragchat.ErrEmptyMessage), errors.Is(err, ragchat.ErrInvalidRole), errors.Is(err, ragchat.ErrMissingScope):
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrSessionNotFound):
		h.writeError(ctx, w, "NOT_FOUND", "Chat session not found", http.StatusNotFound)
	case errors.Is(err, product.ErrNotFound):
		h.writeError(ctx, w, "NOT_FOUND", "Product not found", http.StatusNotFound)
	default:
		slog.ErrorContext(ctx, "chat failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", ragchat.ErrNoLLMResponse.Error(), http.StatusInternalServerError)
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

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseWriter) send(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
