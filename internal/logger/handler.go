package logger

import (
	"context"
	"io"
	"log/slog"

	"marketlens/backend/internal/middleware"
)

// ContextHandler decorates records with request-scoped identifiers.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctx.Value(middleware.CorrelationKey).(string); ok && id != "" {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if runID := middleware.GetRunID(ctx); runID != "" {
		r.AddAttrs(slog.String("actor_run_id", runID))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// New builds the process logger: JSON to w, enriched from context.
func New(w io.Writer) *slog.Logger {
	return slog.New(NewContextHandler(slog.NewJSONHandler(w, nil)))
}
