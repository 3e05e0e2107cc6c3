package resource

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"marketlens/backend/features/product"
	"marketlens/backend/internal/middleware"
	"marketlens/backend/internal/text"
)

var uploadTypes = map[string]string{
	".md":       text.ContentTypeMarkdown,
	".markdown": text.ContentTypeMarkdown,
	".html":     text.ContentTypeHTML,
	".htm":      text.ContentTypeHTML,
	".txt":      text.ContentTypePlain,
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxContentBytes+4096)
	var req struct {
		ProductID   string `json:"productId"`
		Title       string `json:"title"`
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	res := &Resource{
		ProductID:   req.ProductID,
		Title:       req.Title,
		ContentType: req.ContentType,
		Content:     req.Content,
	}
	h.create(w, r, res)
}

// Upload accepts a multipart file; the content type follows the extension.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxContentBytes+(1<<20))
	if err := r.ParseMultipartForm(MaxContentBytes); err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType, ok := uploadTypes[strings.ToLower(filepath.Ext(header.Filename))]
	if !ok {
		h.writeError(r.Context(), w, "BAD_REQUEST", "Unsupported file type", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(file, MaxContentBytes+1))
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to read file", http.StatusInternalServerError)
		return
	}

	title := r.FormValue("title")
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	}

	h.create(w, r, &Resource{
		ProductID:   r.FormValue("productId"),
		Title:       title,
		ContentType: contentType,
		Content:     string(body),
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, res *Resource) {
	ctx := r.Context()
	if err := h.service.Create(ctx, res); err != nil {
		switch {
		case errors.Is(err, ErrInvalid):
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		case errors.Is(err, product.ErrNotFound):
			h.writeError(ctx, w, "NOT_FOUND", "Product not found", http.StatusNotFound)
		default:
			slog.ErrorContext(ctx, "resource create failed", "error", err, "product_id", res.ProductID)
			h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	res.Content = ""
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": res}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("productId")
	if productID == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "productId is required", http.StatusBadRequest)
		return
	}

	resources, err := h.service.List(r.Context(), productID)
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if resources == nil {
		resources = []Resource{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": resources,
		"meta": map[string]int{"count": len(resources)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Resource not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": res}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Resource not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
