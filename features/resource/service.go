package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"marketlens/backend/features/product"
	"marketlens/backend/internal/config"
	"marketlens/backend/internal/indexing"
	"marketlens/backend/internal/middleware"
	"marketlens/backend/internal/text"
	"marketlens/backend/internal/worker"
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Indexer interface {
	IndexResource(ctx context.Context, res indexing.Resource) indexing.Result
	DeleteResource(ctx context.Context, resourceID string) error
}

type ProductLookup interface {
	Get(ctx context.Context, id string) (*product.Product, error)
}

type Service struct {
	repo     Repository
	pub      EventPublisher
	indexer  Indexer
	products ProductLookup
}

func NewService(repo Repository, pub EventPublisher, indexer Indexer, products ProductLookup) *Service {
	return &Service{repo: repo, pub: pub, indexer: indexer, products: products}
}

// Create stores the resource and queues it for indexing.
func (s *Service) Create(ctx context.Context, r *Resource) error {
	if err := validate(r); err != nil {
		return err
	}
	if _, err := s.products.Get(ctx, r.ProductID); err != nil {
		return err
	}

	r.Status = StatusPending
	if err := s.repo.Save(ctx, r); err != nil {
		return err
	}

	body, _ := json.Marshal(worker.ResourceIndexTask{ResourceID: r.ID, CorrelationID: middleware.GetCorrelationID(ctx)})
	if err := s.pub.Publish(config.TopicResourceIndex, body); err != nil {
		slog.ErrorContext(ctx, "failed to queue resource", "resource_id", r.ID, "error", err)
		if uerr := s.repo.UpdateStatus(ctx, r.ID, StatusFailed, 0, "queue unavailable"); uerr != nil {
			slog.ErrorContext(ctx, "failed to mark resource failed", "resource_id", r.ID, "error", uerr)
		}
		return fmt.Errorf("queue resource: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Resource, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, productID string) ([]Resource, error) {
	return s.repo.ListByProduct(ctx, productID)
}

// Delete removes the resource's vectors, then hides the row.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.indexer.DeleteResource(ctx, id); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return s.repo.SoftDelete(ctx, id)
}

// Process indexes one resource and records the outcome on its row.
func (s *Service) Process(ctx context.Context, id string) indexing.Result {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return indexing.Result{Error: err.Error()}
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusIndexing, r.ChunkCount, ""); err != nil {
		return indexing.Result{Error: err.Error()}
	}

	productName := ""
	if p, err := s.products.Get(ctx, r.ProductID); err == nil {
		productName = p.Name
	} else {
		slog.WarnContext(ctx, "product lookup failed, indexing without name", "product_id", r.ProductID, "error", err)
	}

	res := s.indexer.IndexResource(ctx, indexing.Resource{
		ID:          r.ID,
		ProductID:   r.ProductID,
		ProductName: productName,
		Title:       r.Title,
		ContentType: r.ContentType,
		Content:     r.Content,
	})

	status := StatusIndexed
	if !res.Success {
		status = StatusFailed
	}
	if err := s.repo.UpdateStatus(ctx, id, status, res.Chunks, res.Error); err != nil {
		slog.ErrorContext(ctx, "failed to record resource status", "resource_id", id, "status", status, "error", err)
	}
	return res
}

func validate(r *Resource) error {
	r.Title = strings.TrimSpace(r.Title)
	switch {
	case r.ProductID == "":
		return fmt.Errorf("%w: productId is required", ErrInvalid)
	case r.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalid)
	case strings.TrimSpace(r.Content) == "":
		return fmt.Errorf("%w: content is required", ErrInvalid)
	case len(r.Content) > MaxContentBytes:
		return fmt.Errorf("%w: content exceeds %d bytes", ErrInvalid, MaxContentBytes)
	}
	if r.ContentType == "" {
		r.ContentType = text.ContentTypeMarkdown
	}
	if !text.SupportedContentType(r.ContentType) {
		return fmt.Errorf("%w: unsupported content type %q", ErrInvalid, r.ContentType)
	}
	return nil
}
