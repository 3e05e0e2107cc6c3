package indexing

import (
	"context"
	"errors"
	"fmt"

	"marketlens/backend/internal/text"
	"marketlens/backend/internal/vector"
)

// ResourceMaxTokens bounds one resource chunk.
const ResourceMaxTokens = 512

var ErrUnsupportedContentType = errors.New("unsupported content type")

// Resource is a marketing document indexed under its own scope.
type Resource struct {
	ID          string
	ProductID   string
	ProductName string
	Title       string
	ContentType string
	Content     string
}

type ResourceIndexer struct {
	writer *Writer
}

func NewResourceIndexer(w *Writer) *ResourceIndexer {
	return &ResourceIndexer{writer: w}
}

// IndexResource converts, chunks and replaces the resource's scope.
func (ix *ResourceIndexer) IndexResource(ctx context.Context, res Resource) Result {
	if res.ID == "" {
		return failed(vector.ErrEmptyScope)
	}
	if !text.SupportedContentType(res.ContentType) {
		return failed(fmt.Errorf("%w: %s", ErrUnsupportedContentType, res.ContentType))
	}

	md, err := text.ToMarkdown(res.Content, res.ContentType)
	if err != nil {
		return failed(fmt.Errorf("convert: %w", err))
	}

	pieces := text.ChunkMarkdown(md, ResourceMaxTokens)
	docs := make([]vector.Chunk, len(pieces))
	for i, p := range pieces {
		docs[i] = vector.Chunk{
			Content:     p,
			Kind:        vector.KindResource,
			Title:       res.Title,
			ProductID:   res.ProductID,
			ProductName: res.ProductName,
			ResourceID:  res.ID,
			ChunkIndex:  i,
		}
	}

	out := ix.writer.ReindexScope(ctx, vector.ResourceScope(res.ID), res.ProductID, docs)
	if out.Success {
		out.Count = 1
	}
	return out
}

// DeleteResource removes every chunk of the resource.
func (ix *ResourceIndexer) DeleteResource(ctx context.Context, resourceID string) error {
	return ix.writer.DeleteScope(ctx, vector.ResourceScope(resourceID))
}
