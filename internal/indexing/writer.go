// Package indexing writes scope-partitioned documents into the vector index.
//
// Every write replaces a whole scope: documents are embedded first, then the
// scope is deleted, then the new chunks are inserted. A failed insert leaves
// the scope empty, never duplicated; a retry repopulates it.
package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"marketlens/backend/internal/vector"
)

// Result is returned across component boundaries instead of an error.
type Result struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Chunks  int    `json:"chunks"`
	Error   string `json:"error,omitempty"`
}

func failed(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	DeleteScope(ctx context.Context, scope vector.Scope) error
	InsertChunks(ctx context.Context, chunks []vector.Chunk) error
}

type ProductTimestamps interface {
	UpdateLastIndexedAt(ctx context.Context, id string, at time.Time) error
}

type Writer struct {
	embedder    Embedder
	store       VectorStore
	products    ProductTimestamps
	concurrency int
	now         func() time.Time
}

func NewWriter(e Embedder, s VectorStore, p ProductTimestamps, concurrency int) *Writer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Writer{embedder: e, store: s, products: p, concurrency: concurrency, now: time.Now}
}

// ReindexScope replaces everything in scope with docs and stamps productID's
// lastIndexedAt. Docs carry no vectors; they are embedded here. An empty docs
// slice clears the scope.
func (w *Writer) ReindexScope(ctx context.Context, scope vector.Scope, productID string, docs []vector.Chunk) Result {
	if err := scope.Validate(); err != nil {
		return failed(err)
	}

	chunks, err := w.embedAll(ctx, docs)
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "scope", scope.String(), "error", err)
		return failed(fmt.Errorf("embed: %w", err))
	}

	if err := w.store.DeleteScope(ctx, scope); err != nil {
		slog.ErrorContext(ctx, "scope delete failed", "scope", scope.String(), "error", err)
		return failed(fmt.Errorf("delete scope: %w", err))
	}

	if len(chunks) > 0 {
		if err := w.store.InsertChunks(ctx, chunks); err != nil {
			slog.ErrorContext(ctx, "chunk insert failed, scope left empty", "scope", scope.String(), "error", err)
			return failed(fmt.Errorf("insert chunks: %w", err))
		}
	}

	if productID != "" && w.products != nil {
		if err := w.products.UpdateLastIndexedAt(ctx, productID, w.now().UTC()); err != nil {
			slog.WarnContext(ctx, "failed to update last_indexed_at", "product_id", productID, "error", err)
		}
	}

	slog.InfoContext(ctx, "scope reindexed", "scope", scope.String(), "chunks", len(chunks))
	return Result{Success: true, Chunks: len(chunks)}
}

// DeleteScope clears scope without inserting anything.
func (w *Writer) DeleteScope(ctx context.Context, scope vector.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return w.store.DeleteScope(ctx, scope)
}

// embedAll embeds docs concurrently. Output order matches input order.
func (w *Writer) embedAll(ctx context.Context, docs []vector.Chunk) ([]vector.Chunk, error) {
	out := make([]vector.Chunk, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for i := range docs {
		i := i
		g.Go(func() error {
			vec, err := w.embedder.Embed(gctx, docs[i].Content)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", docs[i].ChunkIndex, err)
			}
			out[i] = docs[i]
			out[i].Vector = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
