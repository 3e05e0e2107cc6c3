package retrieval

import (
	"context"
	"errors"
	"time"

	"marketlens/backend/internal/settings"
)

// DefaultTopK is used when settings do not provide a positive top-K.
const DefaultTopK = 40

var ErrMissingProduct = errors.New("search requires at least one productId")

type SearchResult struct {
	Content       string  `json:"content"`
	Score         float32 `json:"score"`
	Kind          string  `json:"kind,omitempty"`
	Title         string  `json:"title,omitempty"`
	ProductID     string  `json:"productId,omitempty"`
	ProductName   string  `json:"productName,omitempty"`
	Source        string  `json:"source,omitempty"`
	ProductSource string  `json:"productSource,omitempty"`
	ResourceID    string  `json:"resourceId,omitempty"`
	ChunkIndex    int     `json:"chunkIndex"`
}

// SearchOptions narrows a search. ProductIDs is mandatory: results are always
// restricted to chunks owned by those products.
type SearchOptions struct {
	Limit      *int
	ProductIDs []string
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	Search(ctx context.Context, vector []float32, limit int, productIDs []string) ([]SearchResult, error)
}

type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]int, error)
}

type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

type Service struct {
	embedder Embedder
	store    VectorStore
	reranker Reranker
	settings SettingsProvider
	logger   *QueryLogger
}

func NewService(e Embedder, s VectorStore, r Reranker, set SettingsProvider, l *QueryLogger) *Service {
	return &Service{embedder: e, store: s, reranker: r, settings: set, logger: l}
}

// Search embeds query, runs a cosine nearest-neighbour search filtered to
// opts.ProductIDs and reranks the hits when a reranker is configured.
func (s *Service) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if len(opts.ProductIDs) == 0 {
		return nil, ErrMissingProduct
	}

	start := time.Now()
	entry := QueryLogEntry{Query: query, ProductIDs: opts.ProductIDs}
	var err error
	defer func() {
		if err != nil {
			entry.Error = err.Error()
		}
		s.logger.Log(ctx, entry, time.Since(start))
	}()

	limit := s.topK(ctx)
	if opts.Limit != nil && *opts.Limit > 0 {
		limit = *opts.Limit
	}
	entry.Limit = limit

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	docs, err := s.store.Search(ctx, vec, limit, opts.ProductIDs)
	if err != nil {
		return nil, err
	}

	if s.reranker != nil && len(docs) > 1 {
		contents := make([]string, len(docs))
		for i, d := range docs {
			contents[i] = d.Content
		}
		var indices []int
		indices, err = s.reranker.Rerank(ctx, query, contents)
		if err != nil {
			return nil, err
		}

		reranked := make([]SearchResult, 0, len(indices))
		for _, idx := range indices {
			if idx >= 0 && idx < len(docs) {
				reranked = append(reranked, docs[idx])
			}
		}
		docs = reranked
		entry.Reranked = true
	}

	entry.NumResults = len(docs)
	return docs, nil
}

func (s *Service) topK(ctx context.Context) int {
	if s.settings == nil {
		return DefaultTopK
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil || cfg == nil || cfg.SearchTopK <= 0 {
		return DefaultTopK
	}
	return cfg.SearchTopK
}
