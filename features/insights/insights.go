// Package insights summarizes what customers say about a product.
package insights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"marketlens/backend/features/product"
	"marketlens/backend/internal/retrieval"
)

// summaryQuery steers retrieval towards opinionated review text.
const summaryQuery = "what customers like and dislike, recurring complaints, praise and themes"

const summaryChunks = 20

type Summary struct {
	Sentiment  string   `json:"sentiment"`
	Themes     []string `json:"themes"`
	Strengths  []string `json:"strengths"`
	Complaints []string `json:"complaints"`
}

type Insights struct {
	ProductID          string         `json:"productId"`
	ProductName        string         `json:"productName"`
	TotalReviews       int            `json:"totalReviews"`
	AverageRating      float64        `json:"averageRating"`
	RatingDistribution map[string]int `json:"ratingDistribution"`
	Summary            *Summary       `json:"summary,omitempty"`
	SummaryError       string         `json:"summaryError,omitempty"`
}

type ReviewStats interface {
	RatingHistogram(ctx context.Context, productID string) (map[int]int, error)
	CountByProduct(ctx context.Context, productID string) (int, error)
	AverageRating(ctx context.Context, productID string) (float64, error)
}

type Retriever interface {
	Search(ctx context.Context, query string, opts retrieval.SearchOptions) ([]retrieval.SearchResult, error)
}

type JSONGenerator interface {
	GenerateJSON(ctx context.Context, system, prompt string, out interface{}) error
}

type ProductLookup interface {
	Get(ctx context.Context, id string) (*product.Product, error)
}

type Service struct {
	products  ProductLookup
	stats     ReviewStats
	retriever Retriever
	llm       JSONGenerator
}

func NewService(products ProductLookup, stats ReviewStats, r Retriever, llm JSONGenerator) *Service {
	return &Service{products: products, stats: stats, retriever: r, llm: llm}
}

// Get returns the rating distribution for productID and, when there are
// reviews to read, an LLM summary. A failed summary is reported inline.
func (s *Service) Get(ctx context.Context, productID string) (*Insights, error) {
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	hist, err := s.stats.RatingHistogram(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("rating histogram: %w", err)
	}
	total, err := s.stats.CountByProduct(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("count reviews: %w", err)
	}
	avg, err := s.stats.AverageRating(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("average rating: %w", err)
	}

	out := &Insights{
		ProductID:          p.ID,
		ProductName:        p.Name,
		TotalReviews:       total,
		AverageRating:      math.Round(avg*100) / 100,
		RatingDistribution: make(map[string]int, 5),
	}
	for bucket := 1; bucket <= 5; bucket++ {
		out.RatingDistribution[fmt.Sprint(bucket)] = hist[bucket]
	}

	if total == 0 {
		return out, nil
	}

	summary, err := s.summarize(ctx, p)
	if err != nil {
		slog.WarnContext(ctx, "insight summary failed", "product_id", p.ID, "error", err)
		out.SummaryError = err.Error()
		return out, nil
	}
	out.Summary = summary
	return out, nil
}

var errNoContext = errors.New("no indexed reviews to summarize")

func (s *Service) summarize(ctx context.Context, p *product.Product) (*Summary, error) {
	limit := summaryChunks
	nodes, err := s.retriever.Search(ctx, summaryQuery, retrieval.SearchOptions{Limit: &limit, ProductIDs: []string{p.ID}})
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, errNoContext
	}

	var sb strings.Builder
	for i, n := range nodes {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, strings.TrimSpace(n.Content))
	}

	system := "You analyse customer reviews for " + p.Name + ". Reply with JSON only: " +
		`{"sentiment":"positive|mixed|negative","themes":[],"strengths":[],"complaints":[]}. ` +
		"Use at most five short items per list."

	var summary Summary
	if err := s.llm.GenerateJSON(ctx, system, sb.String(), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
