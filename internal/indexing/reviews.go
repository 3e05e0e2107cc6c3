package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"marketlens/backend/internal/review"
	"marketlens/backend/internal/vector"
)

// BatchSize is the number of reviews combined into one chunk document.
const BatchSize = 500

// SourceInfo pins a reindex to exactly one (source, identifier) scope.
type SourceInfo struct {
	Source           review.Source
	SourceIdentifier string
}

type ReviewsIndexer struct {
	writer *Writer
}

func NewReviewsIndexer(w *Writer) *ReviewsIndexer {
	return &ReviewsIndexer{writer: w}
}

type groupKey struct {
	source        review.Source
	productSource string
}

// IndexProductReviews replaces the vector scope of reviews with chunk
// documents of up to BatchSize reviews each. With info set, only reviews in
// that scope are written; without it, every productSource in the batch is
// replaced. An empty batch with info set clears that scope; without info
// there is no scope to touch.
func (ix *ReviewsIndexer) IndexProductReviews(ctx context.Context, reviews []review.Review, productName string, info *SourceInfo) Result {
	if len(reviews) == 0 {
		if info == nil {
			return Result{Success: true}
		}
		scope := vector.SourceScope(string(info.Source), info.SourceIdentifier)
		if err := ix.writer.DeleteScope(ctx, scope); err != nil {
			slog.ErrorContext(ctx, "failed to clear empty review scope", "scope", scope.String(), "error", err)
			return failed(fmt.Errorf("clear scope: %w", err))
		}
		slog.InfoContext(ctx, "review scope cleared", "scope", scope.String())
		return Result{Success: true}
	}

	var scope vector.Scope
	if info != nil {
		scope = vector.SourceScope(string(info.Source), info.SourceIdentifier)
		reviews = inScope(ctx, reviews, info)
	} else {
		scope = vector.ProductSourcesScope(distinctProductSources(reviews))
	}
	if err := scope.Validate(); err != nil {
		return failed(err)
	}

	docs := buildDocuments(reviews, productName)
	productID := ""
	if len(reviews) > 0 {
		productID = reviews[0].ProductID
	}

	res := ix.writer.ReindexScope(ctx, scope, productID, docs)
	if !res.Success {
		return res
	}
	res.Count = len(reviews)
	return res
}

func inScope(ctx context.Context, reviews []review.Review, info *SourceInfo) []review.Review {
	out := reviews[:0:0]
	for _, r := range reviews {
		if r.Source == info.Source && r.ProductSource == info.SourceIdentifier {
			out = append(out, r)
			continue
		}
		slog.WarnContext(ctx, "dropping review outside reindex scope",
			"review_id", r.ID, "source", r.Source, "product_source", r.ProductSource)
	}
	return out
}

func distinctProductSources(reviews []review.Review) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range reviews {
		if !seen[r.ProductSource] {
			seen[r.ProductSource] = true
			out = append(out, r.ProductSource)
		}
	}
	return out
}

// buildDocuments groups reviews by (source, productSource) in first-seen
// order and cuts each group into BatchSize batches. ChunkIndex counts within
// a group.
func buildDocuments(reviews []review.Review, productName string) []vector.Chunk {
	var keys []groupKey
	groups := make(map[groupKey][]review.Review)
	for _, r := range reviews {
		k := groupKey{source: r.Source, productSource: r.ProductSource}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
	}

	var docs []vector.Chunk
	for _, k := range keys {
		group := groups[k]
		for i, start := 0, 0; start < len(group); i, start = i+1, start+BatchSize {
			end := start + BatchSize
			if end > len(group) {
				end = len(group)
			}
			batch := group[start:end]
			docs = append(docs, vector.Chunk{
				Content:       reviewText(batch, productName, k.source),
				Kind:          vector.KindReview,
				Title:         fmt.Sprintf("%s reviews (%s)", productName, k.source),
				ProductID:     batch[0].ProductID,
				ProductName:   productName,
				Source:        string(k.source),
				ProductSource: k.productSource,
				ChunkIndex:    i,
			})
		}
	}
	return docs
}

func reviewText(batch []review.Review, productName string, source review.Source) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Product: %s\nSource: %s\n", productName, source)
	for _, r := range batch {
		sb.WriteString("\n")
		if r.Title != "" {
			fmt.Fprintf(&sb, "Title: %s\n", r.Title)
		}
		if r.Rating != nil {
			fmt.Fprintf(&sb, "Rating: %.1f/5\n", *r.Rating)
		}
		if !r.Date.IsZero() {
			fmt.Fprintf(&sb, "Date: %s\n", r.DateString())
		}
		sb.WriteString(r.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
