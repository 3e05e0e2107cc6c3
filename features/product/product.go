package product

import (
	"errors"
	"time"

	"marketlens/backend/internal/review"
)

var ErrNotFound = errors.New("product not found")

// Metadata is the free-form product metadata column. Only the scrape
// identifiers are read by the pipeline.
type Metadata struct {
	TrustpilotURL string `json:"trustpilotUrl,omitempty"`
	ASIN          string `json:"asin,omitempty"`
}

type Product struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Metadata             Metadata   `json:"metadata"`
	LastReviewsScrapedAt *time.Time `json:"lastReviewsScrapedAt,omitempty"`
	LastIndexedAt        *time.Time `json:"lastIndexedAt,omitempty"`
}

// Sources maps each configured review source to its scrape identifier.
func (p Product) Sources() map[review.Source]string {
	out := make(map[review.Source]string, 2)
	if p.Metadata.TrustpilotURL != "" {
		out[review.SourceTrustpilot] = p.Metadata.TrustpilotURL
	}
	if p.Metadata.ASIN != "" {
		out[review.SourceAmazon] = p.Metadata.ASIN
	}
	return out
}

// Stale reports whether reviews were last scraped longer than maxAge ago.
// A product that was never scraped is always stale.
func (p Product) Stale(now time.Time, maxAge time.Duration) bool {
	if p.LastReviewsScrapedAt == nil {
		return true
	}
	return now.Sub(*p.LastReviewsScrapedAt) >= maxAge
}
