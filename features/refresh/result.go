// Package refresh decides when a product's reviews need re-scraping and
// starts the scrape runs. Completion arrives later through the webhook.
package refresh

import (
	"errors"
	"time"

	"marketlens/backend/internal/review"
)

// DefaultMaxAge is how long scraped reviews stay fresh.
const DefaultMaxAge = 7 * 24 * time.Hour

var ErrNoSources = errors.New("product has no review sources configured")

type Options struct {
	ForceRefresh       bool
	IncludeCompetitors bool
	// Sources limits the refresh; empty means every configured source.
	Sources []review.Source
}

type SourceResult struct {
	Source           review.Source `json:"source"`
	SourceIdentifier string        `json:"sourceIdentifier"`
	Triggered        bool          `json:"triggered"`
	InProgress       bool          `json:"inProgress,omitempty"`
	JobID            string        `json:"jobId,omitempty"`
	RunID            string        `json:"runId,omitempty"`
	Error            string        `json:"error,omitempty"`
}

type ProductResult struct {
	ProductID   string         `json:"productId"`
	ProductName string         `json:"productName,omitempty"`
	Success     bool           `json:"success"`
	FromCache   bool           `json:"fromCache"`
	Sources     []SourceResult `json:"sources"`
	Error       string         `json:"error,omitempty"`
}

// Result aggregates a refresh of one product and, optionally, its
// competitors. Competitor failures never change Success.
type Result struct {
	ProductResult
	Competitors []ProductResult `json:"competitors,omitempty"`
}
