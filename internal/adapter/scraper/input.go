package scraper

import (
	"fmt"
	"strings"

	"marketlens/backend/internal/review"
)

// CustomData rides along in the run input so the webhook can recover which
// product a run belongs to.
type CustomData struct {
	ProductID        string `json:"productId"`
	Source           string `json:"source"`
	SourceIdentifier string `json:"sourceIdentifier"`
}

// RunInput is the subset of a run's INPUT record read back by the webhook.
type RunInput struct {
	CustomData CustomData `json:"customData"`
}

type AmazonInput struct {
	ProductURLs []StartURL `json:"productUrls"`
	MaxReviews  int        `json:"maxReviews"`
	Sort        string     `json:"sort"`
	CustomData  CustomData `json:"customData"`
}

type TrustpilotInput struct {
	StartURLs  []StartURL `json:"startUrls"`
	Count      int        `json:"count"`
	Sort       string     `json:"sort"`
	CustomData CustomData `json:"customData"`
}

type StartURL struct {
	URL string `json:"url"`
}

// Actors maps each review source to the actor that scrapes it.
type Actors map[review.Source]string

// BuildInput returns the actor and input for scraping identifier.
func BuildInput(actors Actors, source review.Source, identifier, productID string, maxReviews int) (string, interface{}, error) {
	actor, ok := actors[source]
	if !ok || actor == "" {
		return "", nil, fmt.Errorf("%w: %s", review.ErrUnsupportedSource, source)
	}
	custom := CustomData{ProductID: productID, Source: string(source), SourceIdentifier: identifier}

	switch source {
	case review.SourceAmazon:
		return actor, AmazonInput{
			ProductURLs: []StartURL{{URL: amazonURL(identifier)}},
			MaxReviews:  maxReviews,
			Sort:        "recent",
			CustomData:  custom,
		}, nil
	case review.SourceTrustpilot:
		return actor, TrustpilotInput{
			StartURLs:  []StartURL{{URL: trustpilotURL(identifier)}},
			Count:      maxReviews,
			Sort:       "recency",
			CustomData: custom,
		}, nil
	}
	return "", nil, fmt.Errorf("%w: %s", review.ErrUnsupportedSource, source)
}

func amazonURL(asin string) string {
	if strings.HasPrefix(asin, "http") {
		return asin
	}
	return "https://www.amazon.com/dp/" + asin
}

func trustpilotURL(identifier string) string {
	if strings.HasPrefix(identifier, "http") {
		return identifier
	}
	return "https://www.trustpilot.com/review/" + identifier
}
