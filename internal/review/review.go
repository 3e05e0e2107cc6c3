// Package review holds the canonical review shape and the normalizer that
// maps scraped per-source items onto it.
package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Source string

const (
	SourceAmazon     Source = "amazon"
	SourceTrustpilot Source = "trustpilot"
)

var ErrUnsupportedSource = errors.New("unsupported review source")

// ParseSource validates a source name coming from the outside world.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceAmazon, SourceTrustpilot:
		return Source(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedSource, s)
}

// DateLayout is the calendar-date format reviews are exposed with.
const DateLayout = "2006-01-02"

// Review is a normalized review. ID is unique within Source. Rating is nil
// when the source gave none.
type Review struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"productId"`
	Text          string          `json:"text"`
	Title         string          `json:"title,omitempty"`
	Rating        *float64        `json:"rating"`
	Source        Source          `json:"source"`
	Date          time.Time       `json:"date"`
	ReviewerName  string          `json:"reviewerName,omitempty"`
	Verified      *bool           `json:"verified,omitempty"`
	ProductSource string          `json:"productSource"`
	SourceData    json.RawMessage `json:"-"`
}

// DateString renders Date as an ISO calendar date.
func (r Review) DateString() string {
	return r.Date.Format(DateLayout)
}

// Bucket rounds the rating to the nearest whole star, clamped to 1..5. It
// is 0 for an unrated review.
func (r Review) Bucket() int {
	if r.Rating == nil {
		return 0
	}
	b := int(*r.Rating + 0.5)
	if b < 1 {
		return 1
	}
	if b > 5 {
		return 5
	}
	return b
}
