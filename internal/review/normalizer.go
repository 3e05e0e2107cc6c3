package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

var errMalformed = errors.New("malformed review record")

// Normalizer converts raw scraped items into canonical reviews. It performs
// no I/O.
type Normalizer struct {
	policy *bluemonday.Policy
	now    func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		policy: bluemonday.StrictPolicy(),
		now:    time.Now,
	}
}

// WithClock overrides the ingestion clock used for missing dates.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// NormalizeDataset decodes dataset items for source and normalizes them.
// Records that fail to decode are skipped.
func (n *Normalizer) NormalizeDataset(ctx context.Context, source Source, items []json.RawMessage, productID, productSource string) ([]Review, error) {
	if _, err := ParseSource(string(source)); err != nil {
		return nil, err
	}

	raw := make([]RawItem, 0, len(items))
	for i, data := range items {
		it, err := DecodeItem(source, data)
		if err != nil {
			slog.WarnContext(ctx, "skipping undecodable review record", "source", source, "index", i, "error", err)
			continue
		}
		raw = append(raw, it)
	}
	return n.Normalize(ctx, raw, productID, productSource), nil
}

// Normalize maps each item with the normalizer registered for its kind.
// Malformed items are logged and skipped; the batch never fails as a whole.
// Only the first occurrence of a (source, id) pair is kept.
func (n *Normalizer) Normalize(ctx context.Context, items []RawItem, productID, productSource string) []Review {
	ingestedAt := n.now().UTC()
	out := make([]Review, 0, len(items))
	seen := make(map[reviewKey]bool, len(items))

	for i, item := range items {
		var (
			r   Review
			err error
		)
		switch it := item.(type) {
		case AmazonItem:
			r, err = n.amazon(it)
		case TrustpilotItem:
			r, err = n.trustpilot(it)
		default:
			err = fmt.Errorf("%w: %T", ErrUnsupportedSource, item)
		}
		if err != nil {
			slog.WarnContext(ctx, "skipping review record", "index", i, "error", err)
			continue
		}
		k := reviewKey{source: r.Source, id: r.ID}
		if seen[k] {
			slog.WarnContext(ctx, "skipping duplicate review record", "index", i, "source", r.Source, "review_id", r.ID)
			continue
		}
		seen[k] = true

		r.ProductID = productID
		r.ProductSource = productSource
		if r.Date.IsZero() {
			r.Date = time.Date(ingestedAt.Year(), ingestedAt.Month(), ingestedAt.Day(), 0, 0, 0, 0, time.UTC)
		}
		out = append(out, r)
	}
	return out
}

type reviewKey struct {
	source Source
	id     string
}

func (n *Normalizer) amazon(it AmazonItem) (Review, error) {
	r := Review{
		ID:           strings.TrimSpace(it.ReviewID),
		Source:       SourceAmazon,
		Text:         n.clean(it.ReviewDescription),
		Title:        n.clean(it.ReviewTitle),
		ReviewerName: strings.TrimSpace(it.UserName),
		Verified:     it.IsVerified,
		SourceData:   it.raw,
	}
	r.Rating = it.RatingScore.rating()
	date := it.Date
	applyColumns(&r, it.Stored, &date, n)
	if d := ParseDate(SourceAmazon, date); d != nil {
		r.Date = *d
	}
	return r, validate(r)
}

func (n *Normalizer) trustpilot(it TrustpilotItem) (Review, error) {
	r := Review{
		ID:           strings.TrimSpace(it.ReviewID),
		Source:       SourceTrustpilot,
		Text:         n.clean(it.ReviewBody),
		Title:        n.clean(it.ReviewHeadline),
		ReviewerName: strings.TrimSpace(it.AuthorName),
		Verified:     it.IsVerified,
		SourceData:   it.raw,
	}
	r.Rating = it.RatingValue.rating()
	date := it.DatePublished
	applyColumns(&r, it.Stored, &date, n)
	if d := ParseDate(SourceTrustpilot, date); d != nil {
		r.Date = *d
	}
	return r, validate(r)
}

func applyColumns(r *Review, c *Columns, date *string, n *Normalizer) {
	if c == nil {
		return
	}
	if c.Text != "" {
		r.Text = n.clean(c.Text)
	}
	if c.Title != "" {
		r.Title = n.clean(c.Title)
	}
	if c.Rating != nil && *c.Rating > 0 {
		v := *c.Rating
		r.Rating = &v
	}
	if c.Date != "" {
		*date = c.Date
	}
	if c.ReviewerName != "" {
		r.ReviewerName = c.ReviewerName
	}
	if c.Verified != nil {
		r.Verified = c.Verified
	}
}

func validate(r Review) error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing review id", errMalformed)
	}
	if r.Text == "" && r.Title == "" {
		return fmt.Errorf("%w: review %s has no text", errMalformed, r.ID)
	}
	return nil
}

// clean strips markup and collapses whitespace.
func (n *Normalizer) clean(s string) string {
	s = html.UnescapeString(n.policy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}
