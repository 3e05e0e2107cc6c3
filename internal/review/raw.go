package review

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// RawItem is one scraped record, tagged by the source it came from. Each
// source has its own concrete type and its own normalizer.
type RawItem interface {
	Kind() Source
}

// Columns are the already-normalized values stored alongside a review row.
// When present they take precedence over the source-native fields.
type Columns struct {
	Text         string
	Title        string
	Rating       *float64
	Date         string
	ReviewerName string
	Verified     *bool
}

// AmazonItem mirrors an item of the Amazon reviews dataset.
type AmazonItem struct {
	ReviewID          string    `json:"reviewId"`
	ReviewTitle       string    `json:"reviewTitle"`
	ReviewDescription string    `json:"reviewDescription"`
	RatingScore       flexFloat `json:"ratingScore"`
	Date              string    `json:"date"`
	UserName          string    `json:"userName"`
	IsVerified        *bool     `json:"isVerified"`
	ASIN              string    `json:"asin"`

	Stored *Columns `json:"-"`
	raw    json.RawMessage
}

func (AmazonItem) Kind() Source { return SourceAmazon }

// TrustpilotItem mirrors an item of the Trustpilot reviews dataset.
type TrustpilotItem struct {
	ReviewID       string    `json:"reviewId"`
	ReviewHeadline string    `json:"reviewHeadline"`
	ReviewBody     string    `json:"reviewBody"`
	RatingValue    flexFloat `json:"ratingValue"`
	DatePublished  string    `json:"datePublished"`
	AuthorName     string    `json:"authorName"`
	IsVerified     *bool     `json:"isVerified"`
	CompanyURL     string    `json:"companyUrl"`

	Stored *Columns `json:"-"`
	raw    json.RawMessage
}

func (TrustpilotItem) Kind() Source { return SourceTrustpilot }

// DecodeItem decodes a single dataset record for the given source.
func DecodeItem(source Source, data json.RawMessage) (RawItem, error) {
	switch source {
	case SourceAmazon:
		var it AmazonItem
		if err := json.Unmarshal(data, &it); err != nil {
			return nil, fmt.Errorf("decode amazon item: %w", err)
		}
		it.raw = data
		return it, nil
	case SourceTrustpilot:
		var it TrustpilotItem
		if err := json.Unmarshal(data, &it); err != nil {
			return nil, fmt.Errorf("decode trustpilot item: %w", err)
		}
		it.raw = data
		return it, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, source)
}

var leadingNumber = regexp.MustCompile(`^\s*(\d+(?:[.,]\d+)?)`)

// flexFloat accepts 4, 4.5, "4.5" and "4.0 out of 5 stars".
type flexFloat struct {
	Value float64
	Valid bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		m := leadingNumber.FindStringSubmatch(str)
		if m == nil {
			return nil
		}
		s = strings.Replace(m[1], ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("rating %q: %w", s, err)
	}
	f.Value, f.Valid = v, true
	return nil
}

// rating returns the value as a star rating, or nil when it is missing or
// not a positive number.
func (f flexFloat) rating() *float64 {
	if !f.Valid || f.Value <= 0 {
		return nil
	}
	v := f.Value
	return &v
}

func (f flexFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}
