// Package webhook receives scrape run notifications and turns a finished
// run's dataset into persisted, indexed reviews.
package webhook

import (
	"errors"

	"marketlens/backend/internal/review"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw body.
const SignatureHeader = "x-webhook-signature"

const (
	OutcomeIndexed     = "indexed"
	OutcomeIndexFailed = "index_failed"
	OutcomeIgnored     = "ignored"
	OutcomeRunFailed   = "run_failed"
	OutcomeInProgress  = "in_progress"
)

var (
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnknownRun       = errors.New("cannot resolve product for run")
)

type Payload struct {
	EventType string   `json:"eventType"`
	Resource  Resource `json:"resource"`
}

type Resource struct {
	ID                     string `json:"id"`
	ActID                  string `json:"actId"`
	Status                 string `json:"status,omitempty"`
	DefaultDatasetID       string `json:"defaultDatasetId"`
	DefaultKeyValueStoreID string `json:"defaultKeyValueStoreId"`
}

// Outcome is what a delivery did. It is returned to the caller as the 200 body.
type Outcome struct {
	Status    string        `json:"status"`
	RunID     string        `json:"runId,omitempty"`
	ProductID string        `json:"productId,omitempty"`
	Source    review.Source `json:"source,omitempty"`
	Reviews   int           `json:"reviews"`
	Chunks    int           `json:"chunks"`
	Error     string        `json:"error,omitempty"`
}

// target is the product scope a run was started for.
type target struct {
	JobID            string
	ProductID        string
	Source           review.Source
	SourceIdentifier string
}
