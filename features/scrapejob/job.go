package scrapejob

import (
	"errors"
	"time"

	"marketlens/backend/internal/review"
)

var (
	ErrConflict          = errors.New("scrape already in flight for this source")
	ErrNotFound          = errors.New("scrape job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrInvalidStatus     = errors.New("invalid job status")
	ErrMissingScope      = errors.New("productId and sourceIdentifier are required")
)

type Status string

const (
	StatusQueued      Status = "queued"
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusIndexing    Status = "indexing"
	StatusIndexed     Status = "indexed"
	StatusIndexFailed Status = "index_failed"
)

// transitions lists, per target status, the statuses a job may move from.
// Re-entering indexing from a finished or failed state covers redelivered
// webhooks for the same run.
var transitions = map[Status][]Status{
	StatusRunning:     {StatusQueued, StatusRunning},
	StatusCompleted:   {StatusRunning, StatusCompleted},
	StatusFailed:      {StatusQueued, StatusRunning, StatusCompleted, StatusIndexing, StatusFailed},
	StatusIndexing:    {StatusCompleted, StatusIndexing, StatusIndexed, StatusIndexFailed, StatusFailed},
	StatusIndexed:     {StatusIndexing, StatusIndexed},
	StatusIndexFailed: {StatusIndexing, StatusIndexFailed},
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if st == StatusQueued {
		return st, nil
	}
	if _, ok := transitions[st]; !ok {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// AllowedFrom returns the statuses a job may hold before moving to s.
func (s Status) AllowedFrom() []Status {
	return transitions[s]
}

func (s Status) InFlight() bool {
	return s == StatusQueued || s == StatusRunning
}

func (s Status) Terminal() bool {
	return s == StatusIndexed || s == StatusIndexFailed || s == StatusFailed
}

// Failed reports whether s is a failure state that carries an error message.
func (s Status) Failed() bool {
	return s == StatusFailed || s == StatusIndexFailed
}

func (s Status) setsCompletedAt() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) setsIndexedAt() bool {
	return s == StatusIndexed || s == StatusIndexFailed
}

type Job struct {
	ID               string        `json:"id"`
	ProductID        string        `json:"productId"`
	Source           review.Source `json:"source"`
	SourceIdentifier string        `json:"sourceIdentifier"`
	Status           Status        `json:"status"`
	ActorRunID       string        `json:"actorRunId,omitempty"`
	StartedAt        time.Time     `json:"startedAt"`
	CompletedAt      *time.Time    `json:"completedAt,omitempty"`
	IndexedAt        *time.Time    `json:"indexedAt,omitempty"`
	ErrorMessage     string        `json:"errorMessage,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}
