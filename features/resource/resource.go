// Package resource manages marketing documents that are indexed next to
// reviews under their own vector scope.
package resource

import (
	"errors"
	"time"
)

const (
	StatusPending  = "pending"
	StatusIndexing = "indexing"
	StatusIndexed  = "indexed"
	StatusFailed   = "failed"
)

// MaxContentBytes bounds a single resource body.
const MaxContentBytes = 5 << 20

var (
	ErrNotFound = errors.New("resource not found")
	ErrInvalid  = errors.New("invalid resource")
)

type Resource struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"productId"`
	Title       string    `json:"title"`
	ContentType string    `json:"contentType"`
	Content     string    `json:"content,omitempty"`
	Status      string    `json:"status"`
	ChunkCount  int       `json:"chunkCount"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
