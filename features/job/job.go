// Package job keeps the dead-letter queue of resource indexing tasks that
// exhausted their attempts, and lets operators replay them.
package job

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("failed job not found")
	ErrInvalidPayload = errors.New("failed job payload is not valid JSON")
	ErrPublishTimeout = errors.New("publish timed out")
)

// Job is one dead-lettered task.
type Job struct {
	ID         string          `json:"id"`
	ResourceID string          `json:"resourceId"`
	Handler    string          `json:"handler"`
	Payload    json.RawMessage `json:"payload"`
	Error      string          `json:"error"`
	Retries    int             `json:"retries"`
	CreatedAt  time.Time       `json:"createdAt"`
}
