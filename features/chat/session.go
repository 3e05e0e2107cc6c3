// Package chat exposes the retrieval chat engine over HTTP and persists
// completed conversation turns.
package chat

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrSessionNotFound = errors.New("chat session not found")

type Session struct {
	ID            string     `json:"id"`
	ProductID     string     `json:"productId"`
	Title         string     `json:"title"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type StoredMessage struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionId"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Sources   json.RawMessage `json:"sources,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
