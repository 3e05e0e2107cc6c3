package retrieval

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"marketlens/backend/internal/middleware"
)

// QueryLogEntry is one line of the query log, written for every search
// whether it succeeded or not.
type QueryLogEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Query         string    `json:"query"`
	ProductIDs    []string  `json:"product_ids"`
	Limit         int       `json:"limit"`
	NumResults    int       `json:"num_results"`
	Reranked      bool      `json:"reranked"`
	LatencyMs     int64     `json:"latency_ms"`
	Error         string    `json:"error,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

type QueryLogger struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{enc: json.NewEncoder(w), now: time.Now}
}

// NewFileQueryLogger appends JSON lines to path, creating its directory.
func NewFileQueryLogger(path string) (*QueryLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is from application config, not user input
	if err != nil {
		return nil, err
	}
	return NewQueryLogger(f), nil
}

// Log stamps entry with the time, elapsed latency and the request's
// correlation id, then writes it.
func (l *QueryLogger) Log(ctx context.Context, entry QueryLogEntry, elapsed time.Duration) {
	if l == nil {
		return
	}
	entry.Timestamp = l.now().UTC()
	entry.LatencyMs = elapsed.Milliseconds()
	if entry.CorrelationID == "" {
		entry.CorrelationID = middleware.GetCorrelationID(ctx)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(entry); err != nil {
		slog.ErrorContext(ctx, "failed to write query log entry", "error", err)
	}
}
