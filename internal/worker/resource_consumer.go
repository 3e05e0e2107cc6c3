package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"marketlens/backend/features/job"
	"marketlens/backend/internal/config"
	"marketlens/backend/internal/indexing"
	"marketlens/backend/internal/middleware"
)

// MaxAttempts is how many deliveries a task gets before it is dead-lettered.
const MaxAttempts = 3

const processTimeout = 5 * time.Minute

type ResourceProcessor interface {
	Process(ctx context.Context, resourceID string) indexing.Result
}

type DeadLetter interface {
	Record(ctx context.Context, j *job.Job) error
}

type ResourceConsumer struct {
	processor   ResourceProcessor
	deadLetter  DeadLetter
	maxAttempts uint16
}

func NewResourceConsumer(p ResourceProcessor, dl DeadLetter) *ResourceConsumer {
	return &ResourceConsumer{processor: p, deadLetter: dl, maxAttempts: MaxAttempts}
}

// HandleMessage indexes one resource. Returning an error requeues the
// message; the last attempt is dead-lettered and acked instead.
func (h *ResourceConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task ResourceIndexTask
	if err := json.Unmarshal(m.Body, &task); err != nil || task.ResourceID == "" {
		// Poison pill: never retry.
		slog.Error("poison pill: invalid resource task", "error", err, "body", string(m.Body))
		h.bury(context.Background(), "", m, "invalid task payload")
		return nil
	}

	correlationID := task.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)
	ctx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()

	res := h.processor.Process(ctx, task.ResourceID)
	if res.Success {
		slog.InfoContext(ctx, "resource indexed", "resource_id", task.ResourceID, "chunks", res.Chunks)
		return nil
	}

	if m.Attempts >= h.maxAttempts {
		slog.ErrorContext(ctx, "resource indexing exhausted attempts", "resource_id", task.ResourceID, "attempts", m.Attempts, "error", res.Error)
		h.bury(ctx, task.ResourceID, m, res.Error)
		return nil
	}

	slog.WarnContext(ctx, "resource indexing failed, requeueing", "resource_id", task.ResourceID, "attempts", m.Attempts, "error", res.Error)
	return &processError{msg: res.Error}
}

func (h *ResourceConsumer) bury(ctx context.Context, resourceID string, m *nsq.Message, reason string) {
	if h.deadLetter == nil {
		return
	}
	payload := json.RawMessage(m.Body)
	if !json.Valid(payload) {
		quoted, _ := json.Marshal(string(m.Body))
		payload = quoted
	}
	err := h.deadLetter.Record(ctx, &job.Job{
		ResourceID: resourceID,
		Handler:    config.TopicResourceIndex,
		Payload:    payload,
		Error:      reason,
		Retries:    int(m.Attempts),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to dead-letter task", "resource_id", resourceID, "error", err)
	}
}

type processError struct {
	msg string
}

func (e *processError) Error() string { return "process resource: " + e.msg }
