package job

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"marketlens/backend/internal/config"
)

const defaultPublishTimeout = 5 * time.Second

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo           Repository
	pub            EventPublisher
	logger         *slog.Logger
	publishTimeout time.Duration
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, pub: pub, logger: logger, publishTimeout: defaultPublishTimeout}
}

// WithPublishTimeout overrides how long Retry waits on the queue.
func (s *Service) WithPublishTimeout(d time.Duration) *Service {
	s.publishTimeout = d
	return s
}

// Record dead-letters a task.
func (s *Service) Record(ctx context.Context, j *Job) error {
	if err := s.repo.Save(ctx, j); err != nil {
		return err
	}
	s.logger.WarnContext(ctx, "task dead-lettered", "job_id", j.ID, "resource_id", j.ResourceID, "handler", j.Handler, "error", j.Error)
	return nil
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

// Retry republishes the job's payload and removes it from the queue.
func (s *Service) Retry(ctx context.Context, id string) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !json.Valid(j.Payload) {
		return ErrInvalidPayload
	}

	if err := s.publish(ctx, config.TopicResourceIndex, j.Payload); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "failed job requeued", "job_id", id, "resource_id", j.ResourceID)
	return nil
}

// Discard drops a dead letter without replaying it.
func (s *Service) Discard(ctx context.Context, id string) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "failed job discarded", "job_id", id, "resource_id", j.ResourceID)
	return nil
}

// publish bounds a Publish call, which takes no context.
func (s *Service) publish(ctx context.Context, topic string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(topic, body)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return ErrPublishTimeout
		}
		return ctx.Err()
	}
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
