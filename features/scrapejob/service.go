package scrapejob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"marketlens/backend/internal/review"
)

// Service is the passive ledger of external scrape runs. It never scrapes or
// indexes on its own; callers drive every transition.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateJob records a new running job for (source, sourceIdentifier).
// actorRunID may be empty and attached later with AttachRun.
func (s *Service) CreateJob(ctx context.Context, productID string, source review.Source, sourceIdentifier, actorRunID string) (*Job, error) {
	if _, err := review.ParseSource(string(source)); err != nil {
		return nil, err
	}
	sourceIdentifier = strings.TrimSpace(sourceIdentifier)
	if productID == "" || sourceIdentifier == "" {
		return nil, ErrMissingScope
	}

	inFlight, err := s.InFlight(ctx, source, sourceIdentifier)
	if err != nil {
		return nil, err
	}
	if inFlight {
		return nil, ErrConflict
	}

	job := &Job{
		ProductID:        productID,
		Source:           source,
		SourceIdentifier: sourceIdentifier,
		Status:           StatusRunning,
		ActorRunID:       actorRunID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "scrape job created", "job_id", job.ID, "source", source, "source_identifier", sourceIdentifier)
	return job, nil
}

func (s *Service) AttachRun(ctx context.Context, jobID, actorRunID string) error {
	return s.repo.AttachRun(ctx, jobID, actorRunID)
}

// UpdateStatus transitions the job owning actorRunID. An unknown run is
// logged and ignored; webhooks may arrive for runs this system never started.
func (s *Service) UpdateStatus(ctx context.Context, actorRunID string, status Status, errorMessage string, indexedAt *time.Time) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return fmt.Errorf("%w: %q", err, status)
	}

	err := s.repo.UpdateStatus(ctx, actorRunID, status, errorMessage, indexedAt)
	switch {
	case errors.Is(err, ErrNotFound):
		slog.WarnContext(ctx, "status update for untracked run", "actor_run_id", actorRunID, "status", status)
		return nil
	case err != nil:
		return fmt.Errorf("update job %s to %s: %w", actorRunID, status, err)
	}
	slog.InfoContext(ctx, "scrape job status updated", "actor_run_id", actorRunID, "status", status)
	return nil
}

// FailJob marks a job failed by id, for runs that never got an actor run id.
func (s *Service) FailJob(ctx context.Context, jobID, errorMessage string) error {
	return s.repo.FailByID(ctx, jobID, errorMessage)
}

func (s *Service) GetByRunID(ctx context.Context, actorRunID string) (*Job, error) {
	return s.repo.GetByRunID(ctx, actorRunID)
}

// GetStatus returns the latest job for the scope, or ErrNotFound.
func (s *Service) GetStatus(ctx context.Context, source review.Source, sourceIdentifier string) (*Job, error) {
	return s.repo.Latest(ctx, source, sourceIdentifier)
}

func (s *Service) InFlight(ctx context.Context, source review.Source, sourceIdentifier string) (bool, error) {
	job, err := s.repo.Latest(ctx, source, sourceIdentifier)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return job.Status.InFlight(), nil
}

func (s *Service) CountInFlight(ctx context.Context) (int, error) {
	return s.repo.CountByStatus(ctx, StatusQueued, StatusRunning)
}

func (s *Service) CountFailed(ctx context.Context) (int, error) {
	return s.repo.CountByStatus(ctx, StatusFailed, StatusIndexFailed)
}
