package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"marketlens/backend/features/product"
	"marketlens/backend/features/scrapejob"
	"marketlens/backend/internal/adapter/redislock"
	"marketlens/backend/internal/adapter/scraper"
	"marketlens/backend/internal/indexing"
	"marketlens/backend/internal/middleware"
	"marketlens/backend/internal/review"
)

type JobTracker interface {
	GetByRunID(ctx context.Context, actorRunID string) (*scrapejob.Job, error)
	UpdateStatus(ctx context.Context, actorRunID string, status scrapejob.Status, errorMessage string, indexedAt *time.Time) error
	FailJob(ctx context.Context, jobID, errorMessage string) error
}

type ScraperClient interface {
	GetDatasetItems(ctx context.Context, datasetID string) ([]json.RawMessage, error)
	GetRecord(ctx context.Context, storeID, key string, out interface{}) error
}

type Normalizer interface {
	NormalizeDataset(ctx context.Context, source review.Source, items []json.RawMessage, productID, productSource string) ([]review.Review, error)
}

type ReviewStore interface {
	ReplaceScope(ctx context.Context, productSource string, source review.Source, reviews []review.Review) error
}

type ReviewIndexer interface {
	IndexProductReviews(ctx context.Context, reviews []review.Review, productName string, info *indexing.SourceInfo) indexing.Result
}

type ProductLookup interface {
	Get(ctx context.Context, id string) (*product.Product, error)
}

type RunLocker interface {
	TryLock(ctx context.Context, name string) (*redislock.Lock, error)
}

type Service struct {
	jobs       JobTracker
	scraper    ScraperClient
	normalizer Normalizer
	reviews    ReviewStore
	indexer    ReviewIndexer
	products   ProductLookup
	locker     RunLocker
	now        func() time.Time
}

func NewService(jobs JobTracker, sc ScraperClient, n Normalizer, reviews ReviewStore, ix ReviewIndexer, products ProductLookup, locker RunLocker) *Service {
	return &Service{
		jobs:       jobs,
		scraper:    sc,
		normalizer: n,
		reviews:    reviews,
		indexer:    ix,
		products:   products,
		locker:     locker,
		now:        time.Now,
	}
}

// Process handles one parsed, authenticated delivery. A returned error means
// the delivery could not be processed and the job was marked failed where
// possible.
func (s *Service) Process(ctx context.Context, p Payload) (*Outcome, error) {
	runID := p.Resource.ID
	ctx = middleware.WithRunID(ctx, runID)

	switch p.EventType {
	case scraper.EventRunSucceeded:
	case scraper.EventRunFailed, scraper.EventRunAborted, scraper.EventRunTimedOut:
		return s.runFailed(ctx, p), nil
	default:
		slog.InfoContext(ctx, "ignoring webhook event", "event_type", p.EventType)
		return &Outcome{Status: OutcomeIgnored, RunID: runID}, nil
	}

	if runID == "" || p.Resource.DefaultDatasetID == "" {
		return nil, fmt.Errorf("%w: resource.id and resource.defaultDatasetId are required", ErrInvalidPayload)
	}

	lock, err := s.lock(ctx, runID)
	if errors.Is(err, redislock.ErrLocked) {
		slog.InfoContext(ctx, "run already being processed")
		return &Outcome{Status: OutcomeInProgress, RunID: runID}, nil
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			slog.WarnContext(ctx, "failed to release run lock", "error", err)
		}
	}()

	t, job, err := s.resolve(ctx, p.Resource)
	if err != nil {
		return nil, err
	}

	out, err := s.ingest(ctx, p.Resource, t, job)
	if err != nil {
		s.fail(ctx, runID, t.JobID, err)
		return nil, err
	}
	return out, nil
}

func (s *Service) lock(ctx context.Context, runID string) (*redislock.Lock, error) {
	if s.locker == nil {
		return nil, nil
	}
	lock, err := s.locker.TryLock(ctx, runID)
	if err != nil && !errors.Is(err, redislock.ErrLocked) {
		slog.WarnContext(ctx, "run lock unavailable, continuing without it", "error", err)
		return nil, nil
	}
	return lock, err
}

func (s *Service) ingest(ctx context.Context, res Resource, t target, job *scrapejob.Job) (*Outcome, error) {
	runID := res.ID

	// A redelivery finds the job past completed; it goes straight back to indexing.
	if job == nil || job.Status == scrapejob.StatusRunning {
		if err := s.jobs.UpdateStatus(ctx, runID, scrapejob.StatusCompleted, "", nil); err != nil {
			return nil, err
		}
	}

	items, err := s.scraper.GetDatasetItems(ctx, res.DefaultDatasetID)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset %s: %w", res.DefaultDatasetID, err)
	}

	reviews, err := s.normalizer.NormalizeDataset(ctx, t.Source, items, t.ProductID, t.SourceIdentifier)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	slog.InfoContext(ctx, "normalized dataset", "items", len(items), "reviews", len(reviews), "source", t.Source)

	if err := s.reviews.ReplaceScope(ctx, t.SourceIdentifier, t.Source, reviews); err != nil {
		return nil, fmt.Errorf("store reviews: %w", err)
	}

	if err := s.jobs.UpdateStatus(ctx, runID, scrapejob.StatusIndexing, "", nil); err != nil {
		return nil, err
	}

	productName := ""
	if p, err := s.products.Get(ctx, t.ProductID); err == nil {
		productName = p.Name
	} else {
		slog.WarnContext(ctx, "product lookup failed, indexing without name", "product_id", t.ProductID, "error", err)
	}

	result := s.indexer.IndexProductReviews(ctx, reviews, productName, &indexing.SourceInfo{
		Source:           t.Source,
		SourceIdentifier: t.SourceIdentifier,
	})

	out := &Outcome{RunID: runID, ProductID: t.ProductID, Source: t.Source, Reviews: len(reviews), Chunks: result.Chunks}
	now := s.now().UTC()
	if !result.Success {
		out.Status = OutcomeIndexFailed
		out.Error = result.Error
		if err := s.jobs.UpdateStatus(ctx, runID, scrapejob.StatusIndexFailed, result.Error, &now); err != nil {
			return nil, err
		}
		slog.ErrorContext(ctx, "indexing failed", "error", result.Error)
		return out, nil
	}

	out.Status = OutcomeIndexed
	if err := s.jobs.UpdateStatus(ctx, runID, scrapejob.StatusIndexed, "", &now); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "run indexed", "reviews", len(reviews), "chunks", result.Chunks)
	return out, nil
}

// resolve finds the product scope for a run: the job ledger first, then the
// run's INPUT record for runs this system has no row for.
func (s *Service) resolve(ctx context.Context, res Resource) (target, *scrapejob.Job, error) {
	job, err := s.jobs.GetByRunID(ctx, res.ID)
	switch {
	case err == nil:
		return target{
			JobID:            job.ID,
			ProductID:        job.ProductID,
			Source:           job.Source,
			SourceIdentifier: job.SourceIdentifier,
		}, job, nil
	case !errors.Is(err, scrapejob.ErrNotFound):
		return target{}, nil, fmt.Errorf("lookup job: %w", err)
	}

	if res.DefaultKeyValueStoreID == "" {
		return target{}, nil, fmt.Errorf("%w %s: no job row and no key-value store", ErrUnknownRun, res.ID)
	}

	var input scraper.RunInput
	if err := s.scraper.GetRecord(ctx, res.DefaultKeyValueStoreID, scraper.InputRecordKey, &input); err != nil {
		return target{}, nil, fmt.Errorf("%w %s: %v", ErrUnknownRun, res.ID, err)
	}
	cd := input.CustomData
	source, err := review.ParseSource(cd.Source)
	if err != nil || cd.ProductID == "" || cd.SourceIdentifier == "" {
		return target{}, nil, fmt.Errorf("%w %s: incomplete customData", ErrUnknownRun, res.ID)
	}

	slog.WarnContext(ctx, "run resolved from input record", "product_id", cd.ProductID, "source", source)
	return target{ProductID: cd.ProductID, Source: source, SourceIdentifier: cd.SourceIdentifier}, nil, nil
}

func (s *Service) runFailed(ctx context.Context, p Payload) *Outcome {
	msg := fmt.Sprintf("scrape run ended with %s", p.EventType)
	if p.Resource.ID != "" {
		if err := s.jobs.UpdateStatus(ctx, p.Resource.ID, scrapejob.StatusFailed, msg, nil); err != nil {
			slog.WarnContext(ctx, "failed to record failed run", "error", err)
		}
	}
	slog.WarnContext(ctx, "scrape run did not succeed", "event_type", p.EventType)
	return &Outcome{Status: OutcomeRunFailed, RunID: p.Resource.ID, Error: msg}
}

// fail marks the job failed, best effort.
func (s *Service) fail(ctx context.Context, runID, jobID string, cause error) {
	var err error
	if jobID != "" {
		err = s.jobs.FailJob(ctx, jobID, cause.Error())
	} else {
		err = s.jobs.UpdateStatus(ctx, runID, scrapejob.StatusFailed, cause.Error(), nil)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to mark job failed", "error", err, "cause", cause)
	}
}
