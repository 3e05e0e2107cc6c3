package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"marketlens/backend/features/product"
	"marketlens/backend/features/scrapejob"
	"marketlens/backend/internal/adapter/scraper"
	"marketlens/backend/internal/review"
)

type ProductStore interface {
	Get(ctx context.Context, id string) (*product.Product, error)
	ListCompetitors(ctx context.Context, id string) ([]product.Product, error)
	MarkScrapeStarted(ctx context.Context, id string) error
}

type JobTracker interface {
	CreateJob(ctx context.Context, productID string, source review.Source, sourceIdentifier, actorRunID string) (*scrapejob.Job, error)
	AttachRun(ctx context.Context, jobID, actorRunID string) error
	FailJob(ctx context.Context, jobID, errorMessage string) error
}

type RunStarter interface {
	StartRun(ctx context.Context, actorID string, input interface{}) (*scraper.Run, error)
}

type Service struct {
	products   ProductStore
	jobs       JobTracker
	runs       RunStarter
	actors     scraper.Actors
	maxReviews int
	maxAge     time.Duration
	now        func() time.Time
}

func NewService(products ProductStore, jobs JobTracker, runs RunStarter, actors scraper.Actors, maxReviews int, maxAge time.Duration) *Service {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Service{
		products:   products,
		jobs:       jobs,
		runs:       runs,
		actors:     actors,
		maxReviews: maxReviews,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// WithClock overrides the staleness clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RefreshAllReviews starts scrapes for productID's stale sources and, when
// asked, for each competitor. It returns once the runs are accepted.
func (s *Service) RefreshAllReviews(ctx context.Context, productID string, opts Options) (*Result, error) {
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	res := &Result{ProductResult: s.refreshProduct(ctx, p, opts)}
	if !opts.IncludeCompetitors {
		return res, nil
	}

	competitors, err := s.products.ListCompetitors(ctx, p.ID)
	if err != nil {
		slog.ErrorContext(ctx, "competitor lookup failed", "product_id", p.ID, "error", err)
		return res, nil
	}
	for i := range competitors {
		cr := s.refreshProduct(ctx, &competitors[i], opts)
		if !cr.Success {
			slog.WarnContext(ctx, "competitor refresh failed", "product_id", p.ID, "competitor_id", cr.ProductID, "error", cr.Error)
		}
		res.Competitors = append(res.Competitors, cr)
	}
	return res, nil
}

func (s *Service) refreshProduct(ctx context.Context, p *product.Product, opts Options) ProductResult {
	out := ProductResult{ProductID: p.ID, ProductName: p.Name, Sources: []SourceResult{}}

	if !opts.ForceRefresh && !p.Stale(s.now(), s.maxAge) {
		out.Success = true
		out.FromCache = true
		return out
	}

	sources := selectSources(p.Sources(), opts.Sources)
	if len(sources) == 0 {
		out.Error = ErrNoSources.Error()
		return out
	}

	out.Success = true
	started := false
	for _, src := range sources {
		sr := s.trigger(ctx, p.ID, src.source, src.identifier)
		if sr.Error != "" {
			out.Success = false
		}
		started = started || sr.Triggered
		out.Sources = append(out.Sources, sr)
	}

	if started {
		if err := s.products.MarkScrapeStarted(ctx, p.ID); err != nil {
			slog.WarnContext(ctx, "failed to stamp scrape start", "product_id", p.ID, "error", err)
		}
	}
	return out
}

// trigger records the job before starting the run so the webhook can always
// find it; a run that fails to start or to attach leaves the job failed.
func (s *Service) trigger(ctx context.Context, productID string, source review.Source, identifier string) SourceResult {
	sr := SourceResult{Source: source, SourceIdentifier: identifier}

	actor, input, err := scraper.BuildInput(s.actors, source, identifier, productID, s.maxReviews)
	if err != nil {
		sr.Error = err.Error()
		return sr
	}

	job, err := s.jobs.CreateJob(ctx, productID, source, identifier, "")
	if errors.Is(err, scrapejob.ErrConflict) {
		sr.InProgress = true
		return sr
	}
	if err != nil {
		sr.Error = fmt.Sprintf("create job: %v", err)
		return sr
	}
	sr.JobID = job.ID

	run, err := s.runs.StartRun(ctx, actor, input)
	if err != nil {
		sr.Error = fmt.Sprintf("start run: %v", err)
		if ferr := s.jobs.FailJob(ctx, job.ID, sr.Error); ferr != nil {
			slog.ErrorContext(ctx, "failed to mark job failed", "job_id", job.ID, "error", ferr)
		}
		return sr
	}

	// A job without its run id can never be correlated or leave running.
	if err := s.jobs.AttachRun(ctx, job.ID, run.ID); err != nil {
		sr.RunID = run.ID
		sr.Error = fmt.Sprintf("attach run: %v", err)
		if ferr := s.jobs.FailJob(ctx, job.ID, sr.Error); ferr != nil {
			slog.ErrorContext(ctx, "failed to mark job failed", "job_id", job.ID, "error", ferr)
		}
		return sr
	}

	sr.RunID = run.ID
	sr.Triggered = true
	slog.InfoContext(ctx, "scrape started", "product_id", productID, "source", source, "actor_run_id", run.ID)
	return sr
}

type sourceTarget struct {
	source     review.Source
	identifier string
}

// selectSources returns configured sources in a stable order, limited to
// wanted when it is non-empty.
func selectSources(configured map[review.Source]string, wanted []review.Source) []sourceTarget {
	allow := make(map[review.Source]bool, len(wanted))
	for _, w := range wanted {
		allow[w] = true
	}

	var out []sourceTarget
	for src, id := range configured {
		if len(allow) > 0 && !allow[src] {
			continue
		}
		out = append(out, sourceTarget{source: src, identifier: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].source > out[j].source })
	return out
}
