package refresh_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"marketlens/backend/features/product"
	"marketlens/backend/features/refresh"
	"marketlens/backend/features/scrapejob"
	"marketlens/backend/internal/adapter/scraper"
	"marketlens/backend/internal/review"
)

type MockProducts struct {
	mock.Mock
}

func (m *MockProducts) Get(ctx context.Context, id string) (*product.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*product.Product), args.Error(1)
}

func (m *MockProducts) ListCompetitors(ctx context.Context, id string) ([]product.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]product.Product), args.Error(1)
}

func (m *MockProducts) MarkScrapeStarted(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockProducts) ListStale(ctx context.Context, before time.Time, limit int) ([]product.Product, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]product.Product), args.Error(1)
}

type MockJobs struct {
	mock.Mock
}

func (m *MockJobs) CreateJob(ctx context.Context, productID string, source review.Source, sourceIdentifier, actorRunID string) (*scrapejob.Job, error) {
	args := m.Called(ctx, productID, source, sourceIdentifier, actorRunID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scrapejob.Job), args.Error(1)
}

func (m *MockJobs) AttachRun(ctx context.Context, jobID, actorRunID string) error {
	return m.Called(ctx, jobID, actorRunID).Error(0)
}

func (m *MockJobs) FailJob(ctx context.Context, jobID, errorMessage string) error {
	return m.Called(ctx, jobID, errorMessage).Error(0)
}

type MockRuns struct {
	mock.Mock
}

func (m *MockRuns) StartRun(ctx context.Context, actorID string, input interface{}) (*scraper.Run, error) {
	args := m.Called(ctx, actorID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scraper.Run), args.Error(1)
}

type MockRefresher struct {
	mock.Mock
}

func (m *MockRefresher) RefreshAllReviews(ctx context.Context, productID string, opts refresh.Options) (*refresh.Result, error) {
	args := m.Called(ctx, productID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*refresh.Result), args.Error(1)
}

var (
	now    = time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
	actors = scraper.Actors{review.SourceAmazon: "amazon-actor", review.SourceTrustpilot: "tp-actor"}
)

type fixture struct {
	products *MockProducts
	jobs     *MockJobs
	runs     *MockRuns
	svc      *refresh.Service
}

func newFixture() *fixture {
	f := &fixture{products: new(MockProducts), jobs: new(MockJobs), runs: new(MockRuns)}
	f.svc = refresh.NewService(f.products, f.jobs, f.runs, actors, 100, 0).WithClock(func() time.Time { return now })
	return f
}

func scrapedAgo(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func acme(lastScraped *time.Time) *product.Product {
	return &product.Product{
		ID:                   "p1",
		Name:                 "Acme",
		Metadata:             product.Metadata{ASIN: "B000EXAMPLE", TrustpilotURL: "acme.com"},
		LastReviewsScrapedAt: lastScraped,
	}
}

// expectTrigger wires a successful job + run for one source.
func (f *fixture) expectTrigger(productID string, source review.Source, identifier, jobID, runID string) {
	f.jobs.On("CreateJob", mock.Anything, productID, source, identifier, "").Return(&scrapejob.Job{ID: jobID}, nil).Once()
	f.runs.On("StartRun", mock.Anything, actors[source], mock.Anything).Return(&scraper.Run{ID: runID}, nil).Once()
	f.jobs.On("AttachRun", mock.Anything, jobID, runID).Return(nil).Once()
}
