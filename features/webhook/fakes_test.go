package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketlens/backend/features/product"
	"marketlens/backend/features/scrapejob"
	"marketlens/backend/features/webhook"
	"marketlens/backend/internal/adapter/redislock"
	"marketlens/backend/internal/adapter/scraper"
	"marketlens/backend/internal/indexing"
	"marketlens/backend/internal/review"
	"marketlens/backend/internal/vector"
)

// memJobs applies the same transition rules as the Postgres ledger.
type memJobs struct {
	mu      sync.Mutex
	byRun   map[string]*scrapejob.Job
	updates []scrapejob.Status
	failed  []string
}

func newMemJobs(jobs ...scrapejob.Job) *memJobs {
	m := &memJobs{byRun: make(map[string]*scrapejob.Job)}
	for i := range jobs {
		j := jobs[i]
		m.byRun[j.ActorRunID] = &j
	}
	return m
}

func (m *memJobs) GetByRunID(ctx context.Context, runID string) (*scrapejob.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byRun[runID]
	if !ok {
		return nil, scrapejob.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) UpdateStatus(ctx context.Context, runID string, status scrapejob.Status, msg string, at *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, status)
	j, ok := m.byRun[runID]
	if !ok {
		return nil
	}
	for _, from := range status.AllowedFrom() {
		if j.Status == from {
			j.Status = status
			j.ErrorMessage = ""
			if status.Failed() {
				j.ErrorMessage = msg
			}
			return nil
		}
	}
	return scrapejob.ErrInvalidTransition
}

func (m *memJobs) FailJob(ctx context.Context, jobID, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, jobID)
	for _, j := range m.byRun {
		if j.ID == jobID {
			j.Status = scrapejob.StatusFailed
			j.ErrorMessage = msg
		}
	}
	return nil
}

func (m *memJobs) status(runID string) scrapejob.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byRun[runID].Status
}

type fakeScraper struct {
	items      []json.RawMessage
	itemsErr   error
	input      *scraper.RunInput
	itemCalls  int
	recordKeys []string
}

func (f *fakeScraper) GetDatasetItems(ctx context.Context, datasetID string) ([]json.RawMessage, error) {
	f.itemCalls++
	return f.items, f.itemsErr
}

func (f *fakeScraper) GetRecord(ctx context.Context, storeID, key string, out interface{}) error {
	f.recordKeys = append(f.recordKeys, key)
	if f.input == nil {
		return scraper.ErrNotFound
	}
	*(out.(*scraper.RunInput)) = *f.input
	return nil
}

type memReviews struct {
	scopes map[string][]review.Review
}

func (m *memReviews) ReplaceScope(ctx context.Context, productSource string, source review.Source, reviews []review.Review) error {
	m.scopes[string(source)+"|"+productSource] = reviews
	return nil
}

type memVectors struct {
	mu     sync.Mutex
	chunks []vector.Chunk
}

func (m *memVectors) DeleteScope(ctx context.Context, scope vector.Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.Source == scope.Source && c.ProductSource == scope.ProductSource {
			continue
		}
		kept = append(kept, c)
	}
	m.chunks = kept
	return nil
}

func (m *memVectors) InsertChunks(ctx context.Context, chunks []vector.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type fakeProducts struct{}

func (fakeProducts) Get(ctx context.Context, id string) (*product.Product, error) {
	if id != "prod-1" {
		return nil, product.ErrNotFound
	}
	return &product.Product{ID: id, Name: "Acme Blender"}, nil
}

func (fakeProducts) UpdateLastIndexedAt(ctx context.Context, id string, at time.Time) error {
	return nil
}

type lockedRuns struct{}

func (lockedRuns) TryLock(ctx context.Context, name string) (*redislock.Lock, error) {
	return nil, redislock.ErrLocked
}

type harness struct {
	jobs    *memJobs
	scraper *fakeScraper
	reviews *memReviews
	vectors *memVectors
	svc     *webhook.Service
}

func newHarness(t *testing.T, emb indexing.Embedder, jobs ...scrapejob.Job) *harness {
	t.Helper()
	h := &harness{
		jobs:    newMemJobs(jobs...),
		scraper: &fakeScraper{items: amazonItems(t, "R1", "R2")},
		reviews: &memReviews{scopes: make(map[string][]review.Review)},
		vectors: &memVectors{},
	}
	if emb == nil {
		emb = fakeEmbedder{}
	}
	writer := indexing.NewWriter(emb, h.vectors, fakeProducts{}, 2)
	h.svc = webhook.NewService(h.jobs, h.scraper, review.NewNormalizer(), h.reviews,
		indexing.NewReviewsIndexer(writer), fakeProducts{}, nil)
	return h
}

func runningJob() scrapejob.Job {
	return scrapejob.Job{
		ID:               "job-1",
		ProductID:        "prod-1",
		Source:           review.SourceAmazon,
		SourceIdentifier: "B000EXAMPLE",
		Status:           scrapejob.StatusRunning,
		ActorRunID:       "run-1",
	}
}

func succeeded(runID string) webhook.Payload {
	return webhook.Payload{
		EventType: scraper.EventRunSucceeded,
		Resource: webhook.Resource{
			ID:                     runID,
			ActID:                  "actor",
			DefaultDatasetID:       "ds-1",
			DefaultKeyValueStoreID: "kv-1",
		},
	}
}

func amazonItems(t *testing.T, ids ...string) []json.RawMessage {
	t.Helper()
	var out []json.RawMessage
	for _, id := range ids {
		b, err := json.Marshal(map[string]interface{}{
			"reviewId":          id,
			"reviewTitle":       "Solid",
			"reviewDescription": "Blends ice without trouble",
			"ratingScore":       "5.0 out of 5 stars",
			"date":              "Reviewed in the United States on March 5, 2024",
			"userName":          "Sam",
		})
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

var errBoom = errors.New("boom")
