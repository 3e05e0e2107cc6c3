package insights_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketlens/backend/features/insights"
	"marketlens/backend/features/product"
	"marketlens/backend/internal/retrieval"
)

type MockProducts struct{ mock.Mock }

func (m *MockProducts) Get(ctx context.Context, id string) (*product.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*product.Product), args.Error(1)
}

type MockStats struct{ mock.Mock }

func (m *MockStats) RatingHistogram(ctx context.Context, productID string) (map[int]int, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]int), args.Error(1)
}

func (m *MockStats) CountByProduct(ctx context.Context, productID string) (int, error) {
	args := m.Called(ctx, productID)
	return args.Int(0), args.Error(1)
}

func (m *MockStats) AverageRating(ctx context.Context, productID string) (float64, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(float64), args.Error(1)
}

type MockRetriever struct{ mock.Mock }

func (m *MockRetriever) Search(ctx context.Context, query string, opts retrieval.SearchOptions) ([]retrieval.SearchResult, error) {
	args := m.Called(ctx, query, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]retrieval.SearchResult), args.Error(1)
}

type MockLLM struct{ mock.Mock }

func (m *MockLLM) GenerateJSON(ctx context.Context, system, prompt string, out interface{}) error {
	return m.Called(ctx, system, prompt, out).Error(0)
}

type fixture struct {
	products  *MockProducts
	stats     *MockStats
	retriever *MockRetriever
	llm       *MockLLM
	svc       *insights.Service
}

func newFixture() *fixture {
	f := &fixture{new(MockProducts), new(MockStats), new(MockRetriever), new(MockLLM), nil}
	f.svc = insights.NewService(f.products, f.stats, f.retriever, f.llm)
	f.products.On("Get", mock.Anything, "p1").Return(&product.Product{ID: "p1", Name: "Acme"}, nil).Maybe()
	return f
}

func TestService_Get(t *testing.T) {
	f := newFixture()
	f.stats.On("RatingHistogram", mock.Anything, "p1").Return(map[int]int{1: 1, 2: 0, 3: 0, 4: 1, 5: 2}, nil)
	f.stats.On("CountByProduct", mock.Anything, "p1").Return(4, nil)
	f.stats.On("AverageRating", mock.Anything, "p1").Return(3.7549, nil)
	f.retriever.On("Search", mock.Anything, mock.Anything, mock.MatchedBy(func(o retrieval.SearchOptions) bool {
		return len(o.ProductIDs) == 1 && o.ProductIDs[0] == "p1" && o.Limit != nil
	})).Return([]retrieval.SearchResult{{Content: "Love it"}}, nil)
	f.llm.On("GenerateJSON", mock.Anything, mock.Anything, mock.MatchedBy(func(p string) bool {
		return p == "[1] Love it\n\n"
	}), mock.Anything).Run(func(args mock.Arguments) {
		s := args.Get(3).(*insights.Summary)
		s.Sentiment = "positive"
		s.Strengths = []string{"build quality"}
	}).Return(nil)

	out, err := f.svc.Get(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, 4, out.TotalReviews)
	assert.Equal(t, 3.75, out.AverageRating)
	assert.Equal(t, map[string]int{"1": 1, "2": 0, "3": 0, "4": 1, "5": 2}, out.RatingDistribution)
	require.NotNil(t, out.Summary)
	assert.Equal(t, "positive", out.Summary.Sentiment)
	assert.Empty(t, out.SummaryError)
}

func TestService_Get_AverageUsesStoredRatings(t *testing.T) {
	f := newFixture()
	f.stats.On("RatingHistogram", mock.Anything, "p1").Return(map[int]int{4: 10}, nil)
	f.stats.On("CountByProduct", mock.Anything, "p1").Return(10, nil)
	f.stats.On("AverageRating", mock.Anything, "p1").Return(4.4, nil)
	f.retriever.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]retrieval.SearchResult{}, nil)

	out, err := f.svc.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 4.4, out.AverageRating)
	assert.Equal(t, 10, out.RatingDistribution["4"])
}

func TestService_Get_NoReviewsSkipsLLM(t *testing.T) {
	f := newFixture()
	f.stats.On("RatingHistogram", mock.Anything, "p1").Return(map[int]int{}, nil)
	f.stats.On("CountByProduct", mock.Anything, "p1").Return(0, nil)
	f.stats.On("AverageRating", mock.Anything, "p1").Return(0.0, nil)

	out, err := f.svc.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Zero(t, out.AverageRating)
	assert.Nil(t, out.Summary)
	f.retriever.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
	f.llm.AssertNotCalled(t, "GenerateJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Get_SummaryFailureIsInline(t *testing.T) {
	f := newFixture()
	f.stats.On("RatingHistogram", mock.Anything, "p1").Return(map[int]int{5: 1}, nil)
	f.stats.On("CountByProduct", mock.Anything, "p1").Return(1, nil)
	f.stats.On("AverageRating", mock.Anything, "p1").Return(5.0, nil)
	f.retriever.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]retrieval.SearchResult{{Content: "ok"}}, nil)
	f.llm.On("GenerateJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("quota"))

	out, err := f.svc.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 5.0, out.AverageRating)
	assert.Nil(t, out.Summary)
	assert.Equal(t, "quota", out.SummaryError)
}

func TestService_Get_UnindexedReviews(t *testing.T) {
	f := newFixture()
	f.stats.On("RatingHistogram", mock.Anything, "p1").Return(map[int]int{3: 2}, nil)
	f.stats.On("CountByProduct", mock.Anything, "p1").Return(2, nil)
	f.stats.On("AverageRating", mock.Anything, "p1").Return(3.0, nil)
	f.retriever.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]retrieval.SearchResult{}, nil)

	out, err := f.svc.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.NotEmpty(t, out.SummaryError)
	f.llm.AssertNotCalled(t, "GenerateJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_Get_NotFound(t *testing.T) {
	f := newFixture()
	f.products.On("Get", mock.Anything, "zz").Return(nil, product.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/products/zz/insights", nil)
	req.SetPathValue("id", "zz")
	w := httptest.NewRecorder()
	insights.NewHandler(f.svc).Get(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Get(t *testing.T) {
	f := newFixture()
	f.stats.On("RatingHistogram", mock.Anything, "p1").Return(map[int]int{}, nil)
	f.stats.On("CountByProduct", mock.Anything, "p1").Return(0, nil)
	f.stats.On("AverageRating", mock.Anything, "p1").Return(0.0, nil)

	req := httptest.NewRequest(http.MethodGet, "/products/p1/insights", nil)
	req.SetPathValue("id", "p1")
	w := httptest.NewRecorder()
	insights.NewHandler(f.svc).Get(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ratingDistribution":{"1":0,"2":0,"3":0,"4":0,"5":0}`)
}
