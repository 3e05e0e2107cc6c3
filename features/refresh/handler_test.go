package refresh_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"marketlens/backend/features/product"
	"marketlens/backend/features/refresh"
	"marketlens/backend/internal/review"
)

func refreshRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/products/p1/reviews/refresh", strings.NewReader(body))
	req.SetPathValue("id", "p1")
	return req
}

func TestHandler_Refresh(t *testing.T) {
	r := new(MockRefresher)
	r.On("RefreshAllReviews", mock.Anything, "p1", refresh.Options{
		ForceRefresh:       true,
		IncludeCompetitors: true,
		Sources:            []review.Source{review.SourceAmazon},
	}).Return(&refresh.Result{ProductResult: refresh.ProductResult{ProductID: "p1", Success: true}}, nil).Once()

	w := httptest.NewRecorder()
	refresh.NewHandler(r).Refresh(w, refreshRequest(`{"forceRefresh":true,"includeCompetitors":true,"sources":["amazon"]}`))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"productId":"p1"`)
	r.AssertExpectations(t)
}

func TestHandler_Refresh_EmptyBodyFromCache(t *testing.T) {
	r := new(MockRefresher)
	r.On("RefreshAllReviews", mock.Anything, "p1", refresh.Options{}).
		Return(&refresh.Result{ProductResult: refresh.ProductResult{Success: true, FromCache: true}}, nil).Once()

	w := httptest.NewRecorder()
	refresh.NewHandler(r).Refresh(w, refreshRequest(""))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"fromCache":true`)
}

func TestHandler_Refresh_Errors(t *testing.T) {
	r := new(MockRefresher)
	r.On("RefreshAllReviews", mock.Anything, "p1", mock.Anything).Return(nil, product.ErrNotFound)

	w := httptest.NewRecorder()
	refresh.NewHandler(r).Refresh(w, refreshRequest(`{"sources":["yelp"]}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	refresh.NewHandler(r).Refresh(w, refreshRequest(`{}`))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
