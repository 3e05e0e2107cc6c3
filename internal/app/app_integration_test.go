package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketlens/backend/features/webhook"
	"marketlens/backend/internal/adapter/scraper"
	"marketlens/backend/internal/app"
	"marketlens/backend/internal/testutils"
)

type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

// scraperAPI serves one finished run: its dataset and its INPUT record.
func scraperAPI(t *testing.T, productID string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /datasets/ds-1/items", func(w http.ResponseWriter, r *http.Request) {
		items := []map[string]interface{}{
			{"reviewId": "R1", "reviewTitle": "Solid", "reviewDescription": "Crushes ice without trouble", "ratingScore": "5.0 out of 5 stars", "date": "Reviewed in the United States on March 5, 2024", "userName": "Sam"},
			{"reviewId": "R2", "reviewTitle": "Loud", "reviewDescription": "Works but wakes the house", "ratingScore": "3.0 out of 5 stars", "date": "Reviewed in the United States on March 9, 2024", "userName": "Jo"},
			{"reviewId": "", "reviewDescription": "dropped: no id"},
		}
		json.NewEncoder(w).Encode(items)
	})
	mux.HandleFunc("GET /key-value-stores/kv-1/records/INPUT", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(scraper.RunInput{CustomData: scraper.CustomData{
			ProductID: productID, Source: "amazon", SourceIdentifier: "B0E2E",
		}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestApp_EndToEnd_WebhookIngestion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E integration test")
	}

	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	cfg := s.GetAppConfig()
	cfg.WebhookSecret = "e2e-secret"

	deps, err := app.Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer deps.Close()

	productID := s.SeedProduct("Acme Blender", "B0E2E", "")
	cfg.ScraperBaseURL = scraperAPI(t, productID).URL

	application, err := app.New(cfg, deps.DB, deps.VectorStore, deps.NSQProducer, s.Logger(), &app.Options{Embedder: constEmbedder{}})
	require.NoError(t, err)

	body := []byte(`{"eventType":"ACTOR.RUN.SUCCEEDED","resource":{"id":"run-e2e","actId":"act","status":"SUCCEEDED","defaultDatasetId":"ds-1","defaultKeyValueStoreId":"kv-1"}}`)
	deliver := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/scraper", bytes.NewReader(body))
		req.Header.Set(webhook.SignatureHeader, webhook.Sign(cfg.WebhookSecret, body))
		w := httptest.NewRecorder()
		application.Handler.ServeHTTP(w, req)
		return w
	}

	w := deliver()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out webhook.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, webhook.OutcomeIndexed, out.Status)
	assert.Equal(t, productID, out.ProductID)
	assert.Equal(t, 2, out.Reviews)
	assert.Equal(t, 1, out.Chunks)

	countReviews := func() int {
		var n int
		require.NoError(t, deps.DB.QueryRow(`SELECT COUNT(*) FROM review_sources WHERE product_id = $1`, productID).Scan(&n))
		return n
	}
	assert.Equal(t, 2, countReviews())

	// Redelivery replaces the scope instead of appending to it.
	w = deliver()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, countReviews())

	chunks, err := deps.VectorStore.CountChunks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, chunks)

	// Stored reviews can be reindexed without another scrape.
	res, err := application.Reindex(context.Background(), productID)
	require.NoError(t, err)
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, 2, res.Count)

	// A tampered body is rejected before anything is touched.
	req := httptest.NewRequest(http.MethodPost, "/webhooks/scraper", bytes.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, webhook.Sign("wrong", body))
	w = httptest.NewRecorder()
	application.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, fmt.Sprintf("body: %s", w.Body.String()))
}
