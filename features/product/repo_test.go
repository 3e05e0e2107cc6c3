package product_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketlens/backend/features/product"
	"marketlens/backend/internal/review"
)

var productCols = []string{"id", "name", "metadata", "last_reviews_scraped_at", "last_indexed_at"}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := product.NewPostgresRepo(db)
	scraped := time.Now().Add(-72 * time.Hour)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM products p WHERE p.id = $1")).
			WithArgs("p1").
			WillReturnRows(sqlmock.NewRows(productCols).
				AddRow("p1", "Blender Pro", []byte(`{"asin":"B000EXAMPLE","trustpilotUrl":"https://www.trustpilot.com/review/acme.com","color":"red"}`), scraped, nil))

		p, err := repo.Get(context.Background(), "p1")
		require.NoError(t, err)
		assert.Equal(t, "Blender Pro", p.Name)
		assert.Equal(t, "B000EXAMPLE", p.Metadata.ASIN)
		assert.NotNil(t, p.LastReviewsScrapedAt)
		assert.Nil(t, p.LastIndexedAt)
		assert.Equal(t, map[review.Source]string{
			review.SourceAmazon:     "B000EXAMPLE",
			review.SourceTrustpilot: "https://www.trustpilot.com/review/acme.com",
		}, p.Sources())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM products p WHERE p.id = $1")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(productCols))

		_, err := repo.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, product.ErrNotFound)
	})
}

func TestPostgresRepo_ListCompetitors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := product.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM product_competitors pc JOIN products p ON p.id = pc.competitor_id WHERE pc.product_id = $1")).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(productCols).
			AddRow("c1", "Rival A", []byte(`{"asin":"B0RIVAL"}`), nil, nil).
			AddRow("c2", "Rival B", []byte(`{}`), nil, nil))

	competitors, err := repo.ListCompetitors(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, competitors, 2)
	assert.Len(t, competitors[1].Sources(), 0)
}

func TestPostgresRepo_ListStale(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := product.NewPostgresRepo(db)
	before := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE p.last_reviews_scraped_at IS NULL OR p.last_reviews_scraped_at < $1")).
		WithArgs(before, 50).
		WillReturnRows(sqlmock.NewRows(productCols).AddRow("p1", "Old", []byte(`{}`), nil, nil))

	products, err := repo.ListStale(context.Background(), before, 50)
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestPostgresRepo_Timestamps(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := product.NewPostgresRepo(db)
	at := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET last_reviews_scraped_at = NOW(), updated_at = NOW() WHERE id = $1")).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET last_indexed_at = $1, updated_at = NOW() WHERE id = $2")).
		WithArgs(at, "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET last_indexed_at = $1")).
		WithArgs(at, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.MarkScrapeStarted(context.Background(), "p1"))
	assert.NoError(t, repo.UpdateLastIndexedAt(context.Background(), "p1", at))
	assert.ErrorIs(t, repo.UpdateLastIndexedAt(context.Background(), "missing", at), product.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProduct_Stale(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	week := 7 * 24 * time.Hour

	threeDays := now.Add(-3 * 24 * time.Hour)
	tenDays := now.Add(-10 * 24 * time.Hour)

	assert.False(t, product.Product{LastReviewsScrapedAt: &threeDays}.Stale(now, week))
	assert.True(t, product.Product{LastReviewsScrapedAt: &tenDays}.Stale(now, week))
	assert.True(t, product.Product{}.Stale(now, week))
}
