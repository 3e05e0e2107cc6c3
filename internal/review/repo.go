package review

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// StoredItem is a persisted review row, decoded back into its source-tagged
// raw form so it can be re-normalized.
type StoredItem struct {
	ProductSource string
	Item          RawItem
}

type Repository interface {
	ReplaceScope(ctx context.Context, productSource string, source Source, reviews []Review) error
	ListByProduct(ctx context.Context, productID string) ([]StoredItem, error)
	RatingHistogram(ctx context.Context, productID string) (map[int]int, error)
	AverageRating(ctx context.Context, productID string) (float64, error)
	CountByProduct(ctx context.Context, productID string) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const upsertReview = `INSERT INTO review_sources (product_id, product_source, source, source_id, review_text, review_title, rating, review_date, reviewer_name, verified, source_data)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (source, source_id) DO UPDATE SET
	product_id = EXCLUDED.product_id,
	product_source = EXCLUDED.product_source,
	review_text = EXCLUDED.review_text,
	review_title = EXCLUDED.review_title,
	rating = EXCLUDED.rating,
	review_date = EXCLUDED.review_date,
	reviewer_name = EXCLUDED.reviewer_name,
	verified = EXCLUDED.verified,
	source_data = EXCLUDED.source_data`

// ReplaceScope swaps every row of (productSource, source) for reviews inside
// one transaction.
func (r *PostgresRepo) ReplaceScope(ctx context.Context, productSource string, source Source, reviews []Review) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM review_sources WHERE product_source = $1 AND source = $2`, productSource, string(source)); err != nil {
		return fmt.Errorf("delete review scope: %w", err)
	}

	if len(reviews) > 0 {
		stmt, err := tx.PrepareContext(ctx, upsertReview)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, rv := range reviews {
			var title sql.NullString
			if rv.Title != "" {
				title = sql.NullString{String: rv.Title, Valid: true}
			}
			var reviewer sql.NullString
			if rv.ReviewerName != "" {
				reviewer = sql.NullString{String: rv.ReviewerName, Valid: true}
			}
			var rating sql.NullFloat64
			if rv.Rating != nil {
				rating = sql.NullFloat64{Float64: *rv.Rating, Valid: true}
			}
			var verified sql.NullBool
			if rv.Verified != nil {
				verified = sql.NullBool{Bool: *rv.Verified, Valid: true}
			}
			data := "{}"
			if len(rv.SourceData) > 0 {
				data = string(rv.SourceData)
			}

			if _, err := stmt.ExecContext(ctx,
				rv.ProductID, productSource, string(source), rv.ID,
				rv.Text, title, rating, rv.DateString(), reviewer, verified, data,
			); err != nil {
				return fmt.Errorf("insert review %s: %w", rv.ID, err)
			}
		}
	}

	return tx.Commit()
}

func (r *PostgresRepo) ListByProduct(ctx context.Context, productID string) ([]StoredItem, error) {
	query := `SELECT product_source, source, source_id, review_text, review_title, rating, review_date, reviewer_name, verified, source_data
FROM review_sources WHERE product_id = $1 ORDER BY product_source, source, created_at, id`
	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []StoredItem
	for rows.Next() {
		var (
			productSource, source, sourceID, text string
			title, reviewer                       sql.NullString
			rating                                sql.NullFloat64
			date                                  sql.NullTime
			verified                              sql.NullBool
			data                                  []byte
		)
		if err := rows.Scan(&productSource, &source, &sourceID, &text, &title, &rating, &date, &reviewer, &verified, &data); err != nil {
			return nil, err
		}

		cols := &Columns{Text: text, Title: title.String, ReviewerName: reviewer.String}
		if rating.Valid {
			v := rating.Float64
			cols.Rating = &v
		}
		if date.Valid {
			cols.Date = date.Time.Format(DateLayout)
		}
		if verified.Valid {
			v := verified.Bool
			cols.Verified = &v
		}

		item, err := storedItem(Source(source), sourceID, data, cols)
		if err != nil {
			return nil, err
		}
		items = append(items, StoredItem{ProductSource: productSource, Item: item})
	}
	return items, rows.Err()
}

func storedItem(source Source, sourceID string, data []byte, cols *Columns) (RawItem, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	item, err := DecodeItem(source, json.RawMessage(data))
	if err != nil {
		return nil, err
	}
	switch it := item.(type) {
	case AmazonItem:
		it.ReviewID = sourceID
		it.Stored = cols
		return it, nil
	case TrustpilotItem:
		it.ReviewID = sourceID
		it.Stored = cols
		return it, nil
	}
	return item, nil
}

func (r *PostgresRepo) RatingHistogram(ctx context.Context, productID string) (map[int]int, error) {
	query := `SELECT LEAST(GREATEST(ROUND(rating)::int, 1), 5) AS bucket, COUNT(*)
FROM review_sources WHERE product_id = $1 AND rating IS NOT NULL GROUP BY bucket ORDER BY bucket`
	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hist := map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
	for rows.Next() {
		var bucket, count int
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, err
		}
		hist[bucket] = count
	}
	return hist, rows.Err()
}

// AverageRating is the mean of the stored ratings of productID; 0 when none
// of its reviews is rated.
func (r *PostgresRepo) AverageRating(ctx context.Context, productID string) (float64, error) {
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `SELECT AVG(rating) FROM review_sources WHERE product_id = $1 AND rating IS NOT NULL`, productID).Scan(&avg)
	if err != nil {
		return 0, err
	}
	return avg.Float64, nil
}

func (r *PostgresRepo) CountByProduct(ctx context.Context, productID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM review_sources WHERE product_id = $1`, productID).Scan(&count)
	return count, err
}
