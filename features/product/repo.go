package product

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Repository interface {
	Get(ctx context.Context, id string) (*Product, error)
	ListCompetitors(ctx context.Context, id string) ([]Product, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]Product, error)
	MarkScrapeStarted(ctx context.Context, id string) error
	UpdateLastIndexedAt(ctx context.Context, id string, at time.Time) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const productColumns = `p.id, p.name, p.metadata, p.last_reviews_scraped_at, p.last_indexed_at`

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products p WHERE p.id = $1`
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, ErrNotFound
	}
	return &products[0], nil
}

func (r *PostgresRepo) ListCompetitors(ctx context.Context, id string) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM product_competitors pc JOIN products p ON p.id = pc.competitor_id WHERE pc.product_id = $1 ORDER BY p.name`
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	return scanProducts(rows)
}

// ListStale returns products whose reviews were never scraped or were last
// scraped before the given time, oldest first.
func (r *PostgresRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products p WHERE p.last_reviews_scraped_at IS NULL OR p.last_reviews_scraped_at < $1 ORDER BY p.last_reviews_scraped_at ASC NULLS FIRST LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, err
	}
	return scanProducts(rows)
}

func (r *PostgresRepo) MarkScrapeStarted(ctx context.Context, id string) error {
	query := `UPDATE products SET last_reviews_scraped_at = NOW(), updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, query, id)
}

func (r *PostgresRepo) UpdateLastIndexedAt(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE products SET last_indexed_at = $1, updated_at = NOW() WHERE id = $2`
	return r.exec(ctx, query, at, id)
}

func (r *PostgresRepo) exec(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProducts(rows *sql.Rows) ([]Product, error) {
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var (
			p                    Product
			meta                 []byte
			scrapedAt, indexedAt sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.Name, &meta, &scrapedAt, &indexedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &p.Metadata); err != nil {
				return nil, fmt.Errorf("product %s metadata: %w", p.ID, err)
			}
		}
		if scrapedAt.Valid {
			t := scrapedAt.Time
			p.LastReviewsScrapedAt = &t
		}
		if indexedAt.Valid {
			t := indexedAt.Time
			p.LastIndexedAt = &t
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return products, nil
}
