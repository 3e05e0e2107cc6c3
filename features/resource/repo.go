package resource

import (
	"context"
	"database/sql"
	"errors"
)

type Repository interface {
	Save(ctx context.Context, r *Resource) error
	Get(ctx context.Context, id string) (*Resource, error)
	ListByProduct(ctx context.Context, productID string) ([]Resource, error)
	UpdateStatus(ctx context.Context, id, status string, chunks int, errMsg string) error
	SoftDelete(ctx context.Context, id string) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (p *PostgresRepo) Save(ctx context.Context, r *Resource) error {
	query := `INSERT INTO resources (product_id, title, content_type, content, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	return p.db.QueryRowContext(ctx, query, r.ProductID, r.Title, r.ContentType, r.Content, r.Status).
		Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
}

func (p *PostgresRepo) Get(ctx context.Context, id string) (*Resource, error) {
	query := `SELECT id, product_id, title, content_type, content, status, chunk_count, COALESCE(error, ''), created_at, updated_at
		FROM resources WHERE id = $1 AND deleted_at IS NULL`
	r := &Resource{}
	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &r.ProductID, &r.Title, &r.ContentType, &r.Content, &r.Status, &r.ChunkCount, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListByProduct omits content.
func (p *PostgresRepo) ListByProduct(ctx context.Context, productID string) ([]Resource, error) {
	query := `SELECT id, product_id, title, content_type, status, chunk_count, COALESCE(error, ''), created_at, updated_at
		FROM resources WHERE product_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`
	rows, err := p.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Resource
	for rows.Next() {
		var r Resource
		if err := rows.Scan(&r.ID, &r.ProductID, &r.Title, &r.ContentType, &r.Status, &r.ChunkCount, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresRepo) UpdateStatus(ctx context.Context, id, status string, chunks int, errMsg string) error {
	query := `UPDATE resources SET status = $1, chunk_count = $2, error = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $4 AND deleted_at IS NULL`
	return p.expectRow(p.db.ExecContext(ctx, query, status, chunks, errMsg, id))
}

func (p *PostgresRepo) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE resources SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	return p.expectRow(p.db.ExecContext(ctx, query, id))
}

func (p *PostgresRepo) expectRow(res sql.Result, err error) error {
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
