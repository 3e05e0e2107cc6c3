package scrapejob

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"marketlens/backend/internal/review"
)

type Repository interface {
	Create(ctx context.Context, job *Job) error
	AttachRun(ctx context.Context, id, actorRunID string) error
	UpdateStatus(ctx context.Context, actorRunID string, status Status, errorMessage string, indexedAt *time.Time) error
	FailByID(ctx context.Context, id, errorMessage string) error
	GetByRunID(ctx context.Context, actorRunID string) (*Job, error)
	Latest(ctx context.Context, source review.Source, sourceIdentifier string) (*Job, error)
	CountByStatus(ctx context.Context, statuses ...Status) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const jobColumns = `id, product_id, source, source_identifier, status, actor_run_id, started_at, completed_at, indexed_at, error_message, created_at, updated_at`

// Create inserts the job. The partial unique index on in-flight jobs per
// (source, source_identifier) turns a concurrent duplicate into ErrConflict.
func (r *PostgresRepo) Create(ctx context.Context, job *Job) error {
	query := `INSERT INTO scraping_jobs (product_id, source, source_identifier, status, actor_run_id, started_at) VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING id, started_at, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		job.ProductID, string(job.Source), job.SourceIdentifier, string(job.Status), nullString(job.ActorRunID),
	).Scan(&job.ID, &job.StartedAt, &job.CreatedAt, &job.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *PostgresRepo) AttachRun(ctx context.Context, id, actorRunID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE scraping_jobs SET actor_run_id = $1, updated_at = NOW() WHERE id = $2`, actorRunID, id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return expectRow(res)
}

// UpdateStatus moves the job identified by actorRunID to status, but only
// from one of the statuses status.AllowedFrom() lists. error_message is kept
// only for failure statuses and cleared otherwise.
func (r *PostgresRepo) UpdateStatus(ctx context.Context, actorRunID string, status Status, errorMessage string, indexedAt *time.Time) error {
	query := `UPDATE scraping_jobs SET
	status = $1,
	error_message = $2,
	completed_at = CASE WHEN $3 THEN COALESCE(completed_at, NOW()) ELSE completed_at END,
	indexed_at = CASE WHEN $4 THEN COALESCE($5, NOW()) ELSE indexed_at END,
	updated_at = NOW()
WHERE actor_run_id = $6 AND status = ANY($7)`

	var at sql.NullTime
	if indexedAt != nil {
		at = sql.NullTime{Time: *indexedAt, Valid: true}
	}

	var msg sql.NullString
	if status.Failed() {
		msg = nullString(errorMessage)
	}

	res, err := r.db.ExecContext(ctx, query,
		string(status), msg, status.setsCompletedAt(), status.setsIndexedAt(), at,
		actorRunID, pq.Array(statusStrings(status.AllowedFrom())),
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n > 0 {
		return nil
	}

	// Nothing matched: either no such run or the job is in a state that
	// cannot move to status.
	if _, err := r.GetByRunID(ctx, actorRunID); err != nil {
		return err
	}
	return ErrInvalidTransition
}

func (r *PostgresRepo) FailByID(ctx context.Context, id, errorMessage string) error {
	query := `UPDATE scraping_jobs SET status = $1, error_message = $2, completed_at = COALESCE(completed_at, NOW()), updated_at = NOW() WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, string(StatusFailed), errorMessage, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (r *PostgresRepo) GetByRunID(ctx context.Context, actorRunID string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scraping_jobs WHERE actor_run_id = $1`
	return scanJob(r.db.QueryRowContext(ctx, query, actorRunID))
}

func (r *PostgresRepo) Latest(ctx context.Context, source review.Source, sourceIdentifier string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scraping_jobs WHERE source = $1 AND source_identifier = $2 ORDER BY created_at DESC LIMIT 1`
	return scanJob(r.db.QueryRowContext(ctx, query, string(source), sourceIdentifier))
}

func (r *PostgresRepo) CountByStatus(ctx context.Context, statuses ...Status) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM scraping_jobs WHERE status = ANY($1)`
	err := r.db.QueryRowContext(ctx, query, pq.Array(statusStrings(statuses))).Scan(&count)
	return count, err
}

func scanJob(row *sql.Row) (*Job, error) {
	j := &Job{}
	var (
		source, status         string
		runID, errMsg          sql.NullString
		completedAt, indexedAt sql.NullTime
	)
	err := row.Scan(&j.ID, &j.ProductID, &source, &j.SourceIdentifier, &status, &runID,
		&j.StartedAt, &completedAt, &indexedAt, &errMsg, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	j.Source = review.Source(source)
	j.Status = Status(status)
	j.ActorRunID = runID.String
	j.ErrorMessage = errMsg.String
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	if indexedAt.Valid {
		t := indexedAt.Time
		j.IndexedAt = &t
	}
	return j, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
