package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	ragchat "marketlens/backend/internal/chat"
	"marketlens/backend/internal/retrieval"
)

type Repository interface {
	CreateSession(ctx context.Context, productID, title string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	SaveTurn(ctx context.Context, sessionID, question, answer string, sources []retrieval.SearchResult, at time.Time) error
	ListMessages(ctx context.Context, sessionID string) ([]StoredMessage, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) CreateSession(ctx context.Context, productID, title string) (*Session, error) {
	s := &Session{ProductID: productID, Title: title}
	query := `INSERT INTO chat_sessions (product_id, title) VALUES ($1, $2) RETURNING id, created_at`
	if err := r.db.QueryRowContext(ctx, query, productID, title).Scan(&s.ID, &s.CreatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) GetSession(ctx context.Context, id string) (*Session, error) {
	s := &Session{}
	var productID sql.NullString
	var last sql.NullTime
	query := `SELECT id, product_id, title, last_message_at, created_at FROM chat_sessions WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &productID, &s.Title, &last, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	s.ProductID = productID.String
	if last.Valid {
		s.LastMessageAt = &last.Time
	}
	return s, nil
}

// SaveTurn writes the user question and assistant answer together and bumps
// the session's last_message_at.
func (r *PostgresRepo) SaveTurn(ctx context.Context, sessionID, question, answer string, sources []retrieval.SearchResult, at time.Time) error {
	if sources == nil {
		sources = []retrieval.SearchResult{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	insert := `INSERT INTO chat_messages (session_id, role, content, sources, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, insert, sessionID, ragchat.RoleUser, question, []byte("[]"), at); err != nil {
		return fmt.Errorf("insert user message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insert, sessionID, ragchat.RoleAssistant, answer, sourcesJSON, at); err != nil {
		return fmt.Errorf("insert assistant message: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET last_message_at = $1, updated_at = NOW() WHERE id = $2`, at, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return tx.Commit()
}

func (r *PostgresRepo) ListMessages(ctx context.Context, sessionID string) ([]StoredMessage, error) {
	query := `SELECT id, session_id, role, content, sources, created_at
		FROM chat_messages WHERE session_id = $1 ORDER BY created_at ASC, role DESC`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var sources []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &sources, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Sources = sources
		out = append(out, m)
	}
	return out, rows.Err()
}
