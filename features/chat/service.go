package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"marketlens/backend/features/product"
	ragchat "marketlens/backend/internal/chat"
	"marketlens/backend/internal/retrieval"
)

const sessionTitleLen = 60

type Engine interface {
	Chat(ctx context.Context, req ragchat.Request) (*ragchat.Response, error)
	StreamChat(ctx context.Context, req ragchat.Request, onDelta func(string) error) (*ragchat.Response, error)
}

type ProductLookup interface {
	Get(ctx context.Context, id string) (*product.Product, error)
	ListCompetitors(ctx context.Context, id string) ([]product.Product, error)
}

// Request is the decoded body of POST /chat.
type Request struct {
	Messages           []ragchat.Message
	ProductID          string
	SessionID          string
	IncludeCompetitors bool
	HiddenPrompt       string
}

type Result struct {
	SessionID   string                   `json:"sessionId"`
	Text        string                   `json:"text"`
	SourceNodes []retrieval.SearchResult `json:"sourceNodes"`
}

type Service struct {
	engine   Engine
	repo     Repository
	products ProductLookup
	now      func() time.Time
}

func NewService(engine Engine, repo Repository, products ProductLookup) *Service {
	return &Service{engine: engine, repo: repo, products: products, now: time.Now}
}

func (s *Service) Chat(ctx context.Context, req Request) (*Result, error) {
	er, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := s.engine.Chat(ctx, er)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, req, er.Message, resp)
}

// Stream forwards tokens to onDelta and persists the turn only once the
// answer is complete. A cancelled request persists nothing.
func (s *Service) Stream(ctx context.Context, req Request, onDelta func(string) error) (*Result, error) {
	er, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := s.engine.StreamChat(ctx, er, onDelta)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.persist(ctx, req, er.Message, resp)
}

func (s *Service) Messages(ctx context.Context, sessionID string) ([]StoredMessage, error) {
	if _, err := s.repo.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, sessionID)
}

func (s *Service) prepare(ctx context.Context, req Request) (ragchat.Request, error) {
	if req.ProductID == "" {
		return ragchat.Request{}, ragchat.ErrMissingScope
	}
	history, last, err := ragchat.SplitMessages(req.Messages)
	if err != nil {
		return ragchat.Request{}, err
	}

	if req.SessionID != "" {
		if _, err := s.repo.GetSession(ctx, req.SessionID); err != nil {
			return ragchat.Request{}, err
		}
	}

	p, err := s.products.Get(ctx, req.ProductID)
	if err != nil {
		return ragchat.Request{}, err
	}

	ids := []string{p.ID}
	if req.IncludeCompetitors {
		competitors, err := s.products.ListCompetitors(ctx, p.ID)
		if err != nil {
			slog.WarnContext(ctx, "competitor lookup failed, answering for product only", "product_id", p.ID, "error", err)
		}
		for _, c := range competitors {
			ids = append(ids, c.ID)
		}
	}

	return ragchat.Request{
		Message:      last,
		History:      history,
		ProductIDs:   ids,
		ProductName:  p.Name,
		HiddenPrompt: req.HiddenPrompt,
	}, nil
}

func (s *Service) persist(ctx context.Context, req Request, question string, resp *ragchat.Response) (*Result, error) {
	out := &Result{SessionID: req.SessionID, Text: resp.Text, SourceNodes: resp.SourceNodes}
	if out.SourceNodes == nil {
		out.SourceNodes = []retrieval.SearchResult{}
	}

	if out.SessionID == "" {
		sess, err := s.repo.CreateSession(ctx, req.ProductID, title(question))
		if err != nil {
			return nil, err
		}
		out.SessionID = sess.ID
	}

	if err := s.repo.SaveTurn(ctx, out.SessionID, question, resp.Text, resp.SourceNodes, s.now()); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		// the answer exists already, so a lost transcript is only logged
		slog.ErrorContext(ctx, "failed to persist chat turn", "session_id", out.SessionID, "error", err)
	}
	return out, nil
}

func title(question string) string {
	q := strings.Join(strings.Fields(question), " ")
	if r := []rune(q); len(r) > sessionTitleLen {
		return string(r[:sessionTitleLen]) + "..."
	}
	return q
}
