// Package chat answers questions about a product from retrieved review and
// resource chunks.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"marketlens/backend/internal/retrieval"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// DefaultTopK is how many chunks are retrieved per question.
const DefaultTopK = 40

var (
	ErrEmptyMessage  = errors.New("last user message is required")
	ErrMissingScope  = errors.New("productId is required")
	ErrInvalidRole   = errors.New("invalid message role")
	ErrNoLLMResponse = errors.New("error generating response")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one chat turn. ProductIDs[0] is the product being discussed;
// any others are competitors whose chunks may also be retrieved.
type Request struct {
	Message      string
	History      []Message
	ProductIDs   []string
	ProductName  string
	HiddenPrompt string
}

type Response struct {
	Text        string                   `json:"text"`
	SourceNodes []retrieval.SearchResult `json:"sourceNodes"`
}

type Retriever interface {
	Search(ctx context.Context, query string, opts retrieval.SearchOptions) ([]retrieval.SearchResult, error)
}

type LLM interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Stream(ctx context.Context, system, prompt string, onDelta func(string) error) (string, error)
}

type Engine struct {
	llm       LLM
	retriever Retriever
	topK      int
}

func NewEngine(llm LLM, r Retriever, topK int) *Engine {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Engine{llm: llm, retriever: r, topK: topK}
}

// SplitMessages validates an ordered message list and separates the prior
// history from the final user message.
func SplitMessages(msgs []Message) ([]Message, string, error) {
	for _, m := range msgs {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			return nil, "", fmt.Errorf("%w: %q", ErrInvalidRole, m.Role)
		}
	}
	if len(msgs) == 0 {
		return nil, "", ErrEmptyMessage
	}
	last := msgs[len(msgs)-1]
	if last.Role != RoleUser || strings.TrimSpace(last.Content) == "" {
		return nil, "", ErrEmptyMessage
	}
	return msgs[:len(msgs)-1], last.Content, nil
}

// Chat retrieves context and returns the whole answer at once.
func (e *Engine) Chat(ctx context.Context, req Request) (*Response, error) {
	nodes, system, prompt, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	text, err := e.llm.Generate(ctx, system, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoLLMResponse, err)
	}
	return &Response{Text: text, SourceNodes: nodes}, nil
}

// StreamChat passes tokens to onDelta as they arrive. The returned response
// holds the assembled text only when the stream ran to completion.
func (e *Engine) StreamChat(ctx context.Context, req Request, onDelta func(string) error) (*Response, error) {
	nodes, system, prompt, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	text, err := e.llm.Stream(ctx, system, prompt, onDelta)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrNoLLMResponse, err)
	}
	return &Response{Text: text, SourceNodes: nodes}, nil
}

func (e *Engine) prepare(ctx context.Context, req Request) ([]retrieval.SearchResult, string, string, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, "", "", ErrEmptyMessage
	}
	if len(req.ProductIDs) == 0 || req.ProductIDs[0] == "" {
		return nil, "", "", ErrMissingScope
	}

	limit := e.topK
	nodes, err := e.retriever.Search(ctx, req.Message, retrieval.SearchOptions{Limit: &limit, ProductIDs: req.ProductIDs})
	if err != nil {
		return nil, "", "", fmt.Errorf("retrieve context: %w", err)
	}

	return nodes, systemPrompt(req.ProductName), BuildPrompt(req, nodes), nil
}

func systemPrompt(productName string) string {
	subject := "the user's product"
	if productName != "" {
		subject = productName
	}
	return "You are a marketing insights assistant for " + subject + ". " +
		"Answer from the customer reviews and marketing resources in the context. " +
		"Cite the source (amazon, trustpilot or resource title) when you quote evidence. " +
		"If the context does not cover the question, say so."
}

// BuildPrompt flattens retrieved context, the prior conversation and the new
// message into one prompt ending in "Assistant:".
func BuildPrompt(req Request, nodes []retrieval.SearchResult) string {
	var sb strings.Builder

	sb.WriteString("Context:\n")
	if len(nodes) == 0 {
		sb.WriteString("(no matching reviews or resources)\n")
	}
	for i, n := range nodes {
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, label(n), strings.TrimSpace(n.Content))
	}

	if len(req.History) > 0 {
		sb.WriteString("\nConversation so far:\n")
		for _, m := range req.History {
			switch m.Role {
			case RoleUser:
				fmt.Fprintf(&sb, "User: %s\n", m.Content)
			case RoleAssistant:
				fmt.Fprintf(&sb, "Assistant: %s\n", m.Content)
			case RoleSystem:
				fmt.Fprintf(&sb, "System: %s\n", m.Content)
			}
		}
	}

	if req.HiddenPrompt != "" {
		fmt.Fprintf(&sb, "\nAdditional instructions: %s\n", req.HiddenPrompt)
	}

	fmt.Fprintf(&sb, "\nUser: %s\nAssistant:", req.Message)
	return sb.String()
}

func label(n retrieval.SearchResult) string {
	var parts []string
	if n.ProductName != "" {
		parts = append(parts, n.ProductName)
	}
	if n.Source != "" {
		parts = append(parts, n.Source)
	}
	if n.Title != "" && n.Source == "" {
		parts = append(parts, n.Title)
	}
	if len(parts) == 0 {
		return "(" + n.Kind + ")"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
