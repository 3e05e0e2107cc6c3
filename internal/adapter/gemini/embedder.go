package gemini

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var ErrEmptyEmbedding = errors.New("empty embedding received")

type Embedder struct {
	keyedClient
	model string
}

func NewEmbedder(svc SettingsProvider, fallbackKey, model string, opts ...option.ClientOption) *Embedder {
	return &Embedder{
		keyedClient: keyedClient{settings: svc, fallbackKey: fallbackKey, clientOpts: opts},
		model:       model,
	}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	client, err := e.resolve(ctx)
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	res, err := client.EmbeddingModel(e.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return res.Embedding.Values, nil
}
