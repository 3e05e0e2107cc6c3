package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

var ErrEmptyResponse = errors.New("model returned no content")

// ChatModel generates text from a single prompt.
type ChatModel struct {
	keyedClient
	model string
}

func NewChatModel(svc SettingsProvider, fallbackKey, model string, opts ...option.ClientOption) *ChatModel {
	return &ChatModel{
		keyedClient: keyedClient{settings: svc, fallbackKey: fallbackKey, clientOpts: opts},
		model:       model,
	}
}

func (c *ChatModel) generativeModel(ctx context.Context, system string) (*genai.GenerativeModel, error) {
	client, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}
	m := client.GenerativeModel(c.model)
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	return m, nil
}

func (c *ChatModel) Generate(ctx context.Context, system, prompt string) (string, error) {
	m, err := c.generativeModel(ctx, system)
	if err != nil {
		return "", err
	}
	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	text := responseText(resp)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Stream calls onDelta with each text fragment as it arrives and returns the
// assembled text. It stops at the first error from the model or onDelta.
func (c *ChatModel) Stream(ctx context.Context, system, prompt string, onDelta func(string) error) (string, error) {
	m, err := c.generativeModel(ctx, system)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	iter := m.GenerateContentStream(ctx, genai.Text(prompt))
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return sb.String(), err
		}
		delta := responseText(resp)
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return sb.String(), err
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// GenerateJSON asks for an application/json response and decodes it into out.
func (c *ChatModel) GenerateJSON(ctx context.Context, system, prompt string, out interface{}) error {
	m, err := c.generativeModel(ctx, system)
	if err != nil {
		return err
	}
	m.ResponseMIMEType = "application/json"

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return err
	}
	text := responseText(resp)
	if text == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		// First candidate only.
		break
	}
	return sb.String()
}
