package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	ProviderNone   = "none"
	ProviderJina   = "jina"
	ProviderCohere = "cohere"

	jinaURL   = "https://api.jina.ai/v1/rerank"
	cohereURL = "https://api.cohere.ai/v1/rerank"
)

// Client reranks documents against a query with one provider.
type Client struct {
	apiKey   string
	provider string
	client   *http.Client
	baseURL  string
}

func NewClient(provider, apiKey string) *Client {
	return &Client{
		provider: provider,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// Rerank returns document indices ordered by relevance. Unknown providers
// return the input order.
func (c *Client) Rerank(ctx context.Context, query string, docs []string) ([]int, error) {
	switch c.provider {
	case ProviderJina:
		return c.post(ctx, jinaURL, map[string]interface{}{
			"model":     "jina-reranker-v2-base-multilingual",
			"query":     query,
			"documents": docs,
		}, len(docs))
	case ProviderCohere:
		return c.post(ctx, cohereURL, map[string]interface{}{
			"model":            "rerank-english-v3.0",
			"query":            query,
			"documents":        docs,
			"top_n":            len(docs),
			"return_documents": false,
		}, len(docs))
	}
	return identity(len(docs)), nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]interface{}, n int) ([]int, error) {
	if c.baseURL != "" {
		url = c.baseURL
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s api error: %d %s", c.provider, resp.StatusCode, bytes.TrimSpace(detail))
	}

	var result struct {
		Results []struct {
			Index int     `json:"index"`
			Score float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	indices := make([]int, 0, n)
	for _, r := range result.Results {
		if r.Index >= 0 && r.Index < n {
			indices = append(indices, r.Index)
		}
	}
	return indices, nil
}

func identity(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}
