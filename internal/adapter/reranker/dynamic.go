package reranker

import (
	"context"
	"fmt"
	"sync"

	"marketlens/backend/internal/settings"
)

type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// DynamicClient picks the provider and key from settings on every call and
// caches the underlying client until either changes.
type DynamicClient struct {
	settings    SettingsProvider
	fallbackKey string

	mu              sync.Mutex
	client          *Client
	currentProvider string
	currentKey      string
}

func NewDynamicClient(svc SettingsProvider, fallbackKey string) *DynamicClient {
	return &DynamicClient{settings: svc, fallbackKey: fallbackKey}
}

func (d *DynamicClient) Rerank(ctx context.Context, query string, docs []string) ([]int, error) {
	s, err := d.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if s == nil || s.RerankProvider == "" || s.RerankProvider == ProviderNone {
		return identity(len(docs)), nil
	}

	key := s.RerankAPIKey
	if key == "" {
		key = d.fallbackKey
	}
	return d.getClient(s.RerankProvider, key).Rerank(ctx, query, docs)
}

func (d *DynamicClient) getClient(provider, key string) *Client {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil && d.currentProvider == provider && d.currentKey == key {
		return d.client
	}
	d.client = NewClient(provider, key)
	d.currentProvider = provider
	d.currentKey = key
	return d.client
}
