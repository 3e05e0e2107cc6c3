package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"marketlens/backend/internal/settings"
)

var ErrNoAPIKey = errors.New("gemini api key not configured")

// SettingsProvider supplies the runtime API key. The settings key wins over
// the fallback key from config.
type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// keyedClient holds one genai client and rebuilds it when the API key
// changes in settings.
type keyedClient struct {
	settings    SettingsProvider
	fallbackKey string
	clientOpts  []option.ClientOption

	mu         sync.RWMutex
	client     *genai.Client
	currentKey string
}

func (k *keyedClient) resolve(ctx context.Context) (*genai.Client, error) {
	key := k.fallbackKey
	if k.settings != nil {
		s, err := k.settings.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get settings: %w", err)
		}
		if s != nil && s.GeminiAPIKey != "" {
			key = s.GeminiAPIKey
		}
	}
	if key == "" {
		return nil, ErrNoAPIKey
	}
	return k.getClient(ctx, key)
}

func (k *keyedClient) getClient(ctx context.Context, key string) (*genai.Client, error) {
	k.mu.RLock()
	if k.client != nil && k.currentKey == key {
		defer k.mu.RUnlock()
		return k.client, nil
	}
	k.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.client != nil && k.currentKey == key {
		return k.client, nil
	}

	if k.client != nil {
		if err := k.client.Close(); err != nil {
			slog.Warn("failed to close previous genai client", "error", err)
		}
	}

	opts := append(append([]option.ClientOption{}, k.clientOpts...), option.WithAPIKey(key))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	k.client = client
	k.currentKey = key
	return client, nil
}

// Close releases the current client, if any.
func (k *keyedClient) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.client == nil {
		return nil
	}
	err := k.client.Close()
	k.client = nil
	k.currentKey = ""
	return err
}
