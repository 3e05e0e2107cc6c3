package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalid = errors.New("invalid settings")

// DefaultSearchTopK mirrors the search_top_k column default.
const DefaultSearchTopK = 40

// Settings are runtime-tunable values stored in a single row.
type Settings struct {
	ID             int    `json:"-"`
	RerankProvider string `json:"rerank_provider"`
	RerankAPIKey   string `json:"rerank_api_key"`
	GeminiAPIKey   string `json:"gemini_api_key"`
	SearchTopK     int    `json:"search_top_k"`
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	if set.RerankProvider == "" {
		set.RerankProvider = "none"
	}
	switch set.RerankProvider {
	case "none", "jina", "cohere":
	default:
		return fmt.Errorf("%w: unknown rerank provider %q", ErrInvalid, set.RerankProvider)
	}
	if set.SearchTopK <= 0 {
		return fmt.Errorf("%w: search_top_k must be positive", ErrInvalid)
	}

	// Masked keys echoed back from GET keep their stored value.
	if isMasked(set.GeminiAPIKey) || isMasked(set.RerankAPIKey) {
		current, err := s.repo.Get(ctx)
		if err != nil {
			return err
		}
		if isMasked(set.GeminiAPIKey) {
			set.GeminiAPIKey = current.GeminiAPIKey
		}
		if isMasked(set.RerankAPIKey) {
			set.RerankAPIKey = current.RerankAPIKey
		}
	}
	return s.repo.Update(ctx, set)
}

// SeedGeminiKey stores key when no Gemini key has been configured yet.
func (s *Service) SeedGeminiKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	set, err := s.repo.Get(ctx)
	if err != nil {
		return false, err
	}
	if set.GeminiAPIKey != "" {
		return false, nil
	}
	set.GeminiAPIKey = key
	return true, s.repo.Update(ctx, set)
}

func isMasked(key string) bool {
	return strings.HasPrefix(key, maskPrefix)
}
