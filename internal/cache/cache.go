package cache

import (
	"context"
	"time"

	"github.com/Adriankf59/cafe-merput/internal/domain"
)

type SuggestionCache interface {
	Get(ctx context.Context, key string) (*domain.ReplenishmentResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.ReplenishmentResponse, ttl time.Duration) error
}

type NoopSuggestionCache struct{}

func (NoopSuggestionCache) Get(_ context.Context, _ string) (*domain.ReplenishmentResponse, bool, error) {
	return nil, false, nil
}

func (NoopSuggestionCache) Set(_ context.Context, _ string, _ *domain.ReplenishmentResponse, _ time.Duration) error {
	return nil
}
