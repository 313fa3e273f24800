package replenish

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Adriankf59/cafe-merput/internal/cache"
	"github.com/Adriankf59/cafe-merput/internal/domain"
)

// Engine turns the low-stock listing into procurement suggestions. A
// material already covered by an open order gets no suggestion, so the
// pengadaan screen never double-orders.
type Engine struct {
	cache    cache.SuggestionCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.SuggestionCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopSuggestionCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

func (e *Engine) Suggest(
	ctx context.Context,
	lowStock []domain.Material,
	openOrders []domain.ProcurementOrder,
) domain.ReplenishmentResponse {
	cacheKey := buildCacheKey(lowStock, openOrders)
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		return *cached
	}

	covered := make(map[string]struct{}, len(openOrders))
	for _, order := range openOrders {
		if order.Status == domain.ProcurementStatusReceived {
			continue
		}
		covered[order.MaterialID] = struct{}{}
	}

	suggestions := make([]domain.ReplenishmentSuggestion, 0, len(lowStock))
	for _, m := range lowStock {
		if _, exists := covered[m.ID]; exists {
			continue
		}
		suggestions = append(suggestions, domain.ReplenishmentSuggestion{
			MaterialID:   m.ID,
			MaterialName: m.Name,
			Unit:         m.Unit,
			Stock:        m.Stock,
			MinStock:     m.MinStock,
			SuggestedQty: suggestedQty(m.Stock, m.MinStock),
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		return suggestions[i].MaterialName < suggestions[j].MaterialName
	})

	resp := domain.ReplenishmentResponse{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Suggestions: suggestions,
	}

	_ = e.cache.Set(ctx, cacheKey, &resp, e.cacheTTL)
	return resp
}

// suggestedQty tops the material up to twice its minimum, enough headroom
// that a normal sales day does not drop it straight back under the line.
func suggestedQty(stock float64, minStock float64) float64 {
	qty := math.Ceil(2*minStock - stock)
	if qty < 1 {
		qty = 1
	}
	return qty
}

func buildCacheKey(lowStock []domain.Material, openOrders []domain.ProcurementOrder) string {
	parts := make([]string, 0, len(lowStock)+len(openOrders))
	for _, m := range lowStock {
		parts = append(parts, fmt.Sprintf("%s:%.2f:%.2f", m.ID, m.Stock, m.MinStock))
	}
	for _, order := range openOrders {
		parts = append(parts, fmt.Sprintf("o:%s:%s", order.MaterialID, order.Status))
	}
	sort.Strings(parts)

	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return "cafe:replenishment:" + hex.EncodeToString(hash[:])
}
