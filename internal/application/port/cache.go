package port

import (
	"context"

	"emax/internal/domain/model"
)

// LatestPriceCache is a hot cache in front of the store's ReadLatest path.
// GetLatest returns (nil, nil) on a cache miss.
type LatestPriceCache interface {
	GetLatest(ctx context.Context, symbol string) (*model.Bar, error)
	SetLatest(ctx context.Context, bar *model.Bar) error
}
