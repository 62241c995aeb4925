package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"emax/internal/application/port"
	"emax/internal/domain/model"
)

// PriceService answers latest-price lookups, reading through an optional hot
// cache in front of the store.
type PriceService struct {
	repo  port.BarRepository
	cache port.LatestPriceCache // nil when no cache is configured
}

func NewPriceService(repo port.BarRepository, cache port.LatestPriceCache) *PriceService {
	return &PriceService{repo: repo, cache: cache}
}

// LatestPrice returns the most recent bar for symbol, or ErrNoData when the
// symbol has never been ingested. Cache failures degrade to a store read.
func (s *PriceService) LatestPrice(ctx context.Context, symbol string) (*model.Bar, error) {
	if s.cache != nil {
		bar, err := s.cache.GetLatest(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("latest-price cache read failed")
		} else if bar != nil {
			return bar, nil
		}
	}

	bar, err := s.repo.ReadLatest(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if bar == nil {
		return nil, port.ErrNoData
	}

	if s.cache != nil {
		if err := s.cache.SetLatest(ctx, bar); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("latest-price cache backfill failed")
		}
	}
	return bar, nil
}
