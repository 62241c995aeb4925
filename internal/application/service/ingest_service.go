package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"emax/internal/application/port"
	"emax/internal/domain/model"
	"emax/internal/infrastructure/metrics"
)

// IngestService consumes a live bar feed and writes each bar through to the
// store and the latest-price cache. The upsert key makes replays after a feed
// reconnect harmless.
type IngestService struct {
	feed    port.BarFeed
	repo    port.BarRepository
	cache   port.LatestPriceCache // nil when no cache is configured
	symbols []string
	metrics *metrics.Metrics
}

func NewIngestService(feed port.BarFeed, repo port.BarRepository, cache port.LatestPriceCache, symbols []string, m *metrics.Metrics) *IngestService {
	return &IngestService{feed: feed, repo: repo, cache: cache, symbols: symbols, metrics: m}
}

func (s *IngestService) Run(ctx context.Context) error {
	ch, err := s.feed.Subscribe(ctx, s.symbols)
	if err != nil {
		return err
	}
	log.Info().Str("feed", s.feed.Name()).Int("symbols", len(s.symbols)).Msg("live ingest started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case bar, ok := <-ch:
			if !ok {
				log.Warn().Str("feed", s.feed.Name()).Msg("feed channel closed")
				return nil
			}
			s.store(ctx, bar)
		}
	}
}

func (s *IngestService) store(ctx context.Context, bar model.Bar) {
	if err := s.repo.UpsertBars(ctx, []model.Bar{bar}); err != nil {
		log.Error().Err(err).Str("symbol", bar.Symbol).Msg("streamed bar upsert failed")
		return
	}
	s.metrics.BarsUpserted(1)

	if s.cache != nil {
		if err := s.cache.SetLatest(ctx, &bar); err != nil {
			log.Warn().Err(err).Str("symbol", bar.Symbol).Msg("latest-price cache update failed")
		}
	}
}
