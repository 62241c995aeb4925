package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"emax/internal/application/port"
	"emax/internal/domain/indicator"
	"emax/internal/domain/session"
)

// StrategyRunner drives periodic strategy evaluation over the configured
// symbols, re-reading each symbol's lookback window through the cache-through
// pipeline. Evaluations are skipped outside the regular trading session.
type StrategyRunner struct {
	market       *MarketDataService
	strategy     *EmaCrossover
	symbols      []string
	timespan     string
	lookbackDays int
	every        time.Duration
}

func NewStrategyRunner(market *MarketDataService, strategy *EmaCrossover, symbols []string, timespan string, lookbackDays, everyMin int) *StrategyRunner {
	return &StrategyRunner{
		market:       market,
		strategy:     strategy,
		symbols:      symbols,
		timespan:     timespan,
		lookbackDays: lookbackDays,
		every:        time.Duration(everyMin) * time.Minute,
	}
}

func (r *StrategyRunner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.every)
	defer ticker.Stop()

	log.Info().
		Int("symbols", len(r.symbols)).
		Dur("every", r.every).
		Msg("strategy runner started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if !session.InRegularSession(now) {
				continue
			}
			r.evaluateAll(ctx, now)
		}
	}
}

func (r *StrategyRunner) evaluateAll(ctx context.Context, now time.Time) {
	from := now.AddDate(0, 0, -r.lookbackDays)
	for _, symbol := range r.symbols {
		bars, err := r.market.GetBars(ctx, symbol, r.timespan, from, now)
		if err != nil {
			if errors.Is(err, port.ErrNoData) {
				log.Debug().Str("symbol", symbol).Msg("no bars for evaluation window")
				continue
			}
			log.Error().Err(err).Str("symbol", symbol).Msg("pipeline read failed, skipping evaluation")
			continue
		}

		series := indicator.WithIndicators(bars)
		if err := r.strategy.Evaluate(ctx, symbol, series); err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("strategy evaluation failed")
		}
	}
}
