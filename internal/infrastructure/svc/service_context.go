// Package svc builds the runtime object graph. New is the only entry point;
// all dependency initialization happens here, in dependency order, with a
// closer chain unwinding in reverse on shutdown.
package svc

import (
	"context"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"emax/internal/application/port"
	"emax/internal/application/service"
	alpacabroker "emax/internal/infrastructure/broker/alpaca"
	paperbroker "emax/internal/infrastructure/broker/paper"
	"emax/internal/infrastructure/config"
	"emax/internal/infrastructure/metrics"
	"emax/internal/infrastructure/provider/polygon"
	postgresrepo "emax/internal/infrastructure/storage/postgres"
	rediscache "emax/internal/infrastructure/storage/redis"
	sqliterepo "emax/internal/infrastructure/storage/sqlite"
	"emax/internal/interfaces/console"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// infrastructure (first layer)
	repo        port.Repository
	redisClient *redisclient.Client
	redisCache  *rediscache.Cache
	provider    *polygon.Client
	broker      port.Broker
	Metrics     *metrics.Metrics

	// application services (depend on infrastructure)
	MarketData *service.MarketDataService
	Prices     *service.PriceService
	Strategy   *service.EmaCrossover
	Runner     *service.StrategyRunner
	Ingest     *service.IngestService

	closerChain []func() error
}

func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		closerChain: make([]func() error, 0),
	}

	if err := sc.initializeComponents(); err != nil {
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

func (sc *ServiceContext) initializeComponents() error {
	sc.Metrics = metrics.New()

	if err := sc.initStorage(); err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	if sc.Config.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
	}

	sc.provider = polygon.NewClient(
		sc.Config.Provider.BaseURL,
		sc.Config.Provider.APIKey,
		sc.Config.Provider.RequestLimit,
		sc.Config.Provider.TimeoutSecs,
	)
	sc.initBroker()

	sc.MarketData = service.NewMarketDataService(sc.repo, sc.provider, sc.Metrics)

	var cache port.LatestPriceCache
	var pub port.DecisionPublisher = console.NewSink()
	if sc.redisCache != nil {
		cache = sc.redisCache
		pub = sc.redisCache
	}
	sc.Prices = service.NewPriceService(sc.repo, cache)

	if sc.Config.Strategy.Enabled {
		sc.Strategy = service.NewEmaCrossover(
			sc.Config.Strategy.ID,
			sc.Config.Strategy.Capital,
			sc.broker,
			sc.repo,
			pub,
			sc.Metrics,
		)
		sc.Runner = service.NewStrategyRunner(
			sc.MarketData,
			sc.Strategy,
			sc.Config.Symbols.List,
			sc.Config.Strategy.Timeframe,
			sc.Config.Strategy.LookbackDays,
			sc.Config.Strategy.EvalEveryMin,
		)
	}

	if sc.Config.Provider.StreamEnabled {
		feed := polygon.NewWSFeed(sc.Config.Provider.WsURL, sc.Config.Provider.APIKey)
		sc.Ingest = service.NewIngestService(feed, sc.repo, cache, sc.Config.Symbols.List, sc.Metrics)
	}

	log.Info().
		Str("backend", sc.Config.Storage.Backend).
		Bool("redis", sc.Config.Redis.Enabled).
		Bool("strategy", sc.Config.Strategy.Enabled).
		Bool("stream", sc.Config.Provider.StreamEnabled).
		Msg("components initialized")
	return nil
}

func (sc *ServiceContext) initStorage() error {
	switch sc.Config.Storage.Backend {
	case "sqlite":
		repo, err := sqliterepo.New(sc.Config.Storage.Path)
		if err != nil {
			return err
		}
		sc.repo = repo
		log.Info().Str("path", sc.Config.Storage.Path).Msg("sqlite storage ready")
	case "postgres":
		repo, err := postgresrepo.New(sc.Ctx, sc.Config.Storage.DSN)
		if err != nil {
			return err
		}
		sc.repo = repo
		log.Info().Msg("postgres storage ready")
	default:
		return fmt.Errorf("%w: %s", ErrUnknownBackend, sc.Config.Storage.Backend)
	}

	repo := sc.repo
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing storage")
		return repo.Close()
	})
	return nil
}

func (sc *ServiceContext) initRedis() error {
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     sc.Config.Redis.Addr,
		Password: sc.Config.Redis.Password,
		DB:       sc.Config.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	sc.redisClient = rdb
	sc.redisCache = rediscache.New(
		rdb,
		sc.Config.Redis.Prefix,
		time.Duration(sc.Config.Redis.TTLSeconds)*time.Second,
		sc.Config.Redis.DecisionStream,
	)

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().Str("addr", sc.Config.Redis.Addr).Int("db", sc.Config.Redis.DB).Msg("redis ready")
	return nil
}

func (sc *ServiceContext) initBroker() {
	if sc.Config.Broker.Enabled {
		sc.broker = alpacabroker.New(
			sc.Config.Broker.APIKey,
			sc.Config.Broker.APISecret,
			sc.Config.Broker.BaseURL,
		)
		log.Info().Msg("alpaca broker ready")
		return
	}
	sc.broker = paperbroker.New()
	log.Info().Msg("paper broker ready")
}

// Repo exposes the storage backend for the HTTP layer's transaction listing.
func (sc *ServiceContext) Repo() port.Repository { return sc.repo }

// Close releases all resources in reverse initialization order.
func (sc *ServiceContext) Close() error {
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	return nil
}
