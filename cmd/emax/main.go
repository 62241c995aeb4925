package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata" // session math needs Eastern DST rules even without host tzdata

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"emax/internal/infrastructure/config"
	"emax/internal/infrastructure/logger"
	"emax/internal/infrastructure/svc"
	"emax/internal/interfaces/httpapi"
)

func main() {
	logger.Setup()

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service initialization failed")
	}
	defer sc.Close()

	server := httpapi.NewServer(sc.MarketData, sc.Prices, sc.Repo())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := server.Run(gctx, cfg.App.HTTPAddr)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	if sc.Runner != nil {
		g.Go(func() error { return sc.Runner.Run(gctx) })
	}
	if sc.Ingest != nil {
		g.Go(func() error { return sc.Ingest.Run(gctx) })
	}

	log.Info().
		Str("config", *configPath).
		Int("symbols", len(cfg.Symbols.List)).
		Str("http", cfg.App.HTTPAddr).
		Msg("emax started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("service exited")
	}
}
