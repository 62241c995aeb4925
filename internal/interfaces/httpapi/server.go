// Package httpapi exposes the pipeline over HTTP: indicator-annotated bar
// ranges, latest prices, the transaction log, and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"emax/internal/application/port"
	"emax/internal/application/service"
	"emax/internal/domain/model"
)

// validTimeframes are the accepted minute multipliers for range queries.
var validTimeframes = map[string]bool{
	"1": true, "5": true, "10": true, "15": true, "30": true,
}

type Server struct {
	market *service.MarketDataService
	prices *service.PriceService
	txs    port.TransactionRepository
	mux    *http.ServeMux
}

func NewServer(market *service.MarketDataService, prices *service.PriceService, txs port.TransactionRepository) *Server {
	s := &Server{market: market, prices: prices, txs: txs, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /market-data/{symbol}", s.handleMarketData)
	s.mux.HandleFunc("GET /latest-price/{symbol}", s.handleLatestPrice)
	s.mux.HandleFunc("GET /transactions", s.handleTransactions)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Run serves until ctx is cancelled, then shuts down with a grace period.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMarketData serves GET /market-data/{symbol}?timeframe=10&days=30.
// The response carries the bar range annotated with the EMA series.
func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))

	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = "10"
	}
	if !validTimeframes[timeframe] {
		writeError(w, http.StatusBadRequest, "timeframe must be one of 1, 5, 10, 15, 30")
		return
	}

	days := 30
	if d := r.URL.Query().Get("days"); d != "" {
		v, err := strconv.Atoi(d)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = v
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)

	series, err := s.market.GetIndicatorSeries(r.Context(), symbol, timeframe, from, to)
	if err != nil {
		s.writeDomainError(w, symbol, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":    symbol,
		"timeframe": timeframe,
		"data":      series,
	})
}

func (s *Server) handleLatestPrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))

	bar, err := s.prices.LatestPrice(r.Context(), symbol)
	if err != nil {
		s.writeDomainError(w, symbol, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":    bar.Symbol,
		"price":     bar.Close,
		"timestamp": bar.Timestamp,
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol query parameter is required")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}

	txs, err := s.txs.ListTransactions(r.Context(), symbol, limit)
	if err != nil {
		s.writeDomainError(w, symbol, err)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":       symbol,
		"transactions": txs,
	})
}

func (s *Server) writeDomainError(w http.ResponseWriter, symbol string, err error) {
	switch {
	case errors.Is(err, port.ErrNoData):
		writeError(w, http.StatusNotFound, "no data found for symbol "+symbol)
	case errors.Is(err, port.ErrUpstreamTimeout), errors.Is(err, port.ErrUpstream):
		log.Error().Err(err).Str("symbol", symbol).Msg("upstream fetch failed")
		writeError(w, http.StatusBadGateway, "upstream data provider unavailable")
	default:
		log.Error().Err(err).Str("symbol", symbol).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
