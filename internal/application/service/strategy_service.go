package service

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"emax/internal/application/port"
	"emax/internal/domain/model"
	"emax/internal/infrastructure/metrics"
)

// EmaCrossover is a long-only strategy engine over an indicator-annotated
// series. Per symbol it is a two-state machine: flat (no position) and long.
//
//	flat -> long  when ema10 > ema20 on the latest bar; buys
//	              floor(0.95*capital/close) shares. A zero quantity is a
//	              silent no-op, not an error.
//	long -> flat  when close < entry*0.98 (stop-loss) or
//	              close < ema20*0.98 (trend exit); sells the full position.
//
// Only the latest bar of the supplied series is inspected; the engine is
// memoryless across calls except for its own position state. Evaluations for
// one symbol are serialized by a per-symbol lock so concurrent workers cannot
// race on the position.
type EmaCrossover struct {
	id      string
	capital float64
	broker  port.Broker
	txlog   port.TransactionRepository
	pub     port.DecisionPublisher // nil when no publisher is configured
	metrics *metrics.Metrics

	mu     sync.Mutex
	states map[string]*symbolState
}

type symbolState struct {
	mu  sync.Mutex
	pos model.Position
}

func NewEmaCrossover(id string, capital float64, broker port.Broker, txlog port.TransactionRepository, pub port.DecisionPublisher, m *metrics.Metrics) *EmaCrossover {
	return &EmaCrossover{
		id:      id,
		capital: capital,
		broker:  broker,
		txlog:   txlog,
		pub:     pub,
		metrics: m,
		states:  make(map[string]*symbolState),
	}
}

func (s *EmaCrossover) state(symbol string) *symbolState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[symbol]
	if st == nil {
		st = &symbolState{}
		s.states[symbol] = st
	}
	return st
}

// Position returns a copy of the current position for symbol.
func (s *EmaCrossover) Position(symbol string) model.Position {
	st := s.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.pos
}

// Evaluate runs one decision step against the latest bar of series. At most
// one order intent is emitted per call.
func (s *EmaCrossover) Evaluate(ctx context.Context, symbol string, series []model.IndicatorBar) error {
	if len(series) == 0 {
		return nil
	}
	latest := series[len(series)-1]

	st := s.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	switch {
	case !st.pos.Long():
		if latest.EMAShort > latest.EMALong {
			return s.enter(ctx, st, symbol, latest)
		}
	case latest.Close < st.pos.EntryPrice*0.98 || latest.Close < latest.EMALong*0.98:
		return s.exit(ctx, st, symbol, latest)
	}
	return nil
}

func (s *EmaCrossover) enter(ctx context.Context, st *symbolState, symbol string, latest model.IndicatorBar) error {
	qty := int64(math.Floor(0.95 * s.capital / latest.Close))
	if qty <= 0 {
		// Insufficient capital: no transition.
		log.Debug().Str("symbol", symbol).Float64("close", latest.Close).Msg("crossover with zero sizable quantity, staying flat")
		return nil
	}

	if _, err := s.broker.ExecuteOrder(ctx, symbol, model.Buy, qty, latest.Close); err != nil {
		return err
	}
	s.metrics.OrderExecuted()

	st.pos = model.Position{Quantity: qty, EntryPrice: latest.Close}
	s.logTransaction(ctx, symbol, model.Buy, latest.Close, qty)

	log.Info().
		Str("strategy", s.id).
		Str("symbol", symbol).
		Int64("qty", qty).
		Float64("price", latest.Close).
		Msg("entered long")
	return nil
}

func (s *EmaCrossover) exit(ctx context.Context, st *symbolState, symbol string, latest model.IndicatorBar) error {
	qty := st.pos.Quantity
	if _, err := s.broker.ExecuteOrder(ctx, symbol, model.Sell, qty, latest.Close); err != nil {
		return err
	}
	s.metrics.OrderExecuted()

	s.logTransaction(ctx, symbol, model.Sell, latest.Close, qty)
	st.pos = model.Position{}

	log.Info().
		Str("strategy", s.id).
		Str("symbol", symbol).
		Int64("qty", qty).
		Float64("price", latest.Close).
		Msg("exited to flat")
	return nil
}

// logTransaction appends the audit record for an already-executed order. The
// order and the append are independent steps: when the append fails the order
// has still happened, so the failure is logged and nothing is rolled back or
// retried (at-least-executed, best-effort-logged).
func (s *EmaCrossover) logTransaction(ctx context.Context, symbol string, action model.Side, price float64, qty int64) {
	tx := &model.Transaction{
		Timestamp:  time.Now().UTC(),
		StrategyID: s.id,
		Symbol:     symbol,
		Action:     action,
		Price:      price,
		Quantity:   qty,
		Status:     "executed",
	}
	if err := s.txlog.AppendTransaction(ctx, tx); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Str("action", string(action)).Msg("transaction log append failed after executed order")
	}
	if s.pub != nil {
		if err := s.pub.PublishDecision(ctx, tx); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("decision publish failed")
		}
	}
}
