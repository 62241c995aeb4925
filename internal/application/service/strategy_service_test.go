package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"emax/internal/application/port"
	"emax/internal/domain/model"
)

type executedOrder struct {
	symbol   string
	side     model.Side
	quantity int64
	price    float64
}

type mockBroker struct {
	mu     sync.Mutex
	orders []executedOrder
	err    error
}

func (b *mockBroker) ExecuteOrder(ctx context.Context, symbol string, side model.Side, quantity int64, price float64) (port.OrderConfirmation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return port.OrderConfirmation{}, b.err
	}
	b.orders = append(b.orders, executedOrder{symbol, side, quantity, price})
	return port.OrderConfirmation{OrderID: "order-1", Status: "filled"}, nil
}

func (b *mockBroker) orderCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

func (b *mockBroker) lastOrder() executedOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.orders[len(b.orders)-1]
}

func indicatorSeries(close, emaShort, emaLong float64) []model.IndicatorBar {
	return []model.IndicatorBar{{
		Bar: model.Bar{
			Symbol:    "ACME",
			Timestamp: time.Date(2024, 3, 6, 15, 0, 0, 0, time.UTC),
			Open:      close, High: close, Low: close, Close: close,
			Volume: 100,
		},
		EMAShort: emaShort,
		EMALong:  emaLong,
	}}
}

func TestEvaluateEntersLongOnCrossover(t *testing.T) {
	broker := &mockBroker{}
	repo := newMockRepo()
	strat := NewEmaCrossover("ema_crossover", 100000, broker, repo, nil, nil)

	// ema10 above ema20, flat: buy floor(0.95*100000/50) = 1900
	err := strat.Evaluate(context.Background(), "ACME", indicatorSeries(50.00, 50.5, 50.0))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if broker.orderCount() != 1 {
		t.Fatalf("expected 1 order, got %d", broker.orderCount())
	}
	order := broker.lastOrder()
	if order.side != model.Buy || order.quantity != 1900 {
		t.Errorf("expected buy 1900, got %s %d", order.side, order.quantity)
	}

	pos := strat.Position("ACME")
	if !pos.Long() || pos.Quantity != 1900 || pos.EntryPrice != 50.00 {
		t.Errorf("expected long 1900 @ 50.00, got %+v", pos)
	}

	txs, _ := repo.ListTransactions(context.Background(), "ACME", 10)
	if len(txs) != 1 || txs[0].Action != model.Buy || txs[0].Status != "executed" {
		t.Errorf("expected one executed buy transaction, got %+v", txs)
	}
}

func TestEvaluateExitsOnStopLoss(t *testing.T) {
	broker := &mockBroker{}
	repo := newMockRepo()
	strat := NewEmaCrossover("ema_crossover", 100000, broker, repo, nil, nil)

	ctx := context.Background()
	if err := strat.Evaluate(ctx, "ACME", indicatorSeries(50.00, 50.5, 50.0)); err != nil {
		t.Fatalf("entry failed: %v", err)
	}

	// 48.99 < 49.00 = entry * 0.98: stop-loss fires
	if err := strat.Evaluate(ctx, "ACME", indicatorSeries(48.99, 50.5, 50.0)); err != nil {
		t.Fatalf("exit failed: %v", err)
	}

	if broker.orderCount() != 2 {
		t.Fatalf("expected 2 orders, got %d", broker.orderCount())
	}
	order := broker.lastOrder()
	if order.side != model.Sell || order.quantity != 1900 {
		t.Errorf("expected sell 1900, got %s %d", order.side, order.quantity)
	}
	if strat.Position("ACME").Long() {
		t.Errorf("expected flat position after exit")
	}
}

func TestEvaluateExitsOnTrendBreak(t *testing.T) {
	broker := &mockBroker{}
	repo := newMockRepo()
	strat := NewEmaCrossover("ema_crossover", 100000, broker, repo, nil, nil)

	ctx := context.Background()
	if err := strat.Evaluate(ctx, "ACME", indicatorSeries(50.00, 50.5, 50.0)); err != nil {
		t.Fatalf("entry failed: %v", err)
	}

	// close above the stop but below ema20 * 0.98 = 49.98
	if err := strat.Evaluate(ctx, "ACME", indicatorSeries(49.50, 50.6, 51.0)); err != nil {
		t.Fatalf("exit failed: %v", err)
	}

	if broker.orderCount() != 2 || broker.lastOrder().side != model.Sell {
		t.Fatalf("expected trend-break sell, got %d orders", broker.orderCount())
	}
}

func TestEvaluateZeroQuantityStaysFlat(t *testing.T) {
	broker := &mockBroker{}
	repo := newMockRepo()
	strat := NewEmaCrossover("ema_crossover", 100000, broker, repo, nil, nil)

	// floor(0.95 * 100000 / 100000) = 0: no order, no transition
	err := strat.Evaluate(context.Background(), "ACME", indicatorSeries(100000, 101, 100))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if broker.orderCount() != 0 {
		t.Errorf("expected no orders, got %d", broker.orderCount())
	}
	if strat.Position("ACME").Long() {
		t.Errorf("expected position to stay flat")
	}
}

func TestEvaluateNoTransitionWithoutSignal(t *testing.T) {
	broker := &mockBroker{}
	repo := newMockRepo()
	strat := NewEmaCrossover("ema_crossover", 100000, broker, repo, nil, nil)

	ctx := context.Background()
	// flat and ema10 <= ema20: nothing happens
	if err := strat.Evaluate(ctx, "ACME", indicatorSeries(50.00, 49.5, 50.0)); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if broker.orderCount() != 0 {
		t.Errorf("expected no orders while flat without crossover")
	}

	// long and close above both exit levels: hold
	if err := strat.Evaluate(ctx, "ACME", indicatorSeries(50.00, 50.5, 50.0)); err != nil {
		t.Fatalf("entry failed: %v", err)
	}
	if err := strat.Evaluate(ctx, "ACME", indicatorSeries(50.50, 50.8, 50.0)); err != nil {
		t.Fatalf("hold evaluation failed: %v", err)
	}
	if broker.orderCount() != 1 {
		t.Errorf("expected position held, got %d orders", broker.orderCount())
	}
}

func TestEvaluateConcurrentSameSymbolSerialized(t *testing.T) {
	broker := &mockBroker{}
	repo := newMockRepo()
	strat := NewEmaCrossover("ema_crossover", 100000, broker, repo, nil, nil)

	// Every caller sees an entry signal; once long, the same bar holds
	// (close above both exit levels), so serialized evaluation admits
	// exactly one order no matter the interleaving.
	series := indicatorSeries(50.00, 50.5, 50.0)

	const workers = 8
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := strat.Evaluate(context.Background(), "ACME", series); err != nil {
				t.Errorf("Evaluate failed: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if broker.orderCount() != 1 {
		t.Fatalf("expected exactly one entry order, got %d", broker.orderCount())
	}
	pos := strat.Position("ACME")
	if pos.Quantity != 1900 || pos.EntryPrice != 50.00 {
		t.Errorf("position corrupted by concurrent evaluation: %+v", pos)
	}
}

func TestEvaluateBrokerFailureKeepsState(t *testing.T) {
	broker := &mockBroker{err: port.ErrOrderExecution}
	repo := newMockRepo()
	strat := NewEmaCrossover("ema_crossover", 100000, broker, repo, nil, nil)

	err := strat.Evaluate(context.Background(), "ACME", indicatorSeries(50.00, 50.5, 50.0))
	if !errors.Is(err, port.ErrOrderExecution) {
		t.Fatalf("expected ErrOrderExecution, got %v", err)
	}
	if strat.Position("ACME").Long() {
		t.Errorf("failed order must not open a position")
	}

	txs, _ := repo.ListTransactions(context.Background(), "ACME", 10)
	if len(txs) != 0 {
		t.Errorf("failed order must not be logged, got %+v", txs)
	}
}

func TestEvaluateLogFailureDoesNotUnwindOrder(t *testing.T) {
	broker := &mockBroker{}
	repo := newMockRepo()
	repo.appendErr = errors.New("disk full")
	strat := NewEmaCrossover("ema_crossover", 100000, broker, repo, nil, nil)

	err := strat.Evaluate(context.Background(), "ACME", indicatorSeries(50.00, 50.5, 50.0))
	if err != nil {
		t.Fatalf("append failure must not fail the evaluation: %v", err)
	}
	if broker.orderCount() != 1 {
		t.Fatalf("order should have executed")
	}
	if !strat.Position("ACME").Long() {
		t.Errorf("position must reflect the executed order despite the log failure")
	}
}

func TestEvaluateEmptySeriesIsNoop(t *testing.T) {
	broker := &mockBroker{}
	strat := NewEmaCrossover("ema_crossover", 100000, broker, newMockRepo(), nil, nil)

	if err := strat.Evaluate(context.Background(), "ACME", nil); err != nil {
		t.Fatalf("empty series should be a no-op: %v", err)
	}
	if broker.orderCount() != 0 {
		t.Errorf("expected no orders for empty series")
	}
}
