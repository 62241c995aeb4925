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

// mockRepo is an in-memory BarRepository keyed by (symbol, timestamp).
type mockRepo struct {
	mu   sync.Mutex
	bars map[string]map[int64]model.Bar
	txs  []model.Transaction

	upsertErr error
	appendErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{bars: make(map[string]map[int64]model.Bar)}
}

func (m *mockRepo) UpsertBars(ctx context.Context, bars []model.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for _, b := range bars {
		if m.bars[b.Symbol] == nil {
			m.bars[b.Symbol] = make(map[int64]model.Bar)
		}
		m.bars[b.Symbol][b.Timestamp.UnixMilli()] = b
	}
	return nil
}

func (m *mockRepo) ReadRange(ctx context.Context, symbol string, from, to time.Time) ([]model.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Bar
	for ts, b := range m.bars[symbol] {
		if ts >= from.UnixMilli() && ts <= to.UnixMilli() {
			out = append(out, b)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Timestamp.Before(out[i].Timestamp) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *mockRepo) ReadLatest(ctx context.Context, symbol string) (*model.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.Bar
	for _, b := range m.bars[symbol] {
		b := b
		if latest == nil || b.Timestamp.After(latest.Timestamp) {
			latest = &b
		}
	}
	return latest, nil
}

func (m *mockRepo) AppendTransaction(ctx context.Context, t *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.txs = append(m.txs, *t)
	return nil
}

func (m *mockRepo) ListTransactions(ctx context.Context, symbol string, limit int) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Transaction
	for i := len(m.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.txs[i].Symbol == symbol {
			out = append(out, m.txs[i])
		}
	}
	return out, nil
}

// mockProvider returns canned bars and counts fetches. A non-zero delay
// keeps each fetch in flight long enough for concurrency tests.
type mockProvider struct {
	mu      sync.Mutex
	bars    []model.Bar
	err     error
	delay   time.Duration
	fetches int
}

func (p *mockProvider) FetchBars(ctx context.Context, symbol, timespan string, from, to time.Time) ([]model.Bar, error) {
	p.mu.Lock()
	p.fetches++
	bars, err, delay := p.bars, p.err, p.delay
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return bars, nil
}

func (p *mockProvider) fetchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

func providerBars(symbol string, n int) []model.Bar {
	base := time.Date(2024, 3, 6, 14, 30, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := range bars {
		bars[i] = model.Bar{
			Symbol:    symbol,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      50, High: 51, Low: 49, Close: 50.5,
			Volume: 100,
		}
	}
	return bars
}

func TestGetBarsMissFetchesAndStores(t *testing.T) {
	repo := newMockRepo()
	provider := &mockProvider{bars: providerBars("ACME", 3)}
	svc := NewMarketDataService(repo, provider, nil)

	from := time.Date(2024, 3, 6, 14, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	bars, err := svc.GetBars(context.Background(), "ACME", "10", from, to)
	if err != nil {
		t.Fatalf("GetBars failed: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}
	if provider.fetchCount() != 1 {
		t.Errorf("expected 1 provider fetch, got %d", provider.fetchCount())
	}

	stored, _ := repo.ReadRange(context.Background(), "ACME", from, to)
	if len(stored) != 3 {
		t.Errorf("fetched bars were not persisted: %d stored", len(stored))
	}
}

func TestGetBarsSecondCallHitsStore(t *testing.T) {
	repo := newMockRepo()
	provider := &mockProvider{bars: providerBars("ACME", 3)}
	svc := NewMarketDataService(repo, provider, nil)

	from := time.Date(2024, 3, 6, 14, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)
	ctx := context.Background()

	if _, err := svc.GetBars(ctx, "ACME", "10", from, to); err != nil {
		t.Fatalf("first GetBars failed: %v", err)
	}
	if _, err := svc.GetBars(ctx, "ACME", "10", from, to); err != nil {
		t.Fatalf("second GetBars failed: %v", err)
	}

	if provider.fetchCount() != 1 {
		t.Errorf("second read should not hit provider: %d fetches", provider.fetchCount())
	}
}

func TestGetBarsConcurrentMissesCollapse(t *testing.T) {
	repo := newMockRepo()
	provider := &mockProvider{bars: providerBars("ACME", 3), delay: 200 * time.Millisecond}
	svc := NewMarketDataService(repo, provider, nil)

	from := time.Date(2024, 3, 6, 14, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	const callers = 8
	start := make(chan struct{})
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.GetBars(context.Background(), "ACME", "10", from, to)
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d failed: %v", i, err)
		}
	}
	if provider.fetchCount() != 1 {
		t.Errorf("concurrent identical misses should share one fetch, got %d", provider.fetchCount())
	}
}

func TestGetBarsEmptyProviderResultIsNoData(t *testing.T) {
	repo := newMockRepo()
	provider := &mockProvider{}
	svc := NewMarketDataService(repo, provider, nil)

	from := time.Date(2024, 3, 6, 14, 0, 0, 0, time.UTC)
	_, err := svc.GetBars(context.Background(), "GHOST", "10", from, from.Add(time.Hour))
	if !errors.Is(err, port.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestGetBarsProviderErrorPropagates(t *testing.T) {
	repo := newMockRepo()
	provider := &mockProvider{err: port.ErrUpstreamTimeout}
	svc := NewMarketDataService(repo, provider, nil)

	from := time.Date(2024, 3, 6, 14, 0, 0, 0, time.UTC)
	_, err := svc.GetBars(context.Background(), "ACME", "10", from, from.Add(time.Hour))
	if !errors.Is(err, port.ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
}

func TestGetIndicatorSeriesAnnotates(t *testing.T) {
	repo := newMockRepo()
	provider := &mockProvider{bars: providerBars("ACME", 3)}
	svc := NewMarketDataService(repo, provider, nil)

	from := time.Date(2024, 3, 6, 14, 0, 0, 0, time.UTC)
	series, err := svc.GetIndicatorSeries(context.Background(), "ACME", "10", from, from.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetIndicatorSeries failed: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("expected 3 annotated bars, got %d", len(series))
	}
	if series[0].EMAShort != series[0].Close || series[0].EMALong != series[0].Close {
		t.Errorf("first bar indicators should equal its close, got %+v", series[0])
	}
}
