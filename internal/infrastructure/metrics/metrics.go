// Package metrics registers the Prometheus instrumentation for the pipeline
// and strategy engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all counters and histograms. A nil *Metrics is valid and
// turns every record call into a no-op, which keeps tests free of registry
// setup.
type Metrics struct {
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	ProviderErrors  prometheus.Counter
	BarsUpsertedCtr prometheus.Counter
	OrdersExecuted  prometheus.Counter
	FetchDuration   prometheus.Histogram
}

// New registers and returns the metric set.
func New() *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emax_cache_hits_total",
			Help: "Range reads served from the store",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emax_cache_misses_total",
			Help: "Range reads that fell through to the provider",
		}),
		ProviderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emax_provider_errors_total",
			Help: "Failed provider fetches (errors and timeouts)",
		}),
		BarsUpsertedCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emax_bars_upserted_total",
			Help: "Bars written through to the store",
		}),
		OrdersExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emax_orders_executed_total",
			Help: "Orders accepted by the broker",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "emax_provider_fetch_duration_seconds",
			Help:    "Provider fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.CacheHits,
		m.CacheMisses,
		m.ProviderErrors,
		m.BarsUpsertedCtr,
		m.OrdersExecuted,
		m.FetchDuration,
	)
	return m
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) ProviderError() {
	if m != nil {
		m.ProviderErrors.Inc()
	}
}

func (m *Metrics) BarsUpserted(n int) {
	if m != nil {
		m.BarsUpsertedCtr.Add(float64(n))
	}
}

func (m *Metrics) OrderExecuted() {
	if m != nil {
		m.OrdersExecuted.Inc()
	}
}

func (m *Metrics) ObserveFetch(d time.Duration) {
	if m != nil {
		m.FetchDuration.Observe(d.Seconds())
	}
}
