package port

import (
	"context"
	"time"

	"emax/internal/domain/model"
)

// BarProvider fetches and normalizes minute bars from the upstream market
// data vendor. It never writes to storage.
type BarProvider interface {
	// FetchBars issues one request covering [from, to]. Malformed rows are
	// dropped individually; out-of-session bars are filtered. Failures are
	// reported as ErrUpstream / ErrUpstreamTimeout. An empty result with a
	// nil error means the vendor has nothing for the range.
	FetchBars(ctx context.Context, symbol, timespan string, from, to time.Time) ([]model.Bar, error)
}

// BarFeed streams live minute bars for a set of symbols.
type BarFeed interface {
	Name() string
	Subscribe(ctx context.Context, symbols []string) (<-chan model.Bar, error)
}
