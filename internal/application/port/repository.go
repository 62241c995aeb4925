package port

import (
	"context"
	"time"

	"emax/internal/domain/model"
)

// BarRepository is the durable time-series store for minute bars.
type BarRepository interface {
	// UpsertBars inserts-or-updates keyed by (symbol, timestamp). Idempotent:
	// safe to retry wholesale and to call concurrently for disjoint symbols.
	UpsertBars(ctx context.Context, bars []model.Bar) error

	// ReadRange returns bars with timestamp in [from, to], ascending by
	// timestamp. An empty result is not an error.
	ReadRange(ctx context.Context, symbol string, from, to time.Time) ([]model.Bar, error)

	// ReadLatest returns the most recent bar for symbol, or (nil, nil) when
	// none exists.
	ReadLatest(ctx context.Context, symbol string) (*model.Bar, error)
}

// TransactionRepository is the append-only audit log for executed orders.
type TransactionRepository interface {
	AppendTransaction(ctx context.Context, tx *model.Transaction) error
	ListTransactions(ctx context.Context, symbol string, limit int) ([]model.Transaction, error)
}

// Repository is the full storage contract a backend must satisfy.
type Repository interface {
	BarRepository
	TransactionRepository
	Close() error
}
