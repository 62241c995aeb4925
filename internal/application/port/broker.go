package port

import (
	"context"

	"emax/internal/domain/model"
)

// OrderConfirmation identifies an accepted order at the broker.
type OrderConfirmation struct {
	OrderID string
	Status  string
}

// Broker executes orders synchronously. Failures surface as
// ErrOrderExecution; the strategy engine does not retry.
type Broker interface {
	ExecuteOrder(ctx context.Context, symbol string, side model.Side, quantity int64, price float64) (OrderConfirmation, error)
}

// DecisionPublisher fans strategy decisions out to interested consumers
// (optional; a nil publisher is skipped).
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, tx *model.Transaction) error
}
