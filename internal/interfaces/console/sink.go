// Package console prints strategy decisions to stdout. It is the default
// decision publisher when no stream backend is configured.
package console

import (
	"context"
	"fmt"

	"emax/internal/application/port"
	"emax/internal/domain/model"
)

type Sink struct{}

func NewSink() *Sink { return &Sink{} }

func (s *Sink) PublishDecision(ctx context.Context, tx *model.Transaction) error {
	fmt.Printf("%s %-4s %s qty=%d price=%.4f strategy=%s\n",
		tx.Timestamp.Format("2006-01-02 15:04:05"),
		tx.Action, tx.Symbol, tx.Quantity, tx.Price, tx.StrategyID)
	return nil
}

var _ port.DecisionPublisher = (*Sink)(nil)
