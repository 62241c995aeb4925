package model

import "time"

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Transaction is an immutable audit entry for one executed order. It is
// appended once per execution and never mutated.
type Transaction struct {
	Timestamp  time.Time `json:"timestamp"`
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	Action     Side      `json:"action"`
	Price      float64   `json:"price"`
	Quantity   int64     `json:"quantity"`
	Status     string    `json:"status"`
}

// Position is the per-(strategy, symbol) state the strategy engine owns.
// Quantity == 0 means flat; EntryPrice is meaningful only while Quantity > 0.
// It must only be mutated inside a single evaluation call.
type Position struct {
	Quantity   int64   `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
}

// Long reports whether the position is open.
func (p Position) Long() bool { return p.Quantity > 0 }
