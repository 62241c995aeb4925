// Package paper fills every order locally. It is the default broker when no
// trading credentials are configured.
package paper

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"emax/internal/application/port"
	"emax/internal/domain/model"
)

type Broker struct {
	seq atomic.Int64
}

func New() *Broker { return &Broker{} }

func (b *Broker) ExecuteOrder(ctx context.Context, symbol string, side model.Side, quantity int64, price float64) (port.OrderConfirmation, error) {
	id := fmt.Sprintf("paper-%d", b.seq.Add(1))
	log.Info().Str("order_id", id).Str("symbol", symbol).Str("side", string(side)).
		Int64("qty", quantity).Float64("price", price).Msg("paper fill")
	return port.OrderConfirmation{OrderID: id, Status: "filled"}, nil
}

var _ port.Broker = (*Broker)(nil)
