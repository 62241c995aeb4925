// Package alpaca routes strategy orders to the Alpaca trading API.
package alpaca

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"emax/internal/application/port"
	"emax/internal/domain/model"
)

type Broker struct {
	client *alpaca.Client
}

func New(apiKey, apiSecret, baseURL string) *Broker {
	opts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	}
	return &Broker{client: alpaca.NewClient(opts)}
}

// ExecuteOrder places a market day order for the full quantity. Failures
// are wrapped in port.ErrOrderExecution; callers do not retry.
func (b *Broker) ExecuteOrder(ctx context.Context, symbol string, side model.Side, quantity int64, price float64) (port.OrderConfirmation, error) {
	qty := decimal.NewFromInt(quantity)
	req := alpaca.PlaceOrderRequest{
		Symbol:      symbol,
		Qty:         &qty,
		Side:        alpaca.Side(side),
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	}

	order, err := b.client.PlaceOrder(req)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Str("side", string(side)).
			Int64("qty", quantity).Msg("place order failed")
		return port.OrderConfirmation{}, fmt.Errorf("%w: %v", port.ErrOrderExecution, err)
	}

	log.Info().Str("order_id", order.ID).Str("symbol", symbol).Str("side", string(side)).
		Int64("qty", quantity).Str("status", string(order.Status)).Msg("order placed")
	return port.OrderConfirmation{
		OrderID: order.ID,
		Status:  string(order.Status),
	}, nil
}

var _ port.Broker = (*Broker)(nil)
