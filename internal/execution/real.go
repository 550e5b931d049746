package execution

import (
	"context"
	"fmt"

	"algo-trading-bot/internal/interfaces"
	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/signals"
	"algo-trading-bot/internal/types"
)

// ExternalServiceError carries a broker rejection verbatim so the execution
// record can preserve the upstream message.
type ExternalServiceError struct {
	Service string
	Message string
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

// RealAdapter routes signals to the live broker as market orders.
type RealAdapter struct {
	broker   interfaces.Broker
	exchange string
}

func NewRealAdapter(broker interfaces.Broker, exchange string) *RealAdapter {
	return &RealAdapter{broker: broker, exchange: exchange}
}

func (a *RealAdapter) Execute(ctx context.Context, sig *signals.Signal, quantity int) (Result, error) {
	resp, err := a.broker.PlaceOrder(ctx, types.OrderReq{
		Symbol:    sig.Symbol,
		Exchange:  a.exchange,
		Side:      sig.Side,
		Qty:       quantity,
		OrderType: "MARKET",
		Tag:       fmt.Sprintf("signal-%d", sig.ID),
	})
	if err != nil {
		return Result{}, &ExternalServiceError{Service: "broker", Message: err.Error()}
	}
	if resp.Status != "COMPLETE" && resp.Status != "OPEN" {
		return Result{}, &ExternalServiceError{
			Service: "broker",
			Message: fmt.Sprintf("order %s rejected: %s", resp.OrderID, resp.Message),
		}
	}

	// Market orders fill at an unknown price; take the freshest LTP as the
	// recorded execution price, falling back to the signal's entry.
	fill := sig.EntryPrice
	if ltp, lerr := a.broker.LTP(ctx, sig.Symbol); lerr == nil {
		fill = ltp
	}

	logger.Info(ctx, "Live order placed",
		"symbol", sig.Symbol,
		"side", sig.Side,
		"qty", quantity,
		"order_id", resp.OrderID,
		"fill", fill.String(),
	)
	return Result{OrderID: resp.OrderID, ExecutedPrice: fill.Round(2)}, nil
}
