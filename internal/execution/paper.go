package execution

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"algo-trading-bot/internal/interfaces"
	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/signals"
	"algo-trading-bot/internal/types"
)

// slippagePct models the spread cost of a market order: fills land 0.1%
// against the trader relative to the last traded price.
var slippagePct = decimal.NewFromFloat(0.001)

// PaperAdapter simulates fills against live quotes without touching the
// broker's order endpoints.
type PaperAdapter struct {
	broker interfaces.Broker
}

func NewPaperAdapter(broker interfaces.Broker) *PaperAdapter {
	return &PaperAdapter{broker: broker}
}

// Execute fills the signal at LTP adjusted for slippage: buys fill above,
// sells fill below, rounded half-up to the paise.
func (a *PaperAdapter) Execute(ctx context.Context, sig *signals.Signal, quantity int) (Result, error) {
	ltp, err := a.broker.LTP(ctx, sig.Symbol)
	if err != nil {
		return Result{}, fmt.Errorf("paper fill failed for %s: %w", sig.Symbol, err)
	}

	var fill decimal.Decimal
	if sig.Side == types.SideBuy {
		fill = ltp.Mul(decimal.NewFromInt(1).Add(slippagePct))
	} else {
		fill = ltp.Mul(decimal.NewFromInt(1).Sub(slippagePct))
	}
	fill = fill.Round(2)

	orderID := "PAPER-" + uuid.NewString()
	logger.Info(ctx, "Paper order filled",
		"symbol", sig.Symbol,
		"side", sig.Side,
		"qty", quantity,
		"ltp", ltp.String(),
		"fill", fill.String(),
		"order_id", orderID,
	)
	return Result{OrderID: orderID, ExecutedPrice: fill}, nil
}
