package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"algo-trading-bot/internal/types"
)

type Broker interface {
	LTP(ctx context.Context, symbol string) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error)
}
