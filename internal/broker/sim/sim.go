package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/types"
)

// Broker synthesizes prices for paper trading. Each symbol gets a random
// walk seeded near 1000 so repeated polls see plausible drift.
type Broker struct {
	mu     sync.Mutex
	prices map[string]float64
	rng    *rand.Rand
}

func New() *Broker {
	return &Broker{
		prices: make(map[string]float64),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *Broker) LTP(ctx context.Context, symbol string) (decimal.Decimal, error) {
	b.mu.Lock()
	price, ok := b.prices[symbol]
	if !ok {
		price = 800 + b.rng.Float64()*400
	}
	// Drift up to ±0.5% per observation.
	price *= 1 + (b.rng.Float64()-0.5)*0.01
	b.prices[symbol] = price
	b.mu.Unlock()

	ltp := decimal.NewFromFloat(price).Round(2)
	logger.Debug(ctx, "Simulated LTP", "symbol", symbol, "price", ltp.String())
	return ltp, nil
}

func (b *Broker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	resp := types.OrderResp{
		OrderID: fmt.Sprintf("SIM-%d", time.Now().UnixNano()),
		Status:  "COMPLETE",
		Message: "simulated",
	}
	logger.Info(ctx, "Simulated order placed",
		"symbol", req.Symbol,
		"side", req.Side,
		"qty", req.Qty,
		"order_id", resp.OrderID,
	)
	return resp, nil
}
