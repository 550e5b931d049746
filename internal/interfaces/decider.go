package interfaces

import (
	"context"

	"algo-trading-bot/internal/types"
)

type Decider interface {
	Decide(ctx context.Context, symbol string, quote types.Quote, headlines []types.Headline) (types.Advice, error)
}
