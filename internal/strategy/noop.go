package strategy

import (
	"context"

	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/types"
)

// NoopDecider always holds. Used when no LLM provider is configured and in
// tests that exercise the loop without a model.
type NoopDecider struct{}

func NewNoopDecider() *NoopDecider { return &NoopDecider{} }

func (d *NoopDecider) Decide(ctx context.Context, symbol string, quote types.Quote, headlines []types.Headline) (types.Advice, error) {
	logger.Debug(ctx, "Noop decider holding", "symbol", symbol)
	return types.Advice{Recommendation: "HOLD", Sentiment: "neutral", Reason: "noop decider"}, nil
}
