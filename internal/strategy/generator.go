package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"algo-trading-bot/internal/instrument"
	"algo-trading-bot/internal/interfaces"
	"algo-trading-bot/internal/ledger"
	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/marketdata"
	"algo-trading-bot/internal/signals"
	"algo-trading-bot/internal/store"
	"algo-trading-bot/internal/types"
)

// NewsProvider supplies recent headlines for a symbol. Implementations may
// return an empty slice; the decider copes with no news.
type NewsProvider interface {
	Fetch(ctx context.Context, symbol string) ([]types.Headline, error)
}

// SignalGenerator turns market data, news and model advice into stored
// signals.
type SignalGenerator struct {
	cfg         *store.Config
	market      *marketdata.Service
	news        NewsProvider
	decider     interfaces.Decider
	repo        *signals.Repository
	instruments *instrument.Registry
}

func NewSignalGenerator(cfg *store.Config, market *marketdata.Service, news NewsProvider, decider interfaces.Decider, repo *signals.Repository, instruments *instrument.Registry) *SignalGenerator {
	return &SignalGenerator{
		cfg:         cfg,
		market:      market,
		news:        news,
		decider:     decider,
		repo:        repo,
		instruments: instruments,
	}
}

// GenerateFor asks the decider about one symbol and stores a signal when the
// advice clears the confidence threshold. Returns the created signal, or nil
// when the advice was a hold or below threshold.
func (g *SignalGenerator) GenerateFor(ctx context.Context, portfolioID int64, symbol string) (*signals.Signal, error) {
	quote, err := g.market.Snapshot(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var headlines []types.Headline
	if g.news != nil {
		headlines, err = g.news.Fetch(ctx, symbol)
		if err != nil {
			// News is advisory. Decide on price alone.
			logger.Warn(ctx, "News fetch failed, deciding without headlines", "symbol", symbol, "error", err.Error())
			headlines = nil
		}
	}

	advice, err := g.decider.Decide(ctx, symbol, quote, headlines)
	if err != nil {
		return nil, err
	}
	if advice.Recommendation == "HOLD" {
		return nil, nil
	}
	if advice.Confidence < g.cfg.Signals.ConfidenceThreshold {
		logger.Debug(ctx, "Advice below confidence threshold",
			"symbol", symbol,
			"confidence", advice.Confidence,
			"threshold", g.cfg.Signals.ConfidenceThreshold,
		)
		return nil, nil
	}

	inst, _, err := g.instruments.Upsert(ctx, symbol, g.cfg.Exchange)
	if err != nil {
		return nil, err
	}

	side := types.Side(advice.Recommendation)
	target, stop := g.bracket(side, quote.LTP)
	sig := &signals.Signal{
		PortfolioID:  portfolioID,
		InstrumentID: inst.ID,
		Symbol:       symbol,
		Side:         side,
		Confidence:   advice.Confidence,
		EntryPrice:   quote.LTP,
		TargetPrice:  target,
		StopLoss:     stop,
		Reason:       advice.Reason,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(g.cfg.Signals.MaxHoldingHours) * time.Hour),
	}
	if err := g.repo.Create(ctx, sig); err != nil {
		return nil, err
	}
	return sig, nil
}

// CreateExitSignal stores a maximum-confidence sell for an open position.
// Exit signals carry the position quantity and a short validity window.
func (g *SignalGenerator) CreateExitSignal(ctx context.Context, pos *ledger.Position, reason string) (*signals.Signal, error) {
	qty := pos.TotalQuantity
	entry := pos.AveragePrice
	if pos.CurrentPrice != nil {
		entry = *pos.CurrentPrice
	}
	sig := &signals.Signal{
		PortfolioID:   pos.PortfolioID,
		InstrumentID:  pos.InstrumentID,
		Symbol:        pos.Symbol,
		Side:          types.SideSell,
		Confidence:    100,
		Strength:      signals.StrengthStrong,
		EntryPrice:    entry,
		FixedQuantity: &qty,
		Reason:        reason,
		ExpiresAt:     time.Now().UTC().Add(time.Duration(g.cfg.Signals.ExitExpiryMinutes) * time.Minute),
	}
	if err := g.repo.Create(ctx, sig); err != nil {
		return nil, err
	}
	return sig, nil
}

// bracket derives target and stop prices from the configured percentages.
func (g *SignalGenerator) bracket(side types.Side, entry decimal.Decimal) (*decimal.Decimal, *decimal.Decimal) {
	tp := decimal.NewFromFloat(g.cfg.Risk.TakeProfitPct).Div(decimal.NewFromInt(100))
	sl := decimal.NewFromFloat(g.cfg.Risk.StopLossPct).Div(decimal.NewFromInt(100))

	var target, stop decimal.Decimal
	if side == types.SideBuy {
		target = entry.Mul(decimal.NewFromInt(1).Add(tp)).Round(2)
		stop = entry.Mul(decimal.NewFromInt(1).Sub(sl)).Round(2)
	} else {
		target = entry.Mul(decimal.NewFromInt(1).Sub(tp)).Round(2)
		stop = entry.Mul(decimal.NewFromInt(1).Add(sl)).Round(2)
	}
	return &target, &stop
}
