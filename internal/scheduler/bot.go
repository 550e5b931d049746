package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"algo-trading-bot/internal/execution"
	"algo-trading-bot/internal/ledger"
	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/marketdata"
	"algo-trading-bot/internal/signals"
	"algo-trading-bot/internal/store"
	"algo-trading-bot/internal/strategy"
	"algo-trading-bot/internal/trace"
	"algo-trading-bot/internal/types"
)

// Bot runs the single-threaded polling loop: expire stale signals, execute
// pending ones, watch open positions, generate new signals. One cycle runs
// to completion before the next starts; Stop waits for the cycle in flight.
type Bot struct {
	cfg       *store.Config
	ledger    *ledger.Ledger
	signals   *signals.Repository
	execs     *execution.Recorder
	adapter   execution.Adapter
	market    *marketdata.Service
	generator *strategy.SignalGenerator
	state     *stateStore
	clock     *marketClock

	portfolioID int64
	now         func() time.Time

	stop chan struct{}
	done chan struct{}
}

type Deps struct {
	Ledger    *ledger.Ledger
	Signals   *signals.Repository
	Execs     *execution.Recorder
	Adapter   execution.Adapter
	Market    *marketdata.Service
	Generator *strategy.SignalGenerator
	DB        *sql.DB
}

func NewBot(cfg *store.Config, portfolioID int64, d Deps) (*Bot, error) {
	clock, err := newMarketClock(cfg)
	if err != nil {
		return nil, err
	}
	return &Bot{
		cfg:         cfg,
		ledger:      d.Ledger,
		signals:     d.Signals,
		execs:       d.Execs,
		adapter:     d.Adapter,
		market:      d.Market,
		generator:   d.Generator,
		state:       &stateStore{db: d.DB},
		clock:       clock,
		portfolioID: portfolioID,
		now:         func() time.Time { return time.Now().UTC() },
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}, nil
}

// Run blocks until ctx is canceled or Stop is called. The first cycle fires
// immediately, then every poll interval.
func (b *Bot) Run(ctx context.Context) {
	defer close(b.done)

	interval := time.Duration(b.cfg.PollSeconds) * time.Second
	logger.Info(ctx, "Bot loop starting", "poll_interval", interval.String(), "mode", b.cfg.Mode)
	_ = b.state.setActive(ctx, true)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Bot loop stopping", "reason", "context canceled")
			_ = b.state.setActive(context.WithoutCancel(ctx), false)
			return
		case <-b.stop:
			logger.Info(ctx, "Bot loop stopping", "reason", "stop requested")
			_ = b.state.setActive(ctx, false)
			return
		case <-ticker.C:
			b.Cycle(ctx)
		}
	}
}

// Stop requests shutdown and waits for the cycle in flight to drain, up to
// ctx's deadline.
func (b *Bot) Stop(ctx context.Context) error {
	close(b.stop)
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown wait aborted: %w", ctx.Err())
	}
}

// State exposes the run counters for the monitoring API.
func (b *Bot) State(ctx context.Context) (*State, error) {
	return b.state.load(ctx)
}

// Cycle runs one full pass. Faults inside a single signal or symbol are
// recorded and do not abort the rest of the pass.
func (b *Bot) Cycle(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "bot.cycle")
	defer span.End()

	now := b.now()
	if err := b.state.recordRun(ctx, now); err != nil {
		logger.ErrorWithErr(ctx, "Failed to record cycle start", err)
	}

	if !b.clock.IsOpen(now) {
		logger.Debug(ctx, "Market closed, skipping cycle")
		return
	}

	if n, err := b.signals.ExpireStale(ctx, b.portfolioID, now); err != nil {
		b.fault(ctx, "expire signals", err)
	} else if n > 0 {
		logger.Info(ctx, "Expired stale signals", "count", n)
	}

	if b.dailyLossBreached(ctx, now) {
		return
	}

	pending, err := b.signals.Pending(ctx, b.portfolioID, now)
	if err != nil {
		b.fault(ctx, "list pending signals", err)
		return
	}
	for i := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := b.processSignal(ctx, &pending[i]); err != nil {
			b.fault(ctx, fmt.Sprintf("signal %d", pending[i].ID), err)
		}
	}

	b.monitorPositions(ctx)
	b.generateSignals(ctx)
}

// dailyLossBreached checks realized P&L since exchange-local midnight against
// the configured limit and deactivates all pending signals on breach.
func (b *Bot) dailyLossBreached(ctx context.Context, now time.Time) bool {
	limit := b.cfg.Risk.DailyLossLimit
	if limit <= 0 {
		return false
	}
	realized, err := b.ledger.RealizedPnLSince(ctx, b.portfolioID, b.clock.startOfDay(now))
	if err != nil {
		b.fault(ctx, "daily loss check", err)
		return false
	}
	if realized.GreaterThan(decimal.NewFromFloat(-limit)) {
		return false
	}
	logger.Warn(ctx, "Daily loss limit breached, halting new trades",
		"realized_pnl", realized.String(),
		"limit", limit,
	)
	if _, err := b.signals.DeactivateAllPending(ctx, b.portfolioID, "daily loss limit"); err != nil {
		b.fault(ctx, "deactivate after loss breach", err)
	}
	return true
}

// processSignal carries one pending signal through sizing, execution and the
// atomic ledger commit.
func (b *Bot) processSignal(ctx context.Context, sig *signals.Signal) error {
	ctx, span := trace.StartSpan(ctx, "bot.process-signal")
	defer span.End()

	pos, err := b.ledger.OpenPosition(ctx, b.portfolioID, sig.InstrumentID)
	if err != nil && !errors.Is(err, ledger.ErrNoOpenPosition) {
		return err
	}
	hasPosition := err == nil

	// Skip rules: a buy into an open position and a sell without one are
	// both no-ops that retire the signal.
	if sig.Side == types.SideBuy && hasPosition {
		return b.signals.Deactivate(ctx, sig.ID, "position already open")
	}
	if sig.Side == types.SideSell && !hasPosition {
		return b.signals.Deactivate(ctx, sig.ID, "no open position")
	}

	qty, err := b.sizeOrder(ctx, sig, pos)
	if err != nil {
		return err
	}
	if qty < 1 {
		return b.signals.Deactivate(ctx, sig.ID, "computed quantity below one share")
	}

	exec, err := b.execs.Create(ctx, sig.ID, qty, sig.EntryPrice)
	if err != nil {
		return err
	}

	result, err := b.adapter.Execute(ctx, sig, qty)
	if err != nil {
		if mErr := b.execs.MarkFailed(ctx, exec.ID, err.Error()); mErr != nil {
			logger.ErrorWithErr(ctx, "Failed to record execution failure", mErr, "execution_id", exec.ID)
		}
		return err
	}

	fee := b.fee(result.ExecutedPrice, qty)
	now := b.now()

	err = b.ledger.WithTx(ctx, func(tx *sql.Tx) error {
		if err := b.signals.MarkExecutedTx(ctx, tx, sig.ID, result.ExecutedPrice, now); err != nil {
			return err
		}
		if sig.Side == types.SideBuy {
			_, err = b.ledger.ApplyBuyTx(ctx, tx, b.portfolioID, sig.InstrumentID, result.ExecutedPrice, qty, fee)
		} else {
			_, err = b.ledger.ApplySellTx(ctx, tx, b.portfolioID, sig.InstrumentID, result.ExecutedPrice, qty, fee)
		}
		if err != nil {
			return err
		}
		return b.execs.MarkExecutedTx(ctx, tx, exec.ID, result.OrderID, result.ExecutedPrice)
	})
	if err != nil {
		if mErr := b.execs.MarkFailed(ctx, exec.ID, err.Error()); mErr != nil {
			logger.ErrorWithErr(ctx, "Failed to record execution failure", mErr, "execution_id", exec.ID)
		}
		if errors.Is(err, signals.ErrAlreadyExecuted) {
			logger.Warn(ctx, "Signal raced to execution, order already filled", "signal_id", sig.ID, "order_id", result.OrderID)
			return nil
		}
		return err
	}

	logger.Info(ctx, "Signal executed",
		"signal_id", sig.ID,
		"side", sig.Side,
		"symbol", sig.Symbol,
		"qty", qty,
		"price", result.ExecutedPrice.String(),
		"order_id", result.OrderID,
	)
	return nil
}

// sizeOrder picks the order quantity: the signal's fixed quantity when set,
// the full position for sells, otherwise the configured percentage of the
// cash balance at the signal's entry price.
func (b *Bot) sizeOrder(ctx context.Context, sig *signals.Signal, pos *ledger.Position) (int, error) {
	if sig.FixedQuantity != nil {
		qty := *sig.FixedQuantity
		if sig.Side == types.SideSell && pos != nil && qty > pos.TotalQuantity {
			qty = pos.TotalQuantity
		}
		return qty, nil
	}
	if sig.Side == types.SideSell {
		return pos.TotalQuantity, nil
	}

	p, err := b.ledger.GetPortfolio(ctx, b.portfolioID)
	if err != nil {
		return 0, err
	}
	if !sig.EntryPrice.IsPositive() {
		return 0, nil
	}
	budget := p.CurrentBalance.Mul(decimal.NewFromFloat(b.cfg.Sizing.PositionSizePct)).
		Div(decimal.NewFromInt(100))
	return int(budget.Div(sig.EntryPrice).IntPart()), nil
}

// fee is the brokerage charge: a flat percentage of gross trade value.
func (b *Bot) fee(price decimal.Decimal, qty int) decimal.Decimal {
	gross := price.Mul(decimal.NewFromInt(int64(qty)))
	return gross.Mul(decimal.NewFromFloat(b.cfg.Fees.BrokeragePct)).
		Div(decimal.NewFromInt(100)).Round(2)
}

// monitorPositions refreshes marks and raises exit signals when a stop,
// target or holding limit is hit.
func (b *Bot) monitorPositions(ctx context.Context) {
	positions, err := b.ledger.OpenPositions(ctx, b.portfolioID)
	if err != nil {
		b.fault(ctx, "list open positions", err)
		return
	}
	if len(positions) == 0 {
		return
	}

	pending, err := b.signals.Pending(ctx, b.portfolioID, b.now())
	if err != nil {
		b.fault(ctx, "list pending for exits", err)
		return
	}
	pendingSell := make(map[int64]bool)
	for _, s := range pending {
		if s.Side == types.SideSell {
			pendingSell[s.InstrumentID] = true
		}
	}

	for i := range positions {
		pos := &positions[i]
		if ctx.Err() != nil {
			return
		}
		quote, err := b.market.Snapshot(ctx, pos.Symbol)
		if err != nil {
			b.fault(ctx, fmt.Sprintf("snapshot %s", pos.Symbol), err)
			continue
		}
		if err := b.ledger.MarkToMarket(ctx, pos.ID, quote.LTP); err != nil {
			b.fault(ctx, fmt.Sprintf("mark %s", pos.Symbol), err)
		}
		pos.CurrentPrice = &quote.LTP

		if pendingSell[pos.InstrumentID] {
			continue
		}
		if reason := b.exitReason(pos, quote.LTP); reason != "" {
			if _, err := b.generator.CreateExitSignal(ctx, pos, reason); err != nil {
				b.fault(ctx, fmt.Sprintf("exit signal %s", pos.Symbol), err)
				continue
			}
			logger.Info(ctx, "Exit signal raised", "symbol", pos.Symbol, "reason", reason, "ltp", quote.LTP.String())
		}
	}
}

// exitReason returns why the position should close now, or "".
func (b *Bot) exitReason(pos *ledger.Position, ltp decimal.Decimal) string {
	slPct := decimal.NewFromFloat(b.cfg.Risk.StopLossPct).Div(decimal.NewFromInt(100))
	tpPct := decimal.NewFromFloat(b.cfg.Risk.TakeProfitPct).Div(decimal.NewFromInt(100))

	stop := pos.AveragePrice.Mul(decimal.NewFromInt(1).Sub(slPct))
	target := pos.AveragePrice.Mul(decimal.NewFromInt(1).Add(tpPct))

	switch {
	case ltp.LessThanOrEqual(stop):
		return "risk_management: stop loss hit"
	case ltp.GreaterThanOrEqual(target):
		return "risk_management: target reached"
	case b.now().Sub(pos.EntryAt) >= time.Duration(b.cfg.Signals.MaxHoldingHours)*time.Hour:
		return "risk_management: max holding period"
	}
	return ""
}

// generateSignals asks the strategy for fresh entries while capacity remains.
func (b *Bot) generateSignals(ctx context.Context) {
	positions, err := b.ledger.OpenPositions(ctx, b.portfolioID)
	if err != nil {
		b.fault(ctx, "list positions for generation", err)
		return
	}
	if len(positions) >= b.cfg.Sizing.MaxPositions {
		logger.Debug(ctx, "Position capacity reached, skipping generation", "open", len(positions))
		return
	}

	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[p.Symbol] = true
	}
	pending, err := b.signals.Pending(ctx, b.portfolioID, b.now())
	if err != nil {
		b.fault(ctx, "list pending for generation", err)
		return
	}
	queued := make(map[string]bool, len(pending))
	for _, s := range pending {
		queued[s.Symbol] = true
	}

	for _, symbol := range b.cfg.Universe {
		if ctx.Err() != nil {
			return
		}
		if held[symbol] || queued[symbol] {
			continue
		}
		sig, err := b.generator.GenerateFor(ctx, b.portfolioID, symbol)
		if err != nil {
			b.fault(ctx, fmt.Sprintf("generate %s", symbol), err)
			continue
		}
		if sig != nil {
			logger.Info(ctx, "Entry signal generated",
				"symbol", symbol,
				"side", sig.Side,
				"confidence", sig.Confidence,
			)
		}
	}
}

// fault records a per-item failure without aborting the cycle.
func (b *Bot) fault(ctx context.Context, what string, err error) {
	logger.ErrorWithErr(ctx, "Cycle step failed", err, "step", what)
	if sErr := b.state.recordError(ctx, fmt.Sprintf("%s: %v", what, err)); sErr != nil {
		logger.ErrorWithErr(ctx, "Failed to record error", sErr)
	}
}
