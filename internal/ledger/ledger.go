package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/types"
)

// Ledger is the single source of truth for cash and open positions. Every
// mutation goes through ApplyBuy or ApplySell; both are atomic over balance,
// position and trade row.
type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// WithTx runs fn inside one transaction. Callers use this to bundle a ledger
// operation with other writes that must commit or roll back together, such as
// the signal is-executed flag flip.
func (l *Ledger) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ApplyBuy debits price*quantity+fee from the portfolio balance, folds the
// cost into the position's weighted average and appends the trade record.
func (l *Ledger) ApplyBuy(ctx context.Context, portfolioID, instrumentID int64, price decimal.Decimal, quantity int, fee decimal.Decimal) (*Trade, error) {
	var trade *Trade
	err := l.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		trade, err = l.ApplyBuyTx(ctx, tx, portfolioID, instrumentID, price, quantity, fee)
		return err
	})
	if err != nil {
		return nil, classify("buy", err)
	}
	return trade, nil
}

// ApplySell credits price*quantity-fee to the balance, realizes profit
// against the position's average price and appends the trade record.
func (l *Ledger) ApplySell(ctx context.Context, portfolioID, instrumentID int64, price decimal.Decimal, quantity int, fee decimal.Decimal) (*Trade, error) {
	var trade *Trade
	err := l.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		trade, err = l.ApplySellTx(ctx, tx, portfolioID, instrumentID, price, quantity, fee)
		return err
	})
	if err != nil {
		return nil, classify("sell", err)
	}
	return trade, nil
}

// ApplyBuyTx is ApplyBuy running inside a caller-owned transaction.
func (l *Ledger) ApplyBuyTx(ctx context.Context, tx *sql.Tx, portfolioID, instrumentID int64, price decimal.Decimal, quantity int, fee decimal.Decimal) (*Trade, error) {
	if err := validateTradeInput(price, quantity, fee); err != nil {
		return nil, err
	}

	balance, err := portfolioBalanceTx(ctx, tx, portfolioID)
	if err != nil {
		return nil, err
	}

	gross := price.Mul(decimal.NewFromInt(int64(quantity)))
	cost := gross.Add(fee).Round(2)

	// The reference behavior performs no sufficient-funds check; the balance
	// may go transiently negative.
	newBalance := balance.Sub(cost)
	if err := updateBalanceTx(ctx, tx, portfolioID, newBalance); err != nil {
		return nil, err
	}

	if err := upsertPositionBuyTx(ctx, tx, portfolioID, instrumentID, quantity, cost); err != nil {
		return nil, err
	}

	trade := &Trade{
		PortfolioID:  portfolioID,
		InstrumentID: instrumentID,
		Side:         types.SideBuy,
		Quantity:     quantity,
		Price:        price,
		Fee:          fee,
		BuyAmount:    &cost,
		OrderType:    "MARKET",
		CreatedAt:    time.Now().UTC(),
	}
	if err := insertTradeTx(ctx, tx, trade); err != nil {
		return nil, err
	}

	logger.Info(ctx, "Buy applied",
		"portfolio_id", portfolioID,
		"instrument_id", instrumentID,
		"qty", quantity,
		"price", price.String(),
		"fee", fee.String(),
		"balance", newBalance.String(),
	)
	return trade, nil
}

// ApplySellTx is ApplySell running inside a caller-owned transaction.
func (l *Ledger) ApplySellTx(ctx context.Context, tx *sql.Tx, portfolioID, instrumentID int64, price decimal.Decimal, quantity int, fee decimal.Decimal) (*Trade, error) {
	if err := validateTradeInput(price, quantity, fee); err != nil {
		return nil, err
	}

	pos, err := openPositionTx(ctx, tx, portfolioID, instrumentID)
	if err != nil {
		return nil, err
	}
	if quantity > pos.TotalQuantity {
		return nil, &InsufficientPositionError{
			Symbol:    pos.Symbol,
			Available: pos.TotalQuantity,
			Requested: quantity,
		}
	}

	balance, err := portfolioBalanceTx(ctx, tx, portfolioID)
	if err != nil {
		return nil, err
	}

	qty := decimal.NewFromInt(int64(quantity))
	gross := price.Mul(qty)
	proceeds := gross.Sub(fee).Round(2)

	costBasis := pos.AveragePrice.Mul(qty)
	profit := price.Sub(pos.AveragePrice).Mul(qty).Sub(fee).Round(2)
	pnlPercent := decimal.Zero
	if costBasis.IsPositive() {
		pnlPercent = profit.Div(costBasis).Mul(decimal.NewFromInt(100)).Round(2)
	}

	if err := updateBalanceTx(ctx, tx, portfolioID, balance.Add(proceeds)); err != nil {
		return nil, err
	}

	remaining := pos.TotalQuantity - quantity
	if remaining == 0 {
		_, err = tx.ExecContext(ctx,
			`UPDATE positions SET total_quantity = 0, invested_amount = '0',
			 is_open = 0, exit_at = ? WHERE id = ?`,
			time.Now().UTC(), pos.ID)
	} else {
		newInvested := pos.InvestedAmount.Sub(costBasis).Round(2)
		_, err = tx.ExecContext(ctx,
			`UPDATE positions SET total_quantity = ?, invested_amount = ? WHERE id = ?`,
			remaining, newInvested.String(), pos.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update position: %w", err)
	}

	refID := latestBuyTradeIDTx(ctx, tx, portfolioID, instrumentID)

	trade := &Trade{
		PortfolioID:  portfolioID,
		InstrumentID: instrumentID,
		Side:         types.SideSell,
		Quantity:     quantity,
		Price:        price,
		Fee:          fee,
		Profit:       &profit,
		PnLPercent:   &pnlPercent,
		OrderType:    "MARKET",
		RefTradeID:   refID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := insertTradeTx(ctx, tx, trade); err != nil {
		return nil, err
	}

	logger.Info(ctx, "Sell applied",
		"portfolio_id", portfolioID,
		"instrument_id", instrumentID,
		"qty", quantity,
		"price", price.String(),
		"profit", profit.String(),
		"pnl_percent", pnlPercent.String(),
		"remaining_qty", remaining,
	)
	return trade, nil
}

func validateTradeInput(price decimal.Decimal, quantity int, fee decimal.Decimal) error {
	if !price.IsPositive() {
		return &ValidationError{Field: "price", Reason: "must be positive"}
	}
	if quantity < 1 {
		return &ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}
	if fee.IsNegative() {
		return &ValidationError{Field: "fee", Reason: "must not be negative"}
	}
	return nil
}

// classify passes domain faults through untouched and wraps anything else as
// an integrity fault; the transaction is already rolled back either way.
func classify(op string, err error) error {
	var vErr *ValidationError
	var ipErr *InsufficientPositionError
	if errors.As(err, &vErr) || errors.As(err, &ipErr) ||
		errors.Is(err, ErrNoOpenPosition) || errors.Is(err, ErrPortfolioNotFound) {
		return err
	}
	return &IntegrityError{Op: op, Err: err}
}

func portfolioBalanceTx(ctx context.Context, tx *sql.Tx, portfolioID int64) (decimal.Decimal, error) {
	var raw string
	err := tx.QueryRowContext(ctx,
		`SELECT current_balance FROM portfolios WHERE id = ? AND is_active = 1`,
		portfolioID).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, ErrPortfolioNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read portfolio balance: %w", err)
	}
	return parseDecimal(raw)
}

func updateBalanceTx(ctx context.Context, tx *sql.Tx, portfolioID int64, balance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE portfolios SET current_balance = ? WHERE id = ?`,
		balance.Round(2).String(), portfolioID)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func upsertPositionBuyTx(ctx context.Context, tx *sql.Tx, portfolioID, instrumentID int64, quantity int, cost decimal.Decimal) error {
	var (
		id       int64
		qty      int
		rawInv   string
		openFlag bool
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, total_quantity, invested_amount, is_open FROM positions
		 WHERE portfolio_id = ? AND instrument_id = ?`,
		portfolioID, instrumentID).Scan(&id, &qty, &rawInv, &openFlag)

	qtyDec := decimal.NewFromInt(int64(quantity))

	switch {
	case err == sql.ErrNoRows:
		avg := cost.DivRound(qtyDec, 4)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO positions (portfolio_id, instrument_id, total_quantity, average_price, invested_amount, is_open, entry_at)
			 VALUES (?, ?, ?, ?, ?, 1, ?)`,
			portfolioID, instrumentID, quantity, avg.String(), cost.String(), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to create position: %w", err)
		}
		return nil

	case err != nil:
		return fmt.Errorf("failed to read position: %w", err)

	case !openFlag:
		// Closed position for this pair exists; uniqueness says reuse the
		// row, but the economics start fresh.
		avg := cost.DivRound(qtyDec, 4)
		_, err = tx.ExecContext(ctx,
			`UPDATE positions SET total_quantity = ?, average_price = ?, invested_amount = ?,
			 current_price = NULL, unrealized_pnl = NULL, is_open = 1, entry_at = ?, exit_at = NULL
			 WHERE id = ?`,
			quantity, avg.String(), cost.String(), time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("failed to reopen position: %w", err)
		}
		return nil

	default:
		invested, perr := parseDecimal(rawInv)
		if perr != nil {
			return perr
		}
		newInvested := invested.Add(cost)
		newQty := int64(qty + quantity)
		avg := newInvested.DivRound(decimal.NewFromInt(newQty), 4)
		_, err = tx.ExecContext(ctx,
			`UPDATE positions SET total_quantity = ?, average_price = ?, invested_amount = ? WHERE id = ?`,
			newQty, avg.String(), newInvested.Round(2).String(), id)
		if err != nil {
			return fmt.Errorf("failed to update position: %w", err)
		}
		return nil
	}
}

func openPositionTx(ctx context.Context, tx *sql.Tx, portfolioID, instrumentID int64) (*Position, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT p.id, p.portfolio_id, p.instrument_id, i.symbol, p.total_quantity,
		        p.average_price, p.invested_amount
		 FROM positions p JOIN instruments i ON i.id = p.instrument_id
		 WHERE p.portfolio_id = ? AND p.instrument_id = ? AND p.is_open = 1`,
		portfolioID, instrumentID)

	var (
		pos            Position
		rawAvg, rawInv string
	)
	err := row.Scan(&pos.ID, &pos.PortfolioID, &pos.InstrumentID, &pos.Symbol,
		&pos.TotalQuantity, &rawAvg, &rawInv)
	if err == sql.ErrNoRows {
		return nil, ErrNoOpenPosition
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read open position: %w", err)
	}
	if pos.AveragePrice, err = parseDecimal(rawAvg); err != nil {
		return nil, err
	}
	if pos.InvestedAmount, err = parseDecimal(rawInv); err != nil {
		return nil, err
	}
	pos.IsOpen = true
	return &pos, nil
}

func latestBuyTradeIDTx(ctx context.Context, tx *sql.Tx, portfolioID, instrumentID int64) *int64 {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM trades WHERE portfolio_id = ? AND instrument_id = ? AND side = 'BUY'
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		portfolioID, instrumentID).Scan(&id)
	if err != nil {
		return nil
	}
	return &id
}

func insertTradeTx(ctx context.Context, tx *sql.Tx, t *Trade) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO trades (portfolio_id, instrument_id, side, quantity, price, fee,
		                     buy_amount, profit, pnl_percent, order_type, ref_trade_id, remarks, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.PortfolioID, t.InstrumentID, string(t.Side), t.Quantity,
		t.Price.String(), t.Fee.String(),
		decPtrString(t.BuyAmount), decPtrString(t.Profit), decPtrString(t.PnLPercent),
		t.OrderType, t.RefTradeID, t.Remarks, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read trade id: %w", err)
	}
	return nil
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt decimal value %q: %w", raw, err)
	}
	return d, nil
}

func decPtrString(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
