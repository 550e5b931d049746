package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/types"
)

// EnsurePortfolio returns the active portfolio named name, creating it with
// the given starting balance on first run.
func (l *Ledger) EnsurePortfolio(ctx context.Context, name string, initialBalance decimal.Decimal) (*Portfolio, error) {
	p, err := l.GetPortfolioByName(ctx, name)
	if err == nil {
		return p, nil
	}
	if err != ErrPortfolioNotFound {
		return nil, err
	}

	bal := initialBalance.Round(2).String()
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO portfolios (name, initial_balance, current_balance, is_active, created_at)
		 VALUES (?, ?, ?, 1, ?)`,
		name, bal, bal, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create portfolio %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "Portfolio created", "name", name, "initial_balance", bal)
	return l.GetPortfolio(ctx, id)
}

func (l *Ledger) GetPortfolio(ctx context.Context, id int64) (*Portfolio, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, name, initial_balance, current_balance, is_active, created_at
		 FROM portfolios WHERE id = ?`, id)
	return scanPortfolio(row)
}

func (l *Ledger) GetPortfolioByName(ctx context.Context, name string) (*Portfolio, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, name, initial_balance, current_balance, is_active, created_at
		 FROM portfolios WHERE name = ?`, name)
	return scanPortfolio(row)
}

func scanPortfolio(row *sql.Row) (*Portfolio, error) {
	var (
		p              Portfolio
		rawInit, rawCur string
	)
	err := row.Scan(&p.ID, &p.Name, &rawInit, &rawCur, &p.IsActive, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPortfolioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read portfolio: %w", err)
	}
	if p.InitialBalance, err = parseDecimal(rawInit); err != nil {
		return nil, err
	}
	if p.CurrentBalance, err = parseDecimal(rawCur); err != nil {
		return nil, err
	}
	return &p, nil
}

// OpenPositions lists open positions for the portfolio, newest entry first.
func (l *Ledger) OpenPositions(ctx context.Context, portfolioID int64) ([]Position, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT p.id, p.portfolio_id, p.instrument_id, i.symbol, p.total_quantity,
		        p.average_price, p.invested_amount, p.current_price, p.unrealized_pnl,
		        p.is_open, p.entry_at, p.exit_at
		 FROM positions p JOIN instruments i ON i.id = p.instrument_id
		 WHERE p.portfolio_id = ? AND p.is_open = 1
		 ORDER BY p.entry_at DESC, p.id DESC`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open positions: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pos)
	}
	return out, rows.Err()
}

// OpenPosition returns the open position for (portfolio, instrument) or
// ErrNoOpenPosition.
func (l *Ledger) OpenPosition(ctx context.Context, portfolioID, instrumentID int64) (*Position, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT p.id, p.portfolio_id, p.instrument_id, i.symbol, p.total_quantity,
		        p.average_price, p.invested_amount, p.current_price, p.unrealized_pnl,
		        p.is_open, p.entry_at, p.exit_at
		 FROM positions p JOIN instruments i ON i.id = p.instrument_id
		 WHERE p.portfolio_id = ? AND p.instrument_id = ? AND p.is_open = 1`,
		portfolioID, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to read open position: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNoOpenPosition
	}
	return scanPosition(rows)
}

func scanPosition(rows *sql.Rows) (*Position, error) {
	var (
		pos              Position
		rawAvg, rawInv   string
		rawCur, rawUnrl  sql.NullString
		exitAt           sql.NullTime
	)
	err := rows.Scan(&pos.ID, &pos.PortfolioID, &pos.InstrumentID, &pos.Symbol,
		&pos.TotalQuantity, &rawAvg, &rawInv, &rawCur, &rawUnrl,
		&pos.IsOpen, &pos.EntryAt, &exitAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan position: %w", err)
	}
	if pos.AveragePrice, err = parseDecimal(rawAvg); err != nil {
		return nil, err
	}
	if pos.InvestedAmount, err = parseDecimal(rawInv); err != nil {
		return nil, err
	}
	if rawCur.Valid {
		d, err := parseDecimal(rawCur.String)
		if err != nil {
			return nil, err
		}
		pos.CurrentPrice = &d
	}
	if rawUnrl.Valid {
		d, err := parseDecimal(rawUnrl.String)
		if err != nil {
			return nil, err
		}
		pos.UnrealizedPnL = &d
	}
	if exitAt.Valid {
		t := exitAt.Time
		pos.ExitAt = &t
	}
	return &pos, nil
}

// Trades lists the most recent trades for the portfolio, newest first.
func (l *Ledger) Trades(ctx context.Context, portfolioID int64, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT t.id, t.portfolio_id, t.instrument_id, i.symbol, t.side, t.quantity,
		        t.price, t.fee, t.buy_amount, t.profit, t.pnl_percent,
		        t.order_type, t.ref_trade_id, t.remarks, t.created_at
		 FROM trades t JOIN instruments i ON i.id = t.instrument_id
		 WHERE t.portfolio_id = ?
		 ORDER BY t.created_at DESC, t.id DESC LIMIT ?`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTrade(rows *sql.Rows) (*Trade, error) {
	var (
		t                        Trade
		side                     string
		rawPrice, rawFee         string
		rawBuy, rawProfit, rawPct sql.NullString
		refID                    sql.NullInt64
		remarks                  sql.NullString
	)
	err := rows.Scan(&t.ID, &t.PortfolioID, &t.InstrumentID, &t.Symbol, &side,
		&t.Quantity, &rawPrice, &rawFee, &rawBuy, &rawProfit, &rawPct,
		&t.OrderType, &refID, &remarks, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan trade: %w", err)
	}
	t.Side = types.Side(side)
	if t.Price, err = parseDecimal(rawPrice); err != nil {
		return nil, err
	}
	if t.Fee, err = parseDecimal(rawFee); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw sql.NullString
		dst **decimal.Decimal
	}{{rawBuy, &t.BuyAmount}, {rawProfit, &t.Profit}, {rawPct, &t.PnLPercent}} {
		if f.raw.Valid {
			d, err := parseDecimal(f.raw.String)
			if err != nil {
				return nil, err
			}
			*f.dst = &d
		}
	}
	if refID.Valid {
		v := refID.Int64
		t.RefTradeID = &v
	}
	t.Remarks = remarks.String
	return &t, nil
}

// Summary aggregates trade counts and realized performance.
func (l *Ledger) Summary(ctx context.Context, portfolioID int64) (*Summary, error) {
	p, err := l.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		CurrentBalance: p.CurrentBalance,
		InitialBalance: p.InitialBalance,
	}

	err = l.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN side = 'BUY' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN side = 'SELL' THEN 1 ELSE 0 END), 0)
		 FROM trades WHERE portfolio_id = ?`, portfolioID).
		Scan(&s.TotalTrades, &s.BuyTrades, &s.SellTrades)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate trades: %w", err)
	}

	var rawInvested sql.NullString
	err = l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CAST(invested_amount AS REAL)), 0)
		 FROM positions WHERE portfolio_id = ? AND is_open = 1`, portfolioID).
		Scan(&s.OpenPositions, &rawInvested)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate positions: %w", err)
	}
	if rawInvested.Valid {
		if s.TotalInvested, err = parseDecimal(rawInvested.String); err != nil {
			return nil, err
		}
		s.TotalInvested = s.TotalInvested.Round(2)
	}

	s.TotalProfit, err = l.realizedProfitSum(ctx, portfolioID, time.Time{})
	if err != nil {
		return nil, err
	}
	if p.InitialBalance.IsPositive() {
		s.ProfitPercentage = s.TotalProfit.Div(p.InitialBalance).
			Mul(decimal.NewFromInt(100)).Round(2)
	}
	return s, nil
}

// RealizedPnLSince sums sell profits recorded at or after since. The zero
// time means all history.
func (l *Ledger) RealizedPnLSince(ctx context.Context, portfolioID int64, since time.Time) (decimal.Decimal, error) {
	return l.realizedProfitSum(ctx, portfolioID, since)
}

func (l *Ledger) realizedProfitSum(ctx context.Context, portfolioID int64, since time.Time) (decimal.Decimal, error) {
	q := `SELECT COALESCE(SUM(CAST(profit AS REAL)), 0) FROM trades
	      WHERE portfolio_id = ? AND side = 'SELL'`
	args := []any{portfolioID}
	if !since.IsZero() {
		q += ` AND created_at >= ?`
		args = append(args, since.UTC())
	}
	var raw string
	if err := l.db.QueryRowContext(ctx, q, args...).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum realized profit: %w", err)
	}
	d, err := parseDecimal(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Round(2), nil
}

// MarkToMarket refreshes a position's current price and unrealized P&L.
// Advisory only; realized economics never depend on these fields.
func (l *Ledger) MarkToMarket(ctx context.Context, positionID int64, price decimal.Decimal) error {
	var (
		qty    int
		rawAvg string
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT total_quantity, average_price FROM positions WHERE id = ? AND is_open = 1`,
		positionID).Scan(&qty, &rawAvg)
	if err == sql.ErrNoRows {
		return ErrNoOpenPosition
	}
	if err != nil {
		return fmt.Errorf("failed to read position for mark: %w", err)
	}
	avg, err := parseDecimal(rawAvg)
	if err != nil {
		return err
	}
	unrealized := price.Sub(avg).Mul(decimal.NewFromInt(int64(qty))).Round(2)

	_, err = l.db.ExecContext(ctx,
		`UPDATE positions SET current_price = ?, unrealized_pnl = ? WHERE id = ?`,
		price.String(), unrealized.String(), positionID)
	if err != nil {
		return fmt.Errorf("failed to mark position: %w", err)
	}
	return nil
}
