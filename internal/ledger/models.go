package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"algo-trading-bot/internal/types"
)

// Portfolio owns one cash balance and a set of positions. Never deleted,
// only soft-disabled.
type Portfolio struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Position is the open aggregate holding for one (portfolio, instrument)
// pair. invested_amount tracks cost basis including fees paid on entry.
type Position struct {
	ID             int64            `json:"id"`
	PortfolioID    int64            `json:"portfolio_id"`
	InstrumentID   int64            `json:"instrument_id"`
	Symbol         string           `json:"symbol"`
	TotalQuantity  int              `json:"total_quantity"`
	AveragePrice   decimal.Decimal  `json:"average_price"`
	InvestedAmount decimal.Decimal  `json:"invested_amount"`
	CurrentPrice   *decimal.Decimal `json:"current_price,omitempty"`
	UnrealizedPnL  *decimal.Decimal `json:"unrealized_pnl,omitempty"`
	IsOpen         bool             `json:"is_open"`
	EntryAt        time.Time        `json:"entry_at"`
	ExitAt         *time.Time       `json:"exit_at,omitempty"`
}

// Trade is the immutable record of one accepted buy or sell. Profit fields
// are filled on sells only and never mutated afterwards.
type Trade struct {
	ID           int64            `json:"id"`
	PortfolioID  int64            `json:"portfolio_id"`
	InstrumentID int64            `json:"instrument_id"`
	Symbol       string           `json:"symbol"`
	Side         types.Side       `json:"side"`
	Quantity     int              `json:"quantity"`
	Price        decimal.Decimal  `json:"price"`
	Fee          decimal.Decimal  `json:"fee"`
	BuyAmount    *decimal.Decimal `json:"buy_amount,omitempty"`
	Profit       *decimal.Decimal `json:"profit,omitempty"`
	PnLPercent   *decimal.Decimal `json:"pnl_percent,omitempty"`
	OrderType    string           `json:"order_type"`
	RefTradeID   *int64           `json:"ref_trade_id,omitempty"`
	Remarks      string           `json:"remarks,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Summary aggregates portfolio statistics for reporting surfaces.
type Summary struct {
	CurrentBalance   decimal.Decimal `json:"current_balance"`
	InitialBalance   decimal.Decimal `json:"initial_balance"`
	TotalTrades      int             `json:"total_trades"`
	BuyTrades        int             `json:"buy_trades"`
	SellTrades       int             `json:"sell_trades"`
	OpenPositions    int             `json:"open_positions"`
	TotalInvested    decimal.Decimal `json:"total_invested"`
	TotalProfit      decimal.Decimal `json:"total_profit"`
	ProfitPercentage decimal.Decimal `json:"profit_percentage"`
}
