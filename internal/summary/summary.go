package summary

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"algo-trading-bot/internal/logger"
)

// Daily is one trading day's aggregate: trade counts, realized P&L and win
// rate over closed sells.
type Daily struct {
	Day           string          `json:"day"` // YYYY-MM-DD
	TotalTrades   int             `json:"total_trades"`
	BuyTrades     int             `json:"buy_trades"`
	SellTrades    int             `json:"sell_trades"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	WinningTrades int             `json:"winning_trades"`
	LosingTrades  int             `json:"losing_trades"`
	WinRate       float64         `json:"win_rate"`
}

// Service computes and persists daily summaries.
type Service struct {
	db          *sql.DB
	portfolioID int64
	loc         *time.Location
}

func NewService(db *sql.DB, portfolioID int64) (*Service, error) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange timezone: %w", err)
	}
	return &Service{db: db, portfolioID: portfolioID, loc: loc}, nil
}

// ComputeFor aggregates trades for the exchange-local calendar day of at.
func (s *Service) ComputeFor(ctx context.Context, at time.Time) (*Daily, error) {
	local := at.In(s.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	dayEnd := dayStart.Add(24 * time.Hour)

	d := &Daily{Day: dayStart.Format("2006-01-02")}

	var rawPnL string
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN side = 'BUY' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN side = 'SELL' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN side = 'SELL' THEN CAST(profit AS REAL) ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN side = 'SELL' AND CAST(profit AS REAL) > 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN side = 'SELL' AND CAST(profit AS REAL) < 0 THEN 1 ELSE 0 END), 0)
		 FROM trades
		 WHERE portfolio_id = ? AND created_at >= ? AND created_at < ?`,
		s.portfolioID, dayStart.UTC(), dayEnd.UTC()).
		Scan(&d.TotalTrades, &d.BuyTrades, &d.SellTrades, &rawPnL, &d.WinningTrades, &d.LosingTrades)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate day %s: %w", d.Day, err)
	}

	pnl, err := decimal.NewFromString(rawPnL)
	if err != nil {
		return nil, fmt.Errorf("corrupt pnl aggregate %q: %w", rawPnL, err)
	}
	d.RealizedPnL = pnl.Round(2)

	if d.SellTrades > 0 {
		d.WinRate = float64(d.WinningTrades) / float64(d.SellTrades) * 100
	}
	return d, nil
}

// RecordFor computes and upserts the summary row for the day of at.
func (s *Service) RecordFor(ctx context.Context, at time.Time) (*Daily, error) {
	d, err := s.ComputeFor(ctx, at)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO daily_summaries (day, total_trades, buy_trades, sell_trades, realized_pnl, winning_trades, losing_trades, win_rate)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(day) DO UPDATE SET
		   total_trades = excluded.total_trades,
		   buy_trades = excluded.buy_trades,
		   sell_trades = excluded.sell_trades,
		   realized_pnl = excluded.realized_pnl,
		   winning_trades = excluded.winning_trades,
		   losing_trades = excluded.losing_trades,
		   win_rate = excluded.win_rate`,
		d.Day, d.TotalTrades, d.BuyTrades, d.SellTrades, d.RealizedPnL.String(),
		d.WinningTrades, d.LosingTrades, d.WinRate)
	if err != nil {
		return nil, fmt.Errorf("failed to store daily summary: %w", err)
	}

	logger.Info(ctx, "Daily summary recorded",
		"day", d.Day,
		"trades", d.TotalTrades,
		"realized_pnl", d.RealizedPnL.String(),
		"win_rate", fmt.Sprintf("%.1f", d.WinRate),
	)
	return d, nil
}

// StartCron schedules RecordFor shortly after market close on weekdays.
// Returns the running scheduler; callers stop it on shutdown.
func (s *Service) StartCron(ctx context.Context) *cron.Cron {
	c := cron.New(cron.WithLocation(s.loc))
	_, err := c.AddFunc("45 15 * * MON-FRI", func() {
		if _, err := s.RecordFor(ctx, time.Now()); err != nil {
			logger.ErrorWithErr(ctx, "Scheduled daily summary failed", err)
		}
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to schedule daily summary", err)
		return c
	}
	c.Start()
	return c
}
