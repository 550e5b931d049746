package signals

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

// ErrAlreadyExecuted is returned when MarkExecuted loses the race against a
// prior execution of the same signal.
var ErrAlreadyExecuted = errors.New("signal already executed")

// ErrSignalNotFound is returned for lookups of unknown signal ids.
var ErrSignalNotFound = errors.New("signal not found")

// Strength buckets a signal's conviction for reporting.
type Strength string

const (
	StrengthWeak     Strength = "WEAK"
	StrengthModerate Strength = "MODERATE"
	StrengthStrong   Strength = "STRONG"
)

// StrengthFor maps a confidence percentage onto a bucket.
func StrengthFor(confidence float64) Strength {
	switch {
	case confidence >= 85:
		return StrengthStrong
	case confidence >= 70:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}

// Signal is a trade recommendation awaiting execution. Once is_executed is
// set it never clears; deactivation is the only other exit from the queue.
type Signal struct {
	ID             int64            `json:"id"`
	PortfolioID    int64            `json:"portfolio_id"`
	InstrumentID   int64            `json:"instrument_id"`
	Symbol         string           `json:"symbol"`
	Side           types.Side       `json:"side"`
	Confidence     float64          `json:"confidence"`
	Strength       Strength         `json:"strength"`
	EntryPrice     decimal.Decimal  `json:"entry_price"`
	TargetPrice    *decimal.Decimal `json:"target_price,omitempty"`
	StopLoss       *decimal.Decimal `json:"stop_loss,omitempty"`
	FixedQuantity  *int             `json:"fixed_quantity,omitempty"`
	Reason         string           `json:"reason"`
	IsActive       bool             `json:"is_active"`
	IsExecuted     bool             `json:"is_executed"`
	ExecutedAt     *time.Time       `json:"executed_at,omitempty"`
	ExecutionPrice *decimal.Decimal `json:"execution_price,omitempty"`
	ExpiresAt      time.Time        `json:"expires_at"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Expired reports whether the signal's validity window has passed at now.
func (s *Signal) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Repository persists signals.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create stores a new active, unexecuted signal and fills its id.
func (r *Repository) Create(ctx context.Context, s *Signal) error {
	if !s.Side.Valid() {
		return fmt.Errorf("invalid signal side %q", s.Side)
	}
	if s.Confidence < 0 || s.Confidence > 100 {
		return fmt.Errorf("confidence %.1f out of range", s.Confidence)
	}
	if s.Strength == "" {
		s.Strength = StrengthFor(s.Confidence)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO signals (portfolio_id, instrument_id, side, confidence, strength,
		                      entry_price, target_price, stop_loss, fixed_quantity, reason,
		                      is_active, is_executed, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?, ?)`,
		s.PortfolioID, s.InstrumentID, string(s.Side), s.Confidence, string(s.Strength),
		s.EntryPrice.String(), decPtr(s.TargetPrice), decPtr(s.StopLoss),
		s.FixedQuantity, s.Reason, s.ExpiresAt.UTC(), s.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create signal: %w", err)
	}
	s.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	s.IsActive = true

	logger.Info(ctx, "Signal created",
		"signal_id", s.ID,
		"side", s.Side,
		"confidence", s.Confidence,
		"strength", s.Strength,
		"expires_at", s.ExpiresAt.UTC(),
	)
	return nil
}

// Pending returns active, unexecuted, unexpired signals for the portfolio,
// highest confidence first, newest first within equal confidence.
func (r *Repository) Pending(ctx context.Context, portfolioID int64, now time.Time) ([]Signal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.portfolio_id, s.instrument_id, i.symbol, s.side, s.confidence,
		        s.strength, s.entry_price, s.target_price, s.stop_loss, s.fixed_quantity,
		        s.reason, s.is_active, s.is_executed, s.executed_at, s.execution_price,
		        s.expires_at, s.created_at
		 FROM signals s JOIN instruments i ON i.id = s.instrument_id
		 WHERE s.portfolio_id = ? AND s.is_active = 1 AND s.is_executed = 0 AND s.expires_at > ?
		 ORDER BY s.confidence DESC, s.created_at DESC, s.id DESC`,
		portfolioID, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list pending signals: %w", err)
	}
	defer rows.Close()

	var out []Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Recent returns the latest signals regardless of state, newest first.
func (r *Repository) Recent(ctx context.Context, portfolioID int64, limit int) ([]Signal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.portfolio_id, s.instrument_id, i.symbol, s.side, s.confidence,
		        s.strength, s.entry_price, s.target_price, s.stop_loss, s.fixed_quantity,
		        s.reason, s.is_active, s.is_executed, s.executed_at, s.execution_price,
		        s.expires_at, s.created_at
		 FROM signals s JOIN instruments i ON i.id = s.instrument_id
		 WHERE s.portfolio_id = ?
		 ORDER BY s.created_at DESC, s.id DESC LIMIT ?`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	defer rows.Close()

	var out []Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Get returns one signal by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Signal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.portfolio_id, s.instrument_id, i.symbol, s.side, s.confidence,
		        s.strength, s.entry_price, s.target_price, s.stop_loss, s.fixed_quantity,
		        s.reason, s.is_active, s.is_executed, s.executed_at, s.execution_price,
		        s.expires_at, s.created_at
		 FROM signals s JOIN instruments i ON i.id = s.instrument_id
		 WHERE s.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read signal: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrSignalNotFound
	}
	return scanSignal(rows)
}

// Deactivate drops the signal from the pending queue without marking it
// executed. Used for skip rules and risk shutdowns.
func (r *Repository) Deactivate(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE signals SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate signal: %w", err)
	}
	logger.Info(ctx, "Signal deactivated", "signal_id", id, "reason", reason)
	return nil
}

// DeactivateAllPending deactivates every pending signal for the portfolio.
func (r *Repository) DeactivateAllPending(ctx context.Context, portfolioID int64, reason string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE signals SET is_active = 0
		 WHERE portfolio_id = ? AND is_active = 1 AND is_executed = 0`, portfolioID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate pending signals: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logger.Warn(ctx, "Pending signals deactivated", "count", n, "reason", reason)
	}
	return n, nil
}

// MarkExecutedTx flips is_executed inside the caller's transaction. The
// WHERE guard makes the flip first-wins: a second attempt observes zero
// affected rows and gets ErrAlreadyExecuted.
func (r *Repository) MarkExecutedTx(ctx context.Context, tx *sql.Tx, id int64, executionPrice decimal.Decimal, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE signals SET is_executed = 1, executed_at = ?, execution_price = ?
		 WHERE id = ? AND is_executed = 0`,
		at.UTC(), executionPrice.String(), id)
	if err != nil {
		return fmt.Errorf("failed to mark signal executed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyExecuted
	}
	return nil
}

// ExpireStale deactivates active signals whose validity window has passed.
func (r *Repository) ExpireStale(ctx context.Context, portfolioID int64, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE signals SET is_active = 0
		 WHERE portfolio_id = ? AND is_active = 1 AND is_executed = 0 AND expires_at <= ?`,
		portfolioID, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire signals: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logger.Info(ctx, "Stale signals expired", "count", n)
	}
	return n, nil
}

func scanSignal(rows *sql.Rows) (*Signal, error) {
	var (
		s                  Signal
		side, strength     string
		rawEntry           string
		rawTarget, rawStop sql.NullString
		fixedQty           sql.NullInt64
		reason             sql.NullString
		executedAt         sql.NullTime
		rawExecPrice       sql.NullString
	)
	err := rows.Scan(&s.ID, &s.PortfolioID, &s.InstrumentID, &s.Symbol, &side,
		&s.Confidence, &strength, &rawEntry, &rawTarget, &rawStop, &fixedQty,
		&reason, &s.IsActive, &s.IsExecuted, &executedAt, &rawExecPrice,
		&s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan signal: %w", err)
	}
	s.Side = types.Side(side)
	s.Strength = Strength(strength)
	s.Reason = reason.String
	if s.EntryPrice, err = decimal.NewFromString(rawEntry); err != nil {
		return nil, fmt.Errorf("corrupt entry price %q: %w", rawEntry, err)
	}
	for _, f := range []struct {
		raw sql.NullString
		dst **decimal.Decimal
	}{{rawTarget, &s.TargetPrice}, {rawStop, &s.StopLoss}, {rawExecPrice, &s.ExecutionPrice}} {
		if f.raw.Valid {
			d, err := decimal.NewFromString(f.raw.String)
			if err != nil {
				return nil, fmt.Errorf("corrupt decimal %q: %w", f.raw.String, err)
			}
			*f.dst = &d
		}
	}
	if fixedQty.Valid {
		q := int(fixedQty.Int64)
		s.FixedQuantity = &q
	}
	if executedAt.Valid {
		t := executedAt.Time
		s.ExecutedAt = &t
	}
	return &s, nil
}

func decPtr(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
