package execution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/signals"
)

// Execution statuses. PENDING is the only non-terminal state; once a row
// reaches EXECUTED or FAILED it never transitions again.
const (
	StatusPending  = "PENDING"
	StatusExecuted = "EXECUTED"
	StatusFailed   = "FAILED"
)

// ErrNotPending is returned when a terminal transition targets a row that
// already left PENDING.
var ErrNotPending = errors.New("execution is not pending")

// Execution records one attempt to carry a signal to the market.
type Execution struct {
	ID             string           `json:"id"`
	SignalID       int64            `json:"signal_id"`
	Quantity       int              `json:"quantity"`
	RequestedPrice decimal.Decimal  `json:"requested_price"`
	ExecutedPrice  *decimal.Decimal `json:"executed_price,omitempty"`
	OrderID        string           `json:"order_id,omitempty"`
	Status         string           `json:"status"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Result is what an adapter reports for a filled order.
type Result struct {
	OrderID       string
	ExecutedPrice decimal.Decimal
}

// Adapter fills one signal at the venue it fronts for.
type Adapter interface {
	Execute(ctx context.Context, sig *signals.Signal, quantity int) (Result, error)
}

// Recorder persists execution attempts.
type Recorder struct {
	db *sql.DB
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Create inserts a PENDING execution for the signal and returns it.
func (r *Recorder) Create(ctx context.Context, signalID int64, quantity int, requestedPrice decimal.Decimal) (*Execution, error) {
	e := &Execution{
		ID:             uuid.NewString(),
		SignalID:       signalID,
		Quantity:       quantity,
		RequestedPrice: requestedPrice,
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	e.UpdatedAt = e.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO executions (id, signal_id, quantity, requested_price, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SignalID, e.Quantity, e.RequestedPrice.String(), e.Status, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}
	return e, nil
}

// MarkExecuted finalizes a pending execution with its fill.
func (r *Recorder) MarkExecuted(ctx context.Context, id string, orderID string, executedPrice decimal.Decimal) error {
	return markExecuted(ctx, r.db, id, orderID, executedPrice)
}

// MarkExecutedTx is MarkExecuted inside a caller-owned transaction, so the
// status flip commits atomically with the ledger effect.
func (r *Recorder) MarkExecutedTx(ctx context.Context, tx *sql.Tx, id string, orderID string, executedPrice decimal.Decimal) error {
	return markExecuted(ctx, tx, id, orderID, executedPrice)
}

// MarkFailed finalizes a pending execution with the upstream error text.
func (r *Recorder) MarkFailed(ctx context.Context, id string, message string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, error_message = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		StatusFailed, message, time.Now().UTC(), id, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark execution failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotPending
	}
	logger.Warn(ctx, "Execution failed", "execution_id", id, "error", message)
	return nil
}

// Get returns one execution by id.
func (r *Recorder) Get(ctx context.Context, id string) (*Execution, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, signal_id, quantity, requested_price, executed_price, order_id,
		        status, error_message, created_at, updated_at
		 FROM executions WHERE id = ?`, id)

	var (
		e       Execution
		rawReq  string
		rawExec sql.NullString
	)
	err := row.Scan(&e.ID, &e.SignalID, &e.Quantity, &rawReq, &rawExec,
		&e.OrderID, &e.Status, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("execution %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read execution: %w", err)
	}
	if e.RequestedPrice, err = decimal.NewFromString(rawReq); err != nil {
		return nil, fmt.Errorf("corrupt requested price %q: %w", rawReq, err)
	}
	if rawExec.Valid {
		d, err := decimal.NewFromString(rawExec.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt executed price %q: %w", rawExec.String, err)
		}
		e.ExecutedPrice = &d
	}
	return &e, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func markExecuted(ctx context.Context, db execer, id, orderID string, executedPrice decimal.Decimal) error {
	res, err := db.ExecContext(ctx,
		`UPDATE executions SET status = ?, order_id = ?, executed_price = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		StatusExecuted, orderID, executedPrice.String(), time.Now().UTC(), id, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark execution done: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}
