package instrument

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Instrument maps a ticker to its exchange metadata.
type Instrument struct {
	ID             int64     `json:"id"`
	Symbol         string    `json:"symbol"`
	Exchange       string    `json:"exchange"`
	Token          string    `json:"token"`
	LotSize        int       `json:"lot_size"`
	InstrumentType string    `json:"instrument_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// Registry persists instruments, keyed uniquely by (symbol, exchange).
type Registry struct {
	db *sql.DB
}

func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// Upsert returns the instrument for (symbol, exchange), creating it on first
// reference. The created flag lets callers distinguish discovery from lookup.
func (r *Registry) Upsert(ctx context.Context, symbol, exchange string) (Instrument, bool, error) {
	inst, err := r.Get(ctx, symbol, exchange)
	if err == nil {
		return inst, false, nil
	}
	if err != sql.ErrNoRows {
		return Instrument{}, false, fmt.Errorf("failed to look up instrument %s/%s: %w", symbol, exchange, err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO instruments (symbol, exchange, token) VALUES (?, ?, ?)`,
		symbol, exchange, symbol)
	if err != nil {
		return Instrument{}, false, fmt.Errorf("failed to create instrument %s/%s: %w", symbol, exchange, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Instrument{}, false, err
	}

	inst, err = r.GetByID(ctx, id)
	if err != nil {
		return Instrument{}, false, err
	}
	return inst, true, nil
}

func (r *Registry) Get(ctx context.Context, symbol, exchange string) (Instrument, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, symbol, exchange, token, lot_size, instrument_type, created_at
		 FROM instruments WHERE symbol = ? AND exchange = ?`, symbol, exchange)
	return scanInstrument(row)
}

func (r *Registry) GetByID(ctx context.Context, id int64) (Instrument, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, symbol, exchange, token, lot_size, instrument_type, created_at
		 FROM instruments WHERE id = ?`, id)
	return scanInstrument(row)
}

// RefreshMetadata updates broker-supplied metadata. Identity fields stay fixed.
func (r *Registry) RefreshMetadata(ctx context.Context, id int64, token string, lotSize int, instrumentType string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE instruments SET token = ?, lot_size = ?, instrument_type = ? WHERE id = ?`,
		token, lotSize, instrumentType, id)
	if err != nil {
		return fmt.Errorf("failed to refresh instrument metadata: %w", err)
	}
	return nil
}

func scanInstrument(row *sql.Row) (Instrument, error) {
	var inst Instrument
	err := row.Scan(&inst.ID, &inst.Symbol, &inst.Exchange, &inst.Token,
		&inst.LotSize, &inst.InstrumentType, &inst.CreatedAt)
	if err != nil {
		return Instrument{}, err
	}
	return inst, nil
}
