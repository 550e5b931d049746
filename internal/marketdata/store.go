package marketdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"algo-trading-bot/internal/instrument"
	"algo-trading-bot/internal/interfaces"
	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/types"
)

// ErrNoQuote is returned when no price observation exists for an instrument.
var ErrNoQuote = errors.New("no quote observed for instrument")

// Store appends last-traded-price observations. No dedup, no compaction.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, instrumentID int64, ltp decimal.Decimal, observedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quotes (instrument_id, ltp, observed_at) VALUES (?, ?, ?)`,
		instrumentID, ltp.String(), observedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append quote: %w", err)
	}
	return nil
}

// Latest returns the most recent observation for the instrument.
func (s *Store) Latest(ctx context.Context, instrumentID int64) (decimal.Decimal, time.Time, error) {
	var (
		raw        string
		observedAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT ltp, observed_at FROM quotes WHERE instrument_id = ?
		 ORDER BY observed_at DESC, id DESC LIMIT 1`, instrumentID).Scan(&raw, &observedAt)
	if err == sql.ErrNoRows {
		return decimal.Zero, time.Time{}, ErrNoQuote
	}
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("failed to read latest quote: %w", err)
	}
	ltp, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("corrupt quote value %q: %w", raw, err)
	}
	return ltp, observedAt, nil
}

// Service polls the broker for prices and records every observation.
type Service struct {
	store       *Store
	instruments *instrument.Registry
	broker      interfaces.Broker
	exchange    string
}

func NewService(store *Store, instruments *instrument.Registry, broker interfaces.Broker, exchange string) *Service {
	return &Service{store: store, instruments: instruments, broker: broker, exchange: exchange}
}

// Snapshot fetches the broker LTP for symbol, appends it to the store and
// returns the quote. The instrument is created on first sight.
func (s *Service) Snapshot(ctx context.Context, symbol string) (types.Quote, error) {
	inst, created, err := s.instruments.Upsert(ctx, symbol, s.exchange)
	if err != nil {
		return types.Quote{}, err
	}
	if created {
		logger.Info(ctx, "Instrument discovered", "symbol", symbol, "exchange", s.exchange)
	}

	ltp, err := s.broker.LTP(ctx, symbol)
	if err != nil {
		return types.Quote{}, fmt.Errorf("price lookup failed for %s: %w", symbol, err)
	}

	now := time.Now()
	if err := s.store.Append(ctx, inst.ID, ltp, now); err != nil {
		return types.Quote{}, err
	}

	return types.Quote{Symbol: symbol, LTP: ltp, ObservedAt: now}, nil
}

// LatestQuote returns the last stored observation without calling the broker.
func (s *Service) LatestQuote(ctx context.Context, symbol string) (types.Quote, error) {
	inst, err := s.instruments.Get(ctx, symbol, s.exchange)
	if err == sql.ErrNoRows {
		return types.Quote{}, ErrNoQuote
	}
	if err != nil {
		return types.Quote{}, err
	}
	ltp, at, err := s.store.Latest(ctx, inst.ID)
	if err != nil {
		return types.Quote{}, err
	}
	return types.Quote{Symbol: symbol, LTP: ltp, ObservedAt: at}, nil
}
