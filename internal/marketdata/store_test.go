package marketdata

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algo-trading-bot/internal/database"
	"algo-trading-bot/internal/instrument"
	"algo-trading-bot/internal/types"
)

type seqBroker struct {
	prices []string
	i      int
}

func (b *seqBroker) LTP(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p := decimal.RequireFromString(b.prices[b.i%len(b.prices)])
	b.i++
	return p, nil
}

func (b *seqBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	return types.OrderResp{}, nil
}

func TestSnapshotAppendsEveryObservation(t *testing.T) {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	registry := instrument.NewRegistry(db.Conn())
	broker := &seqBroker{prices: []string{"100.5", "101.25", "101.25"}}
	svc := NewService(NewStore(db.Conn()), registry, broker, "NSE")

	for range 3 {
		_, err := svc.Snapshot(ctx, "ITC")
		require.NoError(t, err)
	}

	// No dedup: the repeated price is stored again.
	var count int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM quotes`).Scan(&count))
	assert.Equal(t, 3, count)

	quote, err := svc.LatestQuote(ctx, "ITC")
	require.NoError(t, err)
	assert.True(t, quote.LTP.Equal(decimal.RequireFromString("101.25")))
	assert.Equal(t, "ITC", quote.Symbol)
}

func TestSnapshotCreatesInstrumentOnFirstSight(t *testing.T) {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	registry := instrument.NewRegistry(db.Conn())
	svc := NewService(NewStore(db.Conn()), registry, &seqBroker{prices: []string{"55"}}, "NSE")

	_, err = svc.Snapshot(ctx, "IDEA")
	require.NoError(t, err)

	inst, err := registry.Get(ctx, "IDEA", "NSE")
	require.NoError(t, err)
	assert.Equal(t, "IDEA", inst.Symbol)

	// Same (symbol, exchange) resolves to the same row.
	again, created, err := registry.Upsert(ctx, "IDEA", "NSE")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, inst.ID, again.ID)
}

func TestLatestQuoteWithoutObservations(t *testing.T) {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewService(NewStore(db.Conn()), instrument.NewRegistry(db.Conn()), &seqBroker{prices: []string{"1"}}, "NSE")

	_, err = svc.LatestQuote(context.Background(), "UNSEEN")
	assert.ErrorIs(t, err, ErrNoQuote)
}
