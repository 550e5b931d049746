package summary

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algo-trading-bot/internal/database"
	"algo-trading-bot/internal/instrument"
	"algo-trading-bot/internal/ledger"
)

func setup(t *testing.T) (*Service, *ledger.Ledger, int64, int64) {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	led := ledger.New(db.Conn())
	p, err := led.EnsurePortfolio(ctx, "test", decimal.NewFromInt(50000))
	require.NoError(t, err)
	inst, _, err := instrument.NewRegistry(db.Conn()).Upsert(ctx, "SBIN", "NSE")
	require.NoError(t, err)

	svc, err := NewService(db.Conn(), p.ID)
	require.NoError(t, err)
	return svc, led, p.ID, inst.ID
}

func TestComputeForAggregatesDay(t *testing.T) {
	svc, led, pid, iid := setup(t)
	ctx := context.Background()

	_, err := led.ApplyBuy(ctx, pid, iid, decimal.NewFromInt(500), 10, decimal.Zero)
	require.NoError(t, err)
	_, err = led.ApplySell(ctx, pid, iid, decimal.NewFromInt(520), 5, decimal.Zero) // +100
	require.NoError(t, err)
	_, err = led.ApplySell(ctx, pid, iid, decimal.NewFromInt(490), 5, decimal.Zero) // -50
	require.NoError(t, err)

	d, err := svc.ComputeFor(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, d.TotalTrades)
	assert.Equal(t, 1, d.BuyTrades)
	assert.Equal(t, 2, d.SellTrades)
	assert.True(t, d.RealizedPnL.Equal(decimal.NewFromInt(50)), "got %s", d.RealizedPnL)
	assert.Equal(t, 1, d.WinningTrades)
	assert.Equal(t, 1, d.LosingTrades)
	assert.InDelta(t, 50, d.WinRate, 0.001)
}

func TestComputeForEmptyDay(t *testing.T) {
	svc, _, _, _ := setup(t)

	d, err := svc.ComputeFor(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, d.TotalTrades)
	assert.True(t, d.RealizedPnL.IsZero())
	assert.Zero(t, d.WinRate)
}

func TestRecordForUpsertsSameDay(t *testing.T) {
	svc, led, pid, iid := setup(t)
	ctx := context.Background()

	_, err := led.ApplyBuy(ctx, pid, iid, decimal.NewFromInt(500), 10, decimal.Zero)
	require.NoError(t, err)

	first, err := svc.RecordFor(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalTrades)

	_, err = led.ApplySell(ctx, pid, iid, decimal.NewFromInt(510), 10, decimal.Zero)
	require.NoError(t, err)

	second, err := svc.RecordFor(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, second.TotalTrades)

	var count int
	require.NoError(t, svc.db.QueryRow(`SELECT COUNT(*) FROM daily_summaries`).Scan(&count))
	assert.Equal(t, 1, count, "same day must stay one row")
}
