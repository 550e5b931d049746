package execution

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
	"algo-trading-bot/internal/signals"
	"algo-trading-bot/internal/types"
)

func setupRecorder(t *testing.T) (*Recorder, int64) {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	p, err := ledger.New(db.Conn()).EnsurePortfolio(ctx, "test", decimal.NewFromInt(50000))
	require.NoError(t, err)
	inst, _, err := instrument.NewRegistry(db.Conn()).Upsert(ctx, "WIPRO", "NSE")
	require.NoError(t, err)

	sig := &signals.Signal{
		PortfolioID:  p.ID,
		InstrumentID: inst.ID,
		Side:         types.SideBuy,
		Confidence:   80,
		EntryPrice:   decimal.NewFromInt(400),
		ExpiresAt:    time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, signals.NewRepository(db.Conn()).Create(ctx, sig))

	return NewRecorder(db.Conn()), sig.ID
}

func TestExecutionLifecycle(t *testing.T) {
	recorder, sigID := setupRecorder(t)
	ctx := context.Background()

	e, err := recorder.Create(ctx, sigID, 12, decimal.NewFromInt(400))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, e.Status)
	assert.NotEmpty(t, e.ID)

	require.NoError(t, recorder.MarkExecuted(ctx, e.ID, "OD-7", decimal.RequireFromString("400.4")))

	got, err := recorder.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, got.Status)
	assert.Equal(t, "OD-7", got.OrderID)
	require.NotNil(t, got.ExecutedPrice)
	assert.True(t, got.ExecutedPrice.Equal(decimal.RequireFromString("400.4")))
}

func TestTerminalStatesAreFinal(t *testing.T) {
	recorder, sigID := setupRecorder(t)
	ctx := context.Background()

	e, err := recorder.Create(ctx, sigID, 5, decimal.NewFromInt(400))
	require.NoError(t, err)
	require.NoError(t, recorder.MarkExecuted(ctx, e.ID, "OD-1", decimal.NewFromInt(401)))

	assert.ErrorIs(t, recorder.MarkFailed(ctx, e.ID, "late failure"), ErrNotPending)
	assert.ErrorIs(t, recorder.MarkExecuted(ctx, e.ID, "OD-2", decimal.NewFromInt(402)), ErrNotPending)

	got, err := recorder.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, got.Status)
	assert.Equal(t, "OD-1", got.OrderID)
	assert.Empty(t, got.ErrorMessage)
}

func TestMarkFailedPreservesUpstreamMessage(t *testing.T) {
	recorder, sigID := setupRecorder(t)
	ctx := context.Background()

	e, err := recorder.Create(ctx, sigID, 5, decimal.NewFromInt(400))
	require.NoError(t, err)
	require.NoError(t, recorder.MarkFailed(ctx, e.ID, "broker: order rejected by RMS"))

	got, err := recorder.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "broker: order rejected by RMS", got.ErrorMessage)
	assert.Nil(t, got.ExecutedPrice)
}
