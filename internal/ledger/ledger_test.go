package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algo-trading-bot/internal/database"
	"algo-trading-bot/internal/instrument"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func setup(t *testing.T) (*Ledger, int64, int64) {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	l := New(db.Conn())
	ctx := context.Background()

	p, err := l.EnsurePortfolio(ctx, "test", dec("50000"))
	require.NoError(t, err)

	inst, _, err := instrument.NewRegistry(db.Conn()).Upsert(ctx, "RELIANCE", "NSE")
	require.NoError(t, err)

	return l, p.ID, inst.ID
}

func TestEnsurePortfolioIsIdempotent(t *testing.T) {
	l, pid, _ := setup(t)
	ctx := context.Background()

	again, err := l.EnsurePortfolio(ctx, "test", dec("99999"))
	require.NoError(t, err)
	assert.Equal(t, pid, again.ID)
	assert.True(t, again.InitialBalance.Equal(dec("50000")), "existing balance must not be reset")
}

func TestApplyBuyOpensPosition(t *testing.T) {
	l, pid, iid := setup(t)
	ctx := context.Background()

	trade, err := l.ApplyBuy(ctx, pid, iid, dec("100"), 10, dec("3"))
	require.NoError(t, err)
	assert.Equal(t, 10, trade.Quantity)
	require.NotNil(t, trade.BuyAmount)
	assert.True(t, trade.BuyAmount.Equal(dec("1003")))

	p, err := l.GetPortfolio(ctx, pid)
	require.NoError(t, err)
	assert.True(t, p.CurrentBalance.Equal(dec("48997")), "got %s", p.CurrentBalance)

	pos, err := l.OpenPosition(ctx, pid, iid)
	require.NoError(t, err)
	assert.Equal(t, 10, pos.TotalQuantity)
	assert.True(t, pos.AveragePrice.Equal(dec("100.3")), "got %s", pos.AveragePrice)
	assert.True(t, pos.InvestedAmount.Equal(dec("1003")))
}

func TestApplyBuyAveragesIntoPosition(t *testing.T) {
	l, pid, iid := setup(t)
	ctx := context.Background()

	_, err := l.ApplyBuy(ctx, pid, iid, dec("100"), 10, dec("3"))
	require.NoError(t, err)
	_, err = l.ApplyBuy(ctx, pid, iid, dec("120"), 10, dec("3.6"))
	require.NoError(t, err)

	pos, err := l.OpenPosition(ctx, pid, iid)
	require.NoError(t, err)
	assert.Equal(t, 20, pos.TotalQuantity)
	assert.True(t, pos.InvestedAmount.Equal(dec("2206.6")), "got %s", pos.InvestedAmount)
	assert.True(t, pos.AveragePrice.Equal(dec("110.33")), "got %s", pos.AveragePrice)

	p, err := l.GetPortfolio(ctx, pid)
	require.NoError(t, err)
	assert.True(t, p.CurrentBalance.Equal(dec("47793.4")), "got %s", p.CurrentBalance)
}

func TestApplySellRealizesProfit(t *testing.T) {
	l, pid, iid := setup(t)
	ctx := context.Background()

	buy1, err := l.ApplyBuy(ctx, pid, iid, dec("100"), 10, dec("3"))
	require.NoError(t, err)
	buy2, err := l.ApplyBuy(ctx, pid, iid, dec("120"), 10, dec("3.6"))
	require.NoError(t, err)

	trade, err := l.ApplySell(ctx, pid, iid, dec("130"), 15, dec("5"))
	require.NoError(t, err)

	require.NotNil(t, trade.Profit)
	assert.True(t, trade.Profit.Equal(dec("290.05")), "got %s", trade.Profit)
	require.NotNil(t, trade.PnLPercent)
	assert.True(t, trade.PnLPercent.Equal(dec("17.53")), "got %s", trade.PnLPercent)
	require.NotNil(t, trade.RefTradeID)
	assert.Equal(t, buy2.ID, *trade.RefTradeID, "sell should reference the latest buy")
	assert.NotEqual(t, buy1.ID, *trade.RefTradeID)

	pos, err := l.OpenPosition(ctx, pid, iid)
	require.NoError(t, err)
	assert.Equal(t, 5, pos.TotalQuantity)
	assert.True(t, pos.AveragePrice.Equal(dec("110.33")), "average must not move on sells")
	assert.True(t, pos.InvestedAmount.Equal(dec("551.65")), "got %s", pos.InvestedAmount)

	p, err := l.GetPortfolio(ctx, pid)
	require.NoError(t, err)
	assert.True(t, p.CurrentBalance.Equal(dec("49738.4")), "got %s", p.CurrentBalance)
}

func TestApplySellFullQuantityClosesPosition(t *testing.T) {
	l, pid, iid := setup(t)
	ctx := context.Background()

	_, err := l.ApplyBuy(ctx, pid, iid, dec("100"), 10, dec("3"))
	require.NoError(t, err)

	trade, err := l.ApplySell(ctx, pid, iid, dec("90"), 10, dec("1"))
	require.NoError(t, err)
	require.NotNil(t, trade.Profit)
	assert.True(t, trade.Profit.Equal(dec("-104")), "got %s", trade.Profit)

	_, err = l.OpenPosition(ctx, pid, iid)
	assert.ErrorIs(t, err, ErrNoOpenPosition)

	positions, err := l.OpenPositions(ctx, pid)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestApplyBuyReopensClosedPosition(t *testing.T) {
	l, pid, iid := setup(t)
	ctx := context.Background()

	_, err := l.ApplyBuy(ctx, pid, iid, dec("100"), 10, dec("0"))
	require.NoError(t, err)
	_, err = l.ApplySell(ctx, pid, iid, dec("110"), 10, dec("0"))
	require.NoError(t, err)

	_, err = l.ApplyBuy(ctx, pid, iid, dec("200"), 5, dec("2"))
	require.NoError(t, err)

	pos, err := l.OpenPosition(ctx, pid, iid)
	require.NoError(t, err)
	assert.Equal(t, 5, pos.TotalQuantity)
	assert.True(t, pos.AveragePrice.Equal(dec("200.4")), "reopened average must not mix in the closed cycle, got %s", pos.AveragePrice)
	assert.True(t, pos.InvestedAmount.Equal(dec("1002")))
	assert.Nil(t, pos.ExitAt)
}

func TestApplySellWithoutPositionFails(t *testing.T) {
	l, pid, iid := setup(t)
	ctx := context.Background()

	_, err := l.ApplySell(ctx, pid, iid, dec("100"), 1, dec("0"))
	assert.ErrorIs(t, err, ErrNoOpenPosition)

	p, err := l.GetPortfolio(ctx, pid)
	require.NoError(t, err)
	assert.True(t, p.CurrentBalance.Equal(dec("50000")), "balance must be untouched")
}

func TestApplySellInsufficientQuantityLeavesStateUntouched(t *testing.T) {
	l, pid, iid := setup(t)
	ctx := context.Background()

	_, err := l.ApplyBuy(ctx, pid, iid, dec("100"), 5, dec("0"))
	require.NoError(t, err)

	_, err = l.ApplySell(ctx, pid, iid, dec("110"), 10, dec("0"))
	var ipErr *InsufficientPositionError
	require.ErrorAs(t, err, &ipErr)
	assert.Equal(t, 5, ipErr.Available)
	assert.Equal(t, 10, ipErr.Requested)
	assert.Equal(t, "RELIANCE", ipErr.Symbol)

	pos, err := l.OpenPosition(ctx, pid, iid)
	require.NoError(t, err)
	assert.Equal(t, 5, pos.TotalQuantity, "position must not be clamped")

	p, err := l.GetPortfolio(ctx, pid)
	require.NoError(t, err)
	assert.True(t, p.CurrentBalance.Equal(dec("49500")))

	trades, err := l.Trades(ctx, pid, 10)
	require.NoError(t, err)
	assert.Len(t, trades, 1, "the rejected sell must not leave a trade record")
}

func TestValidationRejectsBeforeMutation(t *testing.T) {
	l, pid, iid := setup(t)
	ctx := context.Background()

	var vErr *ValidationError
	_, err := l.ApplyBuy(ctx, pid, iid, dec("0"), 10, dec("0"))
	assert.ErrorAs(t, err, &vErr)

	_, err = l.ApplyBuy(ctx, pid, iid, dec("100"), 0, dec("0"))
	assert.ErrorAs(t, err, &vErr)

	_, err = l.ApplyBuy(ctx, pid, iid, dec("100"), 10, dec("-1"))
	assert.ErrorAs(t, err, &vErr)

	p, err := l.GetPortfolio(ctx, pid)
	require.NoError(t, err)
	assert.True(t, p.CurrentBalance.Equal(dec("50000")))
}

func TestApplyBuyUnknownPortfolio(t *testing.T) {
	l, _, iid := setup(t)

	_, err := l.ApplyBuy(context.Background(), 9999, iid, dec("100"), 1, dec("0"))
	assert.True(t, errors.Is(err, ErrPortfolioNotFound))
}

func TestBalanceReconciles(t *testing.T) {
	l, pid, iid := setup(t)
	ctx := context.Background()

	_, err := l.ApplyBuy(ctx, pid, iid, dec("250.5"), 7, dec("0.53"))
	require.NoError(t, err)
	_, err = l.ApplySell(ctx, pid, iid, dec("260.25"), 3, dec("0.23"))
	require.NoError(t, err)
	_, err = l.ApplySell(ctx, pid, iid, dec("240.1"), 4, dec("0.29"))
	require.NoError(t, err)

	// 50000 - (250.5*7 + 0.53) + (260.25*3 - 0.23) + (240.1*4 - 0.29)
	want := dec("50000").
		Sub(dec("1754.03")).
		Add(dec("780.52")).
		Add(dec("960.11"))
	p, err := l.GetPortfolio(ctx, pid)
	require.NoError(t, err)
	assert.True(t, p.CurrentBalance.Equal(want), "got %s want %s", p.CurrentBalance, want)

	_, err = l.OpenPosition(ctx, pid, iid)
	assert.ErrorIs(t, err, ErrNoOpenPosition)
}

func TestTradesAreImmutableRecords(t *testing.T) {
	l, pid, iid := setup(t)
	ctx := context.Background()

	buy, err := l.ApplyBuy(ctx, pid, iid, dec("100"), 10, dec("3"))
	require.NoError(t, err)
	_, err = l.ApplySell(ctx, pid, iid, dec("110"), 10, dec("3.3"))
	require.NoError(t, err)

	trades, err := l.Trades(ctx, pid, 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	// Newest first; the buy row keeps its entry-time values.
	assert.Equal(t, buy.ID, trades[1].ID)
	require.NotNil(t, trades[1].BuyAmount)
	assert.True(t, trades[1].BuyAmount.Equal(dec("1003")))
	assert.Nil(t, trades[1].Profit)
	require.NotNil(t, trades[0].Profit)
	assert.True(t, trades[0].Profit.Equal(dec("93.7")), "got %s", trades[0].Profit)
}

func TestSummaryAggregates(t *testing.T) {
	l, pid, iid := setup(t)
	ctx := context.Background()

	_, err := l.ApplyBuy(ctx, pid, iid, dec("100"), 10, dec("0"))
	require.NoError(t, err)
	_, err = l.ApplySell(ctx, pid, iid, dec("110"), 5, dec("0"))
	require.NoError(t, err)

	s, err := l.Summary(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalTrades)
	assert.Equal(t, 1, s.BuyTrades)
	assert.Equal(t, 1, s.SellTrades)
	assert.Equal(t, 1, s.OpenPositions)
	assert.True(t, s.TotalProfit.Equal(dec("50")), "got %s", s.TotalProfit)
	assert.True(t, s.ProfitPercentage.Equal(dec("0.1")), "got %s", s.ProfitPercentage)
}

func TestMarkToMarket(t *testing.T) {
	l, pid, iid := setup(t)
	ctx := context.Background()

	_, err := l.ApplyBuy(ctx, pid, iid, dec("100"), 10, dec("0"))
	require.NoError(t, err)
	pos, err := l.OpenPosition(ctx, pid, iid)
	require.NoError(t, err)

	require.NoError(t, l.MarkToMarket(ctx, pos.ID, dec("105")))

	pos, err = l.OpenPosition(ctx, pid, iid)
	require.NoError(t, err)
	require.NotNil(t, pos.CurrentPrice)
	assert.True(t, pos.CurrentPrice.Equal(dec("105")))
	require.NotNil(t, pos.UnrealizedPnL)
	assert.True(t, pos.UnrealizedPnL.Equal(dec("50")), "got %s", pos.UnrealizedPnL)
}
