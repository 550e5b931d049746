package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algo-trading-bot/internal/database"
	"algo-trading-bot/internal/execution"
	"algo-trading-bot/internal/instrument"
	"algo-trading-bot/internal/ledger"
	"algo-trading-bot/internal/marketdata"
	"algo-trading-bot/internal/scheduler"
	"algo-trading-bot/internal/signals"
	"algo-trading-bot/internal/store"
	"algo-trading-bot/internal/strategy"
	"algo-trading-bot/internal/types"
)

type quietBroker struct{}

func (quietBroker) LTP(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.NewFromInt(100), nil
}

func (quietBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	return types.OrderResp{OrderID: "OD-1", Status: "COMPLETE"}, nil
}

type holdDecider struct{}

func (holdDecider) Decide(ctx context.Context, symbol string, quote types.Quote, headlines []types.Headline) (types.Advice, error) {
	return types.Advice{Recommendation: "HOLD"}, nil
}

func setupServer(t *testing.T) (*Server, *ledger.Ledger, int64, int64) {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	conn := db.Conn()
	ctx := context.Background()

	cfg := &store.Config{}
	cfg.Mode = "PAPER"
	cfg.PollSeconds = 60
	cfg.Exchange = "NSE"
	cfg.Universe = []string{"RELIANCE"}
	cfg.Portfolio.Name = "test"
	cfg.Sizing.PositionSizePct = 10
	cfg.Sizing.MaxPositions = 5
	cfg.MarketHours.Open = "09:15"
	cfg.MarketHours.Close = "15:30"

	led := ledger.New(conn)
	p, err := led.EnsurePortfolio(ctx, "test", decimal.NewFromInt(50000))
	require.NoError(t, err)
	instruments := instrument.NewRegistry(conn)
	inst, _, err := instruments.Upsert(ctx, "RELIANCE", "NSE")
	require.NoError(t, err)

	broker := quietBroker{}
	market := marketdata.NewService(marketdata.NewStore(conn), instruments, broker, "NSE")
	sigRepo := signals.NewRepository(conn)
	generator := strategy.NewSignalGenerator(cfg, market, nil, holdDecider{}, sigRepo, instruments)

	bot, err := scheduler.NewBot(cfg, p.ID, scheduler.Deps{
		Ledger:    led,
		Signals:   sigRepo,
		Execs:     execution.NewRecorder(conn),
		Adapter:   execution.NewPaperAdapter(broker),
		Market:    market,
		Generator: generator,
		DB:        conn,
	})
	require.NoError(t, err)

	return NewServer(":0", p.ID, led, sigRepo, bot), led, p.ID, inst.ID
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _, _, _ := setupServer(t)

	rec := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPortfolioSummaryEndpoint(t *testing.T) {
	srv, led, pid, iid := setupServer(t)
	ctx := context.Background()

	_, err := led.ApplyBuy(ctx, pid, iid, decimal.NewFromInt(100), 10, decimal.Zero)
	require.NoError(t, err)

	rec := get(t, srv, "/api/portfolio/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["total_trades"])
	assert.EqualValues(t, 1, body["open_positions"])
}

func TestPositionsAndTradesEndpoints(t *testing.T) {
	srv, led, pid, iid := setupServer(t)
	ctx := context.Background()

	rec := get(t, srv, "/api/positions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String(), "empty list, not null")

	_, err := led.ApplyBuy(ctx, pid, iid, decimal.NewFromInt(100), 10, decimal.Zero)
	require.NoError(t, err)

	rec = get(t, srv, "/api/positions")
	var positions []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &positions))
	require.Len(t, positions, 1)
	assert.Equal(t, "RELIANCE", positions[0]["symbol"])

	rec = get(t, srv, "/api/trades?limit=5")
	var trades []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	assert.Len(t, trades, 1)
}

func TestSignalsAndStatusEndpoints(t *testing.T) {
	srv, _, pid, iid := setupServer(t)
	ctx := context.Background()

	require.NoError(t, srv.signals.Create(ctx, &signals.Signal{
		PortfolioID:  pid,
		InstrumentID: iid,
		Side:         types.SideBuy,
		Confidence:   80,
		EntryPrice:   decimal.NewFromInt(100),
		ExpiresAt:    time.Now().UTC().Add(time.Hour),
	}))

	rec := get(t, srv, "/api/signals")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = get(t, srv, "/api/bot/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Contains(t, status, "total_runs")
}
