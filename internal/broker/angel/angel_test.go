package angel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algo-trading-bot/internal/store"
	"algo-trading-bot/internal/types"
)

func testCreds() store.Credentials {
	return store.Credentials{APIKey: "key", ClientID: "client", AccessToken: "token"}
}

func TestLTPParsesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/secure/angelbroking/order/v1/getLtpData", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Equal(t, "key", r.Header.Get("X-PrivateKey"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "RELIANCE-EQ", body["tradingsymbol"])

		_, _ = w.Write([]byte(`{"status":true,"message":"SUCCESS","data":{"ltp":2945.35}}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL(testCreds(), srv.URL)
	ltp, err := c.LTP(context.Background(), "RELIANCE")
	require.NoError(t, err)
	assert.True(t, ltp.Equal(decimal.RequireFromString("2945.35")))
}

func TestLTPRejectsEnvelopeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":false,"message":"Invalid Token","data":null}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL(testCreds(), srv.URL)
	_, err := c.LTP(context.Background(), "RELIANCE")
	assert.ErrorContains(t, err, "Invalid Token")
}

func TestPlaceOrderSendsMarketOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "BUY", body["transactiontype"])
		assert.Equal(t, "MARKET", body["ordertype"])
		assert.Equal(t, "NSE", body["exchange"])
		assert.Equal(t, "10", body["quantity"])

		_, _ = w.Write([]byte(`{"status":true,"message":"SUCCESS","data":{"orderid":"2408250001"}}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL(testCreds(), srv.URL)
	resp, err := c.PlaceOrder(context.Background(), types.OrderReq{
		Symbol:   "RELIANCE",
		Exchange: "NSE",
		Side:     types.SideBuy,
		Qty:      10,
	})
	require.NoError(t, err)
	assert.Equal(t, "2408250001", resp.OrderID)
	assert.Equal(t, "COMPLETE", resp.Status)
}

func TestPlaceOrderRequiresCredentials(t *testing.T) {
	c := New(store.Credentials{})
	_, err := c.PlaceOrder(context.Background(), types.OrderReq{Symbol: "TCS", Side: types.SideSell, Qty: 1})
	assert.ErrorContains(t, err, "missing API key")
}
