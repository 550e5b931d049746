package angel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"algo-trading-bot/internal/api"
	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/store"
	"algo-trading-bot/internal/types"
)

const defaultBaseURL = "https://apiconnect.angelone.in"

// Client talks to the Angel One SmartAPI REST endpoints.
type Client struct {
	api   *api.Client
	creds store.Credentials
}

func New(creds store.Credentials) *Client {
	return NewWithBaseURL(creds, defaultBaseURL)
}

// NewWithBaseURL is used by tests to point the client at a stub server.
func NewWithBaseURL(creds store.Credentials, baseURL string) *Client {
	return &Client{
		creds: creds,
		api: api.NewClient(
			api.WithBaseURL(baseURL),
			api.WithTimeout(15*time.Second),
			api.WithHeader("Authorization", "Bearer "+creds.AccessToken),
			api.WithHeader("X-PrivateKey", creds.APIKey),
			api.WithHeader("X-ClientLocalIP", "127.0.0.1"),
			api.WithHeader("X-ClientPublicIP", "127.0.0.1"),
			api.WithHeader("X-MACAddress", "00:00:00:00:00:00"),
			api.WithHeader("X-UserType", "USER"),
			api.WithHeader("X-SourceID", "WEB"),
		),
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// LTP fetches the last traded price for symbol on NSE.
func (c *Client) LTP(ctx context.Context, symbol string) (decimal.Decimal, error) {
	payload := map[string]any{
		"exchange":      "NSE",
		"tradingsymbol": symbol + "-EQ",
		"symboltoken":   symbol,
	}
	raw, err := c.call(ctx, "/rest/secure/angelbroking/order/v1/getLtpData", payload)
	if err != nil {
		return decimal.Zero, err
	}

	var data struct {
		LTP float64 `json:"ltp"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return decimal.Zero, fmt.Errorf("decode ltp for %s: %w", symbol, err)
	}
	if data.LTP <= 0 {
		return decimal.Zero, fmt.Errorf("no price for %s", symbol)
	}

	ltp := decimal.NewFromFloat(data.LTP).Round(2)
	logger.Debug(ctx, "Fetched LTP", "symbol", symbol, "price", ltp.String())
	return ltp, nil
}

// PlaceOrder submits a market or limit order and returns the broker order id.
func (c *Client) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if c.creds.APIKey == "" || c.creds.AccessToken == "" {
		err := errors.New("missing API key/access token")
		logger.ErrorWithErr(ctx, "Cannot place live order", err, "symbol", req.Symbol)
		return types.OrderResp{}, err
	}

	orderType := req.OrderType
	if orderType == "" {
		orderType = "MARKET"
	}
	payload := map[string]any{
		"variety":         "NORMAL",
		"tradingsymbol":   req.Symbol + "-EQ",
		"symboltoken":     req.Symbol,
		"transactiontype": string(req.Side),
		"exchange":        req.Exchange,
		"ordertype":       orderType,
		"producttype":     "DELIVERY",
		"duration":        "DAY",
		"quantity":        fmt.Sprintf("%d", req.Qty),
		"ordertag":        req.Tag,
	}
	if req.Price != nil {
		payload["price"] = req.Price.String()
	}

	raw, err := c.call(ctx, "/rest/secure/angelbroking/order/v1/placeOrder", payload)
	if err != nil {
		return types.OrderResp{}, err
	}

	var data struct {
		OrderID string `json:"orderid"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return types.OrderResp{}, fmt.Errorf("decode order response: %w", err)
	}

	resp := types.OrderResp{OrderID: data.OrderID, Status: "COMPLETE", Message: "ok"}
	logger.Info(ctx, "Live order placed",
		"symbol", req.Symbol,
		"side", req.Side,
		"qty", req.Qty,
		"order_id", resp.OrderID,
	)
	return resp, nil
}

// call posts payload and unwraps the SmartAPI envelope.
func (c *Client) call(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	resp, err := c.api.PostWithRetry(ctx, path, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("broker request %s: %w", path, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("broker http %d: %s", resp.StatusCode, resp.String())
	}

	var env envelope
	if err := resp.ParseJSON(&env); err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, fmt.Errorf("broker rejected request: %s", env.Message)
	}
	return env.Data, nil
}
