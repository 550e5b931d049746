package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade or signal.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is a known trade direction.
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Opposite returns the exit direction for a filled side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Quote is one last-traded-price observation for a symbol.
type Quote struct {
	Symbol     string          `json:"symbol"`
	LTP        decimal.Decimal `json:"ltp"`
	ObservedAt time.Time       `json:"observed_at"`
}

// Headline is a scraped news item fed into the LLM prompt.
type Headline struct {
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// Advice is the parsed output of one LLM call for one symbol.
// Confidence is a percentage in [0, 100].
type Advice struct {
	Recommendation string  `json:"recommendation"`
	Sentiment      string  `json:"sentiment"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason"`
}

type OrderReq struct {
	Symbol    string
	Exchange  string
	Side      Side
	Qty       int
	Price     *decimal.Decimal // nil means market order
	OrderType string           // MARKET or LIMIT
	Tag       string
}

type OrderResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
