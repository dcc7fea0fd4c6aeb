package domain

import "time"

// SignalColor is the traffic-light reading of the combined book state.
type SignalColor string

const (
	SignalGreen  SignalColor = "green"
	SignalRed    SignalColor = "red"
	SignalYellow SignalColor = "yellow"
)

// Signal is a pure derived value mapping an aggregate book state to a
// buy/sell/neutral reading. It is recomputed, never stored.
type Signal struct {
	Color       SignalColor `json:"color"`
	Score       float64     `json:"score"`
	Explanation string      `json:"explanation"`
}

// Outlook is a horizon-scaled directional probability derived from a Signal.
// The direction label collapses yellow into SELL even though yellow reads as
// neutral elsewhere.
type Outlook struct {
	Label       string  `json:"label"` // e.g. "4h", "1d"
	Hours       float64 `json:"hours"`
	Direction   string  `json:"direction"` // "BUY" or "SELL"
	Probability int     `json:"probability"`
}

// AggregateState is the cross-book fold recomputed wholesale on every
// aggregation tick from the current set of tracked books.
type AggregateState struct {
	TotalBidUSD  float64   `json:"total_bid_usd"`
	TotalAskUSD  float64   `json:"total_ask_usd"`
	AvgSpreadBps float64   `json:"avg_spread_bps"`
	Momentum     float64   `json:"momentum"`
	AvgPrice     float64   `json:"avg_price,omitempty"` // 0 when no book has traded yet
	Timestamp    time.Time `json:"ts"`
}

// Currency is a display currency for converted notionals.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyAUD Currency = "AUD"
	CurrencyRUB Currency = "RUB"
	CurrencyBTC Currency = "BTC"
)
