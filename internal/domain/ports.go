package domain

import (
	"context"
	"time"
)

// BookView is the display-ready projection of a tracked book: filtered,
// truncated, sorted rows plus the derived totals. It is what handlers and
// the cache layer exchange.
type BookView struct {
	ID          string    `json:"id"`
	Exchange    Exchange  `json:"exchange"`
	Symbol      Symbol    `json:"symbol"`
	State       string    `json:"state"`
	Bids        []ViewRow `json:"bids"`
	Asks        []ViewRow `json:"asks"`
	BestBid     float64   `json:"best_bid"`
	BestAsk     float64   `json:"best_ask"`
	SpreadBps   float64   `json:"spread_bps"`
	TotalBidUSD float64   `json:"total_bid_usd"`
	TotalAskUSD float64   `json:"total_ask_usd"`
	LastTrade   float64   `json:"last_trade,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ViewRow is a single displayed level with its converted notional.
type ViewRow struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	USD    float64 `json:"usd"`
	Big    bool    `json:"big,omitempty"`
}

// BookCache stores the latest rendered view per tracked book so restarts and
// external consumers can read state without replaying feeds.
type BookCache interface {
	SetView(ctx context.Context, view BookView) error
	DeleteView(ctx context.Context, id string) error
	SetAggregate(ctx context.Context, state AggregateState, sig Signal) error
	GetAggregate(ctx context.Context) (AggregateState, Signal, error)
}

// RateLimiter bounds request rates per key. Allow counts the request when it
// is permitted.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is a single entry read back from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus fans out engine output: ephemeral pub/sub for external
// consumers and an ordered stream for replay.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
