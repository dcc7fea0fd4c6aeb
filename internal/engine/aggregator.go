package engine

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gatslabs/tradeflow/internal/book"
	"github.com/gatslabs/tradeflow/internal/domain"
)

// DefaultTickInterval is the cross-book aggregation cadence.
const DefaultTickInterval = time.Second

// fallbackSpreadBps is reported when no books are tracked, matching the
// reference behavior.
const fallbackSpreadBps = 5.0

// StateHandler receives each aggregate tick together with the signal derived
// from it. It must not block; it runs on the tick goroutine.
type StateHandler func(domain.AggregateState, domain.Signal)

// Aggregator folds all tracked books' filtered views into one AggregateState
// on a fixed tick. It only reads last-known state from the store and never
// waits on feed I/O, so a stalled adapter cannot delay the tick.
type Aggregator struct {
	store    *book.Store
	interval time.Duration
	onState  StateHandler
	logger   *slog.Logger

	mu     sync.Mutex
	series *domain.PriceSeries
	last   domain.AggregateState
	sig    domain.Signal
}

// NewAggregator creates an aggregator over the given store. interval <= 0
// selects the default one-second tick. onState may be nil.
func NewAggregator(store *book.Store, interval time.Duration, onState StateHandler, logger *slog.Logger) *Aggregator {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Aggregator{
		store:    store,
		interval: interval,
		onState:  onState,
		logger:   logger.With(slog.String("component", "aggregator")),
		series:   domain.NewPriceSeries(),
	}
}

// Run ticks until ctx is cancelled. It always returns ctx.Err().
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "aggregation loop started",
		slog.Duration("interval", a.interval),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			state, sig := a.Tick(now)
			if a.onState != nil {
				a.onState(state, sig)
			}
		}
	}
}

// Tick recomputes the aggregate state wholesale from the current set of
// books: notional sums, simple-mean spread, representative price, and
// momentum against the sample two ticks back.
func (a *Aggregator) Tick(now time.Time) (domain.AggregateState, domain.Signal) {
	stats := a.store.TickStats()

	state := domain.AggregateState{Timestamp: now}
	var spreadSum float64
	var prices []float64
	for _, st := range stats {
		state.TotalBidUSD += st.BidUSD
		state.TotalAskUSD += st.AskUSD
		spreadSum += st.SpreadBps
		if st.LastPrice > 0 {
			prices = append(prices, st.LastPrice)
		}
	}
	if len(stats) > 0 {
		state.AvgSpreadBps = spreadSum / float64(len(stats))
	} else {
		state.AvgSpreadBps = fallbackSpreadBps
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	avgPx := 0.0
	switch {
	case len(prices) > 0:
		for _, p := range prices {
			avgPx += p
		}
		avgPx /= float64(len(prices))
	default:
		// No book has traded this tick; carry the last representative
		// price forward so the series keeps moving.
		if last, ok := a.series.Last(); ok {
			avgPx = last
		}
	}

	if avgPx > 0 {
		if prev2, ok := a.series.At(1); ok {
			state.Momentum = (avgPx - prev2) / math.Max(1, prev2)
		}
		a.series.Push(avgPx)
		state.AvgPrice = avgPx
	}

	state.Timestamp = now
	a.last = state
	a.sig = SignalFromState(state)
	return state, a.sig
}

// Last returns the most recent aggregate state and its signal.
func (a *Aggregator) Last() (domain.AggregateState, domain.Signal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, a.sig
}

// Series returns a copy of the aggregate representative-price series, oldest
// first. It feeds the headline volatility bands.
func (a *Aggregator) Series() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.series.Values()
}
