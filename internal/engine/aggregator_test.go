package engine

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatslabs/tradeflow/internal/book"
	"github.com/gatslabs/tradeflow/internal/domain"
)

func twoBookStore(t *testing.T) *book.Store {
	t.Helper()
	s := book.NewStore(slog.Default())
	for _, id := range []string{"a", "b"} {
		require.NoError(t, s.Track(domain.BookConfig{
			ID:       id,
			Exchange: domain.ExchangeBinance,
			Symbol:   domain.SymbolBTC,
			Depth:    20,
		}))
		require.NoError(t, s.ApplyBook(id, domain.Book{
			Bids: []domain.PriceLevel{{Price: 100, Amount: 1}}, // 100 USD
			Asks: []domain.PriceLevel{{Price: 50, Amount: 1}},  // 50 USD
		}))
	}
	return s
}

func TestTick_SumsNotionalsAcrossBooks(t *testing.T) {
	a := NewAggregator(twoBookStore(t), 0, nil, slog.Default())

	state, _ := a.Tick(time.Now())
	assert.Equal(t, 200.0, state.TotalBidUSD)
	assert.Equal(t, 100.0, state.TotalAskUSD)
}

func TestTick_AveragesSpreadAndPrice(t *testing.T) {
	s := twoBookStore(t)
	require.NoError(t, s.ApplyPrice("a", 100))
	require.NoError(t, s.ApplyPrice("b", 200))
	a := NewAggregator(s, 0, nil, slog.Default())

	state, _ := a.Tick(time.Now())
	assert.Equal(t, 150.0, state.AvgPrice)
	// Both books are crossed the same way, so the mean equals each spread.
	v, err := s.View("a", domain.SortByUSD, book.ViewOptions{})
	require.NoError(t, err)
	assert.InDelta(t, v.SpreadBps, state.AvgSpreadBps, 1e-9)
}

func TestTick_MomentumNeedsTwoPriorSamples(t *testing.T) {
	s := twoBookStore(t)
	a := NewAggregator(s, 0, nil, slog.Default())

	require.NoError(t, s.ApplyPrice("a", 100))
	state, _ := a.Tick(time.Now())
	assert.Zero(t, state.Momentum) // no prior samples

	require.NoError(t, s.ApplyPrice("a", 110))
	state, _ = a.Tick(time.Now())
	assert.Zero(t, state.Momentum) // one prior sample

	require.NoError(t, s.ApplyPrice("a", 121))
	state, _ = a.Tick(time.Now())
	// Two ticks ago the average was 100.
	assert.InDelta(t, (121.0-100.0)/100.0, state.Momentum, 1e-9)
}

func TestTick_CarriesPriceForwardWhenNoTrades(t *testing.T) {
	s := twoBookStore(t)
	a := NewAggregator(s, 0, nil, slog.Default())

	require.NoError(t, s.ApplyPrice("a", 100))
	a.Tick(time.Now())

	// No new trades: the representative price repeats instead of dropping out.
	s.Untrack("a")
	state, _ := a.Tick(time.Now())
	assert.Equal(t, 100.0, state.AvgPrice)
	assert.Len(t, a.Series(), 2)
}

func TestTick_NoBooks(t *testing.T) {
	a := NewAggregator(book.NewStore(slog.Default()), 0, nil, slog.Default())

	state, sig := a.Tick(time.Now())
	assert.Zero(t, state.TotalBidUSD)
	assert.Equal(t, fallbackSpreadBps, state.AvgSpreadBps)
	assert.NotEmpty(t, sig.Color)
}

func TestTick_SignalAndLast(t *testing.T) {
	a := NewAggregator(twoBookStore(t), 0, nil, slog.Default())

	state, sig := a.Tick(time.Now())
	assert.Equal(t, SignalFromState(state), sig)

	lastState, lastSig := a.Last()
	assert.Equal(t, state, lastState)
	assert.Equal(t, sig, lastSig)
}
