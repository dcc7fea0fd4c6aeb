package book

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatslabs/tradeflow/internal/domain"
)

func newTestStore(t *testing.T, cfgs ...domain.BookConfig) *Store {
	t.Helper()
	s := NewStore(slog.Default())
	for _, cfg := range cfgs {
		require.NoError(t, s.Track(cfg))
	}
	return s
}

func cfg(id string) domain.BookConfig {
	return domain.BookConfig{
		ID:       id,
		Exchange: domain.ExchangeBinance,
		Symbol:   domain.SymbolBTC,
		Depth:    20,
	}
}

func TestTrack_Limits(t *testing.T) {
	s := newTestStore(t, cfg("a"), cfg("b"), cfg("c"), cfg("d"))

	err := s.Track(cfg("a"))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	err = s.Track(cfg("e"))
	assert.ErrorIs(t, err, domain.ErrTooManyBooks)

	s.Untrack("a")
	assert.NoError(t, s.Track(cfg("e")))
}

func TestTrack_ClampsConfig(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Track(domain.BookConfig{ID: "x", Depth: 999, MinNotionalUSD: -10}))

	got, err := s.Config("x")
	require.NoError(t, err)
	assert.Equal(t, domain.MaxDepth, got.Depth)
	assert.Equal(t, 0.0, got.MinNotionalUSD)
}

func TestApplyBook_EnforcesInvariant(t *testing.T) {
	s := newTestStore(t, cfg("a"))

	// Unsorted input with a duplicate price and a zero-amount level.
	require.NoError(t, s.ApplyBook("a", domain.Book{
		Bids: []domain.PriceLevel{
			{Price: 99, Amount: 1},
			{Price: 101, Amount: 2},
			{Price: 101, Amount: 4},
			{Price: 100, Amount: 0},
		},
		Asks: []domain.PriceLevel{
			{Price: 105, Amount: 1},
			{Price: 102, Amount: 2},
			{Price: 102, Amount: 9},
		},
	}))

	b, err := s.Snapshot("a")
	require.NoError(t, err)

	require.Len(t, b.Bids, 2)
	for i := 1; i < len(b.Bids); i++ {
		assert.Greater(t, b.Bids[i-1].Price, b.Bids[i].Price)
	}
	require.Len(t, b.Asks, 2)
	for i := 1; i < len(b.Asks); i++ {
		assert.Less(t, b.Asks[i-1].Price, b.Asks[i].Price)
	}
}

func TestView_FilterIsNonDestructive(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Track(domain.BookConfig{ID: "a", Depth: 20, MinNotionalUSD: 500}))

	require.NoError(t, s.ApplyBook("a", domain.Book{
		Bids: []domain.PriceLevel{{Price: 100, Amount: 10}, {Price: 99, Amount: 1}}, // 1000, 99 USD
		Asks: []domain.PriceLevel{{Price: 101, Amount: 10}, {Price: 102, Amount: 1}},
	}))

	v, err := s.View("a", domain.SortByUSD, ViewOptions{})
	require.NoError(t, err)
	require.Len(t, v.Bids, 1)
	assert.Equal(t, 100.0, v.Bids[0].Price)

	// The sub-threshold level stays in raw state.
	raw, err := s.Snapshot("a")
	require.NoError(t, err)
	assert.Len(t, raw.Bids, 2)

	// Dropping the threshold brings it back without a new update.
	require.NoError(t, s.UpdateConfig(domain.BookConfig{ID: "a", Depth: 20, MinNotionalUSD: 0}))
	v, err = s.View("a", domain.SortByUSD, ViewOptions{})
	require.NoError(t, err)
	assert.Len(t, v.Bids, 2)
}

func TestView_DepthTruncation(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Track(domain.BookConfig{ID: "a", Depth: 5}))

	var bids []domain.PriceLevel
	for i := 0; i < 30; i++ {
		bids = append(bids, domain.PriceLevel{Price: float64(1000 - i), Amount: 1})
	}
	require.NoError(t, s.ApplyBook("a", domain.Book{Bids: bids}))

	v, err := s.View("a", domain.SortByUSD, ViewOptions{})
	require.NoError(t, err)
	assert.Len(t, v.Bids, 5)
}

func TestView_SortModes(t *testing.T) {
	s := newTestStore(t, cfg("a"))
	require.NoError(t, s.ApplyBook("a", domain.Book{
		Bids: []domain.PriceLevel{
			{Price: 100, Amount: 3}, // 300 USD
			{Price: 99, Amount: 10}, // 990 USD
			{Price: 98, Amount: 1},  // 98 USD
		},
	}))

	v, err := s.View("a", domain.SortByUSD, ViewOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{990, 300, 98}, []float64{v.Bids[0].USD, v.Bids[1].USD, v.Bids[2].USD})

	v, err = s.View("a", domain.SortByCoin, ViewOptions{})
	require.NoError(t, err)
	assert.Equal(t, 10.0, v.Bids[0].Amount)

	v, err = s.View("a", domain.SortByPrice, ViewOptions{})
	require.NoError(t, err)
	assert.Equal(t, 100.0, v.Bids[0].Price)
}

func TestView_SpreadAndTotals(t *testing.T) {
	s := newTestStore(t, cfg("a"))
	require.NoError(t, s.ApplyBook("a", domain.Book{
		Bids: []domain.PriceLevel{{Price: 9990, Amount: 1}, {Price: 9980, Amount: 2}},
		Asks: []domain.PriceLevel{{Price: 10010, Amount: 1}},
	}))

	v, err := s.View("a", domain.SortByUSD, ViewOptions{})
	require.NoError(t, err)

	assert.Equal(t, 9990.0, v.BestBid)
	assert.Equal(t, 10010.0, v.BestAsk)
	assert.InDelta(t, (10010.0-9990.0)/10000.0*10000, v.SpreadBps, 1e-9)
	assert.InDelta(t, 9990+2*9980, v.TotalBidUSD, 1e-9)
	assert.InDelta(t, 10010, v.TotalAskUSD, 1e-9)
}

func TestSpreadBps_EmptySide(t *testing.T) {
	assert.Equal(t, 0.0, SpreadBps(0, 100))
	assert.Equal(t, 0.0, SpreadBps(100, 0))
}

func TestView_BigWallMarking(t *testing.T) {
	s := newTestStore(t, cfg("a"))
	require.NoError(t, s.ApplyBook("a", domain.Book{
		Bids: []domain.PriceLevel{{Price: 50000, Amount: 2}, {Price: 49999, Amount: 0.01}},
	}))

	v, err := s.View("a", domain.SortByUSD, ViewOptions{BigWallUSD: 50000})
	require.NoError(t, err)
	assert.True(t, v.Bids[0].Big)
	assert.False(t, v.Bids[1].Big)
}

func TestApplyPrice_SeriesAndStats(t *testing.T) {
	s := newTestStore(t, cfg("a"))

	for _, px := range []float64{100, 95, 110, 105} {
		require.NoError(t, s.ApplyPrice("a", px))
	}

	series, err := s.Series("a")
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 95, 110, 105}, series)

	stats, err := s.SessionStats("a")
	require.NoError(t, err)
	assert.Equal(t, Stats{Open: 100, Low: 95, High: 110}, stats)

	err = s.ApplyPrice("a", -1)
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)
}

func TestTickStats(t *testing.T) {
	s := newTestStore(t, cfg("a"), cfg("b"))
	for _, id := range []string{"a", "b"} {
		require.NoError(t, s.ApplyBook(id, domain.Book{
			Bids: []domain.PriceLevel{{Price: 100, Amount: 1}},
			Asks: []domain.PriceLevel{{Price: 50, Amount: 1}},
		}))
	}
	require.NoError(t, s.ApplyPrice("a", 75))

	stats := s.TickStats()
	require.Len(t, stats, 2)

	var bid, ask float64
	for _, st := range stats {
		bid += st.BidUSD
		ask += st.AskUSD
	}
	assert.Equal(t, 200.0, bid)
	assert.Equal(t, 100.0, ask)
}

func TestUnknownID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Snapshot("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.ApplyBook("nope", domain.Book{}), domain.ErrNotFound)
	assert.ErrorIs(t, s.ApplyPrice("nope", 1), domain.ErrNotFound)
}
