package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenBook_Deterministic(t *testing.T) {
	a := GenBook(50000, 20, 7)
	b := GenBook(50000, 20, 7)

	assert.Equal(t, a.Bids, b.Bids)
	assert.Equal(t, a.Asks, b.Asks)
	assert.Equal(t, a.LastTrade, b.LastTrade)
}

func TestGenBook_SeedChangesBook(t *testing.T) {
	a := GenBook(50000, 20, 1)
	b := GenBook(50000, 20, 2)
	assert.NotEqual(t, a.Bids, b.Bids)
}

func TestGenBook_SidesOrdered(t *testing.T) {
	b := GenBook(50000, 30, 3)
	require.NotEmpty(t, b.Bids)
	require.NotEmpty(t, b.Asks)

	for i := 1; i < len(b.Bids); i++ {
		assert.Greater(t, b.Bids[i-1].Price, b.Bids[i].Price)
	}
	for i := 1; i < len(b.Asks); i++ {
		assert.Less(t, b.Asks[i-1].Price, b.Asks[i].Price)
	}
	for _, l := range append(b.Bids, b.Asks...) {
		assert.Greater(t, l.Price, 0.0)
		assert.Greater(t, l.Amount, 0.0)
	}
}

func TestGenBook_BestPricesStraddleMid(t *testing.T) {
	const mid = 42000.0
	b := GenBook(mid, 10, 5)
	assert.LessOrEqual(t, b.Bids[0].Price, mid)
	assert.GreaterOrEqual(t, b.Asks[0].Price, mid)
}
