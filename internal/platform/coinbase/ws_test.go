package coinbase

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatslabs/tradeflow/internal/domain"
)

func newTestClient(onBook func(domain.Book), onPrice func(float64)) *Client {
	return NewClient("", domain.SymbolBTC, onBook, onPrice, slog.Default())
}

var snapshotFrame = []byte(`{
	"type": "snapshot",
	"bids": [["50000.00","1.5"],["49999.00","2.0"],["49998.50","0.3"]],
	"asks": [["50001.00","1.0"],["50002.00","0.8"]]
}`)

func TestSnapshot_SeedsSortedBook(t *testing.T) {
	var got domain.Book
	c := newTestClient(func(b domain.Book) { got = b }, nil)

	c.handleMessage(snapshotFrame)

	require.Len(t, got.Bids, 3)
	require.Len(t, got.Asks, 2)
	assert.Equal(t, domain.PriceLevel{Price: 50000, Amount: 1.5}, got.Bids[0])
	assert.Equal(t, domain.PriceLevel{Price: 49998.5, Amount: 0.3}, got.Bids[2])
	assert.Equal(t, domain.PriceLevel{Price: 50001, Amount: 1.0}, got.Asks[0])
	assert.Equal(t, domain.PriceLevel{Price: 50002, Amount: 0.8}, got.Asks[1])
}

func TestL2Update_ZeroSizeDeletesLevel(t *testing.T) {
	var got domain.Book
	c := newTestClient(func(b domain.Book) { got = b }, nil)

	c.handleMessage(snapshotFrame)
	c.handleMessage([]byte(`{"type":"l2update","changes":[["buy","49999.00","0"]]}`))

	require.Len(t, got.Bids, 2)
	for _, l := range got.Bids {
		assert.NotEqual(t, 49999.0, l.Price)
	}
}

func TestL2Update_InsertKeepsBookSorted(t *testing.T) {
	var got domain.Book
	c := newTestClient(func(b domain.Book) { got = b }, nil)

	c.handleMessage(snapshotFrame)
	c.handleMessage([]byte(`{"type":"l2update","changes":[["sell","50001.50","0.4"],["buy","49999.50","1.1"]]}`))

	require.Len(t, got.Bids, 4)
	require.Len(t, got.Asks, 3)
	for i := 1; i < len(got.Bids); i++ {
		assert.Greater(t, got.Bids[i-1].Price, got.Bids[i].Price)
	}
	for i := 1; i < len(got.Asks); i++ {
		assert.Less(t, got.Asks[i-1].Price, got.Asks[i].Price)
	}
	assert.Equal(t, domain.PriceLevel{Price: 50001.5, Amount: 0.4}, got.Asks[1])
}

func TestL2Update_UpsertReplacesSize(t *testing.T) {
	var got domain.Book
	c := newTestClient(func(b domain.Book) { got = b }, nil)

	c.handleMessage(snapshotFrame)
	c.handleMessage([]byte(`{"type":"l2update","changes":[["buy","50000.00","9.9"]]}`))

	require.Len(t, got.Bids, 3)
	assert.Equal(t, domain.PriceLevel{Price: 50000, Amount: 9.9}, got.Bids[0])
}

func TestSnapshot_ReplayIdempotent(t *testing.T) {
	var books []domain.Book
	c := newTestClient(func(b domain.Book) { books = append(books, b) }, nil)

	c.handleMessage(snapshotFrame)
	c.handleMessage(snapshotFrame)

	require.Len(t, books, 2)
	assert.Equal(t, books[0].Bids, books[1].Bids)
	assert.Equal(t, books[0].Asks, books[1].Asks)
}

func TestSnapshot_ResetsPreviousState(t *testing.T) {
	var got domain.Book
	c := newTestClient(func(b domain.Book) { got = b }, nil)

	c.handleMessage(snapshotFrame)
	c.handleMessage([]byte(`{"type":"snapshot","bids":[["100.00","1"]],"asks":[["101.00","1"]]}`))

	require.Len(t, got.Bids, 1)
	require.Len(t, got.Asks, 1)
	assert.Equal(t, 100.0, got.Bids[0].Price)
}

func TestTicker_EmitsPrice(t *testing.T) {
	var got float64
	c := newTestClient(nil, func(px float64) { got = px })

	c.handleMessage([]byte(`{"type":"ticker","price":"50123.45"}`))
	assert.Equal(t, 50123.45, got)
}

func TestMalformed_Dropped(t *testing.T) {
	var bookCalls, priceCalls int
	c := newTestClient(func(domain.Book) { bookCalls++ }, func(float64) { priceCalls++ })

	c.handleMessage([]byte(`not json`))
	c.handleMessage([]byte(`{"type":"ticker","price":"abc"}`))
	c.handleMessage([]byte(`{"type":"l2update"}`))
	c.handleMessage([]byte(`{"type":"unknown"}`))

	assert.Zero(t, bookCalls)
	assert.Zero(t, priceCalls)
}

func TestL2Update_UnparsableChangeSkipped(t *testing.T) {
	var got domain.Book
	c := newTestClient(func(b domain.Book) { got = b }, nil)

	c.handleMessage(snapshotFrame)
	c.handleMessage([]byte(`{"type":"l2update","changes":[["buy","bogus","1"],["sell","50003.00","0.2"]]}`))

	require.Len(t, got.Asks, 3)
	assert.Equal(t, 50003.0, got.Asks[2].Price)
}
