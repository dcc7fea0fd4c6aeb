// Package coinbase streams the level2 order-book and ticker channels from the
// Coinbase Exchange WebSocket feed. Unlike the other venues, level2 is a
// snapshot+delta protocol: an initial snapshot seeds per-side price maps and
// each l2update mutates them incrementally, so the client carries true
// reconciliation state between messages.
package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gatslabs/tradeflow/internal/domain"
)

const (
	// DefaultWSURL is the Coinbase Exchange WebSocket feed endpoint.
	DefaultWSURL = "wss://ws-feed.exchange.coinbase.com"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// snapshotLevels is how many levels per side are seeded from the snapshot.
	snapshotLevels = 80

	// bookLevels is the per-side depth of the derived sorted book.
	bookLevels = 50
)

// Client maintains two price→size maps (one per side) reconciled from the
// level2 stream and re-derives a sorted Book after every update. Ticker
// messages emit a price.
type Client struct {
	wsURL   string
	product string
	onBook  func(domain.Book)
	onPrice func(float64)
	logger  *slog.Logger

	// bids and asks are only touched from the read loop (single writer).
	bids map[float64]float64
	asks map[float64]float64

	mu   sync.Mutex
	conn *websocket.Conn

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client for the given symbol's USD product. The handlers
// must not block; they are invoked from the read loop.
func NewClient(wsURL string, symbol domain.Symbol, onBook func(domain.Book), onPrice func(float64), logger *slog.Logger) *Client {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	product := string(symbol) + "-USD"
	return &Client{
		wsURL:   wsURL,
		product: product,
		onBook:  onBook,
		onPrice: onPrice,
		logger:  logger.With(slog.String("component", "coinbase_ws"), slog.String("product", product)),
		bids:    make(map[float64]float64),
		asks:    make(map[float64]float64),
		done:    make(chan struct{}),
	}
}

// Connect dials the feed, subscribes to level2 and ticker for the product,
// and starts the read and ping loops.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("coinbase/ws: connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	sub := subscribeMsg{
		Type:       "subscribe",
		ProductIDs: []string{c.product},
		Channels:   []string{"level2", "ticker"},
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return fmt.Errorf("coinbase/ws: subscribe: %w", err)
	}

	go c.readLoop(conn)
	go c.pingLoop(conn)
	return nil
}

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close tears down the connection. Safe to call multiple times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.mu.Unlock()
	})
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer close(c.done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.logger.Debug("read loop exiting", slog.String("error", err.Error()))
			return
		}
		c.handleMessage(raw)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage applies one typed frame to the reconciliation state.
// Malformed frames are dropped; the connection stays open.
func (c *Client) handleMessage(raw []byte) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Debug("dropping malformed frame")
		return
	}

	switch msg.Type {
	case "snapshot":
		c.applySnapshot(msg)
	case "l2update":
		c.applyChanges(msg.Changes)
	case "ticker":
		px, err := strconv.ParseFloat(msg.Price, 64)
		if err != nil || px <= 0 {
			return
		}
		if c.onPrice != nil {
			c.onPrice(px)
		}
	case "error":
		c.logger.Warn("feed error", slog.String("message", msg.Message))
	}
}

// applySnapshot resets both maps from the top snapshotLevels per side and
// emits the derived book.
func (c *Client) applySnapshot(msg message) {
	clear(c.bids)
	clear(c.asks)
	seedSide(c.bids, msg.Bids)
	seedSide(c.asks, msg.Asks)
	c.emitBook()
}

func seedSide(m map[float64]float64, raw [][2]string) {
	if len(raw) > snapshotLevels {
		raw = raw[:snapshotLevels]
	}
	for _, pair := range raw {
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			continue
		}
		m[price] = size
	}
}

// applyChanges upserts or deletes levels per change entry. A size of zero
// deletes the price level; any other size replaces it.
func (c *Client) applyChanges(changes [][3]string) {
	if len(changes) == 0 {
		return
	}
	for _, ch := range changes {
		side, priceStr, sizeStr := ch[0], ch[1], ch[2]
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(sizeStr, 64)
		if err != nil {
			continue
		}
		m := c.asks
		if side == "buy" {
			m = c.bids
		}
		if size == 0 {
			delete(m, price)
		} else {
			m[price] = size
		}
	}
	c.emitBook()
}

// emitBook derives a sorted Book from the maps, bids descending and asks
// ascending, truncated to bookLevels per side.
func (c *Client) emitBook() {
	if c.onBook == nil {
		return
	}
	book := domain.Book{
		Bids:      sideLevels(c.bids, func(a, b float64) bool { return a > b }),
		Asks:      sideLevels(c.asks, func(a, b float64) bool { return a < b }),
		Timestamp: time.Now(),
	}
	c.onBook(book)
}

func sideLevels(m map[float64]float64, less func(a, b float64) bool) []domain.PriceLevel {
	prices := make([]float64, 0, len(m))
	for p := range m {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool { return less(prices[i], prices[j]) })
	if len(prices) > bookLevels {
		prices = prices[:bookLevels]
	}
	out := make([]domain.PriceLevel, 0, len(prices))
	for _, p := range prices {
		out = append(out, domain.PriceLevel{Price: p, Amount: m[p]})
	}
	return out
}
