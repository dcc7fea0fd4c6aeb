// Package binance streams order-book depth and trades from the Binance
// combined WebSocket endpoint. Each depth message carries the full top-20
// view, so the book is replaced outright on every update; no incremental
// merge is needed.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gatslabs/tradeflow/internal/domain"
)

const (
	// DefaultWSURL is the Binance combined-stream endpoint.
	DefaultWSURL = "wss://stream.binance.com:9443/stream"

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxLevels caps the raw per-side depth kept from a depth message.
	maxLevels = 50
)

// Client subscribes to the combined depth20@100ms + trade stream for one
// symbol. Each depth frame replaces the whole book via the OnBook callback;
// each trade frame emits a price via OnPrice.
type Client struct {
	wsURL   string
	symbol  domain.Symbol
	onBook  func(domain.Book)
	onPrice func(float64)
	logger  *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client for the given symbol. The handlers must not
// block; they are invoked from the read loop.
func NewClient(wsURL string, symbol domain.Symbol, onBook func(domain.Book), onPrice func(float64), logger *slog.Logger) *Client {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &Client{
		wsURL:   wsURL,
		symbol:  symbol,
		onBook:  onBook,
		onPrice: onPrice,
		logger:  logger.With(slog.String("component", "binance_ws"), slog.String("symbol", string(symbol))),
		done:    make(chan struct{}),
	}
}

// streamURL builds the combined-stream URL, e.g.
// wss://stream.binance.com:9443/stream?streams=btcusdt@depth20@100ms/btcusdt@trade
func (c *Client) streamURL() string {
	s := strings.ToLower(string(c.symbol) + "USDT")
	return fmt.Sprintf("%s?streams=%s@depth20@100ms/%s@trade", c.wsURL, s, s)
}

// Connect dials the endpoint and starts the read and ping loops. The
// subscription is encoded in the URL, so no subscribe frame is needed.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("binance/ws: connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop(conn)
	go c.pingLoop(conn)
	return nil
}

// Done is closed when the read loop exits, i.e. the socket can no longer be
// maintained.
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

// handleMessage dispatches one combined-stream frame. Malformed frames are
// dropped; the connection stays open.
func (c *Client) handleMessage(raw []byte) {
	var frame combinedFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Stream == "" || len(frame.Data) == 0 {
		c.logger.Debug("dropping malformed frame")
		return
	}

	if strings.HasSuffix(frame.Stream, "@trade") {
		var tr tradePayload
		if err := json.Unmarshal(frame.Data, &tr); err != nil {
			return
		}
		px, err := strconv.ParseFloat(tr.Price, 64)
		if err != nil || px <= 0 {
			return
		}
		if c.onPrice != nil {
			c.onPrice(px)
		}
		return
	}

	var d depthPayload
	if err := json.Unmarshal(frame.Data, &d); err != nil {
		c.logger.Debug("dropping malformed depth payload")
		return
	}
	bids := d.Bids
	if len(bids) == 0 {
		bids = d.BidsAlt
	}
	asks := d.Asks
	if len(asks) == 0 {
		asks = d.AsksAlt
	}

	book := domain.Book{
		Bids:      parseLevels(bids),
		Asks:      parseLevels(asks),
		Timestamp: time.UnixMilli(d.EventTime),
	}
	if d.EventTime == 0 {
		book.Timestamp = time.Now()
	}
	book.Normalize()
	if c.onBook != nil {
		c.onBook(book)
	}
}

// parseLevels converts [priceStr, amountStr] pairs, skipping unparsable
// entries, truncated to maxLevels.
func parseLevels(raw [][2]string) []domain.PriceLevel {
	if len(raw) > maxLevels {
		raw = raw[:maxLevels]
	}
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			continue
		}
		amount, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Amount: amount})
	}
	return out
}
