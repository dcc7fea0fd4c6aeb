// Package bitfinex streams order-book and trade data from the Bitfinex v2
// WebSocket API. Both channels share one connection; the server assigns an
// integer channel id per subscription and all subsequent data frames are
// arrays keyed by that id.
package bitfinex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gatslabs/tradeflow/internal/domain"
)

const (
	// DefaultWSURL is the public Bitfinex v2 WebSocket endpoint.
	DefaultWSURL = "wss://api-pub.bitfinex.com/ws/2"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// bookLen is the requested book length at precision P0.
	bookLen = 25
)

// Client subscribes to the book (P0, 25 levels) and trades channels for one
// symbol. Every nested-array book payload replaces the whole book; flat
// single-level update frames are ignored, preserving the replace semantics of
// the reference behavior. Trade executions ("te"/"tu") emit a price.
type Client struct {
	wsURL   string
	symbol  domain.Symbol
	onBook  func(domain.Book)
	onPrice func(float64)
	logger  *slog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	chanBook   int
	chanTrades int

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
		wsURL:      wsURL,
		symbol:     symbol,
		onBook:     onBook,
		onPrice:    onPrice,
		logger:     logger.With(slog.String("component", "bitfinex_ws"), slog.String("symbol", string(symbol))),
		chanBook:   -1,
		chanTrades: -1,
		done:       make(chan struct{}),
	}
}

// pairSymbol renders the trading-pair symbol, e.g. "tBTCUSD".
func (c *Client) pairSymbol() string {
	return "t" + string(c.symbol) + "USD"
}

// Connect dials the endpoint, sends both subscribe frames, and starts the
// read and ping loops.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("bitfinex/ws: connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	subs := []subscribeMsg{
		{Event: "subscribe", Channel: "book", Symbol: c.pairSymbol(), Prec: "P0", Freq: "F0", Len: bookLen},
		{Event: "subscribe", Channel: "trades", Symbol: c.pairSymbol()},
	}
	for _, sub := range subs {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(sub); err != nil {
			_ = conn.Close()
			return fmt.Errorf("bitfinex/ws: subscribe %s: %w", sub.Channel, err)
		}
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

// handleMessage dispatches one frame. Object frames carry subscription
// events; array frames carry channel data demultiplexed by channel id.
func (c *Client) handleMessage(raw []byte) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return
	}

	if raw[0] == '{' {
		var ev eventMsg
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.logger.Debug("dropping malformed event frame")
			return
		}
		c.handleEvent(ev)
		return
	}
	if raw[0] != '[' {
		return
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame) < 2 {
		c.logger.Debug("dropping malformed array frame")
		return
	}
	var chanID int
	if err := json.Unmarshal(frame[0], &chanID); err != nil {
		return
	}

	// Heartbeats keep the channel alive but carry no data.
	if isHeartbeat(frame[1]) {
		return
	}

	c.mu.Lock()
	book, trades := c.chanBook, c.chanTrades
	c.mu.Unlock()

	switch chanID {
	case book:
		c.handleBookFrame(frame[1])
	case trades:
		c.handleTradeFrame(frame[1:])
	}
}

func (c *Client) handleEvent(ev eventMsg) {
	switch ev.Event {
	case "subscribed":
		c.mu.Lock()
		switch ev.Channel {
		case "book":
			c.chanBook = ev.ChanID
		case "trades":
			c.chanTrades = ev.ChanID
		}
		c.mu.Unlock()
		c.logger.Info("channel subscribed",
			slog.String("channel", ev.Channel),
			slog.Int("chan_id", ev.ChanID),
		)
	case "error":
		c.logger.Warn("subscription error",
			slog.Int("code", ev.Code),
			slog.String("msg", ev.Msg),
		)
	}
}

// handleBookFrame replaces the book from a snapshot payload: an array of
// [price, count, amount] rows where amount > 0 is a bid and amount < 0 an ask
// (stored as abs). Flat single-row updates are not merged.
func (c *Client) handleBookFrame(payload json.RawMessage) {
	var rows [][]float64
	if err := json.Unmarshal(payload, &rows); err != nil {
		// A flat [price, count, amount] update; replace semantics only.
		return
	}

	book := domain.Book{Timestamp: time.Now()}
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		price, amount := row[0], row[2]
		level := domain.PriceLevel{Price: price, Amount: math.Abs(amount)}
		if amount > 0 {
			book.Bids = append(book.Bids, level)
		} else {
			book.Asks = append(book.Asks, level)
		}
	}
	book.Normalize()
	if c.onBook != nil {
		c.onBook(book)
	}
}

// handleTradeFrame emits the price of a trade execution frame, shaped
// ["te"|"tu", [id, mts, amount, price]]. Trade snapshots (a nested array in
// place of the type tag) are ignored.
func (c *Client) handleTradeFrame(rest []json.RawMessage) {
	if len(rest) < 2 {
		return
	}
	var typ string
	if err := json.Unmarshal(rest[0], &typ); err != nil {
		return
	}
	if typ != "te" && typ != "tu" {
		return
	}
	var trade []float64
	if err := json.Unmarshal(rest[1], &trade); err != nil || len(trade) < 4 {
		c.logger.Debug("dropping malformed trade payload")
		return
	}
	px := trade[3]
	if px <= 0 {
		return
	}
	if c.onPrice != nil {
		c.onPrice(px)
	}
}

func isHeartbeat(payload json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(payload), []byte(`"hb"`))
}
