// Package domain defines the core data model shared by the feed adapters,
// the book store, and the aggregation and signal engines.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Exchange identifies a supported upstream venue.
type Exchange string

const (
	ExchangeBinance  Exchange = "Binance"
	ExchangeBitfinex Exchange = "Bitfinex"
	ExchangeCoinbase Exchange = "Coinbase"
)

// ParseExchange normalizes a case-insensitive exchange name.
func ParseExchange(s string) (Exchange, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "binance":
		return ExchangeBinance, nil
	case "bitfinex":
		return ExchangeBitfinex, nil
	case "coinbase":
		return ExchangeCoinbase, nil
	default:
		return "", fmt.Errorf("domain: unknown exchange %q", s)
	}
}

// Symbol is a tracked base asset, quoted against USD (or USDT on Binance).
type Symbol string

const (
	SymbolBTC Symbol = "BTC"
	SymbolETH Symbol = "ETH"
	SymbolXRP Symbol = "XRP"
)

// ParseSymbol normalizes a case-insensitive symbol name.
func ParseSymbol(s string) (Symbol, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BTC":
		return SymbolBTC, nil
	case "ETH":
		return SymbolETH, nil
	case "XRP":
		return SymbolXRP, nil
	default:
		return "", fmt.Errorf("domain: unknown symbol %q", s)
	}
}

// PriceLevel is a single price+amount entry in an order book. An amount of
// zero means "remove this level" in delta protocols.
type PriceLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// Book is a normalized two-sided depth view. Bids are strictly descending and
// asks strictly ascending by price, best price first on both sides, with no
// duplicate prices per side. Adapters and the simulator produce Books; the
// store owns the current one per tracked config.
type Book struct {
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"ts"`
	LastTrade float64      `json:"last_trade,omitempty"` // 0 when no trade seen yet
}

// Normalize enforces the Book ordering invariant in place: drops levels with
// non-positive price or amount, sorts bids descending and asks ascending, and
// collapses duplicate prices keeping the first occurrence in sorted order.
func (b *Book) Normalize() {
	b.Bids = normalizeSide(b.Bids, func(a, c PriceLevel) bool { return a.Price > c.Price })
	b.Asks = normalizeSide(b.Asks, func(a, c PriceLevel) bool { return a.Price < c.Price })
}

func normalizeSide(levels []PriceLevel, less func(a, b PriceLevel) bool) []PriceLevel {
	out := levels[:0]
	for _, l := range levels {
		if l.Price > 0 && l.Amount > 0 {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	dedup := out[:0]
	for i, l := range out {
		if i > 0 && l.Price == dedup[len(dedup)-1].Price {
			continue
		}
		dedup = append(dedup, l)
	}
	return dedup
}

// BookConfig identifies one tracked order book: which adapter to run and how
// to post-filter the resulting book for downstream consumers.
type BookConfig struct {
	ID             string   `json:"id"`
	Exchange       Exchange `json:"exchange"`
	Symbol         Symbol   `json:"symbol"`
	Depth          int      `json:"depth"`
	MinNotionalUSD float64  `json:"min_notional_usd"`
}

const (
	// MinDepth and MaxDepth bound the per-side depth of a filtered view.
	MinDepth = 5
	MaxDepth = 50

	// DefaultDepth is used when a config omits the depth.
	DefaultDepth = 20

	// MaxActiveBooks caps how many configs may be tracked at once.
	MaxActiveBooks = 4
)

// Clamp pulls out-of-range values to the nearest valid bound. Invalid config
// values are never rejected (a zero depth becomes the default).
func (c *BookConfig) Clamp() {
	if c.Depth == 0 {
		c.Depth = DefaultDepth
	}
	if c.Depth < MinDepth {
		c.Depth = MinDepth
	}
	if c.Depth > MaxDepth {
		c.Depth = MaxDepth
	}
	if c.MinNotionalUSD < 0 {
		c.MinNotionalUSD = 0
	}
}

// ConnectionState tracks which source currently feeds a config's book.
type ConnectionState int32

const (
	StateConnecting ConnectionState = iota
	StateLive
	StateSimulated
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateSimulated:
		return "simulated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state as its lowercase name for JSON payloads.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SortBy selects the ordering of a filtered book view. All orderings are
// descending.
type SortBy string

const (
	SortByUSD   SortBy = "USD"
	SortByCoin  SortBy = "COIN"
	SortByPrice SortBy = "PRICE"
)
