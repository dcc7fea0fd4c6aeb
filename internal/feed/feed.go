// Package feed runs one live feed per tracked book config and owns the
// fallback policy: when a venue connection cannot be established or
// maintained, the config degrades to the deterministic simulator for the
// rest of its life.
package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gatslabs/tradeflow/internal/domain"
	"github.com/gatslabs/tradeflow/internal/platform/binance"
	"github.com/gatslabs/tradeflow/internal/platform/bitfinex"
	"github.com/gatslabs/tradeflow/internal/platform/coinbase"
)

// Adapter is a connected venue feed. Done is closed when the socket can no
// longer be maintained; Close is idempotent.
type Adapter interface {
	Connect(ctx context.Context) error
	Done() <-chan struct{}
	Close()
}

// DialFunc establishes a venue feed for a config. It exists so tests can
// substitute fake adapters.
type DialFunc func(ctx context.Context, cfg domain.BookConfig, onBook func(domain.Book), onPrice func(float64), logger *slog.Logger) (Adapter, error)

// Dial selects the adapter for the config's exchange and connects it.
func Dial(ctx context.Context, cfg domain.BookConfig, onBook func(domain.Book), onPrice func(float64), logger *slog.Logger) (Adapter, error) {
	var a Adapter
	switch cfg.Exchange {
	case domain.ExchangeBinance:
		a = binance.NewClient("", cfg.Symbol, onBook, onPrice, logger)
	case domain.ExchangeBitfinex:
		a = bitfinex.NewClient("", cfg.Symbol, onBook, onPrice, logger)
	case domain.ExchangeCoinbase:
		a = coinbase.NewClient("", cfg.Symbol, onBook, onPrice, logger)
	default:
		return nil, fmt.Errorf("feed: dial %s: unknown exchange %q", cfg.ID, cfg.Exchange)
	}
	if err := a.Connect(ctx); err != nil {
		return nil, err
	}
	return a, nil
}
