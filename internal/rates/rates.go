// Package rates provides the Currency -> multiplier lookup applied to USD
// notionals for display. It starts from demo fallback rates and can refresh
// them periodically from public endpoints; the engine only ever sees the
// pure Rate lookup.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gatslabs/tradeflow/internal/domain"
)

const (
	// DefaultRefreshInterval is how often live rates are re-fetched.
	DefaultRefreshInterval = time.Minute

	fiatURL = "https://api.exchangerate.host/latest?base=USD&symbols=AUD,RUB"
	btcURL  = "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd"
)

// defaultRates are the demo fallbacks used until a fetch succeeds.
var defaultRates = map[domain.Currency]float64{
	domain.CurrencyUSD: 1,
	domain.CurrencyAUD: 1.5,
	domain.CurrencyRUB: 90,
	domain.CurrencyBTC: 1.0 / 50000,
}

// Service holds the current conversion rates. Lookups never fail; unknown
// currencies convert at 1 (USD).
type Service struct {
	interval time.Duration
	httpc    *http.Client
	logger   *slog.Logger
	fiatURL  string
	btcURL   string

	mu    sync.RWMutex
	rates map[domain.Currency]float64
}

// NewService creates a Service seeded with the fallback rates. interval <= 0
// selects the default refresh cadence.
func NewService(interval time.Duration, logger *slog.Logger) *Service {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	rates := make(map[domain.Currency]float64, len(defaultRates))
	for c, r := range defaultRates {
		rates[c] = r
	}
	return &Service{
		interval: interval,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		logger:   logger.With(slog.String("component", "rates")),
		fiatURL:  fiatURL,
		btcURL:   btcURL,
		rates:    rates,
	}
}

// Rate returns the multiplier from USD to the given currency.
func (s *Service) Rate(c domain.Currency) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.rates[c]; ok {
		return r
	}
	return 1
}

// Convert applies the currency multiplier to a USD amount.
func (s *Service) Convert(usd float64, c domain.Currency) float64 {
	return usd * s.Rate(c)
}

// All returns a copy of the current rate table.
func (s *Service) All() map[domain.Currency]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.Currency]float64, len(s.rates))
	for c, r := range s.rates {
		out[c] = r
	}
	return out
}

// Run refreshes the rates on the configured interval until ctx is cancelled.
// Fetch failures keep the previous rates; the loop never stops on error.
func (s *Service) Run(ctx context.Context) error {
	s.refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Service) refresh(ctx context.Context) {
	if aud, rub, err := s.fetchFiat(ctx); err != nil {
		s.logger.Debug("fiat rates fetch failed", slog.String("error", err.Error()))
	} else {
		s.mu.Lock()
		s.rates[domain.CurrencyAUD] = aud
		s.rates[domain.CurrencyRUB] = rub
		s.mu.Unlock()
	}

	if btcUSD, err := s.fetchBTC(ctx); err != nil {
		s.logger.Debug("btc rate fetch failed", slog.String("error", err.Error()))
	} else if btcUSD > 0 {
		s.mu.Lock()
		s.rates[domain.CurrencyBTC] = 1 / btcUSD
		s.mu.Unlock()
	}
}

func (s *Service) fetchFiat(ctx context.Context) (aud, rub float64, err error) {
	var body struct {
		Rates struct {
			AUD float64 `json:"AUD"`
			RUB float64 `json:"RUB"`
		} `json:"rates"`
	}
	if err := s.getJSON(ctx, s.fiatURL, &body); err != nil {
		return 0, 0, err
	}
	if body.Rates.AUD <= 0 || body.Rates.RUB <= 0 {
		return 0, 0, fmt.Errorf("rates: fiat response missing rates")
	}
	return body.Rates.AUD, body.Rates.RUB, nil
}

func (s *Service) fetchBTC(ctx context.Context) (float64, error) {
	var body struct {
		Bitcoin struct {
			USD float64 `json:"usd"`
		} `json:"bitcoin"`
	}
	if err := s.getJSON(ctx, s.btcURL, &body); err != nil {
		return 0, err
	}
	if body.Bitcoin.USD <= 0 {
		return 0, fmt.Errorf("rates: btc response missing price")
	}
	return body.Bitcoin.USD, nil
}

func (s *Service) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("rates: build request: %w", err)
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("rates: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rates: fetch %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rates: decode %s: %w", url, err)
	}
	return nil
}
