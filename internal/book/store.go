// Package book owns the current normalized order book per tracked
// configuration. Each config's book has a single writer (its adapter or
// simulator goroutine); the aggregation tick and the API read last-known
// state through atomic snapshot pointers and guarded copies, so a slow feed
// never blocks a reader.
package book

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gatslabs/tradeflow/internal/domain"
)

// rawLevels caps the unfiltered per-side depth kept in the store.
const rawLevels = 50

// Stats summarizes the session trade-price range of one book.
type Stats struct {
	Open float64 `json:"open"`
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// TickStat is the per-book input consumed by the aggregation tick, computed
// from the filtered view.
type TickStat struct {
	ID        string
	BidUSD    float64
	AskUSD    float64
	SpreadBps float64
	LastPrice float64 // 0 when the book has not traded yet
}

// tracked bundles the state owned for one config. The book pointer is written
// only by the config's feed goroutine; mu guards the config, the price series
// and the session stats.
type tracked struct {
	book atomic.Pointer[domain.Book]

	mu        sync.Mutex
	cfg       domain.BookConfig
	series    *domain.PriceSeries
	lastTrade float64
	stats     Stats
}

// Store holds the current book per tracked config.
type Store struct {
	mu     sync.RWMutex
	books  map[string]*tracked
	logger *slog.Logger
}

// NewStore creates an empty store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		books:  make(map[string]*tracked),
		logger: logger.With(slog.String("component", "book_store")),
	}
}

// Track registers a config. Out-of-range depth and min-notional values are
// clamped, never rejected. At most domain.MaxActiveBooks configs may be
// tracked at once.
func (s *Store) Track(cfg domain.BookConfig) error {
	cfg.Clamp()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[cfg.ID]; ok {
		return fmt.Errorf("book: track %s: %w", cfg.ID, domain.ErrAlreadyExists)
	}
	if len(s.books) >= domain.MaxActiveBooks {
		return fmt.Errorf("book: track %s: %w", cfg.ID, domain.ErrTooManyBooks)
	}

	tr := &tracked{cfg: cfg, series: domain.NewPriceSeries()}
	empty := domain.Book{}
	tr.book.Store(&empty)
	s.books[cfg.ID] = tr

	s.logger.Info("tracking book",
		slog.String("id", cfg.ID),
		slog.String("exchange", string(cfg.Exchange)),
		slog.String("symbol", string(cfg.Symbol)),
	)
	return nil
}

// Untrack removes a config and releases its book and series state.
func (s *Store) Untrack(id string) {
	s.mu.Lock()
	delete(s.books, id)
	s.mu.Unlock()
	s.logger.Info("untracked book", slog.String("id", id))
}

// UpdateConfig replaces a tracked config in place. Depth and min-notional
// changes only affect the filtered view; callers handle feed recreation for
// exchange or symbol changes.
func (s *Store) UpdateConfig(cfg domain.BookConfig) error {
	cfg.Clamp()
	tr, err := s.tracked(cfg.ID)
	if err != nil {
		return err
	}
	tr.mu.Lock()
	tr.cfg = cfg
	tr.mu.Unlock()
	return nil
}

// Config returns the tracked config for id.
func (s *Store) Config(id string) (domain.BookConfig, error) {
	tr, err := s.tracked(id)
	if err != nil {
		return domain.BookConfig{}, err
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.cfg, nil
}

// Configs returns all tracked configs.
func (s *Store) Configs() []domain.BookConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.BookConfig, 0, len(s.books))
	for _, tr := range s.books {
		tr.mu.Lock()
		out = append(out, tr.cfg)
		tr.mu.Unlock()
	}
	return out
}

// ApplyBook replaces the raw book for id. The book is normalized and
// truncated to the raw per-side cap; a last-trade price carried on the book
// is adopted as a price sample.
func (s *Store) ApplyBook(id string, b domain.Book) error {
	tr, err := s.tracked(id)
	if err != nil {
		return err
	}

	b.Normalize()
	if len(b.Bids) > rawLevels {
		b.Bids = b.Bids[:rawLevels]
	}
	if len(b.Asks) > rawLevels {
		b.Asks = b.Asks[:rawLevels]
	}
	tr.book.Store(&b)
	return nil
}

// ApplyPrice records a trade price for id: it becomes the last-trade price,
// is appended to the book's price series, and advances the session stats.
func (s *Store) ApplyPrice(id string, px float64) error {
	if px <= 0 {
		return fmt.Errorf("book: apply price %s: %w", id, domain.ErrMalformedMessage)
	}
	tr, err := s.tracked(id)
	if err != nil {
		return err
	}

	tr.mu.Lock()
	tr.lastTrade = px
	tr.series.Push(px)
	if tr.stats.Open == 0 {
		tr.stats = Stats{Open: px, Low: px, High: px}
	} else {
		if px < tr.stats.Low {
			tr.stats.Low = px
		}
		if px > tr.stats.High {
			tr.stats.High = px
		}
	}
	tr.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current raw book for id, with the last
// observed trade price filled in.
func (s *Store) Snapshot(id string) (domain.Book, error) {
	tr, err := s.tracked(id)
	if err != nil {
		return domain.Book{}, err
	}
	b := *tr.book.Load()
	tr.mu.Lock()
	if tr.lastTrade > 0 {
		b.LastTrade = tr.lastTrade
	}
	tr.mu.Unlock()
	return b, nil
}

// Series returns a copy of the price series for id, oldest first.
func (s *Store) Series(id string) ([]float64, error) {
	tr, err := s.tracked(id)
	if err != nil {
		return nil, err
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.series.Values(), nil
}

// SeriesAll returns a copy of every tracked book's price series keyed by id.
func (s *Store) SeriesAll() map[string][]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]float64, len(s.books))
	for id, tr := range s.books {
		tr.mu.Lock()
		out[id] = tr.series.Values()
		tr.mu.Unlock()
	}
	return out
}

// SessionStats returns the session open/low/high trade prices for id.
func (s *Store) SessionStats(id string) (Stats, error) {
	tr, err := s.tracked(id)
	if err != nil {
		return Stats{}, err
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.stats, nil
}

// TickStats computes the aggregation-tick inputs for every tracked book from
// its filtered view. The reads are eventually consistent across configs; no
// cross-config lock is taken.
func (s *Store) TickStats() []TickStat {
	s.mu.RLock()
	ids := make([]string, 0, len(s.books))
	for id := range s.books {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make([]TickStat, 0, len(ids))
	for _, id := range ids {
		v, err := s.View(id, domain.SortByUSD, ViewOptions{})
		if err != nil {
			continue
		}
		tr, err := s.tracked(id)
		if err != nil {
			continue
		}
		tr.mu.Lock()
		last := tr.lastTrade
		tr.mu.Unlock()

		out = append(out, TickStat{
			ID:        id,
			BidUSD:    v.TotalBidUSD,
			AskUSD:    v.TotalAskUSD,
			SpreadBps: v.SpreadBps,
			LastPrice: last,
		})
	}
	return out
}

func (s *Store) tracked(id string) (*tracked, error) {
	s.mu.RLock()
	tr, ok := s.books[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("book: %s: %w", id, domain.ErrNotFound)
	}
	return tr, nil
}
