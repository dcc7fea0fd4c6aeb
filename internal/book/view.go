package book

import (
	"sort"

	"github.com/gatslabs/tradeflow/internal/domain"
)

// Row is one filtered view level annotated with its USD notional. Big marks
// rows whose converted notional crosses the big-wall threshold.
type Row = domain.ViewRow

// View is the depth- and notional-filtered projection of a raw book that
// downstream consumers read. Filtering never mutates the raw state.
type View struct {
	Bids        []Row   `json:"bids"`
	Asks        []Row   `json:"asks"`
	BestBid     float64 `json:"best_bid"`
	BestAsk     float64 `json:"best_ask"`
	SpreadBps   float64 `json:"spread_bps"`
	TotalBidUSD float64 `json:"total_bid_usd"`
	TotalAskUSD float64 `json:"total_ask_usd"`
	LastTrade   float64 `json:"last_trade,omitempty"`
}

// ViewOptions carries display parameters that do not live on the BookConfig.
type ViewOptions struct {
	// Rate converts USD notionals before the big-wall comparison. Zero
	// means 1 (USD display).
	Rate float64

	// BigWallUSD is the big-wall threshold in the display currency. Zero
	// disables the marking.
	BigWallUSD float64
}

// View projects the current raw book for id through the config's depth and
// min-notional filter and sorts both sides by the given key, descending.
func (s *Store) View(id string, sortBy domain.SortBy, opts ViewOptions) (View, error) {
	tr, err := s.tracked(id)
	if err != nil {
		return View{}, err
	}

	raw := tr.book.Load()
	tr.mu.Lock()
	cfg := tr.cfg
	last := tr.lastTrade
	tr.mu.Unlock()

	rate := opts.Rate
	if rate <= 0 {
		rate = 1
	}

	v := View{
		Bids:      filterSide(raw.Bids, cfg, sortBy, rate, opts.BigWallUSD),
		Asks:      filterSide(raw.Asks, cfg, sortBy, rate, opts.BigWallUSD),
		LastTrade: last,
	}
	for _, r := range v.Bids {
		v.TotalBidUSD += r.USD
		if r.Price > v.BestBid {
			v.BestBid = r.Price
		}
	}
	for _, r := range v.Asks {
		v.TotalAskUSD += r.USD
		if v.BestAsk == 0 || r.Price < v.BestAsk {
			v.BestAsk = r.Price
		}
	}
	v.SpreadBps = SpreadBps(v.BestBid, v.BestAsk)
	return v, nil
}

// filterSide maps raw levels to annotated rows, drops rows under the
// min-notional threshold, truncates to the configured depth, and sorts by the
// requested key descending.
func filterSide(levels []domain.PriceLevel, cfg domain.BookConfig, sortBy domain.SortBy, rate, bigWall float64) []Row {
	rows := make([]Row, 0, len(levels))
	for _, l := range levels {
		usd := l.Price * l.Amount
		if usd < cfg.MinNotionalUSD {
			continue
		}
		rows = append(rows, Row{
			Price:  l.Price,
			Amount: l.Amount,
			USD:    usd,
			Big:    bigWall > 0 && usd*rate >= bigWall,
		})
	}
	if len(rows) > cfg.Depth {
		rows = rows[:cfg.Depth]
	}

	key := func(r Row) float64 { return r.USD }
	switch sortBy {
	case domain.SortByCoin:
		key = func(r Row) float64 { return r.Amount }
	case domain.SortByPrice:
		key = func(r Row) float64 { return r.Price }
	}
	sort.SliceStable(rows, func(i, j int) bool { return key(rows[i]) > key(rows[j]) })
	return rows
}

// SpreadBps returns the bid/ask spread in basis points relative to the mid
// price, or 0 when either side is empty.
func SpreadBps(bestBid, bestAsk float64) float64 {
	if bestBid <= 0 || bestAsk <= 0 {
		return 0
	}
	mid := (bestAsk + bestBid) / 2
	if mid == 0 {
		return 0
	}
	return (bestAsk - bestBid) / mid * 10000
}
