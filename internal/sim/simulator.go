// Package sim generates deterministic synthetic order books. It serves as the
// startup placeholder and as the permanent fallback feed when live
// connectivity to an exchange fails.
package sim

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/gatslabs/tradeflow/internal/domain"
)

// DefaultMid is the mid price used before any live price has been observed.
const DefaultMid = 50000.0

// DefaultInterval is the drift step interval of the fallback walk loop.
const DefaultInterval = 250 * time.Millisecond

// rnd is a reproducible pseudo-random function of the seed, in [0,1).
func rnd(seed float64) float64 {
	s := math.Sin(seed) * 10000
	return s - math.Floor(s)
}

// GenBook produces depth synthetic levels per side around mid. Bid prices
// decrease and ask prices increase from mid by a randomized step; amounts are
// bounded pseudo-random values. The same (mid, depth, seed) always yields the
// same book. The result satisfies the normalized Book invariant.
func GenBook(mid float64, depth int, seed float64) domain.Book {
	b := domain.Book{
		Bids:      make([]domain.PriceLevel, 0, depth),
		Asks:      make([]domain.PriceLevel, 0, depth),
		Timestamp: time.Now(),
		LastTrade: mid,
	}
	for i := 0; i < depth; i++ {
		fi := float64(i)
		pB := mid - fi*(0.5+rnd(seed+fi)*1.5)
		pA := mid + fi*(0.5+rnd(seed+100+fi)*1.5)
		b.Bids = append(b.Bids, domain.PriceLevel{
			Price:  math.Max(1, pB),
			Amount: round4(0.1 + rnd(seed+200+fi)*3),
		})
		b.Asks = append(b.Asks, domain.PriceLevel{
			Price:  math.Max(1, pA),
			Amount: round4(0.1 + rnd(seed+300+fi)*3),
		})
	}
	b.Normalize()
	return b
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Walker emulates a live feed by walking the mid price forward with a small
// sinusoidal drift on a fixed interval and regenerating the book each step.
type Walker struct {
	Mid      float64       // starting mid; DefaultMid when zero
	Depth    int
	Interval time.Duration // DefaultInterval when zero
	OnBook   func(domain.Book)
	OnPrice  func(float64)
	Logger   *slog.Logger
}

// Run steps the walk until ctx is cancelled. It always returns ctx.Err().
func (w *Walker) Run(ctx context.Context) error {
	base := w.Mid
	if base <= 0 {
		base = DefaultMid
	}
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	if w.Logger != nil {
		w.Logger.InfoContext(ctx, "simulator started",
			slog.Float64("mid", base),
			slog.Int("depth", w.Depth),
		)
	}

	step := interval.Seconds()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var t float64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t += step
			mid := base * (1 + math.Sin(t)/3000)
			if w.OnBook != nil {
				w.OnBook(GenBook(mid, w.Depth, math.Floor(t*1000)))
			}
			if w.OnPrice != nil {
				w.OnPrice(mid)
			}
		}
	}
}
