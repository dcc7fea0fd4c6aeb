package notify

import (
	"fmt"
	"strings"

	"github.com/gatslabs/tradeflow/internal/domain"
)

// Event types understood by the notifier filter.
const (
	EventSignalFlip   = "signal_flip"
	EventFeedDegraded = "feed_degraded"
	EventFeedLive     = "feed_live"
)

// SignalFlipMessage formats a color transition for delivery. The previous
// color is included so a skimming operator sees the direction of the flip.
func SignalFlipMessage(prev, cur domain.Signal, state domain.AggregateState) (title, message string) {
	title = fmt.Sprintf("Signal %s -> %s", strings.ToUpper(string(prev.Color)), strings.ToUpper(string(cur.Color)))
	message = fmt.Sprintf(
		"score %.3f (%s)\nbid $%.0f / ask $%.0f, spread %.1f bps, momentum %.4f",
		cur.Score, cur.Explanation,
		state.TotalBidUSD, state.TotalAskUSD, state.AvgSpreadBps, state.Momentum,
	)
	return title, message
}

// FeedStateMessage formats a per-book connection transition.
func FeedStateMessage(cfg domain.BookConfig, state domain.ConnectionState) (title, message string) {
	title = fmt.Sprintf("Feed %s/%s %s", cfg.Exchange, cfg.Symbol, state)
	switch state {
	case domain.StateSimulated:
		message = fmt.Sprintf("book %s fell back to simulated data", cfg.ID)
	case domain.StateLive:
		message = fmt.Sprintf("book %s is receiving live data", cfg.ID)
	default:
		message = fmt.Sprintf("book %s changed state to %s", cfg.ID, state)
	}
	return title, message
}
