package handler

import (
	"net/http"
	"time"

	"github.com/gatslabs/tradeflow/internal/domain"
)

// FeedStates reports the connection state of every tracked book.
type FeedStates interface {
	States() map[string]domain.ConnectionState
}

// StatusHandler serves backend status for dashboards: uptime and per-book
// feed states.
type StatusHandler struct {
	feed      FeedStates
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler anchored at the given start time.
func NewStatusHandler(feed FeedStates, startedAt time.Time) *StatusHandler {
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &StatusHandler{feed: feed, startedAt: startedAt}
}

// GetStatus responds with uptime and the state of each tracked feed.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	states := h.feed.States()
	feeds := make(map[string]string, len(states))
	live := 0
	for id, s := range states {
		feeds[id] = s.String()
		if s == domain.StateLive {
			live++
		}
	}

	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": uptime,
		"books":          len(states),
		"live_feeds":     live,
		"feeds":          feeds,
	})
}
