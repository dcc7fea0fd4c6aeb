package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gatslabs/tradeflow/internal/domain"
	"github.com/gatslabs/tradeflow/internal/engine"
)

// SignalSource exposes the aggregator's latest output and price history.
type SignalSource interface {
	Last() (domain.AggregateState, domain.Signal)
	Series() []float64
}

// SignalHistory reads back the durable signal-flip stream.
type SignalHistory interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// SignalHandler serves the aggregate signal, outlook, band, and history
// endpoints.
type SignalHandler struct {
	source     SignalSource
	history    SignalHistory
	stream     string
	bollPeriod int
	bollMult   float64
	logger     *slog.Logger
}

// NewSignalHandler creates a SignalHandler. bollPeriod and bollMult are the
// default Bollinger parameters used when the request does not override them.
// history may be nil, which disables the history endpoint.
func NewSignalHandler(source SignalSource, history SignalHistory, stream string, bollPeriod int, bollMult float64, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{
		source:     source,
		history:    history,
		stream:     stream,
		bollPeriod: bollPeriod,
		bollMult:   bollMult,
		logger:     logger,
	}
}

// signalResponse pairs the aggregate state with its derived signal.
type signalResponse struct {
	State  domain.AggregateState `json:"state"`
	Signal domain.Signal         `json:"signal"`
}

// outlooksResponse carries the signal plus its horizon-scaled projections.
type outlooksResponse struct {
	Signal   domain.Signal    `json:"signal"`
	Outlooks []domain.Outlook `json:"outlooks"`
}

// bandsResponse carries the trailing Bollinger bands over the aggregate
// price series.
type bandsResponse struct {
	Bands  engine.Bands `json:"bands"`
	Period int          `json:"period"`
	Mult   float64      `json:"mult"`
	Points int          `json:"points"`
}

// GetSignal returns the latest aggregate state and signal.
// GET /api/signal
func (h *SignalHandler) GetSignal(w http.ResponseWriter, r *http.Request) {
	state, sig := h.source.Last()
	writeJSON(w, http.StatusOK, signalResponse{State: state, Signal: sig})
}

// GetOutlooks returns horizon-scaled directional probabilities for the
// current signal.
// GET /api/outlooks
func (h *SignalHandler) GetOutlooks(w http.ResponseWriter, r *http.Request) {
	_, sig := h.source.Last()
	writeJSON(w, http.StatusOK, outlooksResponse{
		Signal:   sig,
		Outlooks: engine.Outlooks(sig),
	})
}

// GetBands returns Bollinger bands over the aggregate price series.
// GET /api/bands?period=20&mult=2
func (h *SignalHandler) GetBands(w http.ResponseWriter, r *http.Request) {
	period := h.bollPeriod
	if v := r.URL.Query().Get("period"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			period = n
		}
	}
	mult := h.bollMult
	if v := r.URL.Query().Get("mult"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			mult = f
		}
	}

	series := h.source.Series()
	writeJSON(w, http.StatusOK, bandsResponse{
		Bands:  engine.ComputeBands(series, period, mult),
		Period: period,
		Mult:   mult,
		Points: len(series),
	})
}

// historyEntry is one recorded signal flip replayed from the stream.
type historyEntry struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// historyResponse wraps the history endpoint output.
type historyResponse struct {
	Entries []historyEntry `json:"entries"`
	LastID  string         `json:"last_id,omitempty"`
}

// GetHistory replays recorded signal flips. after paginates by stream entry
// id; pass the previous response's last_id to continue.
// GET /api/signal/history?after=0&count=50
func (h *SignalHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "signal history requires the cache backend")
		return
	}

	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	count := 50
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			count = n
		}
	}

	msgs, err := h.history.StreamRead(r.Context(), h.stream, after, count)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: signal history read failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read signal history")
		return
	}

	entries := make([]historyEntry, 0, len(msgs))
	lastID := ""
	for _, m := range msgs {
		entries = append(entries, historyEntry{ID: m.ID, Data: json.RawMessage(m.Payload)})
		lastID = m.ID
	}
	writeJSON(w, http.StatusOK, historyResponse{Entries: entries, LastID: lastID})
}
