package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gatslabs/tradeflow/internal/book"
	"github.com/gatslabs/tradeflow/internal/domain"
	"github.com/gatslabs/tradeflow/internal/engine"
)

// FeedService defines the lifecycle operations the book handler needs from
// the feed layer. It is declared locally so the handler package does not
// depend on the concrete feed implementation.
type FeedService interface {
	Add(cfg domain.BookConfig) (domain.BookConfig, error)
	Remove(id string) error
	Update(cfg domain.BookConfig) (domain.BookConfig, error)
	State(id string) (domain.ConnectionState, error)
}

// BookReader defines the read operations the handler needs from the store.
type BookReader interface {
	Config(id string) (domain.BookConfig, error)
	Configs() []domain.BookConfig
	Snapshot(id string) (domain.Book, error)
	View(id string, sortBy domain.SortBy, opts book.ViewOptions) (book.View, error)
	Series(id string) ([]float64, error)
	SessionStats(id string) (book.Stats, error)
}

// RateSource converts USD notionals into display currencies.
type RateSource interface {
	Rate(c domain.Currency) float64
}

// BookHandler serves the tracked-book CRUD and view endpoints.
type BookHandler struct {
	feed       FeedService
	books      BookReader
	rates      RateSource
	bigWallUSD float64
	logger     *slog.Logger
}

// NewBookHandler creates a BookHandler. bigWallUSD is the display-currency
// threshold above which a level is marked as a big wall; zero disables it.
func NewBookHandler(feed FeedService, books BookReader, rates RateSource, bigWallUSD float64, logger *slog.Logger) *BookHandler {
	return &BookHandler{
		feed:       feed,
		books:      books,
		rates:      rates,
		bigWallUSD: bigWallUSD,
		logger:     logger,
	}
}

// bookRequest is the create/update payload. On update, zero-valued fields
// keep their current values.
type bookRequest struct {
	Exchange       string  `json:"exchange"`
	Symbol         string  `json:"symbol"`
	Depth          int     `json:"depth"`
	MinNotionalUSD float64 `json:"min_notional_usd"`
}

// listBooksResponse wraps the list endpoint output.
type listBooksResponse struct {
	Books []domain.BookView `json:"books"`
}

// bookCreatedResponse returns the effective config after clamping plus the
// initial connection state.
type bookCreatedResponse struct {
	Config domain.BookConfig `json:"config"`
	State  string            `json:"state"`
}

// seriesResponse carries a book's recent trade prices and session extremes.
type seriesResponse struct {
	Series     []float64  `json:"series"`
	Stats      book.Stats `json:"stats"`
	Volatility float64    `json:"volatility"`
}

// ListBooks returns the current view of every tracked book.
// GET /api/books?sort=usd|coin|price&currency=USD
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	sortBy := parseSort(r)
	currency := parseCurrency(r)

	configs := h.books.Configs()
	views := make([]domain.BookView, 0, len(configs))
	for _, cfg := range configs {
		view, err := h.buildView(cfg, sortBy, currency)
		if err != nil {
			continue
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, listBooksResponse{Books: views})
}

// GetBook returns the current view of a single tracked book.
// GET /api/books/{id}
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	cfg, err := h.books.Config(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}

	view, err := h.buildView(cfg, parseSort(r), parseCurrency(r))
	if err != nil {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CreateBook starts tracking a new book.
// POST /api/books
func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	exchange, err := domain.ParseExchange(req.Exchange)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	symbol, err := domain.ParseSymbol(req.Symbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg, err := h.feed.Add(domain.BookConfig{
		Exchange:       exchange,
		Symbol:         symbol,
		Depth:          req.Depth,
		MinNotionalUSD: req.MinNotionalUSD,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTooManyBooks):
			writeError(w, http.StatusConflict, "too many active books")
		case errors.Is(err, domain.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "book already exists")
		case errors.Is(err, domain.ErrNotRunning):
			writeError(w, http.StatusServiceUnavailable, "feed manager not running")
		default:
			h.logger.ErrorContext(r.Context(), "handler: create book failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create book")
		}
		return
	}

	state, _ := h.feed.State(cfg.ID)
	writeJSON(w, http.StatusCreated, bookCreatedResponse{
		Config: cfg,
		State:  state.String(),
	})
}

// UpdateBook changes the config of a tracked book. Changing the exchange or
// symbol restarts the feed with fresh state; changing only the filters keeps
// the stream alive.
// PUT /api/books/{id}
func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	cur, err := h.books.Config(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	next := cur
	if req.Exchange != "" {
		exchange, err := domain.ParseExchange(req.Exchange)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		next.Exchange = exchange
	}
	if req.Symbol != "" {
		symbol, err := domain.ParseSymbol(req.Symbol)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		next.Symbol = symbol
	}
	if req.Depth != 0 {
		next.Depth = req.Depth
	}
	next.MinNotionalUSD = req.MinNotionalUSD

	cfg, err := h.feed.Update(next)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: update book failed",
			slog.String("book_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update book")
		return
	}

	state, _ := h.feed.State(cfg.ID)
	writeJSON(w, http.StatusOK, bookCreatedResponse{
		Config: cfg,
		State:  state.String(),
	})
}

// DeleteBook stops tracking a book and releases its state.
// DELETE /api/books/{id}
func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	if err := h.feed.Remove(id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: delete book failed",
			slog.String("book_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete book")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSeries returns a book's recent trade prices and session extremes.
// GET /api/books/{id}/series
func (h *BookHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	series, err := h.books.Series(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	stats, err := h.books.SessionStats(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}

	writeJSON(w, http.StatusOK, seriesResponse{
		Series:     series,
		Stats:      stats,
		Volatility: engine.SeriesVolatility(series),
	})
}

// buildView projects a tracked book through the filter pipeline and annotates
// it with config and connection metadata.
func (h *BookHandler) buildView(cfg domain.BookConfig, sortBy domain.SortBy, currency domain.Currency) (domain.BookView, error) {
	view, err := h.books.View(cfg.ID, sortBy, book.ViewOptions{
		Rate:       h.rates.Rate(currency),
		BigWallUSD: h.bigWallUSD,
	})
	if err != nil {
		return domain.BookView{}, err
	}

	state, _ := h.feed.State(cfg.ID)
	out := domain.BookView{
		ID:          cfg.ID,
		Exchange:    cfg.Exchange,
		Symbol:      cfg.Symbol,
		State:       state.String(),
		Bids:        view.Bids,
		Asks:        view.Asks,
		BestBid:     view.BestBid,
		BestAsk:     view.BestAsk,
		SpreadBps:   view.SpreadBps,
		TotalBidUSD: view.TotalBidUSD,
		TotalAskUSD: view.TotalAskUSD,
		LastTrade:   view.LastTrade,
	}
	if snap, err := h.books.Snapshot(cfg.ID); err == nil {
		out.Timestamp = snap.Timestamp
	}
	return out, nil
}
