package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatslabs/tradeflow/internal/book"
	"github.com/gatslabs/tradeflow/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFeed drives a real store so handler reads see consistent state.
type fakeFeed struct {
	store  *book.Store
	nextID string
}

func (f *fakeFeed) Add(cfg domain.BookConfig) (domain.BookConfig, error) {
	if cfg.ID == "" {
		cfg.ID = f.nextID
	}
	cfg.Clamp()
	if len(f.store.Configs()) >= domain.MaxActiveBooks {
		return domain.BookConfig{}, domain.ErrTooManyBooks
	}
	if err := f.store.Track(cfg); err != nil {
		return domain.BookConfig{}, err
	}
	return cfg, nil
}

func (f *fakeFeed) Remove(id string) error {
	if _, err := f.store.Config(id); err != nil {
		return err
	}
	f.store.Untrack(id)
	return nil
}

func (f *fakeFeed) Update(cfg domain.BookConfig) (domain.BookConfig, error) {
	cfg.Clamp()
	if err := f.store.UpdateConfig(cfg); err != nil {
		return domain.BookConfig{}, err
	}
	return cfg, nil
}

func (f *fakeFeed) State(string) (domain.ConnectionState, error) {
	return domain.StateLive, nil
}

func (f *fakeFeed) States() map[string]domain.ConnectionState {
	out := make(map[string]domain.ConnectionState)
	for _, cfg := range f.store.Configs() {
		out[cfg.ID] = domain.StateLive
	}
	return out
}

type fixedRates struct{}

func (fixedRates) Rate(c domain.Currency) float64 {
	if c == domain.CurrencyRUB {
		return 90
	}
	return 1
}

type stubSignal struct {
	state  domain.AggregateState
	sig    domain.Signal
	series []float64
}

func (s *stubSignal) Last() (domain.AggregateState, domain.Signal) { return s.state, s.sig }
func (s *stubSignal) Series() []float64                            { return s.series }

// stubHistory replays canned stream messages and records the read arguments.
type stubHistory struct {
	msgs   []domain.StreamMessage
	stream string
	lastID string
	count  int
}

func (s *stubHistory) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	s.stream, s.lastID, s.count = stream, lastID, count
	return s.msgs, nil
}

func newTestMux(t *testing.T) (*http.ServeMux, *fakeFeed) {
	return newTestMuxHistory(t, nil)
}

func newTestMuxHistory(t *testing.T, history SignalHistory) (*http.ServeMux, *fakeFeed) {
	t.Helper()
	store := book.NewStore(testLogger())
	feed := &fakeFeed{store: store, nextID: "b1"}

	books := NewBookHandler(feed, store, fixedRates{}, 50000, testLogger())
	sig := NewSignalHandler(&stubSignal{
		state:  domain.AggregateState{TotalBidUSD: 1000, TotalAskUSD: 400, AvgSpreadBps: 3, Momentum: 0.1},
		sig:    domain.Signal{Color: domain.SignalGreen, Score: 0.3},
		series: []float64{100, 101, 102},
	}, history, "signals", 20, 2, testLogger())
	status := NewStatusHandler(feed, time.Now().Add(-time.Minute))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/books", books.ListBooks)
	mux.HandleFunc("POST /api/books", books.CreateBook)
	mux.HandleFunc("GET /api/books/{id}", books.GetBook)
	mux.HandleFunc("PUT /api/books/{id}", books.UpdateBook)
	mux.HandleFunc("DELETE /api/books/{id}", books.DeleteBook)
	mux.HandleFunc("GET /api/books/{id}/series", books.GetSeries)
	mux.HandleFunc("GET /api/signal", sig.GetSignal)
	mux.HandleFunc("GET /api/signal/history", sig.GetHistory)
	mux.HandleFunc("GET /api/outlooks", sig.GetOutlooks)
	mux.HandleFunc("GET /api/bands", sig.GetBands)
	mux.HandleFunc("GET /api/status", status.GetStatus)
	return mux, feed
}

func doRequest(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestCreateBook(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doRequest(mux, http.MethodPost, "/api/books", `{"exchange":"Binance","symbol":"BTC","depth":100}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Config domain.BookConfig `json:"config"`
		State  string            `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "b1", resp.Config.ID)
	assert.Equal(t, domain.MaxDepth, resp.Config.Depth)
	assert.Equal(t, "live", resp.State)
}

func TestCreateBook_BadExchange(t *testing.T) {
	mux, _ := newTestMux(t)
	rec := doRequest(mux, http.MethodPost, "/api/books", `{"exchange":"nyse","symbol":"BTC"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBook_TooMany(t *testing.T) {
	mux, feed := newTestMux(t)
	for i, sym := range []domain.Symbol{domain.SymbolBTC, domain.SymbolETH, domain.SymbolXRP, domain.SymbolBTC} {
		feed.nextID = "b" + string(rune('1'+i))
		_, err := feed.Add(domain.BookConfig{Exchange: domain.ExchangeBinance, Symbol: sym})
		require.NoError(t, err)
	}

	rec := doRequest(mux, http.MethodPost, "/api/books", `{"exchange":"Coinbase","symbol":"BTC"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetBook(t *testing.T) {
	mux, feed := newTestMux(t)
	cfg, err := feed.Add(domain.BookConfig{Exchange: domain.ExchangeBinance, Symbol: domain.SymbolBTC})
	require.NoError(t, err)
	require.NoError(t, feed.store.ApplyBook(cfg.ID, domain.Book{
		Bids:      []domain.PriceLevel{{Price: 100, Amount: 2}},
		Asks:      []domain.PriceLevel{{Price: 101, Amount: 1}},
		Timestamp: time.Now(),
	}))

	rec := doRequest(mux, http.MethodGet, "/api/books/"+cfg.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view domain.BookView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 100.0, view.BestBid)
	assert.Equal(t, 101.0, view.BestAsk)
	assert.Equal(t, 200.0, view.TotalBidUSD)
}

func TestGetBook_NotFound(t *testing.T) {
	mux, _ := newTestMux(t)
	rec := doRequest(mux, http.MethodGet, "/api/books/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateBook_MergesFields(t *testing.T) {
	mux, feed := newTestMux(t)
	cfg, err := feed.Add(domain.BookConfig{Exchange: domain.ExchangeBinance, Symbol: domain.SymbolBTC, Depth: 10})
	require.NoError(t, err)

	rec := doRequest(mux, http.MethodPut, "/api/books/"+cfg.ID, `{"min_notional_usd":500}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Config domain.BookConfig `json:"config"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.ExchangeBinance, resp.Config.Exchange)
	assert.Equal(t, 10, resp.Config.Depth)
	assert.Equal(t, 500.0, resp.Config.MinNotionalUSD)
}

func TestDeleteBook(t *testing.T) {
	mux, feed := newTestMux(t)
	cfg, err := feed.Add(domain.BookConfig{Exchange: domain.ExchangeBinance, Symbol: domain.SymbolBTC})
	require.NoError(t, err)

	rec := doRequest(mux, http.MethodDelete, "/api/books/"+cfg.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(mux, http.MethodDelete, "/api/books/"+cfg.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSeries(t *testing.T) {
	mux, feed := newTestMux(t)
	cfg, err := feed.Add(domain.BookConfig{Exchange: domain.ExchangeBinance, Symbol: domain.SymbolBTC})
	require.NoError(t, err)
	for _, px := range []float64{100, 105, 95} {
		require.NoError(t, feed.store.ApplyPrice(cfg.ID, px))
	}

	rec := doRequest(mux, http.MethodGet, "/api/books/"+cfg.ID+"/series", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Series []float64 `json:"series"`
		Stats  struct {
			Open float64 `json:"open"`
			Low  float64 `json:"low"`
			High float64 `json:"high"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []float64{100, 105, 95}, resp.Series)
	assert.Equal(t, 100.0, resp.Stats.Open)
	assert.Equal(t, 95.0, resp.Stats.Low)
	assert.Equal(t, 105.0, resp.Stats.High)
}

func TestGetSignal(t *testing.T) {
	mux, _ := newTestMux(t)
	rec := doRequest(mux, http.MethodGet, "/api/signal", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Signal domain.Signal `json:"signal"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.SignalGreen, resp.Signal.Color)
}

func TestGetSignalHistory(t *testing.T) {
	history := &stubHistory{msgs: []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"from":"yellow"}`)},
		{ID: "2-0", Payload: []byte(`{"from":"green"}`)},
	}}
	mux, _ := newTestMuxHistory(t, history)

	rec := doRequest(mux, http.MethodGet, "/api/signal/history?after=1-0&count=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "signals", history.stream)
	assert.Equal(t, "1-0", history.lastID)
	assert.Equal(t, 10, history.count)

	var resp struct {
		Entries []struct {
			ID   string          `json:"id"`
			Data json.RawMessage `json:"data"`
		} `json:"entries"`
		LastID string `json:"last_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "2-0", resp.LastID)
	assert.JSONEq(t, `{"from":"yellow"}`, string(resp.Entries[0].Data))
}

func TestGetSignalHistory_Unavailable(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doRequest(mux, http.MethodGet, "/api/signal/history", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetOutlooks(t *testing.T) {
	mux, _ := newTestMux(t)
	rec := doRequest(mux, http.MethodGet, "/api/outlooks", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Outlooks []domain.Outlook `json:"outlooks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Outlooks, 4)
	assert.Equal(t, "4h", resp.Outlooks[0].Label)
	assert.Equal(t, "BUY", resp.Outlooks[0].Direction)
}

func TestGetBands_ParamOverride(t *testing.T) {
	mux, _ := newTestMux(t)
	rec := doRequest(mux, http.MethodGet, "/api/bands?period=2&mult=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Period int     `json:"period"`
		Mult   float64 `json:"mult"`
		Points int     `json:"points"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Period)
	assert.Equal(t, 1.0, resp.Mult)
	assert.Equal(t, 3, resp.Points)
}

func TestGetStatus(t *testing.T) {
	mux, feed := newTestMux(t)
	_, err := feed.Add(domain.BookConfig{Exchange: domain.ExchangeBinance, Symbol: domain.SymbolBTC})
	require.NoError(t, err)

	rec := doRequest(mux, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Books     int `json:"books"`
		LiveFeeds int `json:"live_feeds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Books)
	assert.Equal(t, 1, resp.LiveFeeds)
}
