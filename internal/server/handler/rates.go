package handler

import (
	"net/http"

	"github.com/gatslabs/tradeflow/internal/domain"
)

// RatesProvider exposes the full conversion table.
type RatesProvider interface {
	All() map[domain.Currency]float64
}

// RatesHandler serves the display-currency conversion rates.
type RatesHandler struct {
	rates RatesProvider
}

// NewRatesHandler creates a RatesHandler backed by the given provider.
func NewRatesHandler(rates RatesProvider) *RatesHandler {
	return &RatesHandler{rates: rates}
}

// GetRates returns the current USD conversion multipliers.
// GET /api/rates
func (h *RatesHandler) GetRates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"base":  domain.CurrencyUSD,
		"rates": h.rates.All(),
	})
}
