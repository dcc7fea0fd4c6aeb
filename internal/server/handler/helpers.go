package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gatslabs/tradeflow/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// parseSort maps the ?sort= query parameter onto a sort key. Unknown values
// fall back to the USD notional sort.
func parseSort(r *http.Request) domain.SortBy {
	switch strings.ToLower(r.URL.Query().Get("sort")) {
	case "coin":
		return domain.SortByCoin
	case "price":
		return domain.SortByPrice
	default:
		return domain.SortByUSD
	}
}

// parseCurrency maps the ?currency= query parameter onto a display currency,
// defaulting to USD.
func parseCurrency(r *http.Request) domain.Currency {
	switch strings.ToUpper(r.URL.Query().Get("currency")) {
	case string(domain.CurrencyAUD):
		return domain.CurrencyAUD
	case string(domain.CurrencyRUB):
		return domain.CurrencyRUB
	case string(domain.CurrencyBTC):
		return domain.CurrencyBTC
	default:
		return domain.CurrencyUSD
	}
}
