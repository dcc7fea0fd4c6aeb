package binance

import "encoding/json"

// combinedFrame is the envelope used by Binance combined streams.
type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// depthPayload is a depth20 partial-book payload. Binance emits the levels as
// [priceStr, amountStr] pairs under "b"/"a" on diff streams and "bids"/"asks"
// on partial-depth streams; both spellings are accepted.
type depthPayload struct {
	EventTime int64       `json:"E"`
	Bids      [][2]string `json:"b"`
	Asks      [][2]string `json:"a"`
	BidsAlt   [][2]string `json:"bids"`
	AsksAlt   [][2]string `json:"asks"`
}

// tradePayload carries a single executed trade.
type tradePayload struct {
	Price string `json:"p"`
}
