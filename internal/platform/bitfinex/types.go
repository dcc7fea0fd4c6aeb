package bitfinex

// eventMsg covers the JSON-object frames Bitfinex sends: info, subscribed,
// error. Array-framed channel data is decoded separately.
type eventMsg struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	ChanID  int    `json:"chanId"`
	Symbol  string `json:"symbol"`
	Code    int    `json:"code"`
	Msg     string `json:"msg"`
}

// subscribeMsg is sent once per channel after connecting.
type subscribeMsg struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	Prec    string `json:"prec,omitempty"`
	Freq    string `json:"freq,omitempty"`
	Len     int    `json:"len,omitempty"`
}
