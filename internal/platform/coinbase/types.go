package coinbase

// message covers every typed frame on the Coinbase Exchange feed that this
// client cares about: snapshot, l2update, ticker, subscriptions, error.
type message struct {
	Type    string      `json:"type"`
	Bids    [][2]string `json:"bids"`    // snapshot: [price, size]
	Asks    [][2]string `json:"asks"`    // snapshot: [price, size]
	Changes [][3]string `json:"changes"` // l2update: [side, price, size]
	Price   string      `json:"price"`   // ticker
	Message string      `json:"message"` // error
}

// subscribeMsg requests the level2 and ticker channels for one product.
type subscribeMsg struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}
