package bitstamp

import (
	"encoding/json"

	"coinbridge/internal/exchange"
)

type Ticker struct {
	Last      exchange.Number `json:"last"`
	High      exchange.Number `json:"high"`
	Low       exchange.Number `json:"low"`
	Volume    exchange.Number `json:"volume"`
	Bid       exchange.Number `json:"bid"`
	Ask       exchange.Number `json:"ask"`
	Timestamp exchange.Number `json:"timestamp"`
}

type OrderBook struct {
	Timestamp exchange.Number  `json:"timestamp"`
	Bids      []exchange.Level `json:"bids"`
	Asks      []exchange.Level `json:"asks"`
}

// Transaction type is 0 for a buy and 1 for a sell.
type Transaction struct {
	Date   exchange.Number `json:"date"`
	TID    exchange.Number `json:"tid"`
	Price  exchange.Number `json:"price"`
	Amount exchange.Number `json:"amount"`
	Type   exchange.Number `json:"type"`
}

// Balance is the /api/balance/ payload. Error is set instead of the balances when the
// call is rejected and may be a string or an object of field messages.
type Balance struct {
	USDBalance   exchange.Number `json:"usd_balance"`
	BTCBalance   exchange.Number `json:"btc_balance"`
	USDReserved  exchange.Number `json:"usd_reserved"`
	BTCReserved  exchange.Number `json:"btc_reserved"`
	USDAvailable exchange.Number `json:"usd_available"`
	BTCAvailable exchange.Number `json:"btc_available"`
	Fee          exchange.Number `json:"fee"`
	Error        json.RawMessage `json:"error,omitempty"`

	// Username is the account the balance was requested for; it is not on the wire.
	Username string `json:"-"`
}

type OrderResponse struct {
	ID    exchange.Number `json:"id"`
	Error json.RawMessage `json:"error,omitempty"`
}
