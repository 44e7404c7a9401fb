package btce

import (
	"encoding/json"

	"coinbridge/internal/exchange"
)

// Envelope is the failure shape shared by the public and trade APIs. Public responses are
// otherwise keyed by pair name.
type Envelope struct {
	Success *int            `json:"success,omitempty"`
	Error   string          `json:"error,omitempty"`
	Return  json.RawMessage `json:"return,omitempty"`
}

// Ticker uses BTC-e's own perspective: buy is what the exchange buys at (the best bid) and
// sell what it sells at (the best ask).
type Ticker struct {
	High    exchange.Number `json:"high"`
	Low     exchange.Number `json:"low"`
	Avg     exchange.Number `json:"avg"`
	Vol     exchange.Number `json:"vol"`
	VolCur  exchange.Number `json:"vol_cur"`
	Last    exchange.Number `json:"last"`
	Buy     exchange.Number `json:"buy"`
	Sell    exchange.Number `json:"sell"`
	Updated exchange.Number `json:"updated"`
}

type Depth struct {
	Asks []exchange.Level `json:"asks"`
	Bids []exchange.Level `json:"bids"`
}

type Trade struct {
	Type      string          `json:"type"`
	Price     exchange.Number `json:"price"`
	Amount    exchange.Number `json:"amount"`
	TID       exchange.Number `json:"tid"`
	Timestamp exchange.Number `json:"timestamp"`
}

type Info struct {
	Funds      map[string]exchange.Number `json:"funds"`
	ServerTime exchange.Number            `json:"server_time"`
}

type TradeResult struct {
	Received exchange.Number `json:"received"`
	Remains  exchange.Number `json:"remains"`
	OrderID  exchange.Number `json:"order_id"`
}
