package vircurex

import "coinbridge/internal/exchange"

type Depth struct {
	Asks []exchange.Level `json:"asks"`
	Bids []exchange.Level `json:"bids"`
}

type Balance struct {
	Balance          exchange.Number `json:"balance"`
	AvailableBalance exchange.Number `json:"availablebalance"`
}

// Balances is the get_balances reply. Status 0 is success; anything else comes with a
// statustext message.
type Balances struct {
	Status     exchange.Number    `json:"status"`
	StatusText string             `json:"statustext,omitempty"`
	Account    string             `json:"account"`
	Balances   map[string]Balance `json:"balances"`
}

type OrderReply struct {
	Status     exchange.Number `json:"status"`
	StatusText string          `json:"statustext,omitempty"`
	OrderID    exchange.Number `json:"orderid"`
}
