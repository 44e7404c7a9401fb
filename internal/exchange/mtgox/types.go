package mtgox

import "coinbridge/internal/exchange"

// Value is MtGox's scaled money field; value_int is the integer wire form.
type Value struct {
	ValueInt exchange.Number `json:"value_int"`
	Currency string          `json:"currency,omitempty"`
}

type Ticker struct {
	Last Value           `json:"last"`
	Buy  Value           `json:"buy"`
	Sell Value           `json:"sell"`
	High Value           `json:"high"`
	Low  Value           `json:"low"`
	Vol  Value           `json:"vol"`
	Now  exchange.Number `json:"now"`
}

type TickerResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
	Return Ticker `json:"return"`
}

type Level struct {
	PriceInt  exchange.Number `json:"price_int"`
	AmountInt exchange.Number `json:"amount_int"`
	Stamp     exchange.Number `json:"stamp,omitempty"`
}

type Depth struct {
	Asks []Level         `json:"asks"`
	Bids []Level         `json:"bids"`
	Now  exchange.Number `json:"now,omitempty"`
}

type DepthResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
	Return Depth  `json:"return"`
}

type Trade struct {
	TID           exchange.Number `json:"tid"`
	PriceInt      exchange.Number `json:"price_int"`
	AmountInt     exchange.Number `json:"amount_int"`
	Date          exchange.Number `json:"date"`
	TradeType     string          `json:"trade_type"`
	PriceCurrency string          `json:"price_currency"`
}

type TradesResponse struct {
	Result string  `json:"result"`
	Error  string  `json:"error,omitempty"`
	Return []Trade `json:"return"`
}

type Wallet struct {
	Balance Value `json:"Balance"`
}

type AccountInfo struct {
	Login   string            `json:"Login"`
	Wallets map[string]Wallet `json:"Wallets"`
}

type InfoResponse struct {
	Result string      `json:"result"`
	Error  string      `json:"error,omitempty"`
	Return AccountInfo `json:"return"`
}

type OrderResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
	Return string `json:"return"`
}
