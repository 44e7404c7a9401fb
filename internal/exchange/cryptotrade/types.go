package cryptotrade

import "coinbridge/internal/exchange"

// Response is the status/error/data envelope every endpoint answers with.
type Response[T any] struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   T      `json:"data"`
}

// Ticker reports volume per currency of the pair as vol_<code>; only the base volume is used.
type Ticker struct {
	Last   exchange.Number `json:"last"`
	Low    exchange.Number `json:"low"`
	High   exchange.Number `json:"high"`
	MinAsk exchange.Number `json:"min_ask"`
	MaxBid exchange.Number `json:"max_bid"`
	VolBTC exchange.Number `json:"vol_btc"`
	VolLTC exchange.Number `json:"vol_ltc"`
	VolNMC exchange.Number `json:"vol_nmc"`
	VolPPC exchange.Number `json:"vol_ppc"`
	VolXPM exchange.Number `json:"vol_xpm"`
	VolTRC exchange.Number `json:"vol_trc"`
	VolFTC exchange.Number `json:"vol_ftc"`
}

func (t Ticker) volume(base string) exchange.Number {
	switch base {
	case "BTC":
		return t.VolBTC
	case "LTC":
		return t.VolLTC
	case "NMC":
		return t.VolNMC
	case "PPC":
		return t.VolPPC
	case "XPM":
		return t.VolXPM
	case "TRC":
		return t.VolTRC
	case "FTC":
		return t.VolFTC
	}
	return ""
}

type Depth struct {
	Asks []exchange.Level `json:"asks"`
	Bids []exchange.Level `json:"bids"`
}

type Trade struct {
	ID     exchange.Number `json:"id"`
	Time   exchange.Number `json:"time"`
	Type   string          `json:"type"`
	Price  exchange.Number `json:"price"`
	Amount exchange.Number `json:"amount"`
}

type Info struct {
	Funds map[string]exchange.Number `json:"funds"`
}

type OrderResult struct {
	OrderID exchange.Number `json:"order_id"`
}
