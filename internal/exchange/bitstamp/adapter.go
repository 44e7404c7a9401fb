package bitstamp

import (
	"net/url"
	"time"

	"coinbridge/internal/codec"
	"coinbridge/internal/core"
	"coinbridge/internal/exchange"
)

const Name = "bitstamp"

var btcUSD = core.MustPair("BTC", "USD")

// Bitstamp quotes plain decimals: BTC to 8 places, USD to cents.
var scales = codec.Codec{
	Amount: codec.DecimalScale(8),
	Price:  codec.DecimalScale(2),
}

func NewProfile(o exchange.Options) *exchange.Profile {
	return &exchange.Profile{
		Name:            Name,
		Pairs:           core.NewRegistry(Name, btcUSD),
		Codec:           scales,
		ErrorField:      "error",
		UnknownCurrency: o.UnknownPolicy(),
		Currencies:      o.KnownCurrencies(),
		Now:             o.Now,
	}
}

type Adapter struct {
	p *exchange.Profile
}

var _ exchange.Adapter[Ticker, exchange.Level, Transaction, Balance] = Adapter{}

func NewAdapter(p *exchange.Profile) Adapter {
	return Adapter{p: p}
}

func (a Adapter) AdaptTicker(raw Ticker, pair core.CurrencyPair) (core.Ticker, error) {
	if err := a.p.CheckPair(pair); err != nil {
		return core.Ticker{}, err
	}
	frag := exchange.Fragment(raw)
	t := core.Ticker{Pair: pair}
	var err error
	if t.Last, err = a.p.Price("ticker", "last", pair, raw.Last, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Bid, err = a.p.Price("ticker", "bid", pair, raw.Bid, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Ask, err = a.p.Price("ticker", "ask", pair, raw.Ask, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.High, err = a.p.Price("ticker", "high", pair, raw.High, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Low, err = a.p.Price("ticker", "low", pair, raw.Low, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Volume, err = a.p.Amount("ticker", "volume", raw.Volume, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Timestamp, err = a.p.Stamp("ticker", raw.Timestamp.String(), frag); err != nil {
		return core.Ticker{}, err
	}
	return t, nil
}

func (a Adapter) AdaptOrderBook(asks, bids []exchange.Level, pair core.CurrencyPair) (core.OrderBook, error) {
	if err := a.p.CheckPair(pair); err != nil {
		return core.OrderBook{}, err
	}
	askOrders, err := exchange.Levels(a.p, core.Ask, pair, asks, exchange.LevelFields)
	if err != nil {
		return core.OrderBook{}, err
	}
	bidOrders, err := exchange.Levels(a.p, core.Bid, pair, bids, exchange.LevelFields)
	if err != nil {
		return core.OrderBook{}, err
	}
	return a.p.OrderBook(pair, time.Time{}, askOrders, bidOrders), nil
}

func (a Adapter) AdaptTrades(raw []Transaction, pair core.CurrencyPair) ([]core.Trade, error) {
	if err := a.p.CheckPair(pair); err != nil {
		return nil, err
	}
	out := make([]core.Trade, 0, len(raw))
	for _, tx := range raw {
		frag := exchange.Fragment(tx)
		price, err := a.p.Price("trades", "price", pair, tx.Price, frag)
		if err != nil {
			return nil, err
		}
		amount, err := a.p.Amount("trades", "amount", tx.Amount, frag)
		if err != nil {
			return nil, err
		}
		ts, err := a.p.Stamp("trades", tx.Date.String(), frag)
		if err != nil {
			return nil, err
		}
		side := core.Bid
		switch tx.Type {
		case "0", "":
		case "1":
			side = core.Ask
		default:
			return nil, a.p.Malformed("trades", "unknown transaction type "+tx.Type.String(), frag)
		}
		out = append(out, core.Trade{
			ID:        tx.TID.String(),
			Side:      side,
			Amount:    amount,
			Price:     price,
			Pair:      pair,
			Timestamp: ts,
		})
	}
	return out, nil
}

// AdaptAccountInfo reports the available (unreserved) USD and BTC balances.
func (a Adapter) AdaptAccountInfo(raw Balance) (core.AccountInfo, error) {
	frag := exchange.Fragment(raw)
	if text := exchange.ErrorText(raw.Error); text != "" {
		return core.AccountInfo{}, a.p.Embedded("account", text, frag)
	}
	usd, err := a.p.Decimal("account", "usd_available", raw.USDAvailable, frag)
	if err != nil {
		return core.AccountInfo{}, err
	}
	btc, err := a.p.Decimal("account", "btc_available", raw.BTCAvailable, frag)
	if err != nil {
		return core.AccountInfo{}, err
	}
	return a.p.Account(raw.Username, []exchange.Balance{
		{Currency: "USD", Amount: usd},
		{Currency: "BTC", Amount: btc},
	}, frag)
}

// ToOrderRequest carries amount and price; the side selects the endpoint, see orderPath.
func (a Adapter) ToOrderRequest(order core.LimitOrder) (url.Values, error) {
	amount, price, err := a.p.OrderValues(order)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("amount", amount)
	params.Set("price", price)
	return params, nil
}

func orderPath(side core.Side) string {
	if side == core.Bid {
		return "/api/buy/"
	}
	return "/api/sell/"
}
