package btce

import (
	"net/url"
	"strings"
	"time"

	"coinbridge/internal/codec"
	"coinbridge/internal/core"
	"coinbridge/internal/exchange"
)

const Name = "btce"

var pairs = []core.CurrencyPair{
	core.MustPair("BTC", "USD"), core.MustPair("BTC", "RUR"), core.MustPair("BTC", "EUR"),
	core.MustPair("LTC", "BTC"), core.MustPair("LTC", "USD"), core.MustPair("LTC", "RUR"),
	core.MustPair("NMC", "BTC"), core.MustPair("NVC", "BTC"), core.MustPair("TRC", "BTC"),
	core.MustPair("PPC", "BTC"), core.MustPair("USD", "RUR"), core.MustPair("EUR", "USD"),
}

// Rates are accepted to 3 places against fiat and 5 against BTC.
var scales = codec.Codec{
	Amount: codec.DecimalScale(8),
	Price:  codec.DecimalScale(3),
	PriceByQuote: map[string]codec.Scale{
		"BTC": codec.DecimalScale(5),
	},
}

func NewProfile(o exchange.Options) *exchange.Profile {
	return &exchange.Profile{
		Name:            Name,
		Pairs:           core.NewRegistry(Name, pairs...),
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

var _ exchange.Adapter[Ticker, exchange.Level, Trade, Info] = Adapter{}

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
	if t.Bid, err = a.p.Price("ticker", "sell", pair, raw.Sell, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Ask, err = a.p.Price("ticker", "buy", pair, raw.Buy, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.High, err = a.p.Price("ticker", "high", pair, raw.High, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Low, err = a.p.Price("ticker", "low", pair, raw.Low, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Volume, err = a.p.Amount("ticker", "vol_cur", raw.VolCur, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Timestamp, err = a.p.Stamp("ticker", raw.Updated.String(), frag); err != nil {
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

func (a Adapter) AdaptTrades(raw []Trade, pair core.CurrencyPair) ([]core.Trade, error) {
	if err := a.p.CheckPair(pair); err != nil {
		return nil, err
	}
	out := make([]core.Trade, 0, len(raw))
	for _, tr := range raw {
		frag := exchange.Fragment(tr)
		price, err := a.p.Price("trades", "price", pair, tr.Price, frag)
		if err != nil {
			return nil, err
		}
		amount, err := a.p.Amount("trades", "amount", tr.Amount, frag)
		if err != nil {
			return nil, err
		}
		ts, err := a.p.Stamp("trades", tr.Timestamp.String(), frag)
		if err != nil {
			return nil, err
		}
		var side core.Side
		switch strings.ToLower(tr.Type) {
		case "bid", "buy":
			side = core.Bid
		case "ask", "sell":
			side = core.Ask
		default:
			return nil, a.p.Malformed("trades", "unknown trade type "+tr.Type, frag)
		}
		out = append(out, core.Trade{
			ID:        tr.TID.String(),
			Side:      side,
			Amount:    amount,
			Price:     price,
			Pair:      pair,
			Timestamp: ts,
		})
	}
	return out, nil
}

// AdaptAccountInfo reads the getInfo funds map. BTC-e does not report an owner.
func (a Adapter) AdaptAccountInfo(raw Info) (core.AccountInfo, error) {
	frag := exchange.Fragment(raw)
	if raw.Funds == nil {
		return core.AccountInfo{}, a.p.Malformed("account", "missing funds", frag)
	}
	balances := make([]exchange.Balance, 0, len(raw.Funds))
	for code, n := range raw.Funds {
		code = strings.ToUpper(code)
		if !a.p.Currencies.Known(code) {
			balances = append(balances, exchange.Balance{Currency: code})
			continue
		}
		v, err := a.p.Decimal("account", "funds."+strings.ToLower(code), n, frag)
		if err != nil {
			return core.AccountInfo{}, err
		}
		balances = append(balances, exchange.Balance{Currency: code, Amount: v})
	}
	return a.p.Account("", balances, frag)
}

func (a Adapter) ToOrderRequest(order core.LimitOrder) (url.Values, error) {
	amount, rate, err := a.p.OrderValues(order)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("pair", pairName(order.Pair))
	if order.Side == core.Bid {
		params.Set("type", "buy")
	} else {
		params.Set("type", "sell")
	}
	params.Set("rate", rate)
	params.Set("amount", amount)
	return params, nil
}

// pairName is BTC-e's spelling of a pair, e.g. btc_usd.
func pairName(pair core.CurrencyPair) string {
	return strings.ToLower(pair.Base + "_" + pair.Counter)
}
