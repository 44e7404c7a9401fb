package bter

import (
	"net/url"
	"strings"
	"time"

	"coinbridge/internal/codec"
	"coinbridge/internal/core"
	"coinbridge/internal/exchange"
)

const Name = "bter"

var pairs = []core.CurrencyPair{
	core.MustPair("BTC", "CNY"), core.MustPair("LTC", "CNY"), core.MustPair("LTC", "BTC"),
	core.MustPair("NMC", "BTC"), core.MustPair("PPC", "BTC"), core.MustPair("TRC", "BTC"),
	core.MustPair("FTC", "BTC"), core.MustPair("XPM", "BTC"), core.MustPair("YAC", "BTC"),
	core.MustPair("WDC", "BTC"), core.MustPair("QRK", "BTC"), core.MustPair("NMC", "CNY"),
}

var scales = codec.Codec{
	Amount: codec.DecimalScale(8),
	Price:  codec.DecimalScale(2),
	PriceByQuote: map[string]codec.Scale{
		"BTC": codec.DecimalScale(6),
	},
}

// NewProfile describes BTER. The depth endpoint lists asks from the highest price down.
func NewProfile(o exchange.Options) *exchange.Profile {
	return &exchange.Profile{
		Name:            Name,
		Pairs:           core.NewRegistry(Name, pairs...),
		Codec:           scales,
		ReverseAsks:     true,
		ErrorField:      "msg",
		OKField:         "result",
		OKValues:        []string{"true", "1"},
		UnknownCurrency: o.UnknownPolicy(),
		Currencies:      o.KnownCurrencies(),
		Now:             o.Now,
	}
}

type Adapter struct {
	p *exchange.Profile
}

var _ exchange.Adapter[Ticker, exchange.Level, Trade, Funds] = Adapter{}

func NewAdapter(p *exchange.Profile) Adapter {
	return Adapter{p: p}
}

// check turns result:false into an AdapterError carrying msg verbatim.
func (a Adapter) check(op string, r Result, msg string, raw []byte) error {
	if !r.Set {
		return a.p.Malformed(op, "missing result", raw)
	}
	if !r.OK {
		return a.p.Embedded(op, msg, raw)
	}
	return nil
}

func (a Adapter) AdaptTicker(raw Ticker, pair core.CurrencyPair) (core.Ticker, error) {
	if err := a.p.CheckPair(pair); err != nil {
		return core.Ticker{}, err
	}
	if err := a.check("ticker", raw.Result, raw.Msg, exchange.Fragment(raw)); err != nil {
		return core.Ticker{}, err
	}
	frag := exchange.Fragment(raw)
	t := core.Ticker{Pair: pair}
	var err error
	if t.Last, err = a.p.Price("ticker", "last", pair, raw.Last, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Bid, err = a.p.Price("ticker", "buy", pair, raw.Buy, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Ask, err = a.p.Price("ticker", "sell", pair, raw.Sell, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.High, err = a.p.Price("ticker", "high", pair, raw.High, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Low, err = a.p.Price("ticker", "low", pair, raw.Low, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Volume, err = a.p.Amount("ticker", "vol_"+strings.ToLower(pair.Base), raw.Volumes[pair.Base], frag); err != nil {
		return core.Ticker{}, err
	}
	t.Timestamp, _ = a.p.Stamp("ticker", "", frag)
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
		ts, err := a.p.Stamp("trades", tr.Date.String(), frag)
		if err != nil {
			return nil, err
		}
		side := core.Ask
		if strings.EqualFold(tr.Type, "buy") {
			side = core.Bid
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

// AdaptAccountInfo reports available_funds; locked funds are not part of a wallet balance.
func (a Adapter) AdaptAccountInfo(raw Funds) (core.AccountInfo, error) {
	if err := a.check("account", raw.Result, raw.Msg, exchange.Fragment(raw)); err != nil {
		return core.AccountInfo{}, err
	}
	frag := exchange.Fragment(raw)
	balances := make([]exchange.Balance, 0, len(raw.AvailableFunds))
	for code, n := range raw.AvailableFunds {
		code = strings.ToUpper(code)
		if !a.p.Currencies.Known(code) {
			balances = append(balances, exchange.Balance{Currency: code})
			continue
		}
		v, err := a.p.Decimal("account", "available_funds."+code, n, frag)
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
		params.Set("type", "BUY")
	} else {
		params.Set("type", "SELL")
	}
	params.Set("rate", rate)
	params.Set("amount", amount)
	return params, nil
}

func pairName(pair core.CurrencyPair) string {
	return strings.ToLower(pair.Base + "_" + pair.Counter)
}
