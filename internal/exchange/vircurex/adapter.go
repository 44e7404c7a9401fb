package vircurex

import (
	"net/url"
	"strings"
	"time"

	"coinbridge/internal/codec"
	"coinbridge/internal/core"
	"coinbridge/internal/exchange"
)

const Name = "vircurex"

var pairs = []core.CurrencyPair{
	core.MustPair("BTC", "USD"), core.MustPair("BTC", "EUR"),
	core.MustPair("LTC", "BTC"), core.MustPair("LTC", "USD"),
	core.MustPair("NMC", "BTC"), core.MustPair("PPC", "BTC"), core.MustPair("TRC", "BTC"),
	core.MustPair("FTC", "BTC"), core.MustPair("DVC", "BTC"), core.MustPair("IXC", "BTC"),
	core.MustPair("TER", "BTC"), core.MustPair("XPM", "BTC"), core.MustPair("NVC", "BTC"),
}

var scales = codec.Codec{
	Amount: codec.DecimalScale(8),
	Price:  codec.DecimalScale(8),
}

// NewProfile describes Vircurex. Its order book lists bids from the lowest price up.
func NewProfile(o exchange.Options) *exchange.Profile {
	return &exchange.Profile{
		Name:            Name,
		Pairs:           core.NewRegistry(Name, pairs...),
		Codec:           scales,
		ReverseBids:     true,
		ErrorField:      "statustext",
		OKField:         "status",
		OKValues:        []string{"0"},
		UnknownCurrency: o.UnknownPolicy(),
		Currencies:      o.KnownCurrencies(),
		Now:             o.Now,
	}
}

type Adapter struct {
	p *exchange.Profile
}

var _ exchange.Adapter[any, exchange.Level, any, Balances] = Adapter{}

func NewAdapter(p *exchange.Profile) Adapter {
	return Adapter{p: p}
}

// AdaptTicker always fails: Vircurex publishes no ticker.
func (a Adapter) AdaptTicker(_ any, pair core.CurrencyPair) (core.Ticker, error) {
	if err := a.p.CheckPair(pair); err != nil {
		return core.Ticker{}, err
	}
	return core.Ticker{}, exchange.Unsupported(Name, "ticker")
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

// AdaptTrades always fails: the public trade list carries no side.
func (a Adapter) AdaptTrades(_ []any, pair core.CurrencyPair) ([]core.Trade, error) {
	if err := a.p.CheckPair(pair); err != nil {
		return nil, err
	}
	return nil, exchange.Unsupported(Name, "trades")
}

// status maps a non-zero status code to an AdapterError with statustext verbatim.
func (a Adapter) status(op string, code exchange.Number, text string, raw []byte) error {
	switch code {
	case "0":
		return nil
	case "":
		return a.p.Malformed(op, "missing status", raw)
	}
	if text == "" {
		text = "status " + code.String()
	}
	return a.p.Embedded(op, text, raw)
}

// AdaptAccountInfo reads availablebalance per currency. Keys arrive lowercase at times.
func (a Adapter) AdaptAccountInfo(raw Balances) (core.AccountInfo, error) {
	if err := a.status("account", raw.Status, raw.StatusText, exchange.Fragment(raw)); err != nil {
		return core.AccountInfo{}, err
	}
	frag := exchange.Fragment(raw)
	balances := make([]exchange.Balance, 0, len(raw.Balances))
	for code, b := range raw.Balances {
		code = strings.ToUpper(code)
		if !a.p.Currencies.Known(code) {
			balances = append(balances, exchange.Balance{Currency: code})
			continue
		}
		v, err := a.p.Decimal("account", code+".availablebalance", b.AvailableBalance, frag)
		if err != nil {
			return core.AccountInfo{}, err
		}
		balances = append(balances, exchange.Balance{Currency: code, Amount: v})
	}
	return a.p.Account(raw.Account, balances, frag)
}

// ToOrderRequest returns the create_order parameters. Their order matters for the token,
// see orderFields.
func (a Adapter) ToOrderRequest(order core.LimitOrder) (url.Values, error) {
	amount, price, err := a.p.OrderValues(order)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	if order.Side == core.Bid {
		params.Set("ordertype", "BUY")
	} else {
		params.Set("ordertype", "SELL")
	}
	params.Set("amount", amount)
	params.Set("currency1", order.Pair.Base)
	params.Set("unitprice", price)
	params.Set("currency2", order.Pair.Counter)
	return params, nil
}

// orderFields is the token order of the create_order parameters.
var orderFields = []string{"ordertype", "amount", "currency1", "unitprice", "currency2"}
