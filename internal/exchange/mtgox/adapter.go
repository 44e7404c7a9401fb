package mtgox

import (
	"net/url"
	"strings"
	"time"

	"coinbridge/internal/codec"
	"coinbridge/internal/core"
	"coinbridge/internal/exchange"
)

const Name = "mtgox"

var pairs = []core.CurrencyPair{
	core.MustPair("BTC", "USD"), core.MustPair("BTC", "EUR"), core.MustPair("BTC", "GBP"),
	core.MustPair("BTC", "AUD"), core.MustPair("BTC", "CAD"), core.MustPair("BTC", "CHF"),
	core.MustPair("BTC", "JPY"), core.MustPair("BTC", "CNY"), core.MustPair("BTC", "DKK"),
	core.MustPair("BTC", "HKD"), core.MustPair("BTC", "NZD"), core.MustPair("BTC", "PLN"),
	core.MustPair("BTC", "RUB"), core.MustPair("BTC", "SEK"), core.MustPair("BTC", "SGD"),
	core.MustPair("BTC", "THB"), core.MustPair("BTC", "NOK"),
}

// Amounts and volumes are carried as BTC*10^8. Prices are quote*10^5, except JPY and SEK
// which have fewer fractional digits and are carried as quote*10^3.
var scales = codec.Codec{
	Amount: codec.IntScale(8),
	Price:  codec.IntScale(5),
	PriceByQuote: map[string]codec.Scale{
		"JPY": codec.IntScale(3),
		"SEK": codec.IntScale(3),
	},
}

func NewProfile(o exchange.Options) *exchange.Profile {
	return &exchange.Profile{
		Name:            Name,
		Pairs:           core.NewRegistry(Name, pairs...),
		Codec:           scales,
		ReverseBids:     true,
		ErrorField:      "error",
		UnknownCurrency: o.UnknownPolicy(),
		Currencies:      o.KnownCurrencies(),
		Now:             o.Now,
	}
}

type Adapter struct {
	p *exchange.Profile
}

var _ exchange.Adapter[TickerResponse, Level, Trade, InfoResponse] = Adapter{}

func NewAdapter(p *exchange.Profile) Adapter {
	return Adapter{p: p}
}

// checkResult surfaces a non-empty error verbatim whatever result says, then requires
// result:"success".
func (a Adapter) checkResult(op, result, errText string, raw any) error {
	if strings.TrimSpace(errText) != "" {
		return a.p.Embedded(op, strings.TrimSpace(errText), exchange.Fragment(raw))
	}
	switch result {
	case "success":
		return nil
	case "error":
		return a.p.Malformed(op, "error result without message", exchange.Fragment(raw))
	case "":
		return a.p.Malformed(op, "missing result", exchange.Fragment(raw))
	default:
		return a.p.Malformed(op, "unexpected result "+result, exchange.Fragment(raw))
	}
}

func (a Adapter) AdaptTicker(raw TickerResponse, pair core.CurrencyPair) (core.Ticker, error) {
	if err := a.p.CheckPair(pair); err != nil {
		return core.Ticker{}, err
	}
	if err := a.checkResult("ticker", raw.Result, raw.Error, raw); err != nil {
		return core.Ticker{}, err
	}
	frag := exchange.Fragment(raw.Return)
	t := core.Ticker{Pair: pair}
	var err error
	if t.Last, err = a.p.Price("ticker", "last", pair, raw.Return.Last.ValueInt, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Bid, err = a.p.Price("ticker", "buy", pair, raw.Return.Buy.ValueInt, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Ask, err = a.p.Price("ticker", "sell", pair, raw.Return.Sell.ValueInt, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.High, err = a.p.Price("ticker", "high", pair, raw.Return.High.ValueInt, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Low, err = a.p.Price("ticker", "low", pair, raw.Return.Low.ValueInt, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Volume, err = a.p.Amount("ticker", "vol", raw.Return.Vol.ValueInt, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Timestamp, err = a.p.Stamp("ticker", raw.Return.Now.String(), frag); err != nil {
		return core.Ticker{}, err
	}
	return t, nil
}

func levelFields(l Level) (exchange.Number, exchange.Number) { return l.PriceInt, l.AmountInt }

func (a Adapter) AdaptOrderBook(asks, bids []Level, pair core.CurrencyPair) (core.OrderBook, error) {
	if err := a.p.CheckPair(pair); err != nil {
		return core.OrderBook{}, err
	}
	askOrders, err := exchange.Levels(a.p, core.Ask, pair, asks, levelFields)
	if err != nil {
		return core.OrderBook{}, err
	}
	bidOrders, err := exchange.Levels(a.p, core.Bid, pair, bids, levelFields)
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
		price, err := a.p.Price("trades", "price_int", pair, tr.PriceInt, frag)
		if err != nil {
			return nil, err
		}
		amount, err := a.p.Amount("trades", "amount_int", tr.AmountInt, frag)
		if err != nil {
			return nil, err
		}
		ts, err := a.p.Stamp("trades", tr.Date.String(), frag)
		if err != nil {
			return nil, err
		}
		side := core.Ask
		if strings.EqualFold(tr.TradeType, "bid") {
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

// AdaptAccountInfo reads each wallet at its own scale: BTC as an amount, fiat at the
// price scale of that currency.
func (a Adapter) AdaptAccountInfo(raw InfoResponse) (core.AccountInfo, error) {
	if err := a.checkResult("account", raw.Result, raw.Error, raw); err != nil {
		return core.AccountInfo{}, err
	}
	frag := exchange.Fragment(raw.Return)
	balances := make([]exchange.Balance, 0, len(raw.Return.Wallets))
	for code, w := range raw.Return.Wallets {
		code = strings.ToUpper(code)
		if !a.p.Currencies.Known(code) {
			balances = append(balances, exchange.Balance{Currency: code})
			continue
		}
		scale := scales.PriceScale(code)
		if code == "BTC" {
			scale = scales.Amount
		}
		if w.Balance.ValueInt.Empty() {
			return core.AccountInfo{}, a.p.Malformed("account", "missing Balance.value_int for "+code, frag)
		}
		v, err := scale.Decode(w.Balance.ValueInt.String())
		if err != nil {
			return core.AccountInfo{}, a.p.Malformed("account", code+": "+err.Error(), frag)
		}
		balances = append(balances, exchange.Balance{Currency: code, Amount: v})
	}
	return a.p.Account(raw.Return.Login, balances, frag)
}

func (a Adapter) ToOrderRequest(order core.LimitOrder) (url.Values, error) {
	amount, price, err := a.p.OrderValues(order)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("type", strings.ToLower(string(order.Side)))
	params.Set("amount_int", amount)
	params.Set("price_int", price)
	return params, nil
}

// symbol is the path form of a pair, e.g. BTCUSD.
func symbol(pair core.CurrencyPair) string {
	return pair.Base + pair.Counter
}
