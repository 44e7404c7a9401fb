package cryptotrade

import (
	"net/url"
	"strings"
	"time"

	"coinbridge/internal/codec"
	"coinbridge/internal/core"
	"coinbridge/internal/exchange"
)

const Name = "cryptotrade"

var pairs = []core.CurrencyPair{
	core.MustPair("BTC", "USD"), core.MustPair("BTC", "EUR"),
	core.MustPair("LTC", "USD"), core.MustPair("LTC", "EUR"), core.MustPair("LTC", "BTC"),
	core.MustPair("NMC", "USD"), core.MustPair("NMC", "BTC"),
	core.MustPair("PPC", "USD"), core.MustPair("PPC", "BTC"),
	core.MustPair("XPM", "USD"), core.MustPair("XPM", "BTC"),
	core.MustPair("TRC", "BTC"),
	core.MustPair("FTC", "USD"), core.MustPair("FTC", "BTC"),
}

var scales = codec.Codec{
	Amount: codec.DecimalScale(8),
	Price:  codec.DecimalScale(8),
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

var _ exchange.Adapter[Response[Ticker], exchange.Level, Trade, Response[Info]] = Adapter{}

func NewAdapter(p *exchange.Profile) Adapter {
	return Adapter{p: p}
}

// status checks the envelope. A non-empty error is the exchange message verbatim whatever
// the status says.
func (a Adapter) status(op, status, errText string, raw []byte) error {
	if errText = strings.TrimSpace(errText); errText != "" {
		return a.p.Embedded(op, errText, raw)
	}
	switch strings.ToLower(status) {
	case "success":
		return nil
	case "error":
		return a.p.Malformed(op, "error status without message", raw)
	case "":
		return a.p.Malformed(op, "missing status", raw)
	default:
		return a.p.Malformed(op, "unexpected status "+status, raw)
	}
}

func (a Adapter) AdaptTicker(raw Response[Ticker], pair core.CurrencyPair) (core.Ticker, error) {
	if err := a.p.CheckPair(pair); err != nil {
		return core.Ticker{}, err
	}
	if err := a.status("ticker", raw.Status, raw.Error, exchange.Fragment(raw)); err != nil {
		return core.Ticker{}, err
	}
	d := raw.Data
	frag := exchange.Fragment(d)
	t := core.Ticker{Pair: pair}
	var err error
	if t.Last, err = a.p.Price("ticker", "last", pair, d.Last, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Bid, err = a.p.Price("ticker", "max_bid", pair, d.MaxBid, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Ask, err = a.p.Price("ticker", "min_ask", pair, d.MinAsk, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.High, err = a.p.Price("ticker", "high", pair, d.High, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Low, err = a.p.Price("ticker", "low", pair, d.Low, frag); err != nil {
		return core.Ticker{}, err
	}
	if t.Volume, err = a.p.Amount("ticker", "vol_"+strings.ToLower(pair.Base), d.volume(pair.Base), frag); err != nil {
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
		ts, err := a.p.Stamp("trades", tr.Time.String(), frag)
		if err != nil {
			return nil, err
		}
		side := core.Ask
		if strings.EqualFold(tr.Type, "buy") {
			side = core.Bid
		}
		out = append(out, core.Trade{
			ID:        tr.ID.String(),
			Side:      side,
			Amount:    amount,
			Price:     price,
			Pair:      pair,
			Timestamp: ts,
		})
	}
	return out, nil
}

func (a Adapter) AdaptAccountInfo(raw Response[Info]) (core.AccountInfo, error) {
	if err := a.status("account", raw.Status, raw.Error, exchange.Fragment(raw)); err != nil {
		return core.AccountInfo{}, err
	}
	frag := exchange.Fragment(raw.Data)
	balances := make([]exchange.Balance, 0, len(raw.Data.Funds))
	for code, n := range raw.Data.Funds {
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
	amount, price, err := a.p.OrderValues(order)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("pair", pairName(order.Pair))
	if order.Side == core.Bid {
		params.Set("type", "Buy")
	} else {
		params.Set("type", "Sell")
	}
	params.Set("price", price)
	params.Set("amount", amount)
	return params, nil
}

func pairName(pair core.CurrencyPair) string {
	return strings.ToLower(pair.Base + "_" + pair.Counter)
}
