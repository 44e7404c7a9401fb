package exchange

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"coinbridge/internal/codec"
	"coinbridge/internal/core"
)

// Profile is the static per-exchange configuration every adapter is built from. It is
// constructed once and never mutated.
type Profile struct {
	Name  string
	Pairs *core.Registry
	Codec codec.Codec
	// ReverseBids and ReverseAsks mark sides the exchange lists opposite to the domain
	// order (bids descending, asks ascending).
	ReverseBids bool
	ReverseAsks bool
	// ErrorField names the payload field carrying an embedded exchange error.
	ErrorField string
	// OKField and OKValues mark exchanges that echo a message in ErrorField on success too.
	// The message is an error only while OKField holds none of OKValues.
	OKField         string
	OKValues        []string
	UnknownCurrency core.UnknownCurrencyPolicy
	Currencies      core.Currencies
	Now             func() time.Time
}

func (p *Profile) now() time.Time {
	if p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now().UTC()
}

// Stamp parses an exchange timestamp, using the profile clock when the exchange sent none.
func (p *Profile) Stamp(op, s string, raw []byte) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return p.now(), nil
	}
	ts, err := ParseUnix(s)
	if err != nil {
		return time.Time{}, p.Malformed(op, err.Error(), raw)
	}
	return ts, nil
}

func (p *Profile) CheckPair(pair core.CurrencyPair) error {
	return p.Pairs.Check(pair)
}

// Malformed reports a response that cannot be adapted.
func (p *Profile) Malformed(op, msg string, raw []byte) error {
	return &core.AdapterError{Exchange: p.Name, Op: op, Msg: msg, Raw: core.RawFragment(raw)}
}

// Embedded reports an error message the exchange placed in its payload; text is kept verbatim.
func (p *Profile) Embedded(op, text string, raw []byte) error {
	return &core.AdapterError{Exchange: p.Name, Op: op, Msg: text, Raw: core.RawFragment(raw)}
}

// EmbeddedError inspects a raw response body for a non-empty ErrorField and reports it
// verbatim with the body as fragment. Bodies that are not JSON objects carry no such field.
func (p *Profile) EmbeddedError(op string, body []byte) error {
	if p.ErrorField == "" {
		return nil
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil
	}
	text := ErrorText(fields[p.ErrorField])
	if text == "" {
		return nil
	}
	if p.OKField != "" {
		status := ErrorText(fields[p.OKField])
		for _, ok := range p.OKValues {
			if status == ok {
				return nil
			}
		}
	}
	return p.Embedded(op, text, body)
}

// Decimal decodes a plain decimal field, reporting missing or malformed values.
func (p *Profile) Decimal(op, field string, n Number, raw []byte) (decimal.Decimal, error) {
	if n.Empty() {
		return decimal.Zero, p.Malformed(op, "missing field "+field, raw)
	}
	v, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, p.Malformed(op, fmt.Sprintf("field %s: %v", field, err), raw)
	}
	return v, nil
}

// Price decodes a price in the pair's quote currency through the codec.
func (p *Profile) Price(op, field string, pair core.CurrencyPair, n Number, raw []byte) (decimal.Decimal, error) {
	if n.Empty() {
		return decimal.Zero, p.Malformed(op, "missing field "+field, raw)
	}
	v, err := p.Codec.FromExchangePrice(pair.Counter, n.String())
	if err != nil {
		return decimal.Zero, p.Malformed(op, fmt.Sprintf("field %s: %v", field, err), raw)
	}
	return v, nil
}

// Amount decodes an amount through the codec.
func (p *Profile) Amount(op, field string, n Number, raw []byte) (decimal.Decimal, error) {
	if n.Empty() {
		return decimal.Zero, p.Malformed(op, "missing field "+field, raw)
	}
	v, err := p.Codec.FromExchangeAmount(n.String())
	if err != nil {
		return decimal.Zero, p.Malformed(op, fmt.Sprintf("field %s: %v", field, err), raw)
	}
	return v, nil
}

// Levels decodes raw book levels of one side; fields extracts (price, amount) from a level.
func Levels[L any](p *Profile, side core.Side, pair core.CurrencyPair, raw []L, fields func(L) (price, amount Number)) ([]core.LimitOrder, error) {
	out := make([]core.LimitOrder, 0, len(raw))
	for i, level := range raw {
		priceRaw, amountRaw := fields(level)
		at := fmt.Sprintf("%ss[%d]", strings.ToLower(string(side)), i)
		frag := []byte(fmt.Sprintf("%s=[%s,%s]", at, priceRaw, amountRaw))
		price, err := p.Price("orderbook", at+".price", pair, priceRaw, frag)
		if err != nil {
			return nil, err
		}
		amount, err := p.Amount("orderbook", at+".amount", amountRaw, frag)
		if err != nil {
			return nil, err
		}
		out = append(out, core.LimitOrder{Side: side, Amount: amount, Pair: pair, LimitPrice: price})
	}
	return out, nil
}

// OrderBook orders both sides best-first. The per-exchange reverse flags are applied first;
// a side that is still out of order is stably sorted and logged.
func (p *Profile) OrderBook(pair core.CurrencyPair, ts time.Time, asks, bids []core.LimitOrder) core.OrderBook {
	if ts.IsZero() {
		ts = p.now()
	}
	return core.OrderBook{
		Timestamp: ts,
		Asks:      p.orderSide(pair, core.Ask, asks, p.ReverseAsks),
		Bids:      p.orderSide(pair, core.Bid, bids, p.ReverseBids),
	}
}

func (p *Profile) orderSide(pair core.CurrencyPair, side core.Side, levels []core.LimitOrder, reverse bool) []core.LimitOrder {
	out := make([]core.LimitOrder, len(levels))
	copy(out, levels)
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if core.PricesMonotonic(out, side) {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		if side == core.Bid {
			return out[i].LimitPrice.GreaterThan(out[j].LimitPrice)
		}
		return out[i].LimitPrice.LessThan(out[j].LimitPrice)
	})
	log.Printf("level=WARN event=orderbook_resorted exchange=%q pair=%q side=%q levels=%d reverse_flag=%t",
		p.Name, pair.String(), string(side), len(out), reverse)
	return out
}

// Balance is one currency balance as the exchange reports it, before filtering.
type Balance struct {
	Currency string
	Amount   decimal.Decimal
}

// Account builds AccountInfo with one wallet per currency, sorted by code. Under SkipUnknown,
// currencies outside the known set are dropped and logged on a best-effort basis; recognized
// currencies are never dropped. RejectUnknown fails the whole balance instead.
func (p *Profile) Account(owner string, balances []Balance, raw []byte) (core.AccountInfo, error) {
	seen := make(map[string]struct{}, len(balances))
	wallets := make([]core.Wallet, 0, len(balances))
	for _, b := range balances {
		code := strings.ToUpper(strings.TrimSpace(b.Currency))
		if !p.Currencies.Known(code) {
			if p.UnknownCurrency == core.RejectUnknown {
				return core.AccountInfo{}, p.Malformed("account", "unknown currency "+code, raw)
			}
			log.Printf("level=INFO event=currency_skipped exchange=%q currency=%q", p.Name, code)
			continue
		}
		if _, dup := seen[code]; dup {
			return core.AccountInfo{}, p.Malformed("account", "duplicate wallet currency "+code, raw)
		}
		seen[code] = struct{}{}
		wallets = append(wallets, core.Wallet{Currency: code, Balance: b.Amount})
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].Currency < wallets[j].Currency })
	return core.AccountInfo{Owner: owner, Wallets: wallets}, nil
}

// OrderValues validates order against the registry and domain rules and encodes amount and
// price with the codec.
func (p *Profile) OrderValues(order core.LimitOrder) (amount, price string, err error) {
	if err := p.CheckPair(order.Pair); err != nil {
		return "", "", err
	}
	if err := core.ValidateLimitOrder(order); err != nil {
		return "", "", err
	}
	amount, err = p.Codec.ToExchangeAmount(order.Amount)
	if err != nil {
		return "", "", err
	}
	price, err = p.Codec.ToExchangePrice(order.Pair.Counter, order.LimitPrice)
	if err != nil {
		return "", "", err
	}
	return amount, price, nil
}
