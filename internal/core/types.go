package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Bid Side = "BID"
	Ask Side = "ASK"
)

// CurrencyPair is an ordered (base, counter) pair of uppercase currency codes.
type CurrencyPair struct {
	Base    string `json:"base"`
	Counter string `json:"counter"`
}

func NewCurrencyPair(base, counter string) (CurrencyPair, error) {
	p := CurrencyPair{
		Base:    strings.ToUpper(strings.TrimSpace(base)),
		Counter: strings.ToUpper(strings.TrimSpace(counter)),
	}
	if !isCurrencyCode(p.Base) || !isCurrencyCode(p.Counter) {
		return CurrencyPair{}, fmt.Errorf("invalid currency pair %q/%q", base, counter)
	}
	if p.Base == p.Counter {
		return CurrencyPair{}, fmt.Errorf("currency pair base and counter must differ: %s", p.Base)
	}
	return p, nil
}

// MustPair is NewCurrencyPair for static tables.
func MustPair(base, counter string) CurrencyPair {
	p, err := NewCurrencyPair(base, counter)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePair accepts "BTC/USD", "BTC_USD" or "btc-usd".
func ParsePair(s string) (CurrencyPair, error) {
	sep := strings.IndexAny(s, "/_-")
	if sep <= 0 || sep == len(s)-1 {
		return CurrencyPair{}, fmt.Errorf("invalid currency pair %q", s)
	}
	return NewCurrencyPair(s[:sep], s[sep+1:])
}

func (p CurrencyPair) String() string {
	return p.Base + "/" + p.Counter
}

func isCurrencyCode(code string) bool {
	if len(code) < 2 || len(code) > 10 {
		return false
	}
	for _, r := range code {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}

type LimitOrder struct {
	ID         string
	Side       Side
	Amount     decimal.Decimal
	Pair       CurrencyPair
	LimitPrice decimal.Decimal
	Timestamp  time.Time
}

// OrderBook asks ascend by price, bids descend; the best level is first on each side.
type OrderBook struct {
	Timestamp time.Time
	Asks      []LimitOrder
	Bids      []LimitOrder
}

type Ticker struct {
	Pair      CurrencyPair
	Last      decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
}

type Trade struct {
	ID        string
	Side      Side
	Amount    decimal.Decimal
	Price     decimal.Decimal
	Pair      CurrencyPair
	Timestamp time.Time
}

type Wallet struct {
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}

type AccountInfo struct {
	Owner   string   `json:"owner"`
	Wallets []Wallet `json:"wallets"`
}

// Balance returns the wallet balance for currency, zero when absent.
func (a AccountInfo) Balance(currency string) decimal.Decimal {
	currency = strings.ToUpper(currency)
	for _, w := range a.Wallets {
		if w.Currency == currency {
			return w.Balance
		}
	}
	return decimal.Zero
}
