package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateLimitOrderAcceptsPositiveAmountAndPrice(t *testing.T) {
	order := LimitOrder{
		Side:       Bid,
		Amount:     decimal.RequireFromString("0.5"),
		Pair:       MustPair("BTC", "USD"),
		LimitPrice: decimal.RequireFromString("100.25"),
	}
	if err := ValidateLimitOrder(order); err != nil {
		t.Fatalf("ValidateLimitOrder() error = %v", err)
	}
}

func TestValidateLimitOrderRejectsNonPositive(t *testing.T) {
	base := LimitOrder{
		Side:       Ask,
		Amount:     decimal.RequireFromString("1"),
		Pair:       MustPair("BTC", "USD"),
		LimitPrice: decimal.RequireFromString("100"),
	}

	zeroAmount := base
	zeroAmount.Amount = decimal.Zero
	if err := ValidateLimitOrder(zeroAmount); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("ValidateLimitOrder(zero amount) error = %v, want %v", err, ErrInvalidOrder)
	}

	negativePrice := base
	negativePrice.LimitPrice = decimal.RequireFromString("-1")
	if err := ValidateLimitOrder(negativePrice); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("ValidateLimitOrder(negative price) error = %v, want %v", err, ErrInvalidOrder)
	}

	badSide := base
	badSide.Side = "BUY"
	if err := ValidateLimitOrder(badSide); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("ValidateLimitOrder(bad side) error = %v, want %v", err, ErrInvalidOrder)
	}
}

func TestPricesMonotonic(t *testing.T) {
	levels := func(prices ...string) []LimitOrder {
		out := make([]LimitOrder, 0, len(prices))
		for _, p := range prices {
			out = append(out, LimitOrder{LimitPrice: decimal.RequireFromString(p)})
		}
		return out
	}
	if !PricesMonotonic(levels("1", "2", "2", "3"), Ask) {
		t.Fatalf("ascending asks reported non-monotonic")
	}
	if PricesMonotonic(levels("2", "1"), Ask) {
		t.Fatalf("descending asks reported monotonic")
	}
	if !PricesMonotonic(levels("100", "99"), Bid) {
		t.Fatalf("descending bids reported non-monotonic")
	}
	if PricesMonotonic(levels("99", "100"), Bid) {
		t.Fatalf("ascending bids reported monotonic")
	}
}

func TestNewCurrencyPairRejectsSameCurrency(t *testing.T) {
	if _, err := NewCurrencyPair("btc", "BTC"); err == nil {
		t.Fatalf("NewCurrencyPair(BTC, BTC) error = nil, want error")
	}
	p, err := NewCurrencyPair(" btc ", "usd")
	if err != nil {
		t.Fatalf("NewCurrencyPair() error = %v", err)
	}
	if p.String() != "BTC/USD" {
		t.Fatalf("pair = %s, want BTC/USD", p)
	}
}

func TestParsePairSeparators(t *testing.T) {
	for _, in := range []string{"BTC/USD", "btc_usd", "btc-usd"} {
		p, err := ParsePair(in)
		if err != nil {
			t.Fatalf("ParsePair(%q) error = %v", in, err)
		}
		if p != MustPair("BTC", "USD") {
			t.Fatalf("ParsePair(%q) = %s, want BTC/USD", in, p)
		}
	}
	if _, err := ParsePair("BTCUSD"); err == nil {
		t.Fatalf("ParsePair(BTCUSD) error = nil, want error")
	}
}

func TestRegistryCheck(t *testing.T) {
	r := NewRegistry("bitstamp", MustPair("BTC", "USD"))
	if err := r.Check(MustPair("BTC", "USD")); err != nil {
		t.Fatalf("Check(BTC/USD) error = %v", err)
	}
	err := r.Check(MustPair("LTC", "USD"))
	var pairErr *UnsupportedPairError
	if !errors.As(err, &pairErr) {
		t.Fatalf("Check(LTC/USD) error = %v, want UnsupportedPairError", err)
	}
	if pairErr.Exchange != "bitstamp" || pairErr.Pair != MustPair("LTC", "USD") {
		t.Fatalf("UnsupportedPairError = %+v", pairErr)
	}
	if !errors.Is(err, ErrUnsupportedPair) {
		t.Fatalf("errors.Is(err, ErrUnsupportedPair) = false")
	}
}

func TestRegistrySupportedPairsIsSortedCopy(t *testing.T) {
	r := NewRegistry("x", MustPair("LTC", "BTC"), MustPair("BTC", "USD"), MustPair("BTC", "EUR"))
	got := r.SupportedPairs()
	want := []CurrencyPair{MustPair("BTC", "EUR"), MustPair("BTC", "USD"), MustPair("LTC", "BTC")}
	if len(got) != len(want) {
		t.Fatalf("SupportedPairs() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SupportedPairs()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	got[0] = MustPair("DOGE", "BTC")
	if r.IsSupported(MustPair("DOGE", "BTC")) {
		t.Fatalf("mutating SupportedPairs() result changed the registry")
	}
}

func TestCurrenciesExtra(t *testing.T) {
	c := NewCurrencies("xyz")
	if !c.Known("btc") || !c.Known("XYZ") {
		t.Fatalf("Known() missing default or extra currency")
	}
	if c.Known("ABCDE") {
		t.Fatalf("Known(ABCDE) = true, want false")
	}
}
