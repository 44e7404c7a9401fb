package core

import "strings"

type UnknownCurrencyPolicy string

const (
	// SkipUnknown drops balances in unrecognized currencies and keeps the rest.
	SkipUnknown UnknownCurrencyPolicy = "skip"
	// RejectUnknown fails the whole balance adaptation.
	RejectUnknown UnknownCurrencyPolicy = "reject"
)

var defaultCurrencies = []string{
	// fiat
	"AUD", "BRL", "CAD", "CHF", "CNY", "CZK", "DKK", "EUR", "GBP", "HKD", "INR", "JPY",
	"KRW", "MXN", "NOK", "NZD", "PLN", "RUB", "RUR", "SEK", "SGD", "THB", "TRY", "USD", "ZAR",
	// crypto
	"BTC", "LTC", "NMC", "PPC", "NVC", "TRC", "FTC", "XPM", "DVC", "IXC", "TER", "CNC",
	"WDC", "YAC", "FRC", "BQC", "QRK", "ZET", "SC", "ANC", "DOGE", "XRP",
}

// Currencies is an immutable set of recognized currency codes.
type Currencies struct {
	codes map[string]struct{}
}

// NewCurrencies builds the default set extended with extra codes.
func NewCurrencies(extra ...string) Currencies {
	c := Currencies{codes: make(map[string]struct{}, len(defaultCurrencies)+len(extra))}
	for _, code := range defaultCurrencies {
		c.codes[code] = struct{}{}
	}
	for _, code := range extra {
		code = strings.ToUpper(strings.TrimSpace(code))
		if isCurrencyCode(code) {
			c.codes[code] = struct{}{}
		}
	}
	return c
}

func (c Currencies) Known(code string) bool {
	if c.codes == nil {
		return false
	}
	_, ok := c.codes[strings.ToUpper(code)]
	return ok
}
