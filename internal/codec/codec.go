package codec

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"coinbridge/internal/core"
)

// Scale describes one wire representation. Integer scales carry value*10^Places as an
// integer string; decimal scales carry the plain value limited to Places fractional digits.
type Scale struct {
	Places  int32
	Integer bool
}

func IntScale(places int32) Scale { return Scale{Places: places, Integer: true} }

func DecimalScale(places int32) Scale { return Scale{Places: places} }

// Factor is the multiplier between the domain value and an integer wire value.
func (s Scale) Factor() decimal.Decimal {
	return decimal.New(1, s.Places)
}

// Encode converts v to its wire form, failing with a PrecisionError instead of rounding.
func (s Scale) Encode(field string, v decimal.Decimal) (string, error) {
	if v.Sign() < 0 {
		return "", fmt.Errorf("%s must not be negative: %s", field, v.String())
	}
	shifted := v.Shift(s.Places)
	if !shifted.Equal(shifted.Truncate(0)) {
		return "", &core.PrecisionError{Field: field, Value: v.String(), Places: s.Places}
	}
	if s.Integer {
		return shifted.Truncate(0).BigInt().String(), nil
	}
	return v.String(), nil
}

func (s Scale) Decode(native string) (decimal.Decimal, error) {
	native = strings.TrimSpace(native)
	if native == "" {
		return decimal.Zero, fmt.Errorf("empty numeric value")
	}
	v, err := decimal.NewFromString(native)
	if err != nil {
		return decimal.Zero, err
	}
	if !s.Integer {
		return v, nil
	}
	if !v.Equal(v.Truncate(0)) {
		return decimal.Zero, fmt.Errorf("scaled integer expected, got %q", native)
	}
	return v.Shift(-s.Places), nil
}

// DecodeInt is Decode for integer wire values already parsed as int64.
func (s Scale) DecodeInt(n int64) decimal.Decimal {
	if !s.Integer {
		return decimal.NewFromInt(n)
	}
	return decimal.New(n, -s.Places)
}

// Codec maps amounts and prices for one exchange. Price scales are chosen by the quote
// (counter) currency of the pair, falling back to Price.
type Codec struct {
	Amount       Scale
	Price        Scale
	PriceByQuote map[string]Scale
}

func (c Codec) PriceScale(quote string) Scale {
	if s, ok := c.PriceByQuote[strings.ToUpper(quote)]; ok {
		return s
	}
	return c.Price
}

func (c Codec) ToExchangeAmount(v decimal.Decimal) (string, error) {
	return c.Amount.Encode("amount", v)
}

func (c Codec) FromExchangeAmount(native string) (decimal.Decimal, error) {
	return c.Amount.Decode(native)
}

func (c Codec) ToExchangePrice(quote string, v decimal.Decimal) (string, error) {
	return c.PriceScale(quote).Encode("price", v)
}

func (c Codec) FromExchangePrice(quote, native string) (decimal.Decimal, error) {
	return c.PriceScale(quote).Decode(native)
}
