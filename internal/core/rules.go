package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidateLimitOrder checks the order invariants that do not depend on an exchange.
func ValidateLimitOrder(order LimitOrder) error {
	switch order.Side {
	case Bid, Ask:
	default:
		return fmt.Errorf("%w: side %q", ErrInvalidOrder, order.Side)
	}
	if order.Amount.Cmp(decimal.Zero) <= 0 {
		return fmt.Errorf("%w: amount must be > 0", ErrInvalidOrder)
	}
	if order.LimitPrice.Cmp(decimal.Zero) <= 0 {
		return fmt.Errorf("%w: limit price must be > 0", ErrInvalidOrder)
	}
	if order.Pair.Base == "" || order.Pair.Counter == "" || order.Pair.Base == order.Pair.Counter {
		return fmt.Errorf("%w: pair %s", ErrInvalidOrder, order.Pair)
	}
	return nil
}

// PricesMonotonic reports whether levels are ordered ascending (asks) or descending (bids).
func PricesMonotonic(levels []LimitOrder, side Side) bool {
	for i := 1; i < len(levels); i++ {
		cmp := levels[i-1].LimitPrice.Cmp(levels[i].LimitPrice)
		if side == Ask && cmp > 0 {
			return false
		}
		if side == Bid && cmp < 0 {
			return false
		}
	}
	return true
}
