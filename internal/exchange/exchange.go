package exchange

import (
	"context"
	"encoding/json"
	"net/url"

	"coinbridge/internal/core"
)

// Adapter maps one exchange's raw records into the domain model and orders back into the
// exchange's request parameters. Implementations hold only static configuration.
type Adapter[TickerRaw, LevelRaw, TradeRaw, BalanceRaw any] interface {
	AdaptTicker(raw TickerRaw, pair core.CurrencyPair) (core.Ticker, error)
	AdaptOrderBook(asks, bids []LevelRaw, pair core.CurrencyPair) (core.OrderBook, error)
	AdaptTrades(raw []TradeRaw, pair core.CurrencyPair) ([]core.Trade, error)
	AdaptAccountInfo(raw BalanceRaw) (core.AccountInfo, error)
	ToOrderRequest(order core.LimitOrder) (url.Values, error)
}

type MarketData interface {
	// Pairs returns a copy of the pairs the exchange lists.
	Pairs() []core.CurrencyPair
	Ticker(ctx context.Context, pair core.CurrencyPair) (core.Ticker, error)
	OrderBook(ctx context.Context, pair core.CurrencyPair) (core.OrderBook, error)
	PartialOrderBook(ctx context.Context, pair core.CurrencyPair) (core.OrderBook, error)
	Trades(ctx context.Context, pair core.CurrencyPair) ([]core.Trade, error)
}

type Account interface {
	AccountInfo(ctx context.Context) (core.AccountInfo, error)
}

type Trading interface {
	PlaceLimitOrder(ctx context.Context, order core.LimitOrder) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Exchange is the full facade one exchange package provides.
type Exchange interface {
	Name() string
	MarketData
	Account
	Trading
}

// Unsupported reports a capability the exchange does not offer.
func Unsupported(exchange, op string) error {
	return &core.UnsupportedOperationError{Exchange: exchange, Op: op}
}

// Fragment renders a decoded raw record back to JSON for diagnostics.
func Fragment(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
