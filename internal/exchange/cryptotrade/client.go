package cryptotrade

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"coinbridge/internal/auth"
	"coinbridge/internal/core"
	"coinbridge/internal/exchange"
	"coinbridge/internal/transport"
)

// NonceEpoch is the zero of the tick nonce, 2013-01-01T00:00:00Z.
var NonceEpoch = time.Date(2013, time.January, 1, 0, 0, 0, 0, time.UTC)

// NonceTick is the width of one nonce tick; at most one signed request fits in a tick.
const NonceTick = 250 * time.Millisecond

type Client struct {
	*exchange.Base
	adapter Adapter
	apiKey  string
	signer  auth.Signer
}

var _ exchange.Exchange = (*Client)(nil)

func New(o exchange.Options) (*Client, error) {
	profile := NewProfile(o)
	c := &Client{
		Base:    exchange.NewBase(profile, o, DefaultNonceSource),
		adapter: NewAdapter(profile),
		apiKey:  o.Credentials.APIKey,
	}
	if o.Credentials.APISecret != "" {
		signer, err := auth.NewHMACSigner(auth.SHA512, []byte(o.Credentials.APISecret), auth.Hex)
		if err != nil {
			return nil, fmt.Errorf("cryptotrade: %w", err)
		}
		c.signer = signer
	}
	return c, nil
}

// DefaultNonceSource issues quarter-second ticks since NonceEpoch. The exchange keeps nonces
// as 32-bit integers, so the source fails with core.ErrNonceExhausted once ticks pass
// math.MaxInt32.
func DefaultNonceSource() auth.Source {
	return &auth.TickSource{Epoch: NonceEpoch, Tick: NonceTick}
}

func (c *Client) Adapter() Adapter { return c.adapter }

func (c *Client) Pairs() []core.CurrencyPair { return c.Profile.Pairs.SupportedPairs() }

func (c *Client) Ticker(ctx context.Context, pair core.CurrencyPair) (core.Ticker, error) {
	if err := c.Profile.CheckPair(pair); err != nil {
		return core.Ticker{}, err
	}
	var raw Response[Ticker]
	body, err := c.Fetch(ctx, "ticker", transport.Request{Path: "/api/1/ticker/" + pairName(pair)}, &raw)
	if err != nil {
		return core.Ticker{}, err
	}
	t, err := c.adapter.AdaptTicker(raw, pair)
	return t, c.WithBody(err, body)
}

func (c *Client) OrderBook(ctx context.Context, pair core.CurrencyPair) (core.OrderBook, error) {
	if err := c.Profile.CheckPair(pair); err != nil {
		return core.OrderBook{}, err
	}
	var raw Response[Depth]
	body, err := c.Fetch(ctx, "orderbook", transport.Request{Path: "/api/1/depth/" + pairName(pair)}, &raw)
	if err != nil {
		return core.OrderBook{}, err
	}
	if err := c.adapter.status("orderbook", raw.Status, raw.Error, body); err != nil {
		return core.OrderBook{}, err
	}
	book, err := c.adapter.AdaptOrderBook(raw.Data.Asks, raw.Data.Bids, pair)
	return book, c.WithBody(err, body)
}

func (c *Client) PartialOrderBook(ctx context.Context, pair core.CurrencyPair) (core.OrderBook, error) {
	return c.OrderBook(ctx, pair)
}

func (c *Client) Trades(ctx context.Context, pair core.CurrencyPair) ([]core.Trade, error) {
	if err := c.Profile.CheckPair(pair); err != nil {
		return nil, err
	}
	var raw Response[[]Trade]
	body, err := c.Fetch(ctx, "trades", transport.Request{Path: "/api/1/trades/" + pairName(pair)}, &raw)
	if err != nil {
		return nil, err
	}
	if err := c.adapter.status("trades", raw.Status, raw.Error, body); err != nil {
		return nil, err
	}
	trades, err := c.adapter.AdaptTrades(raw.Data, pair)
	return trades, c.WithBody(err, body)
}

func (c *Client) AccountInfo(ctx context.Context) (core.AccountInfo, error) {
	return c.CachedAccount(ctx, func(ctx context.Context) (core.AccountInfo, error) {
		var raw Response[Info]
		body, err := c.FetchSigned(ctx, "account", c.signed("getinfo", nil), &raw)
		if err != nil {
			return core.AccountInfo{}, err
		}
		info, err := c.adapter.AdaptAccountInfo(raw)
		return info, c.Settle(c.WithBody(err, body))
	})
}

func (c *Client) PlaceLimitOrder(ctx context.Context, order core.LimitOrder) (string, error) {
	params, err := c.adapter.ToOrderRequest(order)
	if err != nil {
		return "", err
	}
	var raw Response[OrderResult]
	body, err := c.FetchSigned(ctx, "place_order", c.signed("trade", params), &raw)
	if err != nil {
		return "", err
	}
	if err := c.adapter.status("place_order", raw.Status, raw.Error, body); err != nil {
		return "", c.Settle(err)
	}
	if raw.Data.OrderID.Empty() {
		return "", c.Settle(c.Profile.Malformed("place_order", "missing order_id", body))
	}
	return raw.Data.OrderID.String(), c.Settle(nil)
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	params := url.Values{}
	params.Set("orderid", orderID)
	var raw Response[json.RawMessage]
	body, err := c.FetchSigned(ctx, "cancel_order", c.signed("cancelorder", params), &raw)
	if err != nil {
		return err
	}
	return c.Settle(c.adapter.status("cancel_order", raw.Status, raw.Error, body))
}

// signed posts to /api/1/private/<method>; AuthSign is the hex HMAC-SHA512 of the body.
func (c *Client) signed(method string, params url.Values) func(int64) (transport.Request, error) {
	return func(nonce int64) (transport.Request, error) {
		if c.signer == nil || c.apiKey == "" {
			return transport.Request{}, fmt.Errorf("%s: api key and secret: %w", Name, exchange.ErrMissingCredentials)
		}
		form := url.Values{}
		for k, v := range params {
			form[k] = append([]string(nil), v...)
		}
		form.Set("nonce", strconv.FormatInt(nonce, 10))
		header := http.Header{}
		header.Set("AuthKey", c.apiKey)
		header.Set("AuthSign", c.signer.Sign(auth.CanonicalParams(form)))
		return transport.Request{Method: http.MethodPost, Path: "/api/1/private/" + method, Form: form, Header: header}, nil
	}
}
