package bter

import (
	"context"
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
			return nil, fmt.Errorf("bter: %w", err)
		}
		c.signer = signer
	}
	return c, nil
}

func DefaultNonceSource() auth.Source {
	return &auth.CounterSource{Unit: time.Millisecond}
}

func (c *Client) Adapter() Adapter { return c.adapter }

func (c *Client) Pairs() []core.CurrencyPair { return c.Profile.Pairs.SupportedPairs() }

func (c *Client) Ticker(ctx context.Context, pair core.CurrencyPair) (core.Ticker, error) {
	if err := c.Profile.CheckPair(pair); err != nil {
		return core.Ticker{}, err
	}
	var raw Ticker
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
	var raw Depth
	body, err := c.Fetch(ctx, "orderbook", transport.Request{Path: "/api/1/depth/" + pairName(pair)}, &raw)
	if err != nil {
		return core.OrderBook{}, err
	}
	if err := c.adapter.check("orderbook", raw.Result, raw.Msg, body); err != nil {
		return core.OrderBook{}, err
	}
	book, err := c.adapter.AdaptOrderBook(raw.Asks, raw.Bids, pair)
	return book, c.WithBody(err, body)
}

// PartialOrderBook is the full book; BTER's depth endpoint has no size parameter.
func (c *Client) PartialOrderBook(ctx context.Context, pair core.CurrencyPair) (core.OrderBook, error) {
	return c.OrderBook(ctx, pair)
}

func (c *Client) Trades(ctx context.Context, pair core.CurrencyPair) ([]core.Trade, error) {
	if err := c.Profile.CheckPair(pair); err != nil {
		return nil, err
	}
	var raw TradeHistory
	body, err := c.Fetch(ctx, "trades", transport.Request{Path: "/api/1/trade/" + pairName(pair)}, &raw)
	if err != nil {
		return nil, err
	}
	if err := c.adapter.check("trades", raw.Result, raw.Msg, body); err != nil {
		return nil, err
	}
	trades, err := c.adapter.AdaptTrades(raw.Data, pair)
	return trades, c.WithBody(err, body)
}

func (c *Client) AccountInfo(ctx context.Context) (core.AccountInfo, error) {
	return c.CachedAccount(ctx, func(ctx context.Context) (core.AccountInfo, error) {
		var raw Funds
		body, err := c.FetchSigned(ctx, "account", c.signed("getfunds", nil), &raw)
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
	var res OrderResult
	body, err := c.FetchSigned(ctx, "place_order", c.signed("placeorder", params), &res)
	if err != nil {
		return "", err
	}
	if err := c.adapter.check("place_order", res.Result, res.Msg, body); err != nil {
		return "", c.Settle(err)
	}
	if res.OrderID.Empty() {
		return "", c.Settle(c.Profile.Malformed("place_order", "missing order_id", body))
	}
	return res.OrderID.String(), c.Settle(nil)
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	params := url.Values{}
	params.Set("order_id", orderID)
	var res OrderResult
	body, err := c.FetchSigned(ctx, "cancel_order", c.signed("cancelorder", params), &res)
	if err != nil {
		return err
	}
	return c.Settle(c.adapter.check("cancel_order", res.Result, res.Msg, body))
}

// signed posts params and nonce to /api/1/private/<method> with KEY and the hex
// HMAC-SHA512 of the body as SIGN.
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
		header.Set("KEY", c.apiKey)
		header.Set("SIGN", c.signer.Sign(auth.CanonicalParams(form)))
		return transport.Request{Method: http.MethodPost, Path: "/api/1/private/" + method, Form: form, Header: header}, nil
	}
}
