package bitstamp

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
	adapter  Adapter
	apiKey   string
	username string
	signer   auth.Signer
}

var _ exchange.Exchange = (*Client)(nil)

// New builds a Bitstamp client. Signed calls need the api key, secret and the numeric
// customer id as Username.
func New(o exchange.Options) (*Client, error) {
	profile := NewProfile(o)
	c := &Client{
		Base:     exchange.NewBase(profile, o, DefaultNonceSource),
		adapter:  NewAdapter(profile),
		apiKey:   o.Credentials.APIKey,
		username: o.Credentials.Username,
	}
	if o.Credentials.APISecret != "" {
		signer, err := auth.NewHMACSigner(auth.SHA256, []byte(o.Credentials.APISecret), auth.UpperHex)
		if err != nil {
			return nil, fmt.Errorf("bitstamp: %w", err)
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
	body, err := c.Fetch(ctx, "ticker", transport.Request{Path: "/api/ticker/"}, &raw)
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
	var raw OrderBook
	body, err := c.Fetch(ctx, "orderbook", transport.Request{Path: "/api/order_book/"}, &raw)
	if err != nil {
		return core.OrderBook{}, err
	}
	book, err := c.adapter.AdaptOrderBook(raw.Asks, raw.Bids, pair)
	if err != nil {
		return core.OrderBook{}, c.WithBody(err, body)
	}
	if !raw.Timestamp.Empty() {
		ts, err := c.Profile.Stamp("orderbook", raw.Timestamp.String(), body)
		if err != nil {
			return core.OrderBook{}, err
		}
		book.Timestamp = ts
	}
	return book, nil
}

// PartialOrderBook is the full book; Bitstamp has no depth-limited endpoint.
func (c *Client) PartialOrderBook(ctx context.Context, pair core.CurrencyPair) (core.OrderBook, error) {
	return c.OrderBook(ctx, pair)
}

func (c *Client) Trades(ctx context.Context, pair core.CurrencyPair) ([]core.Trade, error) {
	if err := c.Profile.CheckPair(pair); err != nil {
		return nil, err
	}
	var raw []Transaction
	body, err := c.Fetch(ctx, "trades", transport.Request{Path: "/api/transactions/"}, &raw)
	if err != nil {
		return nil, err
	}
	trades, err := c.adapter.AdaptTrades(raw, pair)
	return trades, c.WithBody(err, body)
}

func (c *Client) AccountInfo(ctx context.Context) (core.AccountInfo, error) {
	return c.CachedAccount(ctx, func(ctx context.Context) (core.AccountInfo, error) {
		var raw Balance
		body, err := c.FetchSigned(ctx, "account", c.signed("/api/balance/", nil), &raw)
		if err != nil {
			return core.AccountInfo{}, err
		}
		raw.Username = c.username
		info, err := c.adapter.AdaptAccountInfo(raw)
		return info, c.Settle(c.WithBody(err, body))
	})
}

func (c *Client) PlaceLimitOrder(ctx context.Context, order core.LimitOrder) (string, error) {
	params, err := c.adapter.ToOrderRequest(order)
	if err != nil {
		return "", err
	}
	var resp OrderResponse
	body, err := c.FetchSigned(ctx, "place_order", c.signed(orderPath(order.Side), params), &resp)
	if err != nil {
		return "", err
	}
	if resp.ID.Empty() {
		return "", c.Settle(c.Profile.Malformed("place_order", "missing order id", body))
	}
	return resp.ID.String(), c.Settle(nil)
}

// CancelOrder answers true on success and an error object otherwise; FetchSigned has
// already surfaced the error object.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	params := url.Values{}
	params.Set("id", orderID)
	body, err := c.FetchSigned(ctx, "cancel_order", c.signed("/api/cancel_order/", params), nil)
	if err != nil {
		return err
	}
	var resp OrderResponse
	if err := transport.DecodeJSON(body, &resp); err != nil {
		var ok bool
		if transport.DecodeJSON(body, &ok) == nil && ok {
			return c.Settle(nil)
		}
		return c.Settle(c.Profile.Malformed("cancel_order", "unexpected response", body))
	}
	return c.Settle(nil)
}

// signed adds key, nonce and the upper-hex HMAC-SHA256 of nonce+username+key to params.
func (c *Client) signed(path string, params url.Values) func(int64) (transport.Request, error) {
	return func(nonce int64) (transport.Request, error) {
		if c.signer == nil || c.apiKey == "" || c.username == "" {
			return transport.Request{}, fmt.Errorf("%s: api key, secret and username: %w", Name, exchange.ErrMissingCredentials)
		}
		form := url.Values{}
		for k, v := range params {
			form[k] = append([]string(nil), v...)
		}
		n := strconv.FormatInt(nonce, 10)
		form.Set("key", c.apiKey)
		form.Set("nonce", n)
		form.Set("signature", c.signer.Sign(n+c.username+c.apiKey))
		return transport.Request{Method: http.MethodPost, Path: path, Form: form}, nil
	}
}
