package mtgox

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

// Client is the MtGox market, account and trade facade.
type Client struct {
	*exchange.Base
	adapter Adapter
	apiKey  string
	signer  auth.Signer
}

var _ exchange.Exchange = (*Client)(nil)

// New builds a client. The api secret is the base64 string MtGox issues; it is only
// required for account and trade calls.
func New(o exchange.Options) (*Client, error) {
	profile := NewProfile(o)
	c := &Client{
		Base:    exchange.NewBase(profile, o, DefaultNonceSource),
		adapter: NewAdapter(profile),
		apiKey:  o.Credentials.APIKey,
	}
	if o.Credentials.APISecret != "" {
		key, err := auth.DecodeBase64Secret(o.Credentials.APISecret)
		if err != nil {
			return nil, fmt.Errorf("mtgox: %w", err)
		}
		signer, err := auth.NewHMACSigner(auth.SHA512, key, auth.Base64)
		if err != nil {
			return nil, fmt.Errorf("mtgox: %w", err)
		}
		c.signer = signer
	}
	return c, nil
}

// DefaultNonceSource issues millisecond-clock nonces.
func DefaultNonceSource() auth.Source {
	return &auth.CounterSource{Unit: time.Millisecond}
}

func (c *Client) Adapter() Adapter { return c.adapter }

func (c *Client) Pairs() []core.CurrencyPair { return c.Profile.Pairs.SupportedPairs() }

func (c *Client) Ticker(ctx context.Context, pair core.CurrencyPair) (core.Ticker, error) {
	if err := c.Profile.CheckPair(pair); err != nil {
		return core.Ticker{}, err
	}
	var resp TickerResponse
	body, err := c.Fetch(ctx, "ticker", transport.Request{Path: "/api/1/" + symbol(pair) + "/ticker"}, &resp)
	if err != nil {
		return core.Ticker{}, err
	}
	t, err := c.adapter.AdaptTicker(resp, pair)
	return t, c.WithBody(err, body)
}

func (c *Client) OrderBook(ctx context.Context, pair core.CurrencyPair) (core.OrderBook, error) {
	return c.depth(ctx, pair, "/fullDepth")
}

// PartialOrderBook returns the levels closest to the spread.
func (c *Client) PartialOrderBook(ctx context.Context, pair core.CurrencyPair) (core.OrderBook, error) {
	return c.depth(ctx, pair, "/depth/fetch")
}

func (c *Client) depth(ctx context.Context, pair core.CurrencyPair, suffix string) (core.OrderBook, error) {
	if err := c.Profile.CheckPair(pair); err != nil {
		return core.OrderBook{}, err
	}
	var resp DepthResponse
	body, err := c.Fetch(ctx, "orderbook", transport.Request{Path: "/api/1/" + symbol(pair) + suffix}, &resp)
	if err != nil {
		return core.OrderBook{}, err
	}
	if err := c.adapter.checkResult("orderbook", resp.Result, resp.Error, resp); err != nil {
		return core.OrderBook{}, c.WithBody(err, body)
	}
	book, err := c.adapter.AdaptOrderBook(resp.Return.Asks, resp.Return.Bids, pair)
	return book, c.WithBody(err, body)
}

func (c *Client) Trades(ctx context.Context, pair core.CurrencyPair) ([]core.Trade, error) {
	if err := c.Profile.CheckPair(pair); err != nil {
		return nil, err
	}
	var resp TradesResponse
	body, err := c.Fetch(ctx, "trades", transport.Request{Path: "/api/1/" + symbol(pair) + "/trades/fetch"}, &resp)
	if err != nil {
		return nil, err
	}
	if err := c.adapter.checkResult("trades", resp.Result, resp.Error, resp); err != nil {
		return nil, c.WithBody(err, body)
	}
	trades, err := c.adapter.AdaptTrades(resp.Return, pair)
	return trades, c.WithBody(err, body)
}

func (c *Client) AccountInfo(ctx context.Context) (core.AccountInfo, error) {
	return c.CachedAccount(ctx, func(ctx context.Context) (core.AccountInfo, error) {
		var resp InfoResponse
		body, err := c.FetchSigned(ctx, "account", c.signed("/api/1/generic/private/info", nil), &resp)
		if err != nil {
			return core.AccountInfo{}, err
		}
		info, err := c.adapter.AdaptAccountInfo(resp)
		return info, c.Settle(c.WithBody(err, body))
	})
}

func (c *Client) PlaceLimitOrder(ctx context.Context, order core.LimitOrder) (string, error) {
	params, err := c.adapter.ToOrderRequest(order)
	if err != nil {
		return "", err
	}
	var resp OrderResponse
	body, err := c.FetchSigned(ctx, "place_order", c.signed("/api/1/"+symbol(order.Pair)+"/private/order/add", params), &resp)
	if err != nil {
		return "", err
	}
	if err := c.adapter.checkResult("place_order", resp.Result, resp.Error, resp); err != nil {
		return "", c.Settle(c.WithBody(err, body))
	}
	if resp.Return == "" {
		return "", c.Settle(c.Profile.Malformed("place_order", "missing order id", body))
	}
	return resp.Return, c.Settle(nil)
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	params := url.Values{}
	params.Set("oid", orderID)
	var resp OrderResponse
	body, err := c.FetchSigned(ctx, "cancel_order", c.signed("/api/1/generic/private/order/cancel", params), &resp)
	if err != nil {
		return err
	}
	return c.Settle(c.WithBody(c.adapter.checkResult("cancel_order", resp.Result, resp.Error, resp), body))
}

// signed signs the form body, nonce included, with Rest-Key/Rest-Sign headers.
func (c *Client) signed(path string, params url.Values) func(int64) (transport.Request, error) {
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
		header.Set("Rest-Key", c.apiKey)
		header.Set("Rest-Sign", c.signer.Sign(auth.CanonicalParams(form)))
		return transport.Request{Method: http.MethodPost, Path: path, Form: form, Header: header}, nil
	}
}
