package btce

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

// maxNonce is the largest nonce the trade API accepts.
const maxNonce = 4294967294

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
			return nil, fmt.Errorf("btce: %w", err)
		}
		c.signer = signer
	}
	return c, nil
}

// DefaultNonceSource counts from the unix second, bounded by the trade API's nonce limit.
func DefaultNonceSource() auth.Source {
	return &auth.CounterSource{Unit: time.Second, Max: maxNonce}
}

func (c *Client) Adapter() Adapter { return c.adapter }

func (c *Client) Pairs() []core.CurrencyPair { return c.Profile.Pairs.SupportedPairs() }

func (c *Client) Ticker(ctx context.Context, pair core.CurrencyPair) (core.Ticker, error) {
	if err := c.Profile.CheckPair(pair); err != nil {
		return core.Ticker{}, err
	}
	var raw Ticker
	body, err := c.public(ctx, "ticker", "/api/3/ticker/", pair, &raw)
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
	body, err := c.public(ctx, "orderbook", "/api/3/depth/", pair, &raw)
	if err != nil {
		return core.OrderBook{}, err
	}
	book, err := c.adapter.AdaptOrderBook(raw.Asks, raw.Bids, pair)
	return book, c.WithBody(err, body)
}

func (c *Client) PartialOrderBook(_ context.Context, pair core.CurrencyPair) (core.OrderBook, error) {
	if err := c.Profile.CheckPair(pair); err != nil {
		return core.OrderBook{}, err
	}
	return core.OrderBook{}, exchange.Unsupported(Name, "partial_orderbook")
}

func (c *Client) Trades(ctx context.Context, pair core.CurrencyPair) ([]core.Trade, error) {
	if err := c.Profile.CheckPair(pair); err != nil {
		return nil, err
	}
	var raw []Trade
	body, err := c.public(ctx, "trades", "/api/3/trades/", pair, &raw)
	if err != nil {
		return nil, err
	}
	trades, err := c.adapter.AdaptTrades(raw, pair)
	return trades, c.WithBody(err, body)
}

// public fetches a pair-keyed v3 document and decodes the entry for pair into out.
// Error envelopes carrying text are already surfaced by Fetch.
func (c *Client) public(ctx context.Context, op, prefix string, pair core.CurrencyPair, out any) ([]byte, error) {
	name := pairName(pair)
	var doc map[string]json.RawMessage
	body, err := c.Fetch(ctx, op, transport.Request{Path: prefix + name}, &doc)
	if err != nil {
		return body, err
	}
	if _, failed := doc["success"]; failed {
		return body, c.Profile.Malformed(op, "error envelope without message", body)
	}
	entry, ok := doc[name]
	if !ok {
		return body, c.Profile.Malformed(op, "missing "+name, body)
	}
	if err := transport.DecodeJSON(entry, out); err != nil {
		return body, c.Profile.Malformed(op, "decode "+name+": "+err.Error(), body)
	}
	return body, nil
}

func (c *Client) AccountInfo(ctx context.Context) (core.AccountInfo, error) {
	return c.CachedAccount(ctx, func(ctx context.Context) (core.AccountInfo, error) {
		var info Info
		body, err := c.private(ctx, "account", "getInfo", nil, &info)
		if err != nil {
			return core.AccountInfo{}, err
		}
		out, err := c.adapter.AdaptAccountInfo(info)
		return out, c.Settle(c.WithBody(err, body))
	})
}

func (c *Client) PlaceLimitOrder(ctx context.Context, order core.LimitOrder) (string, error) {
	params, err := c.adapter.ToOrderRequest(order)
	if err != nil {
		return "", err
	}
	var res TradeResult
	body, err := c.private(ctx, "place_order", "Trade", params, &res)
	if err != nil {
		return "", err
	}
	if res.OrderID.Empty() {
		return "", c.Settle(c.Profile.Malformed("place_order", "missing order_id", body))
	}
	return res.OrderID.String(), c.Settle(nil)
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	params := url.Values{}
	params.Set("order_id", orderID)
	if _, err := c.private(ctx, "cancel_order", "CancelOrder", params, nil); err != nil {
		return err
	}
	return c.Settle(nil)
}

// private calls one trade API method and decodes its return object into out. Rejections
// in the success:0 envelope are settled here so callers only settle their own adaptation.
func (c *Client) private(ctx context.Context, op, method string, params url.Values, out any) ([]byte, error) {
	var env Envelope
	body, err := c.FetchSigned(ctx, op, c.signed(method, params), &env)
	if err != nil {
		return body, err
	}
	if env.Success == nil {
		return body, c.Settle(c.Profile.Malformed(op, "missing success flag", body))
	}
	if *env.Success != 1 {
		return body, c.Settle(c.Profile.Malformed(op, "success:0 without error", body))
	}
	if out == nil {
		return body, nil
	}
	if err := transport.DecodeJSON(env.Return, out); err != nil {
		return body, c.Settle(c.Profile.Malformed(op, "decode return: "+err.Error(), body))
	}
	return body, nil
}

// signed posts method and nonce with params; Sign is the hex HMAC-SHA512 of the body.
func (c *Client) signed(method string, params url.Values) func(int64) (transport.Request, error) {
	return func(nonce int64) (transport.Request, error) {
		if c.signer == nil || c.apiKey == "" {
			return transport.Request{}, fmt.Errorf("%s: api key and secret: %w", Name, exchange.ErrMissingCredentials)
		}
		form := url.Values{}
		for k, v := range params {
			form[k] = append([]string(nil), v...)
		}
		form.Set("method", method)
		form.Set("nonce", strconv.FormatInt(nonce, 10))
		header := http.Header{}
		header.Set("Key", c.apiKey)
		header.Set("Sign", c.signer.Sign(auth.CanonicalParams(form)))
		return transport.Request{Method: http.MethodPost, Path: "/tapi", Form: form, Header: header}, nil
	}
}
