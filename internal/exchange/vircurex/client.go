package vircurex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"coinbridge/internal/auth"
	"coinbridge/internal/core"
	"coinbridge/internal/exchange"
	"coinbridge/internal/transport"
)

// tokenTime is the layout of the timestamp bound into each token, always UTC.
const tokenTime = "2006-01-02T15:04:05"

type Client struct {
	*exchange.Base
	adapter Adapter
	user    string
	signer  auth.Signer
	now     func() time.Time
}

var _ exchange.Exchange = (*Client)(nil)

// New builds a Vircurex client. Username is the account name; APISecret is the per-command
// secret word configured on the account.
func New(o exchange.Options) (*Client, error) {
	profile := NewProfile(o)
	c := &Client{
		Base:    exchange.NewBase(profile, o, DefaultNonceSource),
		adapter: NewAdapter(profile),
		user:    o.Credentials.Username,
		now:     o.Now,
	}
	if c.user == "" {
		c.user = o.Credentials.APIKey
	}
	if c.now == nil {
		c.now = time.Now
	}
	if o.Credentials.APISecret != "" {
		signer, err := auth.NewKeyedHashSigner(auth.SHA256, o.Credentials.APISecret, ";", auth.Hex)
		if err != nil {
			return nil, fmt.Errorf("vircurex: %w", err)
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

func (c *Client) Ticker(_ context.Context, pair core.CurrencyPair) (core.Ticker, error) {
	return c.adapter.AdaptTicker(nil, pair)
}

func (c *Client) OrderBook(ctx context.Context, pair core.CurrencyPair) (core.OrderBook, error) {
	if err := c.Profile.CheckPair(pair); err != nil {
		return core.OrderBook{}, err
	}
	query := url.Values{}
	query.Set("base", pair.Base)
	query.Set("alt", pair.Counter)
	var raw Depth
	body, err := c.Fetch(ctx, "orderbook", transport.Request{Path: "/api/orderbook.json", Query: query}, &raw)
	if err != nil {
		return core.OrderBook{}, err
	}
	book, err := c.adapter.AdaptOrderBook(raw.Asks, raw.Bids, pair)
	return book, c.WithBody(err, body)
}

func (c *Client) PartialOrderBook(ctx context.Context, pair core.CurrencyPair) (core.OrderBook, error) {
	return c.OrderBook(ctx, pair)
}

func (c *Client) Trades(_ context.Context, pair core.CurrencyPair) ([]core.Trade, error) {
	return c.adapter.AdaptTrades(nil, pair)
}

func (c *Client) AccountInfo(ctx context.Context) (core.AccountInfo, error) {
	return c.CachedAccount(ctx, func(ctx context.Context) (core.AccountInfo, error) {
		var raw Balances
		body, err := c.FetchSigned(ctx, "account", c.signed("get_balances", nil, nil), &raw)
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
	var reply OrderReply
	body, err := c.FetchSigned(ctx, "place_order", c.signed("create_order", params, orderFields), &reply)
	if err != nil {
		return "", err
	}
	if err := c.adapter.status("place_order", reply.Status, reply.StatusText, body); err != nil {
		return "", c.Settle(err)
	}
	if reply.OrderID.Empty() {
		return "", c.Settle(c.Profile.Malformed("place_order", "missing orderid", body))
	}
	return reply.OrderID.String(), c.Settle(nil)
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	params := url.Values{}
	params.Set("orderid", orderID)
	var reply OrderReply
	body, err := c.FetchSigned(ctx, "cancel_order", c.signed("delete_order", params, []string{"orderid"}), &reply)
	if err != nil {
		return err
	}
	return c.Settle(c.adapter.status("cancel_order", reply.Status, reply.StatusText, body))
}

// signed builds GET /api/<command>.json. The token is SHA-256 over
// secret;user;timestamp;id;command followed by the values of fields in order.
func (c *Client) signed(command string, params url.Values, fields []string) func(int64) (transport.Request, error) {
	return func(nonce int64) (transport.Request, error) {
		if c.signer == nil || c.user == "" {
			return transport.Request{}, fmt.Errorf("%s: account name and secret: %w", Name, exchange.ErrMissingCredentials)
		}
		id := strconv.FormatInt(nonce, 10)
		ts := c.now().UTC().Format(tokenTime)
		parts := []string{c.user, ts, id, command}
		for _, f := range fields {
			parts = append(parts, params.Get(f))
		}
		query := url.Values{}
		for k, v := range params {
			query[k] = append([]string(nil), v...)
		}
		query.Set("account", c.user)
		query.Set("id", id)
		query.Set("timestamp", ts)
		query.Set("token", c.signer.Sign(strings.Join(parts, ";")))
		return transport.Request{Method: http.MethodGet, Path: "/api/" + command + ".json", Query: query}, nil
	}
}
