package bitstamp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"coinbridge/internal/cache"
	"coinbridge/internal/core"
	"coinbridge/internal/exchange"
	"coinbridge/internal/transport"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestClient(t *testing.T, handler http.HandlerFunc, o exchange.Options) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	o.Transport = transport.NewHTTPTransport(srv.URL, time.Second)
	c, err := New(o)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

var creds = exchange.Credentials{APIKey: "key", APISecret: "secret", Username: "123456"}

func TestTickerDecodesQuotedDecimals(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ticker/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"high":"95.00","last":"93.41","timestamp":"1364689759","bid":"93.40","volume":"12345.67890000","low":"90.10","ask":"93.49"}`))
	}, exchange.Options{})

	got, err := c.Ticker(context.Background(), core.MustPair("BTC", "USD"))
	if err != nil {
		t.Fatalf("Ticker() error = %v", err)
	}
	if !got.Last.Equal(dec("93.41")) || !got.Bid.Equal(dec("93.4")) || !got.Ask.Equal(dec("93.49")) {
		t.Fatalf("Ticker() = %+v", got)
	}
	if !got.Volume.Equal(dec("12345.6789")) || !got.Timestamp.Equal(time.Unix(1364689759, 0)) {
		t.Fatalf("volume=%s timestamp=%s", got.Volume, got.Timestamp)
	}
}

func TestTickerSurfacesErrorPayload(t *testing.T) {
	body := `{"error":"API call limit exceeded"}`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}, exchange.Options{})

	_, err := c.Ticker(context.Background(), core.MustPair("BTC", "USD"))
	var adapterErr *core.AdapterError
	if !errors.As(err, &adapterErr) {
		t.Fatalf("Ticker() error = %v, want AdapterError", err)
	}
	if adapterErr.Msg != "API call limit exceeded" || adapterErr.Raw != body {
		t.Fatalf("msg=%q raw=%q", adapterErr.Msg, adapterErr.Raw)
	}
	if errors.Is(err, core.ErrAuthentication) {
		t.Fatalf("rate limit classified as authentication failure")
	}
}

func TestOrderBookMalformedLevelCarriesBody(t *testing.T) {
	body := `{"timestamp":"1364689759","bids":[["93.40","x"]],"asks":[]}`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}, exchange.Options{})

	_, err := c.OrderBook(context.Background(), core.MustPair("BTC", "USD"))
	var adapterErr *core.AdapterError
	if !errors.As(err, &adapterErr) || adapterErr.Raw != body {
		t.Fatalf("OrderBook() error = %v, want AdapterError carrying the response body", err)
	}
}

func TestOrderBookKeepsExchangeOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"timestamp":"1364689759","bids":[["93.40","1.0"],["93.00","2.5"]],"asks":[["93.49","0.3"],["94.00","4"]]}`))
	}, exchange.Options{})

	book, err := c.OrderBook(context.Background(), core.MustPair("BTC", "USD"))
	if err != nil {
		t.Fatalf("OrderBook() error = %v", err)
	}
	if !book.Bids[0].LimitPrice.Equal(dec("93.4")) || !book.Asks[0].LimitPrice.Equal(dec("93.49")) {
		t.Fatalf("best levels = %s / %s", book.Bids[0].LimitPrice, book.Asks[0].LimitPrice)
	}
	if !book.Timestamp.Equal(time.Unix(1364689759, 0)) {
		t.Fatalf("timestamp = %s", book.Timestamp)
	}
}

func TestTradesMapTransactionType(t *testing.T) {
	var raw []Transaction
	if err := transport.DecodeJSON([]byte(`[{"date":"1364689759","tid":11,"price":"93.1","amount":"0.5","type":0},{"date":"1364689760","tid":12,"price":"93.2","amount":"1","type":1}]`), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	a := NewAdapter(NewProfile(exchange.Options{}))
	trades, err := a.AdaptTrades(raw, btcUSD)
	if err != nil {
		t.Fatalf("AdaptTrades() error = %v", err)
	}
	if trades[0].Side != core.Bid || trades[1].Side != core.Ask || trades[1].ID != "12" {
		t.Fatalf("AdaptTrades() = %+v", trades)
	}
}

func TestAccountInfoSignatureAndBalances(t *testing.T) {
	var form map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		form = map[string]string{"key": r.PostForm.Get("key"), "nonce": r.PostForm.Get("nonce"), "signature": r.PostForm.Get("signature")}
		_, _ = w.Write([]byte(`{"usd_balance":"120.00","btc_balance":"2.0","usd_reserved":"20.00","btc_reserved":"0.5","usd_available":"100.00","btc_available":"1.50000000","fee":"0.5"}`))
	}, exchange.Options{Credentials: creds})

	info, err := c.AccountInfo(context.Background())
	if err != nil {
		t.Fatalf("AccountInfo() error = %v", err)
	}
	if info.Owner != "123456" || !info.Balance("USD").Equal(dec("100")) || !info.Balance("BTC").Equal(dec("1.5")) {
		t.Fatalf("AccountInfo() = %+v", info)
	}
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(form["nonce"] + "123456" + "key"))
	want := strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
	if form["key"] != "key" || form["signature"] != want {
		t.Fatalf("form = %v, want signature %s", form, want)
	}
}

func TestAccountInfoEmbeddedErrorIsVerbatim(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Invalid nonce"}`))
	}, exchange.Options{Credentials: creds})

	_, err := c.AccountInfo(context.Background())
	if !errors.Is(err, core.ErrAuthentication) {
		t.Fatalf("AccountInfo() error = %v, want ErrAuthentication", err)
	}
	var adapterErr *core.AdapterError
	if !errors.As(err, &adapterErr) || adapterErr.Msg != "Invalid nonce" {
		t.Fatalf("AccountInfo() error = %v, want AdapterError with verbatim text", err)
	}
}

func TestAccountInfoIsCached(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"usd_available":"1","btc_available":"2"}`))
	}, exchange.Options{Credentials: creds, Cache: cache.NewMemory(time.Minute)})

	for i := 0; i < 3; i++ {
		if _, err := c.AccountInfo(context.Background()); err != nil {
			t.Fatalf("AccountInfo() error = %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("balance calls = %d, want 1", calls.Load())
	}
}

func TestAccountInfoRequiresUsername(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) },
		exchange.Options{Credentials: exchange.Credentials{APIKey: "key", APISecret: "secret"}})

	_, err := c.AccountInfo(context.Background())
	if !errors.Is(err, exchange.ErrMissingCredentials) || errors.Is(err, core.ErrAuthentication) {
		t.Fatalf("AccountInfo() error = %v, want ErrMissingCredentials", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("transport called without credentials")
	}
}

func TestPlaceLimitOrderUsesSideEndpoint(t *testing.T) {
	var path, amount, price string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		path, amount, price = r.URL.Path, r.PostForm.Get("amount"), r.PostForm.Get("price")
		_, _ = w.Write([]byte(`{"id":"7781","type":1,"price":"101.5","amount":"1.25"}`))
	}, exchange.Options{Credentials: creds})

	id, err := c.PlaceLimitOrder(context.Background(), core.LimitOrder{Side: core.Ask, Amount: dec("1.250"), Pair: btcUSD, LimitPrice: dec("101.50")})
	if err != nil {
		t.Fatalf("PlaceLimitOrder() error = %v", err)
	}
	if id != "7781" || path != "/api/sell/" || amount != "1.25" || price != "101.5" {
		t.Fatalf("id=%s path=%s amount=%s price=%s", id, path, amount, price)
	}
}

func TestPlaceLimitOrderRejectsSubCentPrice(t *testing.T) {
	c, _ := New(exchange.Options{Credentials: creds, Transport: transport.Func(func(context.Context, transport.Request) ([]byte, error) {
		t.Fatalf("transport must not be called")
		return nil, nil
	})})
	_, err := c.PlaceLimitOrder(context.Background(), core.LimitOrder{Side: core.Bid, Amount: dec("1"), Pair: btcUSD, LimitPrice: dec("93.405")})
	if !errors.Is(err, core.ErrPrecision) {
		t.Fatalf("PlaceLimitOrder() error = %v, want ErrPrecision", err)
	}
}

func TestCancelOrderHandlesBareTrueAndErrorObject(t *testing.T) {
	replies := []string{`true`, `{"error":{"__all__":["Order not found"]}}`}
	var n atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(replies[n.Add(1)-1]))
	}, exchange.Options{Credentials: creds})

	if err := c.CancelOrder(context.Background(), "1"); err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}
	err := c.CancelOrder(context.Background(), "2")
	var adapterErr *core.AdapterError
	if !errors.As(err, &adapterErr) || adapterErr.Msg != `{"__all__":["Order not found"]}` {
		t.Fatalf("CancelOrder() error = %v", err)
	}
}
