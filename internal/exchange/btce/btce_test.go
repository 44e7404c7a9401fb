package btce

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"coinbridge/internal/core"
	"coinbridge/internal/exchange"
	"coinbridge/internal/safety"
	"coinbridge/internal/transport"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var ltcBTC = core.MustPair("LTC", "BTC")

func serve(t *testing.T, o exchange.Options, handler http.HandlerFunc) *Client {
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

func TestTickerSwapsBuyAndSell(t *testing.T) {
	c := serve(t, exchange.Options{}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/3/ticker/ltc_btc" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"ltc_btc":{"high":0.0291,"low":0.027,"avg":0.028,"vol":310.5,"vol_cur":11043.2,"last":0.02836,"buy":0.02841,"sell":0.02835,"updated":1364689759}}`))
	})
	got, err := c.Ticker(context.Background(), ltcBTC)
	if err != nil {
		t.Fatalf("Ticker() error = %v", err)
	}
	if !got.Bid.Equal(dec("0.02835")) || !got.Ask.Equal(dec("0.02841")) {
		t.Fatalf("bid/ask = %s/%s, want 0.02835/0.02841", got.Bid, got.Ask)
	}
	if !got.Volume.Equal(dec("11043.2")) {
		t.Fatalf("volume = %s, want vol_cur", got.Volume)
	}
}

func TestPublicErrorEnvelope(t *testing.T) {
	c := serve(t, exchange.Options{}, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":0,"error":"Invalid pair name: ltc_btc"}`))
	})
	_, err := c.Trades(context.Background(), ltcBTC)
	var adapterErr *core.AdapterError
	if !errors.As(err, &adapterErr) || adapterErr.Msg != "Invalid pair name: ltc_btc" {
		t.Fatalf("Trades() error = %v", err)
	}
	if errors.Is(err, core.ErrAuthentication) {
		t.Fatalf("public error classified as auth")
	}
}

func TestDepthAndTrades(t *testing.T) {
	c := serve(t, exchange.Options{}, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/3/depth/btc_usd":
			_, _ = w.Write([]byte(`{"btc_usd":{"asks":[[93.5,1],[93.6,2]],"bids":[[93.2,3],[93.1,4]]}}`))
		case "/api/3/trades/btc_usd":
			_, _ = w.Write([]byte(`{"btc_usd":[{"type":"ask","price":93.2,"amount":0.1,"tid":9,"timestamp":1364689759},{"type":"bid","price":93.5,"amount":1,"tid":8,"timestamp":1364689750}]}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()
	book, err := c.OrderBook(ctx, core.MustPair("BTC", "USD"))
	if err != nil {
		t.Fatalf("OrderBook() error = %v", err)
	}
	if !book.Bids[0].LimitPrice.Equal(dec("93.2")) || !book.Asks[0].LimitPrice.Equal(dec("93.5")) {
		t.Fatalf("OrderBook() = %+v", book)
	}
	trades, err := c.Trades(ctx, core.MustPair("BTC", "USD"))
	if err != nil {
		t.Fatalf("Trades() error = %v", err)
	}
	if len(trades) != 2 || trades[0].Side != core.Ask || trades[1].Side != core.Bid || trades[0].ID != "9" {
		t.Fatalf("Trades() = %+v", trades)
	}
}

func TestPartialOrderBookUnsupported(t *testing.T) {
	c, _ := New(exchange.Options{})
	_, err := c.PartialOrderBook(context.Background(), core.MustPair("BTC", "USD"))
	if !errors.Is(err, core.ErrUnsupportedOperation) {
		t.Fatalf("PartialOrderBook() error = %v, want ErrUnsupportedOperation", err)
	}
	_, err = c.PartialOrderBook(context.Background(), core.MustPair("DOGE", "USD"))
	if !errors.Is(err, core.ErrUnsupportedPair) {
		t.Fatalf("PartialOrderBook(unlisted) error = %v, want ErrUnsupportedPair", err)
	}
}

func TestAccountInfoSignsBody(t *testing.T) {
	var signOK bool
	var form url.Values
	c := serve(t, exchange.Options{Credentials: exchange.Credentials{APIKey: "K", APISecret: "S"}}, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		mac := hmac.New(sha512.New, []byte("S"))
		mac.Write(body)
		signOK = r.Header.Get("Key") == "K" && r.Header.Get("Sign") == hex.EncodeToString(mac.Sum(nil))
		_, _ = w.Write([]byte(`{"success":1,"return":{"funds":{"usd":325.5,"btc":"23.998","ltc":0,"xyz":5},"server_time":1364689759}}`))
	})
	info, err := c.AccountInfo(context.Background())
	if err != nil {
		t.Fatalf("AccountInfo() error = %v", err)
	}
	if !signOK || form.Get("method") != "getInfo" || form.Get("nonce") == "" {
		t.Fatalf("signOK=%v form=%v", signOK, form)
	}
	if len(info.Wallets) != 3 || !info.Balance("USD").Equal(dec("325.5")) || !info.Balance("BTC").Equal(dec("23.998")) {
		t.Fatalf("AccountInfo() = %+v", info)
	}
}

func TestInvalidNonceTripsBreaker(t *testing.T) {
	var calls atomic.Int32
	breaker := safety.NewBreaker(true, 2, time.Minute)
	c := serve(t, exchange.Options{Credentials: exchange.Credentials{APIKey: "K", APISecret: "S"}, Guard: breaker}, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"success":0,"error":"invalid nonce parameter; on key:1364689759, you sent:1364689700"}`))
	})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := c.AccountInfo(ctx); !errors.Is(err, core.ErrAuthentication) {
			t.Fatalf("AccountInfo() #%d error = %v, want ErrAuthentication", i, err)
		}
	}
	if _, err := c.AccountInfo(ctx); !errors.Is(err, safety.ErrCircuitOpen) {
		t.Fatalf("AccountInfo() after trips error = %v, want ErrCircuitOpen", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestMissingSecretIsConfigurationError(t *testing.T) {
	var calls atomic.Int32
	breaker := safety.NewBreaker(true, 1, time.Minute)
	c := serve(t, exchange.Options{Credentials: exchange.Credentials{APIKey: "K"}, Guard: breaker}, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	for i := 0; i < 2; i++ {
		_, err := c.AccountInfo(context.Background())
		if !errors.Is(err, exchange.ErrMissingCredentials) {
			t.Fatalf("AccountInfo() #%d error = %v, want ErrMissingCredentials", i, err)
		}
		if errors.Is(err, core.ErrAuthentication) {
			t.Fatalf("AccountInfo() #%d reported a local misconfiguration as rejected credentials", i)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("calls = %d, want 0", calls.Load())
	}
}

func TestPlaceLimitOrder(t *testing.T) {
	var form url.Values
	c := serve(t, exchange.Options{Credentials: exchange.Credentials{APIKey: "K", APISecret: "S"}}, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		form = r.PostForm
		_, _ = w.Write([]byte(`{"success":1,"return":{"received":0,"remains":1,"order_id":52718,"funds":{}}}`))
	})
	id, err := c.PlaceLimitOrder(context.Background(), core.LimitOrder{Side: core.Bid, Amount: dec("1"), Pair: ltcBTC, LimitPrice: dec("0.02841")})
	if err != nil {
		t.Fatalf("PlaceLimitOrder() error = %v", err)
	}
	if id != "52718" || form.Get("method") != "Trade" || form.Get("pair") != "ltc_btc" || form.Get("type") != "buy" || form.Get("rate") != "0.02841" {
		t.Fatalf("id=%s form=%v", id, form)
	}
}

func TestNonceSourceRespectsLimit(t *testing.T) {
	src := DefaultNonceSource()
	if _, err := src.Next(context.Background(), maxNonce); !errors.Is(err, core.ErrNonceExhausted) {
		t.Fatalf("Next(max) error = %v, want ErrNonceExhausted", err)
	}
}
