package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"coinbridge/internal/config"
	"coinbridge/internal/core"
	"coinbridge/internal/exchange"
)

const usage = `usage: coinbridge [-config path] -exchange name <command> [args]

commands:
  pairs
  ticker <pair>
  book <pair>
  partial-book <pair>
  trades <pair>
  balance
  buy <pair> <amount> <price>
  sell <pair> <amount> <price>
  cancel <order-id>
  nonce-mark`

func main() {
	var configPath, exchangeName string
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.StringVar(&exchangeName, "exchange", "", "configured exchange name")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		fatal(err.Error())
	}
	err = run(ctx, a, exchangeName, flag.Args(), os.Stdout)
	a.Close()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fatal(err.Error())
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

// run executes one command against the named exchange and writes the result as JSON.
func run(ctx context.Context, a *app, name string, args []string, out io.Writer) error {
	if name == "" {
		names := a.cfg.ExchangeNames()
		if len(names) != 1 {
			return fmt.Errorf("-exchange is required when %d exchanges are configured", len(names))
		}
		name = names[0]
	}
	if len(args) == 0 {
		return errors.New(usage)
	}
	var result any
	if args[0] == "nonce-mark" {
		mark, err := a.NonceMark(ctx, name)
		if err != nil {
			return err
		}
		result = mark
	} else {
		ex, err := a.Exchange(name)
		if err != nil {
			return err
		}
		if result, err = dispatch(ctx, ex, args[0], args[1:]); err != nil {
			return err
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func dispatch(ctx context.Context, ex exchange.Exchange, cmd string, args []string) (any, error) {
	switch cmd {
	case "pairs":
		return ex.Pairs(), nil
	case "ticker", "book", "partial-book", "trades":
		if len(args) != 1 {
			return nil, fmt.Errorf("%s: want <pair>", cmd)
		}
		pair, err := core.ParsePair(args[0])
		if err != nil {
			return nil, err
		}
		switch cmd {
		case "ticker":
			return ex.Ticker(ctx, pair)
		case "book":
			return ex.OrderBook(ctx, pair)
		case "partial-book":
			return ex.PartialOrderBook(ctx, pair)
		}
		return ex.Trades(ctx, pair)
	case "balance":
		return ex.AccountInfo(ctx)
	case "buy", "sell":
		order, err := parseOrder(cmd, args)
		if err != nil {
			return nil, err
		}
		id, err := ex.PlaceLimitOrder(ctx, order)
		if err != nil {
			return nil, err
		}
		return map[string]string{"order_id": id}, nil
	case "cancel":
		if len(args) != 1 {
			return nil, errors.New("cancel: want <order-id>")
		}
		if err := ex.CancelOrder(ctx, args[0]); err != nil {
			return nil, err
		}
		return map[string]string{"cancelled": args[0]}, nil
	}
	return nil, fmt.Errorf("unknown command %q\n%s", cmd, usage)
}

func parseOrder(cmd string, args []string) (core.LimitOrder, error) {
	if len(args) != 3 {
		return core.LimitOrder{}, fmt.Errorf("%s: want <pair> <amount> <price>", cmd)
	}
	pair, err := core.ParsePair(args[0])
	if err != nil {
		return core.LimitOrder{}, err
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		return core.LimitOrder{}, fmt.Errorf("%s: amount: %w", cmd, err)
	}
	price, err := decimal.NewFromString(args[2])
	if err != nil {
		return core.LimitOrder{}, fmt.Errorf("%s: price: %w", cmd, err)
	}
	side := core.Bid
	if cmd == "sell" {
		side = core.Ask
	}
	order := core.LimitOrder{Side: side, Amount: amount, Pair: pair, LimitPrice: price}
	if err := core.ValidateLimitOrder(order); err != nil {
		return core.LimitOrder{}, err
	}
	return order, nil
}
