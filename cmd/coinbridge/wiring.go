package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"coinbridge/internal/alert"
	"coinbridge/internal/auth"
	"coinbridge/internal/cache"
	"coinbridge/internal/config"
	"coinbridge/internal/core"
	"coinbridge/internal/exchange"
	"coinbridge/internal/exchange/bitstamp"
	"coinbridge/internal/exchange/btce"
	"coinbridge/internal/exchange/bter"
	"coinbridge/internal/exchange/cryptotrade"
	"coinbridge/internal/exchange/mtgox"
	"coinbridge/internal/exchange/vircurex"
	"coinbridge/internal/safety"
	"coinbridge/internal/store"
	"coinbridge/internal/transport"
)

var factories = map[string]func(exchange.Options) (exchange.Exchange, error){
	mtgox.Name:       func(o exchange.Options) (exchange.Exchange, error) { return mtgox.New(o) },
	bitstamp.Name:    func(o exchange.Options) (exchange.Exchange, error) { return bitstamp.New(o) },
	btce.Name:        func(o exchange.Options) (exchange.Exchange, error) { return btce.New(o) },
	bter.Name:        func(o exchange.Options) (exchange.Exchange, error) { return bter.New(o) },
	cryptotrade.Name: func(o exchange.Options) (exchange.Exchange, error) { return cryptotrade.New(o) },
	vircurex.Name:    func(o exchange.Options) (exchange.Exchange, error) { return vircurex.New(o) },
}

// app owns the process-wide resources shared by every facade.
type app struct {
	cfg     config.Config
	nonces  *auth.Provider
	breaker *safety.Breaker
	alerts  *alert.Manager

	redis     *redis.Client
	pgMarks   *store.PostgresMarks
	fileMarks *store.FileMarks
	lock      *store.Lock
	closers   []func() error
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg, nonces: auth.NewProvider()}
	a.alerts = buildAlertManager(cfg)
	a.breaker = safety.NewBreaker(
		cfg.Safety.Enabled,
		cfg.Safety.MaxAuthFailures,
		time.Duration(cfg.Safety.CooldownSec)*time.Second,
	)
	if a.alerts != nil {
		a.breaker.SetAlerter(a.alerts)
	}
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, a.redis.Close)
	}
	for _, name := range cfg.ExchangeNames() {
		n := cfg.Exchanges[name].Nonce
		if n.Strategy != config.NonceHighWater {
			continue
		}
		var err error
		switch n.Store {
		case config.MarkStorePostgres:
			if a.pgMarks == nil {
				a.pgMarks, err = store.OpenPostgresMarks(ctx, cfg.Postgres.DSN)
				if err == nil {
					a.closers = append(a.closers, a.pgMarks.Close)
				}
			}
		case config.MarkStoreFile:
			if a.fileMarks == nil {
				err = a.openFileMarks()
			}
		}
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openFileMarks() error {
	dir := filepath.Join(a.cfg.State.Dir, a.cfg.InstanceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	takeover := true
	if a.cfg.State.LockTakeover != nil {
		takeover = *a.cfg.State.LockTakeover
	}
	lock, err := store.AcquireLock(dir, store.LockOptions{
		Takeover:   takeover,
		StaleAfter: time.Duration(a.cfg.State.LockStaleSec) * time.Second,
	})
	if err != nil {
		return err
	}
	a.lock = lock
	a.closers = append(a.closers, lock.Release)
	marks, err := store.NewFileMarks(dir)
	if err != nil {
		return err
	}
	a.fileMarks = marks
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	if a.alerts != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.alerts.Close(closeCtx); err != nil {
			fmt.Fprintf(os.Stderr, "close alert manager failed: %v\n", err)
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "close failed: %v\n", err)
		}
	}
	a.closers = nil
}

// Exchange builds the facade configured under name.
func (a *app) Exchange(name string) (exchange.Exchange, error) {
	ex, ok := a.cfg.Exchanges[name]
	if !ok {
		return nil, fmt.Errorf("exchange %q is not configured", name)
	}
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("exchange %q is not supported", name)
	}
	tr, err := a.transport(ex)
	if err != nil {
		return nil, err
	}
	src, err := a.nonceSource(name, ex)
	if err != nil {
		return nil, err
	}
	o := exchange.Options{
		Credentials: exchange.Credentials{
			APIKey:    ex.APIKey,
			APISecret: ex.APISecret,
			Username:  ex.Username,
		},
		Transport:       tr,
		Nonces:          a.nonces,
		NonceSource:     src,
		Guard:           a.breaker,
		Cache:           a.accountCache(ex),
		UnknownCurrency: core.UnknownCurrencyPolicy(ex.UnknownCurrency),
		ExtraCurrencies: ex.ExtraCurrencies,
	}
	if a.alerts != nil {
		o.Alerter = a.alerts
	}
	return factory(o)
}

func (a *app) transport(ex config.ExchangeConfig) (transport.Transport, error) {
	switch ex.Transport {
	case config.TransportWS:
		ws := transport.NewWSTransport(ex.WSBaseURL, ex.HTTPTimeout())
		a.closers = append(a.closers, ws.Close)
		return ws, nil
	case config.TransportHTTP:
		return transport.NewHTTPTransport(ex.RestBaseURL, ex.HTTPTimeout()), nil
	}
	return nil, fmt.Errorf("unknown transport %q", ex.Transport)
}

// nonceSource returns nil for the default strategy so the facade keeps its own scheme.
func (a *app) nonceSource(name string, ex config.ExchangeConfig) (auth.Source, error) {
	n := ex.Nonce
	unit := time.Millisecond
	if n.TickMs > 0 {
		unit = time.Duration(n.TickMs) * time.Millisecond
	}
	switch n.Strategy {
	case config.NonceDefault:
		return nil, nil
	case config.NonceCounter:
		return &auth.CounterSource{Unit: unit, Max: n.Max}, nil
	case config.NonceTick:
		epoch, err := n.EpochTime()
		if err != nil {
			return nil, fmt.Errorf("exchanges.%s.nonce.epoch %v", name, err)
		}
		return &auth.TickSource{Epoch: epoch, Tick: unit, Max: n.Max}, nil
	case config.NonceHighWater:
		var marks auth.MarkStore
		switch {
		case n.Store == config.MarkStorePostgres && a.pgMarks != nil:
			marks = a.pgMarks
		case n.Store == config.MarkStoreFile && a.fileMarks != nil:
			marks = a.fileMarks
		default:
			return nil, fmt.Errorf("exchanges.%s: nonce store %q not open", name, n.Store)
		}
		hw := &auth.HighWaterSource{Store: marks, Scope: auth.Scope(name, ex.APIKey), Block: n.Block}
		// tick_ms keeps the sequence above a clock counter of that unit.
		if n.TickMs > 0 {
			hw.Floor = &auth.CounterSource{Unit: unit, Max: n.Max}
		}
		return hw, nil
	case config.NonceRedis:
		if a.redis == nil {
			return nil, fmt.Errorf("exchanges.%s: redis not configured", name)
		}
		return &auth.RedisCounter{
			Client: a.redis,
			Key:    a.cfg.Redis.KeyPrefix + "nonce:" + auth.Scope(name, ex.APIKey),
			Seed:   func() int64 { return time.Now().UnixNano() / int64(unit) },
		}, nil
	}
	return nil, fmt.Errorf("exchanges.%s: unknown nonce strategy %q", name, n.Strategy)
}

// NonceMark reads the stored high-water mark of a highwater-configured exchange.
func (a *app) NonceMark(ctx context.Context, name string) (map[string]any, error) {
	ex, ok := a.cfg.Exchanges[name]
	if !ok {
		return nil, fmt.Errorf("exchange %q is not configured", name)
	}
	if ex.Nonce.Strategy != config.NonceHighWater {
		return nil, fmt.Errorf("exchanges.%s: nonce strategy %q keeps no mark", name, ex.Nonce.Strategy)
	}
	scope := auth.Scope(name, ex.APIKey)
	var (
		mark  int64
		found bool
		err   error
	)
	switch {
	case ex.Nonce.Store == config.MarkStorePostgres && a.pgMarks != nil:
		mark, found, err = a.pgMarks.LoadMark(ctx, scope)
	case ex.Nonce.Store == config.MarkStoreFile && a.fileMarks != nil:
		mark, found, err = a.fileMarks.LoadMark(ctx, scope)
	default:
		return nil, fmt.Errorf("exchanges.%s: nonce store %q not open", name, ex.Nonce.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("load nonce mark %s: %w", scope, err)
	}
	return map[string]any{"scope": scope, "store": ex.Nonce.Store, "mark": mark, "found": found}, nil
}

func (a *app) accountCache(ex config.ExchangeConfig) exchange.AccountCache {
	ttl := ex.AccountCacheTTL()
	if ttl <= 0 {
		return nil
	}
	if ex.AccountCache == config.CacheRedis && a.redis != nil {
		return cache.NewRedis(a.redis, a.cfg.Redis.KeyPrefix, ttl)
	}
	return cache.NewMemory(ttl)
}

func buildAlertManager(cfg config.Config) *alert.Manager {
	tg := cfg.Observability.Telegram
	if !tg.Enabled {
		return nil
	}
	notifier, err := alert.NewTelegramNotifier(alert.TelegramConfig{
		BotToken: tg.BotToken,
		ChatID:   tg.ChatID,
		BaseURL:  tg.APIBaseURL,
		Timeout:  time.Duration(tg.TimeoutSec) * time.Second,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "telegram disabled: %v\n", err)
		return nil
	}
	return alert.NewManager(notifier, alert.Options{
		Instance:           cfg.InstanceID,
		QueueSize:          cfg.Observability.Runtime.AlertQueueSize,
		DropReportInterval: time.Duration(cfg.Observability.Runtime.AlertDropReportSec) * time.Second,
	})
}
