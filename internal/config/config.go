package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type TransportKind string

const (
	TransportHTTP TransportKind = "http"
	TransportWS   TransportKind = "ws"
)

type NonceStrategy string

const (
	// NonceDefault keeps the exchange's own nonce scheme.
	NonceDefault   NonceStrategy = "default"
	NonceCounter   NonceStrategy = "counter"
	NonceTick      NonceStrategy = "tick"
	NonceHighWater NonceStrategy = "highwater"
	NonceRedis     NonceStrategy = "redis"
)

type MarkStore string

const (
	MarkStoreFile     MarkStore = "file"
	MarkStorePostgres MarkStore = "postgres"
)

type CacheKind string

const (
	CacheMemory CacheKind = "memory"
	CacheRedis  CacheKind = "redis"
)

// DefaultRestURLs are the public API roots used when rest_base_url is omitted.
var DefaultRestURLs = map[string]string{
	"mtgox":       "https://data.mtgox.com",
	"bitstamp":    "https://www.bitstamp.net",
	"btce":        "https://btc-e.com",
	"bter":        "https://data.bter.com",
	"cryptotrade": "https://crypto-trade.com",
	"vircurex":    "https://vircurex.com",
}

type Config struct {
	InstanceID    string                    `yaml:"instance_id"`
	Exchanges     map[string]ExchangeConfig `yaml:"exchanges"`
	State         StateConfig               `yaml:"state"`
	Redis         RedisConfig               `yaml:"redis"`
	Postgres      PostgresConfig            `yaml:"postgres"`
	Safety        SafetyConfig              `yaml:"safety"`
	Observability ObservabilityConfig       `yaml:"observability"`
}

type ExchangeConfig struct {
	APIKey            string        `yaml:"api_key"`
	APISecret         string        `yaml:"api_secret"`
	Username          string        `yaml:"username"`
	RestBaseURL       string        `yaml:"rest_base_url"`
	WSBaseURL         string        `yaml:"ws_base_url"`
	Transport         TransportKind `yaml:"transport"`
	HTTPTimeoutSec    int64         `yaml:"http_timeout_sec"`
	Nonce             NonceConfig   `yaml:"nonce"`
	AccountCache      CacheKind     `yaml:"account_cache"`
	AccountCacheTTLMs int64         `yaml:"account_cache_ttl_ms"`
	UnknownCurrency   string        `yaml:"unknown_currency"`
	ExtraCurrencies   []string      `yaml:"extra_currencies"`
}

type NonceConfig struct {
	Strategy NonceStrategy `yaml:"strategy"`
	// TickMs is the clock unit of counter and tick nonces, and the floor of highwater ones.
	TickMs int64 `yaml:"tick_ms"`
	// Epoch is RFC 3339; required for the tick strategy.
	Epoch string `yaml:"epoch"`
	// Max bounds issued nonces; zero keeps each source's own limit.
	Max   int64     `yaml:"max"`
	Block int64     `yaml:"block"`
	Store MarkStore `yaml:"store"`
}

type StateConfig struct {
	Dir          string `yaml:"dir"`
	LockTakeover *bool  `yaml:"lock_takeover"`
	LockStaleSec int64  `yaml:"lock_stale_sec"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type SafetyConfig struct {
	Enabled         bool  `yaml:"enabled"`
	MaxAuthFailures int   `yaml:"max_auth_failures"`
	CooldownSec     int64 `yaml:"cooldown_sec"`
}

type ObservabilityConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
}

type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	APIBaseURL string `yaml:"api_base_url"`
	TimeoutSec int64  `yaml:"timeout_sec"`
}

type RuntimeConfig struct {
	AlertQueueSize     int   `yaml:"alert_queue_size"`
	AlertDropReportSec int64 `yaml:"alert_drop_report_sec"`
}

// Load reads the YAML document at path. A .env file in the same directory, when present,
// is loaded first without overriding variables already set, then ${VAR} references in
// credential and connection fields are expanded from the environment.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envPath, err)
	}
	return Parse(data)
}

// Parse decodes and validates a config document against the current environment.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("config must contain a single YAML document")
		}
		return Config{}, err
	}
	if err := cfg.expandEnv(); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expand(field, v string) (string, error) {
	var missing []string
	out := envRef.ReplaceAllStringFunc(v, func(ref string) string {
		name := envRef.FindStringSubmatch(ref)[1]
		val, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return val
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%s references unset environment variable %s", field, strings.Join(missing, ", "))
	}
	return out, nil
}

func (c *Config) expandEnv() error {
	for name, ex := range c.Exchanges {
		fields := []struct {
			key string
			v   *string
		}{
			{"api_key", &ex.APIKey},
			{"api_secret", &ex.APISecret},
			{"username", &ex.Username},
			{"rest_base_url", &ex.RestBaseURL},
			{"ws_base_url", &ex.WSBaseURL},
		}
		for _, f := range fields {
			v, err := expand("exchanges."+name+"."+f.key, *f.v)
			if err != nil {
				return err
			}
			*f.v = v
		}
		c.Exchanges[name] = ex
	}
	globals := []struct {
		key string
		v   *string
	}{
		{"redis.addr", &c.Redis.Addr},
		{"redis.password", &c.Redis.Password},
		{"postgres.dsn", &c.Postgres.DSN},
		{"observability.telegram.bot_token", &c.Observability.Telegram.BotToken},
		{"observability.telegram.chat_id", &c.Observability.Telegram.ChatID},
	}
	for _, g := range globals {
		v, err := expand(g.key, *g.v)
		if err != nil {
			return err
		}
		*g.v = v
	}
	return nil
}

func (c *Config) normalize() {
	c.InstanceID = strings.ToLower(strings.TrimSpace(c.InstanceID))
	exchanges := make(map[string]ExchangeConfig, len(c.Exchanges))
	for name, ex := range c.Exchanges {
		ex.APIKey = strings.TrimSpace(ex.APIKey)
		ex.APISecret = strings.TrimSpace(ex.APISecret)
		ex.Username = strings.TrimSpace(ex.Username)
		ex.RestBaseURL = strings.TrimSpace(ex.RestBaseURL)
		ex.WSBaseURL = strings.TrimSpace(ex.WSBaseURL)
		ex.Transport = TransportKind(strings.ToLower(strings.TrimSpace(string(ex.Transport))))
		ex.Nonce.Strategy = NonceStrategy(strings.ToLower(strings.TrimSpace(string(ex.Nonce.Strategy))))
		ex.Nonce.Store = MarkStore(strings.ToLower(strings.TrimSpace(string(ex.Nonce.Store))))
		ex.Nonce.Epoch = strings.TrimSpace(ex.Nonce.Epoch)
		ex.AccountCache = CacheKind(strings.ToLower(strings.TrimSpace(string(ex.AccountCache))))
		ex.UnknownCurrency = strings.ToLower(strings.TrimSpace(ex.UnknownCurrency))
		for i, code := range ex.ExtraCurrencies {
			ex.ExtraCurrencies[i] = strings.ToUpper(strings.TrimSpace(code))
		}
		exchanges[strings.ToLower(strings.TrimSpace(name))] = ex
	}
	c.Exchanges = exchanges
	c.State.Dir = strings.TrimSpace(c.State.Dir)
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	c.Postgres.DSN = strings.TrimSpace(c.Postgres.DSN)
	c.Observability.Telegram.BotToken = strings.TrimSpace(c.Observability.Telegram.BotToken)
	c.Observability.Telegram.ChatID = strings.TrimSpace(c.Observability.Telegram.ChatID)
	c.Observability.Telegram.APIBaseURL = strings.TrimSpace(c.Observability.Telegram.APIBaseURL)
}

func (c *Config) applyDefaults() {
	if c.InstanceID == "" {
		c.InstanceID = "default"
	}
	for name, ex := range c.Exchanges {
		if ex.RestBaseURL == "" {
			ex.RestBaseURL = DefaultRestURLs[name]
		}
		if ex.Transport == "" {
			ex.Transport = TransportHTTP
		}
		if ex.HTTPTimeoutSec == 0 {
			ex.HTTPTimeoutSec = 15
		}
		if ex.Nonce.Strategy == "" {
			ex.Nonce.Strategy = NonceDefault
		}
		if ex.Nonce.Strategy == NonceHighWater {
			if ex.Nonce.Store == "" {
				ex.Nonce.Store = MarkStoreFile
			}
			if ex.Nonce.Block == 0 {
				ex.Nonce.Block = 100
			}
		}
		if ex.AccountCache == "" {
			ex.AccountCache = CacheMemory
		}
		if ex.UnknownCurrency == "" {
			ex.UnknownCurrency = "skip"
		}
		c.Exchanges[name] = ex
	}
	if c.State.Dir == "" {
		c.State.Dir = "state"
	}
	if c.State.LockTakeover == nil {
		enabled := true
		c.State.LockTakeover = &enabled
	}
	if c.State.LockStaleSec == 0 {
		c.State.LockStaleSec = 600
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "coinbridge:"
	}
	if c.Safety.MaxAuthFailures == 0 {
		c.Safety.MaxAuthFailures = 3
	}
	if c.Safety.CooldownSec == 0 {
		c.Safety.CooldownSec = 300
	}
	if c.Observability.Telegram.APIBaseURL == "" {
		c.Observability.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if c.Observability.Telegram.TimeoutSec == 0 {
		c.Observability.Telegram.TimeoutSec = 10
	}
	if c.Observability.Runtime.AlertQueueSize == 0 {
		c.Observability.Runtime.AlertQueueSize = 64
	}
	if c.Observability.Runtime.AlertDropReportSec == 0 {
		c.Observability.Runtime.AlertDropReportSec = 60
	}
}

func (c Config) Validate() error {
	if !isValidInstanceID(c.InstanceID) {
		return fmt.Errorf("instance_id must match [a-z0-9_-], length 1..24")
	}
	if len(c.Exchanges) == 0 {
		return fmt.Errorf("at least one exchange must be configured")
	}
	needRedis, needPostgres := false, false
	for _, name := range c.ExchangeNames() {
		ex := c.Exchanges[name]
		if _, ok := DefaultRestURLs[name]; !ok {
			return fmt.Errorf("exchanges.%s: unknown exchange", name)
		}
		if err := ex.validate(); err != nil {
			return fmt.Errorf("exchanges.%s.%v", name, err)
		}
		needRedis = needRedis || ex.Nonce.Strategy == NonceRedis || ex.AccountCache == CacheRedis
		needPostgres = needPostgres || (ex.Nonce.Strategy == NonceHighWater && ex.Nonce.Store == MarkStorePostgres)
	}
	if needRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when an exchange uses redis")
	}
	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		return fmt.Errorf("redis.db must be between 0 and 15")
	}
	if needPostgres && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when a nonce store is postgres")
	}
	if c.Safety.Enabled {
		if c.Safety.MaxAuthFailures < 1 {
			return fmt.Errorf("safety.max_auth_failures must be >= 1")
		}
		if c.Safety.CooldownSec < 1 || c.Safety.CooldownSec > 86400 {
			return fmt.Errorf("safety.cooldown_sec must be between 1 and 86400")
		}
	}
	if c.Observability.Runtime.AlertQueueSize < 1 || c.Observability.Runtime.AlertQueueSize > 10000 {
		return fmt.Errorf("observability.runtime.alert_queue_size must be between 1 and 10000")
	}
	if c.Observability.Runtime.AlertDropReportSec < 0 || c.Observability.Runtime.AlertDropReportSec > 3600 {
		return fmt.Errorf("observability.runtime.alert_drop_report_sec must be between 0 and 3600")
	}
	if c.Observability.Telegram.Enabled {
		if c.Observability.Telegram.BotToken == "" {
			return fmt.Errorf("observability.telegram.bot_token is required when telegram enabled")
		}
		if c.Observability.Telegram.ChatID == "" {
			return fmt.Errorf("observability.telegram.chat_id is required when telegram enabled")
		}
		if c.Observability.Telegram.TimeoutSec < 1 || c.Observability.Telegram.TimeoutSec > 120 {
			return fmt.Errorf("observability.telegram.timeout_sec must be between 1 and 120")
		}
		if err := validateURL(c.Observability.Telegram.APIBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("observability.telegram.api_base_url %v", err)
		}
	}
	if c.State.LockStaleSec < 0 || c.State.LockStaleSec > 86400 {
		return fmt.Errorf("state.lock_stale_sec must be between 0 and 86400")
	}
	return nil
}

func (ex ExchangeConfig) validate() error {
	switch ex.Transport {
	case TransportHTTP:
		if err := validateURL(ex.RestBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("rest_base_url %v", err)
		}
	case TransportWS:
		if err := validateURL(ex.WSBaseURL, "ws", "wss"); err != nil {
			return fmt.Errorf("ws_base_url %v", err)
		}
	default:
		return fmt.Errorf("transport must be http or ws")
	}
	if ex.HTTPTimeoutSec < 1 || ex.HTTPTimeoutSec > 120 {
		return fmt.Errorf("http_timeout_sec must be between 1 and 120")
	}
	if (ex.APIKey == "") != (ex.APISecret == "") && ex.Username == "" {
		return fmt.Errorf("api_key and api_secret must be set together")
	}
	switch ex.Nonce.Strategy {
	case NonceDefault, NonceCounter, NonceRedis:
	case NonceTick:
		if ex.Nonce.TickMs < 1 {
			return fmt.Errorf("nonce.tick_ms must be >= 1 for the tick strategy")
		}
		if _, err := ex.Nonce.EpochTime(); err != nil {
			return fmt.Errorf("nonce.epoch %v", err)
		}
	case NonceHighWater:
		if ex.Nonce.Block < 1 {
			return fmt.Errorf("nonce.block must be >= 1")
		}
		if ex.Nonce.Store != MarkStoreFile && ex.Nonce.Store != MarkStorePostgres {
			return fmt.Errorf("nonce.store must be file or postgres")
		}
	default:
		return fmt.Errorf("nonce.strategy must be default, counter, tick, highwater, or redis")
	}
	if ex.Nonce.Max < 0 {
		return fmt.Errorf("nonce.max must be >= 0")
	}
	switch ex.AccountCache {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("account_cache must be memory or redis")
	}
	if ex.AccountCacheTTLMs < 0 || ex.AccountCacheTTLMs > 3600000 {
		return fmt.Errorf("account_cache_ttl_ms must be between 0 and 3600000")
	}
	if ex.UnknownCurrency != "skip" && ex.UnknownCurrency != "reject" {
		return fmt.Errorf("unknown_currency must be skip or reject")
	}
	for _, code := range ex.ExtraCurrencies {
		if !isCurrencyCode(code) {
			return fmt.Errorf("extra_currencies: %q is not a currency code", code)
		}
	}
	return nil
}

// EpochTime parses the tick nonce epoch.
func (n NonceConfig) EpochTime() (time.Time, error) {
	if n.Epoch == "" {
		return time.Time{}, fmt.Errorf("is required")
	}
	t, err := time.Parse(time.RFC3339, n.Epoch)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be RFC 3339: %w", err)
	}
	return t, nil
}

// ExchangeNames returns the configured exchange names, sorted.
func (c Config) ExchangeNames() []string {
	names := make([]string, 0, len(c.Exchanges))
	for name := range c.Exchanges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (ex ExchangeConfig) HTTPTimeout() time.Duration {
	return time.Duration(ex.HTTPTimeoutSec) * time.Second
}

func (ex ExchangeConfig) AccountCacheTTL() time.Duration {
	return time.Duration(ex.AccountCacheTTLMs) * time.Millisecond
}

func isValidInstanceID(v string) bool {
	if len(v) < 1 || len(v) > 24 {
		return false
	}
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

func isCurrencyCode(v string) bool {
	if len(v) < 2 || len(v) > 6 {
		return false
	}
	for _, r := range v {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
