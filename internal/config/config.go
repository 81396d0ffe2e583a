// Package config defines the top-level configuration for the crossarb
// trading engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CROSSARB_* environment
// variables.
type Config struct {
	Wallet     WalletConfig       `toml:"wallet"`
	Polymarket PolymarketConfig   `toml:"polymarket"`
	Kalshi     KalshiConfig       `toml:"kalshi"`
	Trading    TradingConfig      `toml:"trading"`
	Retry      RetryConfig        `toml:"retry"`
	Risk       RiskConfig         `toml:"risk"`
	Balances   map[string]float64 `toml:"balances"`
	Pairs      []PairConfig       `toml:"pairs"`
	Postgres   PostgresConfig     `toml:"postgres"`
	Redis      RedisConfig        `toml:"redis"`
	S3         S3Config           `toml:"s3"`
	Notify     NotifyConfig       `toml:"notify"`
	Mode       string             `toml:"mode"`
	LogLevel   string             `toml:"log_level"`
}

// duration wraps time.Duration so TOML files can use strings like "5s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// WalletConfig holds the Ethereum wallet used for CLOB order signing.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost string `toml:"clob_host"`
	WsHost   string `toml:"ws_host"`
	ChainID  int    `toml:"chain_id"`
}

// KalshiConfig holds Kalshi exchange API credentials.
type KalshiConfig struct {
	ApiKeyID          string `toml:"api_key_id"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	BaseURL           string `toml:"base_url"`
}

// TradingConfig holds the execution and sizing parameters.
type TradingConfig struct {
	// FillTolerance is the fraction of requested size an order may miss and
	// still count as fully filled.
	FillTolerance float64 `toml:"fill_tolerance"`
	// CommitPolicy is "filled_only" or "full_requested".
	CommitPolicy string `toml:"commit_policy"`
	// MinEdgeBps is the minimum net edge required to trade.
	MinEdgeBps float64 `toml:"min_edge_bps"`
	// MaxSize caps per-leg USD notional.
	MaxSize float64 `toml:"max_size"`
	// DepthFraction limits sizing to this fraction of visible depth.
	DepthFraction float64 `toml:"depth_fraction"`
	// PollInterval is the finder's sweep interval.
	PollInterval duration `toml:"poll_interval"`
	// FeeRates maps venue name to taker fee rate.
	FeeRates map[string]float64 `toml:"fee_rates"`
}

// RetryConfig bounds the order gateway's retry loop.
type RetryConfig struct {
	MaxAttempts   int      `toml:"max_attempts"`
	BaseDelay     duration `toml:"base_delay"`
	MaxDelay      duration `toml:"max_delay"`
	SubmitTimeout duration `toml:"submit_timeout"`
}

// RiskConfig holds the circuit breaker parameters.
type RiskConfig struct {
	// BreakerThreshold is the number of consecutive failed trades that halts
	// trading.
	BreakerThreshold int `toml:"breaker_threshold"`
}

// PairConfig is one operator-matched market pair.
type PairConfig struct {
	Name         string `toml:"name"`
	BuyVenue     string `toml:"buy_venue"`
	BuyMarketID  string `toml:"buy_market_id"`
	SellVenue    string `toml:"sell_venue"`
	SellMarketID string `toml:"sell_market_id"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for outcome
// archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	Prefix         string `toml:"prefix"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds alert channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	// MinLevel is the quietest alert level to deliver: INFO, WARNING, or
	// CRITICAL.
	MinLevel string `toml:"min_level"`
}

// Defaults returns a Config populated with sane defaults for paper trading.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost: "https://clob.polymarket.com",
			WsHost:   "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:  137,
		},
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
		},
		Trading: TradingConfig{
			FillTolerance: 0.01,
			CommitPolicy:  "filled_only",
			MinEdgeBps:    50,
			MaxSize:       100,
			DepthFraction: 0.25,
			PollInterval:  duration{5 * time.Second},
		},
		Retry: RetryConfig{
			MaxAttempts:   3,
			BaseDelay:     duration{time.Second},
			MaxDelay:      duration{30 * time.Second},
			SubmitTimeout: duration{10 * time.Second},
		},
		Risk: RiskConfig{
			BreakerThreshold: 3,
		},
		Postgres: PostgresConfig{
			Port:          5432,
			SSLMode:       "disable",
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Notify: NotifyConfig{
			MinLevel: "WARNING",
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// Validate checks the configuration for internally inconsistent or missing
// values. Live mode has stricter requirements than paper mode.
func (c *Config) Validate() error {
	switch c.Mode {
	case "live", "paper":
	default:
		return fmt.Errorf("config: mode must be \"live\" or \"paper\", got %q", c.Mode)
	}

	switch c.Trading.CommitPolicy {
	case "filled_only", "full_requested":
	default:
		return fmt.Errorf("config: trading.commit_policy must be \"filled_only\" or \"full_requested\", got %q",
			c.Trading.CommitPolicy)
	}

	if c.Trading.FillTolerance < 0 || c.Trading.FillTolerance >= 1 {
		return fmt.Errorf("config: trading.fill_tolerance must be in [0,1), got %g", c.Trading.FillTolerance)
	}
	if c.Trading.MaxSize <= 0 {
		return fmt.Errorf("config: trading.max_size must be positive, got %g", c.Trading.MaxSize)
	}
	if c.Risk.BreakerThreshold < 1 {
		return fmt.Errorf("config: risk.breaker_threshold must be at least 1, got %d", c.Risk.BreakerThreshold)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}

	for i, p := range c.Pairs {
		if p.BuyVenue == "" || p.SellVenue == "" || p.BuyMarketID == "" || p.SellMarketID == "" {
			return fmt.Errorf("config: pairs[%d] (%s) is missing a venue or market id", i, p.Name)
		}
		if strings.EqualFold(p.BuyVenue, p.SellVenue) {
			return fmt.Errorf("config: pairs[%d] (%s) buys and sells on the same venue", i, p.Name)
		}
	}

	for venue, amount := range c.Balances {
		if amount < 0 {
			return fmt.Errorf("config: balances[%s] is negative", venue)
		}
	}

	if c.Mode == "live" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			return fmt.Errorf("config: live mode requires wallet.private_key or wallet.encrypted_key_path")
		}
		if c.Kalshi.ApiKeyID == "" || c.Kalshi.RsaPrivateKeyPath == "" {
			return fmt.Errorf("config: live mode requires kalshi.api_key_id and kalshi.rsa_private_key_path")
		}
		if len(c.Pairs) == 0 {
			return fmt.Errorf("config: live mode requires at least one market pair")
		}
	}

	switch strings.ToUpper(c.Notify.MinLevel) {
	case "INFO", "WARNING", "CRITICAL", "":
	default:
		return fmt.Errorf("config: notify.min_level must be INFO, WARNING, or CRITICAL, got %q", c.Notify.MinLevel)
	}

	return nil
}
