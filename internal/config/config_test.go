package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "paper"

[trading]
fill_tolerance = 0.02
min_edge_bps = 75.0
poll_interval = "10s"

[trading.fee_rates]
polymarket = 0.0
kalshi = 0.02

[balances]
polymarket = 500.0
kalshi = 250.0

[[pairs]]
name = "p1"
buy_venue = "polymarket"
buy_market_id = "tok-1"
sell_venue = "kalshi"
sell_market_id = "PRES-24"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.02, cfg.Trading.FillTolerance)
	assert.Equal(t, 75.0, cfg.Trading.MinEdgeBps)
	assert.Equal(t, 10*time.Second, cfg.Trading.PollInterval.Duration)
	// untouched defaults survive
	assert.Equal(t, "filled_only", cfg.Trading.CommitPolicy)
	assert.Equal(t, 3, cfg.Risk.BreakerThreshold)
	assert.Equal(t, 137, cfg.Polymarket.ChainID)
	assert.Equal(t, 500.0, cfg.Balances["polymarket"])
	require.Len(t, cfg.Pairs, 1)
	assert.Equal(t, "tok-1", cfg.Pairs[0].BuyMarketID)
}

func TestLoadEnvOverridesWin(t *testing.T) {
	path := writeConfig(t, `
mode = "paper"
log_level = "info"
`)
	t.Setenv("CROSSARB_LOG_LEVEL", "debug")
	t.Setenv("CROSSARB_RISK_BREAKER_THRESHOLD", "7")
	t.Setenv("CROSSARB_TRADING_POLL_INTERVAL", "500ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 7, cfg.Risk.BreakerThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Trading.PollInterval.Duration)
}

func TestValidateRejectsBadCommitPolicy(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.CommitPolicy = "maybe"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsSameVenuePair(t *testing.T) {
	cfg := Defaults()
	cfg.Pairs = []PairConfig{{
		Name: "bad", BuyVenue: "Kalshi", BuyMarketID: "a",
		SellVenue: "KALSHI", SellMarketID: "b",
	}}
	require.Error(t, cfg.Validate())
}

func TestValidateLiveModeNeedsCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "live"
	cfg.Pairs = []PairConfig{{
		Name: "p", BuyVenue: "polymarket", BuyMarketID: "a",
		SellVenue: "kalshi", SellMarketID: "b",
	}}
	require.Error(t, cfg.Validate(), "no wallet key configured")

	cfg.Wallet.PrivateKey = "ac09"
	cfg.Kalshi.ApiKeyID = "k"
	cfg.Kalshi.RsaPrivateKeyPath = "/tmp/key.pem"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsNegativeBalance(t *testing.T) {
	cfg := Defaults()
	cfg.Balances = map[string]float64{"kalshi": -1}
	require.Error(t, cfg.Validate())
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "supersecret"
	cfg.Notify.TelegramToken = "bot-token"
	cfg.Redis.Password = "hunter2"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, "***", red.Redis.Password)
	// original untouched
	assert.Equal(t, "supersecret", cfg.Wallet.PrivateKey)
}
