package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)
	redact(&out.Kalshi.ApiKeyID)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices and maps so callers cannot mutate the original through
	// the redacted copy.
	if cfg.Pairs != nil {
		out.Pairs = make([]PairConfig, len(cfg.Pairs))
		copy(out.Pairs, cfg.Pairs)
	}
	if cfg.Balances != nil {
		out.Balances = make(map[string]float64, len(cfg.Balances))
		for k, v := range cfg.Balances {
			out.Balances[k] = v
		}
	}
	if cfg.Trading.FeeRates != nil {
		out.Trading.FeeRates = make(map[string]float64, len(cfg.Trading.FeeRates))
		for k, v := range cfg.Trading.FeeRates {
			out.Trading.FeeRates[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
