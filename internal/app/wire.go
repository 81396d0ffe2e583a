package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	s3blob "github.com/edgefold/crossarb/internal/blob/s3"
	"github.com/edgefold/crossarb/internal/cache/redis"
	"github.com/edgefold/crossarb/internal/config"
	"github.com/edgefold/crossarb/internal/domain"
	"github.com/edgefold/crossarb/internal/ledger"
	"github.com/edgefold/crossarb/internal/notify"
	"github.com/edgefold/crossarb/internal/risk"
	"github.com/edgefold/crossarb/internal/store/postgres"
)

// Dependencies bundles the infrastructure shared by both operating modes.
// Optional members are nil when their backing service is disabled.
type Dependencies struct {
	Ledger  *ledger.Ledger
	Breaker *risk.Breaker
	Alerts  domain.AlertSink
	Metrics domain.MetricsSink

	OutcomeStore domain.OutcomeStore
	Archiver     domain.OutcomeArchiver
}

// Wire constructs the concrete infrastructure from configuration and
// returns it with a cleanup function to run on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	deps.Ledger = ledger.New(logger)
	for venue, amount := range cfg.Balances {
		deps.Ledger.Deposit(venue, decimal.NewFromFloat(amount))
	}

	deps.Breaker = risk.NewBreaker(cfg.Risk.BreakerThreshold, logger)

	// Alerts: every configured channel gets wired; none configured means
	// alerts only reach the log.
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Alerts = notify.NewNotifier(senders, domain.AlertLevel(strings.ToUpper(cfg.Notify.MinLevel)), logger)
	} else {
		deps.Alerts = domain.NopAlertSink{}
	}

	deps.Metrics = domain.NopMetricsSink{}
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Metrics = redis.NewMetrics(redisClient, logger)
	}

	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.OutcomeStore = postgres.NewOutcomeStore(pgClient.Pool())
	}

	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), cfg.S3.Prefix)
	}

	return deps, cleanup, nil
}
