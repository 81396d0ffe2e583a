package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Metrics implements domain.MetricsSink on Redis. Counters live at
// "metrics:trades:{name}" and the per-venue locked-balance gauge at
// "metrics:locked:{venue}". Failures are logged and swallowed: metrics are
// advisory and must never fail a trade.
type Metrics struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewMetrics creates a Metrics sink backed by the given Client.
func NewMetrics(c *Client, logger *slog.Logger) *Metrics {
	return &Metrics{
		rdb:    c.rdb,
		logger: logger.With(slog.String("component", "redis_metrics")),
	}
}

func (m *Metrics) TradeAttempted(ctx context.Context)  { m.incr(ctx, "attempted") }
func (m *Metrics) TradeCommitted(ctx context.Context)  { m.incr(ctx, "committed") }
func (m *Metrics) TradeRolledBack(ctx context.Context) { m.incr(ctx, "rolled_back") }
func (m *Metrics) TradeUnhedged(ctx context.Context)   { m.incr(ctx, "unhedged") }

// SetLockedBalance publishes the venue's locked funds as a gauge.
func (m *Metrics) SetLockedBalance(ctx context.Context, venue string, locked decimal.Decimal) {
	if err := m.rdb.Set(ctx, "metrics:locked:"+venue, locked.String(), 0).Err(); err != nil {
		m.logger.WarnContext(ctx, "gauge update failed",
			slog.String("venue", venue),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Metrics) incr(ctx context.Context, name string) {
	if err := m.rdb.Incr(ctx, "metrics:trades:"+name).Err(); err != nil {
		m.logger.WarnContext(ctx, "counter update failed",
			slog.String("counter", name),
			slog.String("error", err.Error()),
		)
	}
}
