package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AlertLevel is the severity of an operator alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is one operator notification.
type Alert struct {
	Level     AlertLevel
	Message   string
	Timestamp time.Time
}

// AlertSink receives operator alerts. The trading core emits exactly one
// CRITICAL alert per unhedged outcome and nothing else.
type AlertSink interface {
	Send(ctx context.Context, alert Alert) error
}

// MetricsSink receives trade counters and the per-venue locked-balance gauge.
type MetricsSink interface {
	TradeAttempted(ctx context.Context)
	TradeCommitted(ctx context.Context)
	TradeRolledBack(ctx context.Context)
	TradeUnhedged(ctx context.Context)
	SetLockedBalance(ctx context.Context, venue string, locked decimal.Decimal)
}

// NopAlertSink discards alerts.
type NopAlertSink struct{}

func (NopAlertSink) Send(context.Context, Alert) error { return nil }

// NopMetricsSink discards metrics.
type NopMetricsSink struct{}

func (NopMetricsSink) TradeAttempted(context.Context)                            {}
func (NopMetricsSink) TradeCommitted(context.Context)                            {}
func (NopMetricsSink) TradeRolledBack(context.Context)                           {}
func (NopMetricsSink) TradeUnhedged(context.Context)                             {}
func (NopMetricsSink) SetLockedBalance(context.Context, string, decimal.Decimal) {}
