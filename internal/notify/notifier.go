// Package notify delivers operator alerts over one or more channels
// (Telegram, Discord). Delivery is filtered by severity: each notifier has a
// minimum level and drops anything quieter, so CRITICAL pages can go to a
// different channel set than INFO chatter.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/edgefold/crossarb/internal/domain"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier fans alerts out to all senders at or above its minimum level. It
// implements domain.AlertSink.
type Notifier struct {
	senders  []Sender
	minLevel domain.AlertLevel
	logger   *slog.Logger
}

// NewNotifier creates a Notifier. Alerts below minLevel are dropped; an
// unrecognized minLevel defaults to INFO (deliver everything).
func NewNotifier(senders []Sender, minLevel domain.AlertLevel, logger *slog.Logger) *Notifier {
	if levelRank(minLevel) < 0 {
		minLevel = domain.AlertInfo
	}
	return &Notifier{
		senders:  senders,
		minLevel: minLevel,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// Send delivers one alert to every sender at or above the minimum level.
// Individual sender failures are collected; one failing channel does not
// block the others.
func (n *Notifier) Send(ctx context.Context, alert domain.Alert) error {
	if levelRank(alert.Level) < levelRank(n.minLevel) {
		n.logger.DebugContext(ctx, "alert below minimum level",
			slog.String("level", string(alert.Level)),
		)
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	title := fmt.Sprintf("[%s] crossarb", alert.Level)

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, alert.Message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert delivered",
			slog.String("sender", s.Name()),
			slog.String("level", string(alert.Level)),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

func levelRank(l domain.AlertLevel) int {
	switch l {
	case domain.AlertInfo:
		return 0
	case domain.AlertWarning:
		return 1
	case domain.AlertCritical:
		return 2
	default:
		return -1
	}
}
