// Package ledger implements the per-venue balance state machine. It is pure
// in-memory accounting: every trade's capital passes through reserve, then
// exactly one of commit or release. The ledger performs no I/O and holds its
// mutex only across map updates, never across a network call.
package ledger

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/edgefold/crossarb/internal/domain"
)

type venueBalance struct {
	available decimal.Decimal
	locked    decimal.Decimal
}

// Ledger tracks available and locked balances per venue. Venue keys are
// case-folded at the boundary so "Polymarket" and "polymarket" address the
// same record. Safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]*venueBalance
	logger   *slog.Logger
}

// New creates an empty Ledger. Fund venues with Deposit or ResetAll before
// trading.
func New(logger *slog.Logger) *Ledger {
	return &Ledger{
		balances: make(map[string]*venueBalance),
		logger:   logger.With(slog.String("component", "ledger")),
	}
}

func venueKey(venue string) string {
	return strings.ToLower(strings.TrimSpace(venue))
}

// get returns the balance record for venue, creating a zero record if none
// exists. Caller must hold l.mu.
func (l *Ledger) get(venue string) *venueBalance {
	key := venueKey(venue)
	b, ok := l.balances[key]
	if !ok {
		b = &venueBalance{available: decimal.Zero, locked: decimal.Zero}
		l.balances[key] = b
	}
	return b
}

// Deposit adds funds to a venue's available balance.
func (l *Ledger) Deposit(venue string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(venue)
	b.available = b.available.Add(amount)
}

// Reserve moves amount from available to locked on the given venue. It
// returns an InsufficientBalanceError when available does not cover amount;
// on error the ledger is unchanged.
func (l *Ledger) Reserve(venue string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &domain.InsufficientBalanceError{
			Venue: venueKey(venue), Requested: amount, Available: decimal.Zero,
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.get(venue)
	if b.available.LessThan(amount) {
		return &domain.InsufficientBalanceError{
			Venue:     venueKey(venue),
			Requested: amount,
			Available: b.available,
		}
	}

	b.available = b.available.Sub(amount)
	b.locked = b.locked.Add(amount)

	l.logger.Info("reserved balance",
		slog.String("venue", venueKey(venue)),
		slog.String("amount", amount.String()),
		slog.String("available", b.available.String()),
		slog.String("locked", b.locked.String()),
	)
	return nil
}

// Commit permanently spends up to amount from the venue's locked balance.
// The funds do not return to available. Committing more than is locked
// clamps locked to zero and logs the inconsistency rather than going
// negative.
func (l *Ledger) Commit(venue string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.get(venue)
	if b.locked.LessThan(amount) {
		l.logger.Warn("commit exceeds locked balance, clamping",
			slog.String("venue", venueKey(venue)),
			slog.String("amount", amount.String()),
			slog.String("locked", b.locked.String()),
		)
		b.locked = decimal.Zero
	} else {
		b.locked = b.locked.Sub(amount)
	}

	l.logger.Info("committed balance",
		slog.String("venue", venueKey(venue)),
		slog.String("amount", amount.String()),
		slog.String("locked", b.locked.String()),
	)
}

// Release returns up to amount from the venue's locked balance to available,
// with the same clamping rule as Commit.
func (l *Ledger) Release(venue string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.get(venue)
	release := amount
	if b.locked.LessThan(amount) {
		l.logger.Warn("release exceeds locked balance, clamping",
			slog.String("venue", venueKey(venue)),
			slog.String("amount", amount.String()),
			slog.String("locked", b.locked.String()),
		)
		release = b.locked
	}

	b.locked = b.locked.Sub(release)
	b.available = b.available.Add(release)

	l.logger.Info("released balance",
		slog.String("venue", venueKey(venue)),
		slog.String("amount", release.String()),
		slog.String("available", b.available.String()),
		slog.String("locked", b.locked.String()),
	)
}

// Balances returns the current balance record for a venue. Unknown venues
// report zero.
func (l *Ledger) Balances(venue string) domain.VenueBalance {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := venueKey(venue)
	b, ok := l.balances[key]
	if !ok {
		return domain.VenueBalance{Available: decimal.Zero, Locked: decimal.Zero}
	}
	return domain.VenueBalance{Available: b.available, Locked: b.locked}
}

// SnapshotAll returns a copy of every venue's balance record.
func (l *Ledger) SnapshotAll() map[string]domain.VenueBalance {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]domain.VenueBalance, len(l.balances))
	for venue, b := range l.balances {
		out[venue] = domain.VenueBalance{Available: b.available, Locked: b.locked}
	}
	return out
}

// ResetAll replaces every balance record with the given set. Intended for
// startup funding and tests/ops use.
func (l *Ledger) ResetAll(balances map[string]domain.VenueBalance) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances = make(map[string]*venueBalance, len(balances))
	for venue, b := range balances {
		l.balances[venueKey(venue)] = &venueBalance{
			available: b.Available,
			locked:    b.Locked,
		}
	}
	l.logger.Info("ledger reset", slog.Int("venues", len(balances)))
}
