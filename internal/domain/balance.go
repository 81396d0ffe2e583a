package domain

import "github.com/shopspring/decimal"

// VenueBalance is one venue's balance record as seen by the ledger.
type VenueBalance struct {
	Available decimal.Decimal
	Locked    decimal.Decimal
}

// Total returns available + locked.
func (b VenueBalance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}
