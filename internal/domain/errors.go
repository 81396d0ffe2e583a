package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidOpportunity  = errors.New("invalid opportunity")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrGatewaySubmission   = errors.New("gateway submission failed")
	ErrRateLimited         = errors.New("rate limited")
	ErrTradingHalted       = errors.New("trading halted")
	ErrSigningFailed       = errors.New("signing failed")
	ErrUnknownVenue        = errors.New("unknown venue")
	ErrNotFound            = errors.New("not found")
)

// InsufficientBalanceError reports a denied reservation. It unwraps to
// ErrInsufficientBalance so callers can match with errors.Is.
type InsufficientBalanceError struct {
	Venue     string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on %s: requested %s, available %s",
		e.Venue, e.Requested, e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}
