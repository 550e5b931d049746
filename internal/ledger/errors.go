package ledger

import (
	"errors"
	"fmt"
)

// ErrPortfolioNotFound is returned when a ledger operation references an
// unknown or inactive portfolio.
var ErrPortfolioNotFound = errors.New("portfolio not found")

// ErrNoOpenPosition is returned when a sell references an instrument with no
// open position.
var ErrNoOpenPosition = errors.New("no open position for instrument")

// ValidationError rejects malformed input before any mutation happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientPositionError rejects a sell whose quantity exceeds the open
// position. The position is left untouched, never clamped.
type InsufficientPositionError struct {
	Symbol    string
	Available int
	Requested int
}

func (e *InsufficientPositionError) Error() string {
	return fmt.Sprintf("insufficient position in %s: available %d, requested %d",
		e.Symbol, e.Available, e.Requested)
}

// IntegrityError wraps any unexpected failure inside the atomic buy/sell
// effect. The whole transaction has been rolled back when this surfaces.
type IntegrityError struct {
	Op  string
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger %s aborted: %v", e.Op, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }
