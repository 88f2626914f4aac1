package model

import (
	"errors"
	"fmt"
)

// Local concurrency and state-machine violations. Callers log these and
// re-read state on the next cycle, never retry blindly.
var (
	// ErrTerminalState is returned by any transition attempt on an already
	// settled position.
	ErrTerminalState = errors.New("position is in a terminal state")

	// ErrStaleState is returned when a concurrent transition won the race.
	// The caller must re-read state before retrying.
	ErrStaleState = errors.New("position state is stale, re-read before retrying")

	// ErrImmutableWindow is returned when mutating a window whose outcome
	// has already been recorded.
	ErrImmutableWindow = errors.New("window outcome already recorded")

	// ErrDuplicateSide is returned when a second non-settled position is
	// requested for the same (window, side).
	ErrDuplicateSide = errors.New("non-settled position already exists for this window side")

	// ErrGhostTrade is returned when a reconciliation update targets an
	// order whose owning position has already settled. The update is
	// discarded, never applied.
	ErrGhostTrade = errors.New("ghost trade: owning position already settled")

	// ErrExchangeUnavailable is surfaced after exhausting retries against
	// the exchange. Only the affected action is suspended.
	ErrExchangeUnavailable = errors.New("exchange unavailable after retries")
)

// ValidationError rejects an operation before any exchange call is made.
// It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// TransientExchangeError wraps a timeout or rate-limit failure that is safe
// to retry with backoff.
type TransientExchangeError struct {
	Op  string
	Err error
}

func (e *TransientExchangeError) Error() string {
	return fmt.Sprintf("transient exchange error on %s: %v", e.Op, e.Err)
}

func (e *TransientExchangeError) Unwrap() error {
	return e.Err
}

// ReconciliationMismatch reports a persistent disagreement between a local
// order record and exchange truth. Self-healing corrects the local record.
type ReconciliationMismatch struct {
	OrderID        uint
	LocalStatus    string
	ExchangeStatus string
}

func (e *ReconciliationMismatch) Error() string {
	return fmt.Sprintf("order %d status mismatch: local=%s exchange=%s",
		e.OrderID, e.LocalStatus, e.ExchangeStatus)
}
