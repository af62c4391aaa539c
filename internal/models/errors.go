package models

import (
	"errors"
	"fmt"
)

// Errors shared between repositories, services and handlers.
var (
	// ErrLedgerInvariant is returned when a mutation would drive a balance
	// negative or over-debit a ledger row.
	ErrLedgerInvariant = errors.New("ledger invariant violation")

	// ErrInvalidTransition is returned for a payout status change outside
	// ValidPayoutTransitions.
	ErrInvalidTransition = errors.New("invalid payout status transition")

	// ErrNotAuthorized is returned when a non-admin attempts a policy
	// mutation or reconciliation.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrPayoutNotFound is returned when a payout id does not exist.
	ErrPayoutNotFound = errors.New("payout not found")

	// ErrSharedExternalRef rejects a withdrawal reset whose payment
	// reference is reused by another payout.
	ErrSharedExternalRef = errors.New("external reference is shared, refusing reset")
)

// Admission denial reasons.
const (
	ReasonUserDailyCapReached   = "user_daily_cap_reached"
	ReasonGlobalDailyCapReached = "global_daily_cap_reached"
)

// AdmissionDeniedError carries the typed reason an earn request was refused.
type AdmissionDeniedError struct {
	Reason string
}

func (e *AdmissionDeniedError) Error() string {
	return fmt.Sprintf("admission denied: %s", e.Reason)
}
