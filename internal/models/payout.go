package models

import (
	"time"

	"github.com/google/uuid"
)

// Payout statuses
const (
	PayoutStatusPending = "pending"
	PayoutStatusPaid    = "paid"
	PayoutStatusFailed  = "failed"
)

// Game types that can produce a payout. "withdrawal" is the user-initiated
// cash-out entry in the same log.
const (
	GameTypeTrivia      = "trivia"
	GameTypeStacker     = "stacker"
	GameTypeAchievement = "achievement"
	GameTypeReferral    = "referral"
	GameTypeWithdrawal  = "withdrawal"
)

// Valid state transitions: from -> []to.
// paid -> failed is the reconciliation reset and is only reachable through
// PayoutRepo.ResetWithdrawal.
var ValidPayoutTransitions = map[string][]string{
	PayoutStatusPending: {PayoutStatusPaid, PayoutStatusFailed},
	PayoutStatusPaid:    {PayoutStatusFailed},
	PayoutStatusFailed:  {},
}

func IsValidPayoutTransition(from, to string) bool {
	allowed, ok := ValidPayoutTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func IsValidGameType(gameType string) bool {
	switch gameType {
	case GameTypeTrivia, GameTypeStacker, GameTypeAchievement, GameTypeReferral, GameTypeWithdrawal:
		return true
	}
	return false
}

type Payout struct {
	ID         uuid.UUID `json:"id"`
	UserPubkey string    `json:"userPubkey"`
	Amount     int64     `json:"amount"` // sats
	FeeSats    int64     `json:"feeSats,omitempty"`
	GameType   string    `json:"gameType"`
	Status     string    `json:"status"`
	// Wallet payment proof (preimage) or pull-payment id.
	ExternalRef *string   `json:"pullPaymentId,omitempty"`
	CreatedAt   time.Time `json:"timestamp"`
	UpdatedAt   time.Time `json:"-"`
}

// PayoutRequest is the input for appending a payout to the log.
type PayoutRequest struct {
	UserPubkey  string
	Amount      int64
	FeeSats     int64
	GameType    string
	Status      string // defaults to pending
	ExternalRef *string
}

type PayoutFilter struct {
	UserPubkey *string
	Status     *string
	GameType   *string
	Since      *time.Time
	Limit      int
}
