package models

import "time"

// UserBalance is the per-user ledger record. Balance is withdrawable;
// PendingBalance holds credits whose wallet payment has not been confirmed.
// All amounts are sats. TotalEarned/TotalWithdrawn only ever grow.
type UserBalance struct {
	Pubkey         string    `json:"pubkey"`
	Balance        int64     `json:"balance"`
	PendingBalance int64     `json:"pendingBalance"`
	TotalEarned    int64     `json:"totalEarned"`
	TotalWithdrawn int64     `json:"totalWithdrawn"`
	LastActivity   time.Time `json:"lastActivity"`
	CreatedAt      time.Time `json:"createdAt"`
}
