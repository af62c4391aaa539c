package models

import "time"

// RewardPolicy is the admission/withdrawal policy. Single persisted row,
// mutable only by admins. All amounts are sats.
type RewardPolicy struct {
	MaxDailyPayout   int64     `json:"maxDailyPayout"`   // global cap per UTC day
	MaxPayoutPerUser int64     `json:"maxPayoutPerUser"` // per-user cap per UTC day
	MinWithdrawal    int64     `json:"minWithdrawal"`
	WithdrawalFee    int64     `json:"withdrawalFee"`
	UpdatedAt        time.Time `json:"updatedAt"`
	UpdatedBy        *string   `json:"updatedBy,omitempty"`
}

// PolicyPatch is a partial policy update; nil fields are left unchanged.
type PolicyPatch struct {
	MaxDailyPayout   *int64 `json:"maxDailyPayout,omitempty"`
	MaxPayoutPerUser *int64 `json:"maxPayoutPerUser,omitempty"`
	MinWithdrawal    *int64 `json:"minWithdrawal,omitempty"`
	WithdrawalFee    *int64 `json:"withdrawalFee,omitempty"`
}

type Admin struct {
	Pubkey  string    `json:"pubkey"`
	AddedBy *string   `json:"addedBy,omitempty"`
	AddedAt time.Time `json:"addedAt"`
}
