package dto

import "encoding/json"

type NostrAuthRequest struct {
	// Signed kind 27235 authentication event, verbatim.
	Event json.RawMessage `json:"event"`
}

type AwardRequest struct {
	Amount   int64  `json:"amount"` // sats
	GameType string `json:"gameType"`
}

type WithdrawRequest struct {
	Invoice string `json:"invoice"`
}

type WalletConnectRequest struct {
	URI string `json:"uri"`
}

type SettlePayoutRequest struct {
	Invoice string `json:"invoice"`
}

type AddAdminRequest struct {
	Pubkey string `json:"pubkey"`
}

type UpdatePolicyRequest struct {
	MaxDailyPayout   *int64 `json:"maxDailyPayout,omitempty"`
	MaxPayoutPerUser *int64 `json:"maxPayoutPerUser,omitempty"`
	MinWithdrawal    *int64 `json:"minWithdrawal,omitempty"`
	WithdrawalFee    *int64 `json:"withdrawalFee,omitempty"`
}
