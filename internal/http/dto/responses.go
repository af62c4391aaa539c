package dto

type AuthResponse struct {
	Token   string `json:"token"`
	Pubkey  string `json:"pubkey"`
	Balance any    `json:"balance,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type WalletStatusResponse struct {
	Connected    bool   `json:"connected"`
	WalletPubkey string `json:"walletPubkey,omitempty"`
	RelayURL     string `json:"relayUrl,omitempty"`
	LUD16        string `json:"lud16,omitempty"`
}

type WalletBalanceResponse struct {
	BalanceSats int64 `json:"balanceSats"`
}
