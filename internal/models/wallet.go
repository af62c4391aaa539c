package models

import (
	"time"

	"github.com/google/uuid"
)

// WalletConnectionRecord is the persisted metadata of a wallet-connect
// session. The connection secret is never stored; reconnecting requires the
// original URI.
type WalletConnectionRecord struct {
	ID             uuid.UUID  `json:"id"`
	WalletPubkey   string     `json:"wallet_pubkey"`
	RelayURL       string     `json:"relay_url"`
	LUD16          *string    `json:"lud16,omitempty"`
	Methods        []string   `json:"methods"`
	ConnectedAt    time.Time  `json:"connected_at"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
	IsActive       bool       `json:"is_active"`
}
