package events

import "context"

// Event types
const (
	EventBalanceChanged = "balance_changed"
	EventPayoutUpdated  = "payout_updated"
	EventWalletStatus   = "wallet_status"
)

// Stream is the pub/sub channel dependent views subscribe to so they can
// refresh without polling the ledger.
const Stream = "events:rewards"

type Event struct {
	Type string `json:"type"`
	// Pubkey scopes the event to one user; empty events are broadcast.
	Pubkey  string         `json:"pubkey,omitempty"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
