package nwc

import (
	"context"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// RelayTransport is the injected relay connection. The live implementation
// speaks the Nostr websocket protocol; tests use a fake.
type RelayTransport interface {
	Publish(ctx context.Context, event nostr.Event) error
	// Subscribe returns a stream of events matching the filter and a
	// function that cancels the subscription.
	Subscribe(ctx context.Context, filter nostr.Filter) (<-chan *nostr.Event, func(), error)
	Close() error
}

// TransportFactory dials a relay. Injected into Client so tests can supply
// a deterministic fake without any network.
type TransportFactory func(ctx context.Context, relayURL string) (RelayTransport, error)

type relayTransport struct {
	relay *nostr.Relay
}

// DialRelay is the production TransportFactory.
func DialRelay(ctx context.Context, relayURL string) (RelayTransport, error) {
	relay, err := nostr.RelayConnect(ctx, relayURL)
	if err != nil {
		return nil, err
	}
	return &relayTransport{relay: relay}, nil
}

func (t *relayTransport) Publish(ctx context.Context, event nostr.Event) error {
	return t.relay.Publish(ctx, event)
}

func (t *relayTransport) Subscribe(ctx context.Context, filter nostr.Filter) (<-chan *nostr.Event, func(), error) {
	sub, err := t.relay.Subscribe(ctx, nostr.Filters{filter})
	if err != nil {
		return nil, nil, err
	}
	return sub.Events, sub.Unsub, nil
}

func (t *relayTransport) Close() error {
	return t.relay.Close()
}

// ConnectionStore persists wallet connection metadata for session resume.
// Implementations must never store the secret.
type ConnectionStore interface {
	SaveConnection(ctx context.Context, rec *StoredConnection) error
	LoadConnection(ctx context.Context) (*StoredConnection, error)
	DeleteConnection(ctx context.Context) error
}

// StoredConnection is the persisted, secret-free connection metadata.
type StoredConnection struct {
	WalletPubkey string
	RelayURL     string
	LUD16        string
	Methods      []string
	ConnectedAt  time.Time
}
