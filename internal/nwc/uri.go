package nwc

import (
	"fmt"
	"net/url"

	"github.com/nbd-wtf/go-nostr"
)

// Nostr Wallet Connect event kinds (NIP-47).
const (
	KindWalletInfo     = 13194
	KindWalletRequest  = 23194
	KindWalletResponse = 23195
)

const uriScheme = "nostr+walletconnect"

// WalletConnection holds the parsed connection parameters. Secret is the
// client private key material and must never leave the process except as
// NIP-04 key derivation input.
type WalletConnection struct {
	WalletPubkey string // 64-hex
	RelayURL     string
	Secret       string // 64-hex, also the client signing key
	ClientPubkey string // derived from Secret
	LUD16        string // optional lightning address
}

// ParseConnectionURI parses and validates a
// nostr+walletconnect://<pubkey>?relay=...&secret=...&lud16=... URI.
// It performs no network I/O.
func ParseConnectionURI(raw string) (*WalletConnection, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURI, err)
	}
	if u.Scheme != uriScheme {
		return nil, fmt.Errorf("%w: unexpected scheme %q", ErrMalformedURI, u.Scheme)
	}

	// The wallet pubkey is host-encoded, but some wallets emit the URI
	// without the // so it lands in the opaque part.
	pubkey := u.Host
	if pubkey == "" {
		pubkey = u.Opaque
	}
	if !isHex64(pubkey) {
		return nil, fmt.Errorf("%w: wallet pubkey must be 64 hex chars", ErrMalformedURI)
	}

	q := u.Query()
	relay := q.Get("relay")
	if relay == "" {
		return nil, fmt.Errorf("%w: missing relay param", ErrMalformedURI)
	}
	secret := q.Get("secret")
	if secret == "" {
		return nil, fmt.Errorf("%w: missing secret param", ErrMalformedURI)
	}
	if !isHex64(secret) {
		return nil, fmt.Errorf("%w: secret must be 64 hex chars", ErrMalformedURI)
	}

	// Per NIP-47 the secret is the client private key; the ephemeral
	// identity is derived directly from it rather than through a KDF, which
	// is what real wallets expect on the wire.
	clientPubkey, err := nostr.GetPublicKey(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: secret is not a valid key: %v", ErrMalformedURI, err)
	}

	return &WalletConnection{
		WalletPubkey: pubkey,
		RelayURL:     relay,
		Secret:       secret,
		ClientPubkey: clientPubkey,
		LUD16:        q.Get("lud16"),
	}, nil
}

func isHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
