package auth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// KindHTTPAuth is the NIP-98 HTTP auth event kind.
const KindHTTPAuth = 27235

// DefaultAuthMaxAge bounds how old (or future-dated) an auth event may be.
const DefaultAuthMaxAge = 5 * time.Minute

// VerifyAuthEvent validates a signed NIP-98 auth event and returns the
// authenticated pubkey. The event must be kind 27235, carry a u tag matching
// one of allowedURLs (any URL accepted when the list is empty), a method tag
// of POST, a created_at within maxAge of now, and a valid schnorr signature.
func VerifyAuthEvent(raw []byte, allowedURLs []string, maxAge time.Duration) (string, error) {
	if maxAge <= 0 {
		maxAge = DefaultAuthMaxAge
	}

	var ev nostr.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return "", fmt.Errorf("invalid auth event json: %w", err)
	}

	if ev.Kind != KindHTTPAuth {
		return "", fmt.Errorf("unexpected event kind %d, want %d", ev.Kind, KindHTTPAuth)
	}

	created := ev.CreatedAt.Time()
	now := time.Now()
	if created.Before(now.Add(-maxAge)) {
		return "", fmt.Errorf("auth event expired (created_at %s)", created.UTC().Format(time.RFC3339))
	}
	if created.After(now.Add(maxAge)) {
		return "", fmt.Errorf("auth event created_at is in the future")
	}

	method := ev.Tags.GetFirst([]string{"method"})
	if method == nil || !strings.EqualFold(method.Value(), "POST") {
		return "", fmt.Errorf("missing or unexpected method tag")
	}

	uTag := ev.Tags.GetFirst([]string{"u"})
	if uTag == nil || uTag.Value() == "" {
		return "", fmt.Errorf("missing u tag")
	}
	if len(allowedURLs) > 0 && !urlAllowed(uTag.Value(), allowedURLs) {
		return "", fmt.Errorf("url %q is not in the allowed list", uTag.Value())
	}

	ok, err := ev.CheckSignature()
	if err != nil {
		return "", fmt.Errorf("signature check: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("invalid signature")
	}

	return ev.PubKey, nil
}

func urlAllowed(u string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSuffix(u, "/"), strings.TrimSuffix(a, "/")) {
			return true
		}
	}
	return false
}
