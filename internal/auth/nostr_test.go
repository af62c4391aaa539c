package auth

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// helper: builds a signed auth event with the given created_at and tags
func buildAuthEvent(t *testing.T, sk string, createdAt time.Time, url, method string) []byte {
	t.Helper()
	ev := nostr.Event{
		Kind:      KindHTTPAuth,
		CreatedAt: nostr.Timestamp(createdAt.Unix()),
		Tags:      nostr.Tags{{"u", url}, {"method", method}},
	}
	if err := ev.Sign(sk); err != nil {
		t.Fatalf("sign: %v", err)
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestVerifyAuthEvent_Valid(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)

	raw := buildAuthEvent(t, sk, time.Now().Add(-30*time.Second), "https://rewards.islandbitcoin.com/api/v1/auth/nostr", "POST")

	pubkey, err := VerifyAuthEvent(raw, nil, 5*time.Minute)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if pubkey != pk {
		t.Errorf("pubkey = %q, want %q", pubkey, pk)
	}
}

func TestVerifyAuthEvent_Expired(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	raw := buildAuthEvent(t, sk, time.Now().Add(-10*time.Minute), "https://x.test/auth", "POST")

	_, err := VerifyAuthEvent(raw, nil, 5*time.Minute)
	if err == nil {
		t.Fatal("expected error for expired event")
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Errorf("expected 'expired' in error, got: %s", err.Error())
	}
}

func TestVerifyAuthEvent_FutureCreatedAt(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	raw := buildAuthEvent(t, sk, time.Now().Add(10*time.Minute), "https://x.test/auth", "POST")

	_, err := VerifyAuthEvent(raw, nil, 5*time.Minute)
	if err == nil {
		t.Fatal("expected error for future created_at")
	}
	if !strings.Contains(err.Error(), "future") {
		t.Errorf("expected 'future' in error, got: %s", err.Error())
	}
}

func TestVerifyAuthEvent_AllowedURLs(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	raw := buildAuthEvent(t, sk, time.Now(), "https://evil.test/auth", "POST")

	_, err := VerifyAuthEvent(raw, []string{"https://rewards.islandbitcoin.com/api/v1/auth/nostr"}, 5*time.Minute)
	if err == nil {
		t.Fatal("expected error for disallowed url")
	}

	raw = buildAuthEvent(t, sk, time.Now(), "https://rewards.islandbitcoin.com/api/v1/auth/nostr", "POST")
	if _, err := VerifyAuthEvent(raw, []string{"https://rewards.islandbitcoin.com/api/v1/auth/nostr"}, 5*time.Minute); err != nil {
		t.Fatalf("expected allowed url to pass, got: %v", err)
	}
}

func TestVerifyAuthEvent_WrongKind(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	ev := nostr.Event{
		Kind:      1,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{"u", "https://x.test"}, {"method", "POST"}},
	}
	if err := ev.Sign(sk); err != nil {
		t.Fatal(err)
	}
	raw, _ := json.Marshal(ev)

	if _, err := VerifyAuthEvent(raw, nil, 5*time.Minute); err == nil {
		t.Fatal("expected error for wrong kind")
	}
}

func TestVerifyAuthEvent_TamperedSignature(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	ev := nostr.Event{
		Kind:      KindHTTPAuth,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{"u", "https://x.test"}, {"method", "POST"}},
	}
	if err := ev.Sign(sk); err != nil {
		t.Fatal(err)
	}
	// Tamper after signing.
	ev.Content = "tampered"
	raw, _ := json.Marshal(ev)

	if _, err := VerifyAuthEvent(raw, nil, 5*time.Minute); err == nil {
		t.Fatal("expected error for tampered event")
	}
}

func TestVerifyAuthEvent_MissingTags(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	ev := nostr.Event{Kind: KindHTTPAuth, CreatedAt: nostr.Now()}
	if err := ev.Sign(sk); err != nil {
		t.Fatal(err)
	}
	raw, _ := json.Marshal(ev)

	if _, err := VerifyAuthEvent(raw, nil, 5*time.Minute); err == nil {
		t.Fatal("expected error for missing tags")
	}
}

func TestGenerateAndParseJWT(t *testing.T) {
	secret := "test-jwt-secret"
	pk := "b889ff5b1513b641e2a139f661a661364979c5beee91842f8f0ef42ab558e9d4"

	token, err := GenerateJWT(secret, pk, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseJWT(secret, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Pubkey != pk {
		t.Errorf("pubkey = %q, want %q", claims.Pubkey, pk)
	}

	if _, err := ParseJWT("wrong-secret", token); err == nil {
		t.Error("expected error with wrong secret")
	}
}
