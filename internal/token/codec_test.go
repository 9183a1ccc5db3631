package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"flowlytix/licensing/internal/grace"
	"flowlytix/licensing/internal/security"
)

func newTestCodec(t *testing.T, ttl time.Duration) *Codec {
	t.Helper()
	signer, pub, err := security.NewTestKeyPair()
	if err != nil {
		t.Fatalf("test key pair: %v", err)
	}
	policy := grace.NewPolicy(72*time.Hour, 5*time.Minute)
	return NewCodec(signer, pub, "flowlytix-licensing", "flowlytix-app", ttl, policy)
}

func TestIssueAndVerify(t *testing.T) {
	c := newTestCodec(t, time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tok, err := c.Issue("dev-1", "sub-1", "professional", 3, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if tok == "" || strings.Count(tok, ".") != 2 {
		t.Fatalf("Issue returned malformed compact JWS: %q", tok)
	}

	claims, err := c.Verify(tok, now.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "dev-1" {
		t.Errorf("sub want dev-1, got %s", claims.Subject)
	}
	if claims.SubscriptionID != "sub-1" {
		t.Errorf("subscription_id want sub-1, got %s", claims.SubscriptionID)
	}
	if claims.Plan != "professional" {
		t.Errorf("plan want professional, got %s", claims.Plan)
	}
	if claims.TokenVersion != 3 {
		t.Errorf("token_version want 3, got %d", claims.TokenVersion)
	}
	if !claims.ExpiresAt.Time.Equal(now.Add(time.Hour)) {
		t.Errorf("exp want %v, got %v", now.Add(time.Hour), claims.ExpiresAt.Time)
	}
}

func TestVerifyWithinLifetime(t *testing.T) {
	c := newTestCodec(t, time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tok, err := c.Issue("dev-1", "sub-1", "basic", 0, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for _, delta := range []time.Duration{0, time.Minute, 59 * time.Minute} {
		if _, err := c.Verify(tok, now.Add(delta)); err != nil {
			t.Errorf("Verify at +%v: %v", delta, err)
		}
	}
}

func TestVerifyExpiredReturnsClaims(t *testing.T) {
	c := newTestCodec(t, time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tok, err := c.Issue("dev-1", "sub-1", "basic", 2, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := c.Verify(tok, now.Add(2*time.Hour))
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("want ErrTokenExpired, got %v", err)
	}
	if claims == nil {
		t.Fatal("expired token should still return claims for the grace path")
	}
	if claims.Subject != "dev-1" || claims.TokenVersion != 2 {
		t.Errorf("claims not preserved: %+v", claims)
	}
}

func TestVerifyTamperedToken(t *testing.T) {
	c := newTestCodec(t, time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tok, err := c.Issue("dev-1", "sub-1", "basic", 0, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Flip a character in the payload segment.
	parts := strings.Split(tok, ".")
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := c.Verify(tampered, now); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("tampered token: want ErrSignatureInvalid, got %v", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	c := newTestCodec(t, time.Hour)
	now := time.Now().UTC()
	for _, s := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := c.Verify(s, now); !errors.Is(err, ErrSignatureInvalid) {
			t.Errorf("Verify(%q): want ErrSignatureInvalid, got %v", s, err)
		}
	}
}

func TestVerifyMissingExpiryRejected(t *testing.T) {
	c := newTestCodec(t, time.Hour)
	signer, _, err := security.NewTestKeyPair()
	if err != nil {
		t.Fatalf("test key pair: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// A well-signed token with no exp claim must not verify: without it the
	// grace window would have no anchor and validation no cutoff.
	claims := LicenseClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       "jti-1",
			Subject:  "dev-1",
			Issuer:   "flowlytix-licensing",
			Audience: jwt.ClaimStrings{"flowlytix-app"},
			IssuedAt: jwt.NewNumericDate(now),
		},
		SubscriptionID: "sub-1",
		Plan:           "basic",
		TokenVersion:   1,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(signer)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, err := c.Verify(tok, now)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("missing exp: want ErrSignatureInvalid, got %v", err)
	}
	if got != nil {
		t.Errorf("missing exp: claims should be nil, got %+v", got)
	}
}

func TestVerifyWrongIssuer(t *testing.T) {
	signer, pub, err := security.NewTestKeyPair()
	if err != nil {
		t.Fatalf("test key pair: %v", err)
	}
	policy := grace.NewPolicy(0, 0)
	issuerA := NewCodec(signer, pub, "issuer-a", "flowlytix-app", time.Hour, policy)
	issuerB := NewCodec(signer, pub, "issuer-b", "flowlytix-app", time.Hour, policy)

	now := time.Now().UTC()
	tok, err := issuerA.Issue("dev-1", "sub-1", "basic", 0, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := issuerB.Verify(tok, now); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("wrong issuer: want ErrSignatureInvalid, got %v", err)
	}
}

func TestVerifyClockSkew(t *testing.T) {
	c := newTestCodec(t, time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Issued 10 minutes in the future; skew tolerance is 5 minutes.
	tok, err := c.Issue("dev-1", "sub-1", "basic", 0, now.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := c.Verify(tok, now); !errors.Is(err, ErrClockSkew) {
		t.Errorf("future iat: want ErrClockSkew, got %v", err)
	}

	// Within tolerance is fine.
	tok, err = c.Issue("dev-1", "sub-1", "basic", 0, now.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := c.Verify(tok, now); err != nil {
		t.Errorf("iat within tolerance: %v", err)
	}
}
