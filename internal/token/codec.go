// Package token encodes, signs, and verifies license tokens. The codec is
// stateless: verification is a pure function of the token and the public key,
// so clients holding the public key can pre-validate offline. Revocation is
// detected by the caller comparing the token's version against the ledger.
package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"flowlytix/licensing/internal/grace"
)

var (
	// ErrSignatureInvalid is returned when the token is malformed, signed by
	// the wrong key, or carries an unexpected issuer/audience.
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrTokenExpired is returned when the signature is valid but exp has
	// passed. Verify still returns the claims so callers can apply the grace
	// policy.
	ErrTokenExpired = errors.New("token expired")
	// ErrClockSkew is returned when iat is implausibly in the future beyond
	// the configured skew tolerance.
	ErrClockSkew = errors.New("token issued-at beyond clock skew tolerance")
)

// LicenseClaims is the signed claim set carried by a license token.
type LicenseClaims struct {
	jwt.RegisteredClaims
	SubscriptionID string `json:"subscription_id"`
	Plan           string `json:"plan"`
	TokenVersion   int64  `json:"token_version"`
}

// Codec issues and verifies license JWTs using RS256 or ES256
// (private key signs, public key verifies).
type Codec struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	tokenTTL   time.Duration
	policy     grace.Policy
}

// NewCodec returns a Codec that signs with the given private key (RS256 or
// ES256). issuer and audience are set on claims and checked on Verify. policy
// supplies the clock-skew tolerance; its grace window is not consulted here.
func NewCodec(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, tokenTTL time.Duration, policy grace.Policy) *Codec {
	return &Codec{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		tokenTTL:   tokenTTL,
		policy:     policy,
	}
}

// TTL returns the configured token lifetime.
func (c *Codec) TTL() time.Duration { return c.tokenTTL }

// Issue mints a signed license token for the device at the given token
// version. exp is now + tokenTTL; token lifetime is deliberately short and
// independent of subscription expiry.
func (c *Codec) Issue(deviceID, subscriptionID, plan string, tokenVersion int64, now time.Time) (string, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", err
	}
	now = now.UTC()
	claims := LicenseClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   deviceID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.tokenTTL)),
		},
		SubscriptionID: subscriptionID,
		Plan:           plan,
		TokenVersion:   tokenVersion,
	}
	var method jwt.SigningMethod
	switch c.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrSignatureInvalid
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(c.privateKey)
}

// Verify parses and validates the token at now. It checks signature, expiry,
// issuer, audience, and issued-at plausibility; it does not consult the
// ledger. On ErrTokenExpired the claims are still returned so the caller can
// decide whether the grace policy applies; on any other error claims are nil.
func (c *Codec) Verify(tokenString string, now time.Time) (*LicenseClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &LicenseClaims{}, func(t *jwt.Token) (interface{}, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			return c.publicKey, nil
		}
		return nil, ErrSignatureInvalid
	}, jwt.WithTimeFunc(func() time.Time { return now }), jwt.WithExpirationRequired())

	if err != nil {
		if parsed != nil && errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			claims, ok := parsed.Claims.(*LicenseClaims)
			if !ok {
				return nil, ErrSignatureInvalid
			}
			if verr := c.checkClaims(claims, now); verr != nil {
				return nil, verr
			}
			return claims, ErrTokenExpired
		}
		return nil, ErrSignatureInvalid
	}

	claims, ok := parsed.Claims.(*LicenseClaims)
	if !ok || !parsed.Valid {
		return nil, ErrSignatureInvalid
	}
	if verr := c.checkClaims(claims, now); verr != nil {
		return nil, verr
	}
	return claims, nil
}

// checkClaims validates issuer, audience, and issued-at plausibility.
func (c *Codec) checkClaims(claims *LicenseClaims, now time.Time) error {
	if claims.Issuer != c.issuer {
		return ErrSignatureInvalid
	}
	audOK := false
	for _, a := range claims.Audience {
		if a == c.audience {
			audOK = true
			break
		}
	}
	if !audOK {
		return ErrSignatureInvalid
	}
	if claims.IssuedAt != nil && !c.policy.IsPlausibleIssuedAt(claims.IssuedAt.Time, now) {
		return ErrClockSkew
	}
	return nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
