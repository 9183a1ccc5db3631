package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashLicenseKey returns a SHA-256 hash of the license key, hex-encoded.
// The store keeps only this hash; the raw key is shown once at creation.
func HashLicenseKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// LicenseKeyHashEqual performs constant-time comparison of the provided key's
// hash with the stored hash. Returns true only if they match.
func LicenseKeyHashEqual(providedKey, storedHash string) bool {
	providedHash := HashLicenseKey(providedKey)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}

// KeyFingerprint returns a short non-reversible identifier for a license key,
// suitable for logs and telemetry. Never log the raw key.
func KeyFingerprint(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:4])
}
