package security

import (
	"crypto/rand"
	"errors"
	"strings"
)

// LicenseKeyPrefix is the product prefix carried by every issued license key.
const LicenseKeyPrefix = "FL"

// licenseKeyCharset excludes 0/O and 1/I to keep keys unambiguous when read aloud.
const licenseKeyCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const licenseKeyGroups = 4
const licenseKeyGroupLen = 4

// ErrInvalidLicenseKeyFormat is returned when a key does not match FL-XXXX-XXXX-XXXX-XXXX.
var ErrInvalidLicenseKeyFormat = errors.New("invalid license key format")

// GenerateLicenseKey returns a new random license key of the form
// FL-XXXX-XXXX-XXXX-XXXX. Uses crypto/rand; safe for concurrent use.
func GenerateLicenseKey() (string, error) {
	buf := make([]byte, licenseKeyGroups*licenseKeyGroupLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(LicenseKeyPrefix)
	for i, c := range buf {
		if i%licenseKeyGroupLen == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(licenseKeyCharset[int(c)%len(licenseKeyCharset)])
	}
	return b.String(), nil
}

// ValidateLicenseKeyFormat checks the FL-XXXX-XXXX-XXXX-XXXX shape without
// consulting storage. Returns ErrInvalidLicenseKeyFormat on mismatch.
func ValidateLicenseKeyFormat(key string) error {
	parts := strings.Split(key, "-")
	if len(parts) != licenseKeyGroups+1 {
		return ErrInvalidLicenseKeyFormat
	}
	if parts[0] != LicenseKeyPrefix {
		return ErrInvalidLicenseKeyFormat
	}
	for _, p := range parts[1:] {
		if len(p) != licenseKeyGroupLen {
			return ErrInvalidLicenseKeyFormat
		}
		for i := 0; i < len(p); i++ {
			if !strings.ContainsRune(licenseKeyCharset, rune(p[i])) {
				return ErrInvalidLicenseKeyFormat
			}
		}
	}
	return nil
}
