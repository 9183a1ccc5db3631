// Package grace holds the offline-grace and clock-skew rules for license
// tokens. This is the only place soft time logic lives; every other check in
// the licensing core is strict.
package grace

import "time"

// DefaultWindow is how long a client may keep using an expired token while
// offline before it is hard-locked out.
const DefaultWindow = 72 * time.Hour

// DefaultSkewTolerance bounds how far in the future a token's issued-at may
// be before verification rejects it as clock skew.
const DefaultSkewTolerance = 5 * time.Minute

// Policy bounds how long an expired token stays usable offline and how much
// client clock skew is tolerated. Zero values disable the respective rule.
type Policy struct {
	Window        time.Duration
	SkewTolerance time.Duration
}

// NewPolicy returns a Policy, substituting defaults for non-positive values.
func NewPolicy(window, skewTolerance time.Duration) Policy {
	if window <= 0 {
		window = DefaultWindow
	}
	if skewTolerance <= 0 {
		skewTolerance = DefaultSkewTolerance
	}
	return Policy{Window: window, SkewTolerance: skewTolerance}
}

// IsWithinGrace reports whether a token that expired at expiresAt may still
// be accepted at now under the grace window. A token that has not expired yet
// is trivially within grace.
func (p Policy) IsWithinGrace(expiresAt, now time.Time) bool {
	if !now.After(expiresAt) {
		return true
	}
	return now.Sub(expiresAt) <= p.Window
}

// IsPlausibleIssuedAt reports whether iat is not implausibly in the future
// relative to now, given the skew tolerance.
func (p Policy) IsPlausibleIssuedAt(issuedAt, now time.Time) bool {
	return !issuedAt.After(now.Add(p.SkewTolerance))
}
