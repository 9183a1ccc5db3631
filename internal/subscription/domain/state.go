package domain

import "time"

// State is the subscription's lifecycle state as observed at a single point
// in time. Expiry is computed lazily at read time from stored fields, never
// by a background sweep, so there is no staleness window between a billing
// update and the next licensing decision.
type State string

const (
	StateActive    State = "active"
	StateExpired   State = "expired"
	StateSuspended State = "suspended"
	StateCancelled State = "cancelled"
	StatePending   State = "pending"
)

// Classify returns the subscription's state at now.
//
// Suspended, cancelled, and pending are explicit billing statuses and win
// regardless of time. A stored "active" subscription whose expiry has passed
// classifies as expired; a nil expiry never expires. A stored "expired"
// status (written by billing) also classifies as expired.
func Classify(s *Subscription, now time.Time) State {
	switch s.Status {
	case StatusSuspended:
		return StateSuspended
	case StatusCancelled:
		return StateCancelled
	case StatusPending:
		return StatePending
	case StatusExpired:
		return StateExpired
	}
	if s.ExpiresAt != nil && !s.ExpiresAt.After(now) {
		return StateExpired
	}
	if now.Before(s.StartsAt) {
		return StatePending
	}
	return StateActive
}

// AllowsActivation reports whether the state permits new activations,
// heartbeats, and token refreshes. Deactivation is always permitted in every
// state so a device can release its slot.
func (st State) AllowsActivation() bool {
	return st == StateActive
}
