package domain

import (
	"errors"
	"time"
)

// Device is one activated installation bound to a subscription. A device
// belongs to exactly one subscription at a time; moving it elsewhere requires
// deactivation first. TokenVersion is monotonic and is what invalidates
// previously issued tokens without a blocklist.
type Device struct {
	ID             string // row id
	DeviceID       string // stable per-installation identifier supplied by the client
	SubscriptionID string
	Name           string // optional, client supplied
	Status         Status
	TokenVersion   int64
	ActivatedAt    time.Time
	LastSeenAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Status string

const (
	StatusActive      Status = "active"
	StatusDeactivated Status = "deactivated"
	StatusRevoked     Status = "revoked"
)

// Validate validates the device for persistence. Returns an error describing the first validation failure.
func (d *Device) Validate() error {
	if d.DeviceID == "" {
		return errors.New("device_id is required")
	}
	if d.SubscriptionID == "" {
		return errors.New("subscription_id is required")
	}
	if d.Status == "" {
		d.Status = StatusActive
	}
	return nil
}

// OccupiesSlot reports whether the device counts against the subscription's
// device limit.
func (d *Device) OccupiesSlot() bool {
	return d.Status == StatusActive
}
