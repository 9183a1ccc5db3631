// Package ledger is the authoritative record of which devices occupy
// activation slots on which subscriptions. Every mutation is atomic with
// respect to the quota check: two concurrent activations for the same
// subscription can never both observe count = limit-1 and both succeed.
package ledger

import (
	"context"
	"errors"
	"time"

	devicedomain "flowlytix/licensing/internal/device/domain"
)

var (
	// ErrQuotaExceeded is returned when the subscription's active device
	// count has reached its device limit.
	ErrQuotaExceeded = errors.New("device quota exceeded")
	// ErrDeviceNotFound is returned when no device with the given id exists.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrDeviceRevoked is returned when the operation targets a device that
	// an administrator hard-revoked.
	ErrDeviceRevoked = errors.New("device revoked")
	// ErrDeviceBound is returned when the device is still active under a
	// different subscription; it must be deactivated there first.
	ErrDeviceBound = errors.New("device active under another subscription")
	// ErrStorageUnavailable wraps transient storage faults. It is the only
	// ledger error eligible for retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Quota identifies the subscription and its device limit for an activation.
// The limit is the caller's authoritative read for this request; when it has
// been lowered below current usage the ledger grandfathers existing active
// devices and only refuses new activations.
type Quota struct {
	SubscriptionID string
	DeviceLimit    int
}

// Ledger is the single source of truth for slot occupancy. Operations on the
// same subscription are serialized with respect to quota accounting;
// operations on different subscriptions do not contend.
type Ledger interface {
	// Activate binds the device to the subscription, consuming a slot.
	// Idempotent: an already-active device on the same subscription is
	// returned unchanged. Fails with ErrQuotaExceeded, ErrDeviceRevoked, or
	// ErrDeviceBound.
	Activate(ctx context.Context, q Quota, deviceID, name string, now time.Time) (*devicedomain.Device, error)

	// Heartbeat updates last_seen_at. Never changes quota.
	Heartbeat(ctx context.Context, deviceID string, now time.Time) error

	// Deactivate releases the device's slot. Idempotent and always allowed
	// regardless of subscription state; a deactivated or revoked device is
	// left untouched. The token version is not bumped.
	Deactivate(ctx context.Context, subscriptionID, deviceID string, now time.Time) error

	// Revoke hard-revokes the device and bumps its token version so
	// outstanding tokens fail validation immediately. Returns the new
	// version. Idempotent on an already-revoked device.
	Revoke(ctx context.Context, deviceID string, now time.Time) (int64, error)

	// BumpTokenVersion increments the device's token version (refresh path)
	// and returns the new version. Fails unless the device is active.
	BumpTokenVersion(ctx context.Context, deviceID string, now time.Time) (int64, error)

	// GetDevice returns the device by its stable device id.
	GetDevice(ctx context.Context, deviceID string) (*devicedomain.Device, error)

	// ActiveCount returns the number of active devices on the subscription.
	ActiveCount(ctx context.Context, subscriptionID string) (int, error)

	// ListDevices returns all devices recorded for the subscription.
	ListDevices(ctx context.Context, subscriptionID string) ([]*devicedomain.Device, error)
}
