package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	devicedomain "flowlytix/licensing/internal/device/domain"
)

// Memory is an in-process Ledger. mu guards the devices map and every field
// of the stored device records; no device field is read or written outside
// it. The per-subscription mutexes serialize quota accounting (the
// count-then-write in Activate against the release in Deactivate) so
// unrelated subscriptions never wait on each other's activations. Lock order
// is always subscription lock first, then mu. Used by unit tests and
// single-node deployments.
type Memory struct {
	mu       sync.Mutex
	devices  map[string]*devicedomain.Device
	subLocks map[string]*sync.Mutex
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		devices:  make(map[string]*devicedomain.Device),
		subLocks: make(map[string]*sync.Mutex),
	}
}

var _ Ledger = (*Memory)(nil)

// subLock returns the mutex serializing quota accounting for one subscription.
func (m *Memory) subLock(subscriptionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.subLocks[subscriptionID]
	if !ok {
		l = &sync.Mutex{}
		m.subLocks[subscriptionID] = l
	}
	return l
}

// activeCountLocked counts active devices. Caller holds mu.
func (m *Memory) activeCountLocked(subscriptionID string) int {
	n := 0
	for _, d := range m.devices {
		if d.SubscriptionID == subscriptionID && d.OccupiesSlot() {
			n++
		}
	}
	return n
}

// Activate implements Ledger. The subscription lock is held across the whole
// read-count-then-write so the check and the increment are one atomic unit;
// mu is held for the same span so the status checks and the write cannot
// interleave with Revoke or Heartbeat on the same device.
func (m *Memory) Activate(ctx context.Context, q Quota, deviceID, name string, now time.Time) (*devicedomain.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lock := m.subLock(q.SubscriptionID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	now = now.UTC()
	existing := m.devices[deviceID]
	if existing != nil {
		switch {
		case existing.Status == devicedomain.StatusRevoked:
			return nil, ErrDeviceRevoked
		case existing.Status == devicedomain.StatusActive && existing.SubscriptionID == q.SubscriptionID:
			// Retry-safe: no double count, record returned unchanged.
			return copyDevice(existing), nil
		case existing.Status == devicedomain.StatusActive:
			return nil, ErrDeviceBound
		}
	}

	if m.activeCountLocked(q.SubscriptionID) >= q.DeviceLimit {
		return nil, ErrQuotaExceeded
	}

	var d *devicedomain.Device
	if existing != nil {
		d = existing
		d.SubscriptionID = q.SubscriptionID
		d.Status = devicedomain.StatusActive
		d.ActivatedAt = now
		d.LastSeenAt = &now
		d.UpdatedAt = now
		if name != "" {
			d.Name = name
		}
	} else {
		d = &devicedomain.Device{
			ID:             uuid.New().String(),
			DeviceID:       deviceID,
			SubscriptionID: q.SubscriptionID,
			Name:           name,
			Status:         devicedomain.StatusActive,
			TokenVersion:   0,
			ActivatedAt:    now,
			LastSeenAt:     &now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		m.devices[deviceID] = d
	}
	return copyDevice(d), nil
}

// Heartbeat implements Ledger.
func (m *Memory) Heartbeat(ctx context.Context, deviceID string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return ErrDeviceNotFound
	}
	if d.Status == devicedomain.StatusRevoked {
		return ErrDeviceRevoked
	}
	now = now.UTC()
	d.LastSeenAt = &now
	d.UpdatedAt = now
	return nil
}

// Deactivate implements Ledger. The status check and the write happen under
// one hold of mu, so a concurrent Revoke can never be overwritten: whichever
// commits first wins and revocation stays terminal.
func (m *Memory) Deactivate(ctx context.Context, subscriptionID, deviceID string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := m.subLock(subscriptionID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[deviceID]
	if !ok || d.SubscriptionID != subscriptionID || d.Status != devicedomain.StatusActive {
		return nil // idempotent: nothing to release
	}
	d.Status = devicedomain.StatusDeactivated
	d.UpdatedAt = now.UTC()
	return nil
}

// Revoke implements Ledger.
func (m *Memory) Revoke(ctx context.Context, deviceID string, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return 0, ErrDeviceNotFound
	}
	if d.Status == devicedomain.StatusRevoked {
		return d.TokenVersion, nil
	}
	now = now.UTC()
	d.Status = devicedomain.StatusRevoked
	d.TokenVersion++
	d.UpdatedAt = now
	return d.TokenVersion, nil
}

// BumpTokenVersion implements Ledger.
func (m *Memory) BumpTokenVersion(ctx context.Context, deviceID string, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return 0, ErrDeviceNotFound
	}
	if d.Status == devicedomain.StatusRevoked {
		return 0, ErrDeviceRevoked
	}
	if d.Status != devicedomain.StatusActive {
		return 0, ErrDeviceNotFound
	}
	now = now.UTC()
	d.TokenVersion++
	d.UpdatedAt = now
	return d.TokenVersion, nil
}

// GetDevice implements Ledger.
func (m *Memory) GetDevice(ctx context.Context, deviceID string) (*devicedomain.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return copyDevice(d), nil
}

// ActiveCount implements Ledger.
func (m *Memory) ActiveCount(ctx context.Context, subscriptionID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeCountLocked(subscriptionID), nil
}

// ListDevices implements Ledger.
func (m *Memory) ListDevices(ctx context.Context, subscriptionID string) ([]*devicedomain.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*devicedomain.Device
	for _, d := range m.devices {
		if d.SubscriptionID == subscriptionID {
			out = append(out, copyDevice(d))
		}
	}
	return out, nil
}

// copyDevice snapshots a stored record. Caller holds mu.
func copyDevice(d *devicedomain.Device) *devicedomain.Device {
	c := *d
	if d.LastSeenAt != nil {
		t := *d.LastSeenAt
		c.LastSeenAt = &t
	}
	return &c
}
