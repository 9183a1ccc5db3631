package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	devicedomain "flowlytix/licensing/internal/device/domain"
)

// Postgres implements Ledger on a relational store. Each mutating operation
// runs in a transaction that takes a row lock on the subscription
// (SELECT ... FOR UPDATE), so the quota check and the write are one atomic
// unit and quota accounting for one subscription is serialized without a
// process-wide lock. A cancelled context rolls the transaction back; no
// partial state is left behind.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a Postgres-backed ledger using the given db.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

var _ Ledger = (*Postgres)(nil)

// storageErr wraps transient driver failures so callers can match
// ErrStorageUnavailable and retry.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}

const selectDeviceSQL = `
SELECT id, device_id, subscription_id, name, status, token_version,
       activated_at, last_seen_at, created_at, updated_at
FROM devices WHERE device_id = $1`

func scanDevice(row *sql.Row) (*devicedomain.Device, error) {
	var d devicedomain.Device
	var lastSeen sql.NullTime
	err := row.Scan(&d.ID, &d.DeviceID, &d.SubscriptionID, &d.Name, &d.Status,
		&d.TokenVersion, &d.ActivatedAt, &lastSeen, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		d.LastSeenAt = &lastSeen.Time
	}
	return &d, nil
}

// Activate implements Ledger.
func (p *Postgres) Activate(ctx context.Context, q Quota, deviceID, name string, now time.Time) (*devicedomain.Device, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin", err)
	}
	defer tx.Rollback()

	// Serialize quota accounting for this subscription.
	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM subscriptions WHERE id = $1 FOR UPDATE`, q.SubscriptionID).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("subscription %s not found", q.SubscriptionID)
		}
		return nil, storageErr("lock subscription", err)
	}

	existing, err := scanDevice(tx.QueryRowContext(ctx, selectDeviceSQL, deviceID))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storageErr("select device", err)
	}

	now = now.UTC()
	if existing != nil {
		switch {
		case existing.Status == devicedomain.StatusRevoked:
			return nil, ErrDeviceRevoked
		case existing.Status == devicedomain.StatusActive && existing.SubscriptionID == q.SubscriptionID:
			return existing, nil
		case existing.Status == devicedomain.StatusActive:
			return nil, ErrDeviceBound
		}
	}

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM devices WHERE subscription_id = $1 AND status = 'active'`,
		q.SubscriptionID).Scan(&count)
	if err != nil {
		return nil, storageErr("count active", err)
	}
	if count >= q.DeviceLimit {
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
		_, err = tx.ExecContext(ctx,
			`UPDATE devices SET subscription_id = $1, name = $2, status = 'active',
			        activated_at = $3, last_seen_at = $3, updated_at = $3
			 WHERE device_id = $4`,
			d.SubscriptionID, d.Name, now, deviceID)
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
		_, err = tx.ExecContext(ctx,
			`INSERT INTO devices (id, device_id, subscription_id, name, status, token_version,
			                      activated_at, last_seen_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, 'active', 0, $5, $5, $5, $5)`,
			d.ID, d.DeviceID, d.SubscriptionID, d.Name, now)
	}
	if err != nil {
		return nil, storageErr("write device", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit", err)
	}
	return d, nil
}

// Heartbeat implements Ledger. The status predicate lives in the UPDATE
// itself so a revoke committing concurrently can never get its record
// rewritten; zero rows is then disambiguated into missing vs revoked.
func (p *Postgres) Heartbeat(ctx context.Context, deviceID string, now time.Time) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE devices SET last_seen_at = $1, updated_at = $1
		 WHERE device_id = $2 AND status <> 'revoked'`,
		now.UTC(), deviceID)
	if err != nil {
		return storageErr("update last_seen", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update last_seen", err)
	}
	if n == 0 {
		var status devicedomain.Status
		serr := p.db.QueryRowContext(ctx, `SELECT status FROM devices WHERE device_id = $1`, deviceID).Scan(&status)
		if errors.Is(serr, sql.ErrNoRows) {
			return ErrDeviceNotFound
		}
		if serr != nil {
			return storageErr("select device", serr)
		}
		return ErrDeviceRevoked
	}
	return nil
}

// Deactivate implements Ledger.
func (p *Postgres) Deactivate(ctx context.Context, subscriptionID, deviceID string, now time.Time) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer tx.Rollback()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM subscriptions WHERE id = $1 FOR UPDATE`, subscriptionID).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil // unknown subscription: nothing to release
		}
		return storageErr("lock subscription", err)
	}

	// Only an active binding to this subscription releases a slot; anything
	// else is an idempotent no-op.
	_, err = tx.ExecContext(ctx,
		`UPDATE devices SET status = 'deactivated', updated_at = $1
		 WHERE device_id = $2 AND subscription_id = $3 AND status = 'active'`,
		now.UTC(), deviceID, subscriptionID)
	if err != nil {
		return storageErr("deactivate", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// Revoke implements Ledger.
func (p *Postgres) Revoke(ctx context.Context, deviceID string, now time.Time) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("begin", err)
	}
	defer tx.Rollback()

	var status devicedomain.Status
	var version int64
	err = tx.QueryRowContext(ctx,
		`SELECT status, token_version FROM devices WHERE device_id = $1 FOR UPDATE`,
		deviceID).Scan(&status, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrDeviceNotFound
	}
	if err != nil {
		return 0, storageErr("select device", err)
	}
	if status == devicedomain.StatusRevoked {
		return version, tx.Commit()
	}
	err = tx.QueryRowContext(ctx,
		`UPDATE devices SET status = 'revoked', token_version = token_version + 1, updated_at = $1
		 WHERE device_id = $2 RETURNING token_version`,
		now.UTC(), deviceID).Scan(&version)
	if err != nil {
		return 0, storageErr("revoke", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("commit", err)
	}
	return version, nil
}

// BumpTokenVersion implements Ledger.
func (p *Postgres) BumpTokenVersion(ctx context.Context, deviceID string, now time.Time) (int64, error) {
	var version int64
	err := p.db.QueryRowContext(ctx,
		`UPDATE devices SET token_version = token_version + 1, updated_at = $1
		 WHERE device_id = $2 AND status = 'active' RETURNING token_version`,
		now.UTC(), deviceID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish missing from revoked/deactivated for the caller.
		var status devicedomain.Status
		serr := p.db.QueryRowContext(ctx, `SELECT status FROM devices WHERE device_id = $1`, deviceID).Scan(&status)
		if errors.Is(serr, sql.ErrNoRows) {
			return 0, ErrDeviceNotFound
		}
		if serr != nil {
			return 0, storageErr("select device", serr)
		}
		if status == devicedomain.StatusRevoked {
			return 0, ErrDeviceRevoked
		}
		return 0, ErrDeviceNotFound
	}
	if err != nil {
		return 0, storageErr("bump token_version", err)
	}
	return version, nil
}

// GetDevice implements Ledger.
func (p *Postgres) GetDevice(ctx context.Context, deviceID string) (*devicedomain.Device, error) {
	d, err := scanDevice(p.db.QueryRowContext(ctx, selectDeviceSQL, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, storageErr("select device", err)
	}
	return d, nil
}

// ActiveCount implements Ledger.
func (p *Postgres) ActiveCount(ctx context.Context, subscriptionID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM devices WHERE subscription_id = $1 AND status = 'active'`,
		subscriptionID).Scan(&n)
	if err != nil {
		return 0, storageErr("count active", err)
	}
	return n, nil
}

// ListDevices implements Ledger.
func (p *Postgres) ListDevices(ctx context.Context, subscriptionID string) ([]*devicedomain.Device, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, device_id, subscription_id, name, status, token_version,
		        activated_at, last_seen_at, created_at, updated_at
		 FROM devices WHERE subscription_id = $1 ORDER BY activated_at`,
		subscriptionID)
	if err != nil {
		return nil, storageErr("list devices", err)
	}
	defer rows.Close()

	var out []*devicedomain.Device
	for rows.Next() {
		var d devicedomain.Device
		var lastSeen sql.NullTime
		if err := rows.Scan(&d.ID, &d.DeviceID, &d.SubscriptionID, &d.Name, &d.Status,
			&d.TokenVersion, &d.ActivatedAt, &lastSeen, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, storageErr("scan device", err)
		}
		if lastSeen.Valid {
			d.LastSeenAt = &lastSeen.Time
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list devices", err)
	}
	return out, nil
}
