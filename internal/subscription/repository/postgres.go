package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"flowlytix/licensing/internal/subscription/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a subscription repository that uses the given
// db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const subscriptionColumns = `id, customer_id, license_key_hash, plan, status,
device_limit, starts_at, expires_at, created_at, updated_at`

// GetByID returns the subscription for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	return scanSubscription(row)
}

// GetByLicenseKeyHash returns the subscription bound to the hashed license
// key, or nil if not found. Raw keys are never stored or queried.
func (r *PostgresRepository) GetByLicenseKeyHash(ctx context.Context, hash string) (*domain.Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE license_key_hash = $1`, hash)
	return scanSubscription(row)
}

// Create persists the subscription. The subscription must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Subscription) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, customer_id, license_key_hash, plan, status,
		                            device_limit, starts_at, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.CustomerID, s.LicenseKeyHash, s.Plan, s.Status,
		s.DeviceLimit, s.StartsAt, nullTime(s.ExpiresAt), s.CreatedAt, s.UpdatedAt)
	return err
}

// Update rewrites the mutable subscription fields.
func (r *PostgresRepository) Update(ctx context.Context, s *domain.Subscription) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions SET plan = $1, status = $2, device_limit = $3,
		        expires_at = $4, updated_at = $5
		 WHERE id = $6`,
		s.Plan, s.Status, s.DeviceLimit, nullTime(s.ExpiresAt), s.UpdatedAt, s.ID)
	return err
}

// ListByCustomer returns the customer's subscriptions, newest first.
func (r *PostgresRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE customer_id = $1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, err
	}
	return collectSubscriptions(rows)
}

// ListExpiringBefore returns active subscriptions expiring in (now, cutoff].
func (r *PostgresRepository) ListExpiringBefore(ctx context.Context, now, cutoff time.Time) ([]*domain.Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE status = 'active' AND expires_at IS NOT NULL
		   AND expires_at > $1 AND expires_at <= $2
		 ORDER BY expires_at`, now, cutoff)
	if err != nil {
		return nil, err
	}
	return collectSubscriptions(rows)
}

// CountByStatus returns stored status counts.
func (r *PostgresRepository) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM subscriptions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.Status]int)
	for rows.Next() {
		var status domain.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func scanSubscription(row *sql.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	var expires sql.NullTime
	err := row.Scan(&s.ID, &s.CustomerID, &s.LicenseKeyHash, &s.Plan, &s.Status,
		&s.DeviceLimit, &s.StartsAt, &expires, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if expires.Valid {
		s.ExpiresAt = &expires.Time
	}
	return &s, nil
}

func collectSubscriptions(rows *sql.Rows) ([]*domain.Subscription, error) {
	defer rows.Close()
	var out []*domain.Subscription
	for rows.Next() {
		var s domain.Subscription
		var expires sql.NullTime
		if err := rows.Scan(&s.ID, &s.CustomerID, &s.LicenseKeyHash, &s.Plan, &s.Status,
			&s.DeviceLimit, &s.StartsAt, &expires, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if expires.Valid {
			s.ExpiresAt = &expires.Time
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
