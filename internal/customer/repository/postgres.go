package repository

import (
	"context"
	"database/sql"
	"errors"

	"flowlytix/licensing/internal/customer/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a customer repository that uses the given db
// for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const customerColumns = `id, email, name, company, created_at, updated_at`

// GetCustomerByID returns the customer for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	return scanCustomer(row)
}

// GetCustomerByEmail returns the customer for email, or nil if not found.
func (r *PostgresRepository) GetCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE email = $1`, email)
	return scanCustomer(row)
}

// CreateCustomer persists the customer to the database. The customer must have
// ID set.
func (r *PostgresRepository) CreateCustomer(ctx context.Context, c *domain.Customer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO customers (id, email, name, company, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Email, c.Name, c.Company, c.CreatedAt, c.UpdatedAt)
	return err
}

// UpdateCustomer updates the existing customer record in the database. Returns
// an error if the update fails.
func (r *PostgresRepository) UpdateCustomer(ctx context.Context, c *domain.Customer) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE customers SET email = $1, name = $2, company = $3, updated_at = $4
		 WHERE id = $5`,
		c.Email, c.Name, c.Company, c.UpdatedAt, c.ID)
	return err
}

// ListCustomers returns customers ordered by creation time, newest first.
func (r *PostgresRepository) ListCustomers(ctx context.Context, limit, offset int) ([]*domain.Customer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+customerColumns+` FROM customers
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Customer
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Email, &c.Name, &c.Company, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func scanCustomer(row *sql.Row) (*domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Email, &c.Name, &c.Company, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
