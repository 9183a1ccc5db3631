package repository

import (
	"context"

	"flowlytix/licensing/internal/customer/domain"
)

// Repository defines persistence for customers.
type Repository interface {
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, c *domain.Customer) error
	UpdateCustomer(ctx context.Context, c *domain.Customer) error
	ListCustomers(ctx context.Context, limit, offset int) ([]*domain.Customer, error)
}
