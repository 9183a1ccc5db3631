package repository

import (
	"context"
	"time"

	"flowlytix/licensing/internal/subscription/domain"
)

// Repository defines persistence for subscriptions.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
	GetByLicenseKeyHash(ctx context.Context, hash string) (*domain.Subscription, error)
	Create(ctx context.Context, s *domain.Subscription) error
	Update(ctx context.Context, s *domain.Subscription) error
	ListByCustomer(ctx context.Context, customerID string) ([]*domain.Subscription, error)
	// ListExpiringBefore returns non-terminal subscriptions whose expiry falls
	// in (now, cutoff].
	ListExpiringBefore(ctx context.Context, now, cutoff time.Time) ([]*domain.Subscription, error)
	// CountByStatus returns stored status counts; expired-at-read
	// classification is the caller's concern.
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
}
