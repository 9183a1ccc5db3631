package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"flowlytix/licensing/internal/security"
	"flowlytix/licensing/internal/subscription/domain"
)

// Sentinel errors for the subscription service; the handler maps them to
// HTTP statuses.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrInvalidPlan          = errors.New("unknown plan tier")
	ErrNotSuspended         = errors.New("only a suspended subscription can be resumed")
	ErrCancelled            = errors.New("subscription is cancelled")
)

// SubscriptionRepo is the minimal subscription repository needed by the service.
type SubscriptionRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
	GetByLicenseKeyHash(ctx context.Context, hash string) (*domain.Subscription, error)
	Create(ctx context.Context, s *domain.Subscription) error
	Update(ctx context.Context, s *domain.Subscription) error
	ListByCustomer(ctx context.Context, customerID string) ([]*domain.Subscription, error)
	ListExpiringBefore(ctx context.Context, now, cutoff time.Time) ([]*domain.Subscription, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
}

// CustomerChecker is the minimal customer lookup needed by the service.
type CustomerChecker interface {
	Exists(ctx context.Context, customerID string) (bool, error)
}

// DeviceCounter reports active device slots for utilization figures.
type DeviceCounter interface {
	ActiveCount(ctx context.Context, subscriptionID string) (int, error)
}

// defaultDeviceLimits is applied when a create request does not set a limit.
var defaultDeviceLimits = map[domain.Plan]int{
	domain.PlanTrial:        1,
	domain.PlanBasic:        2,
	domain.PlanProfessional: 5,
	domain.PlanEnterprise:   50,
}

// Service owns the subscription lifecycle: creation with a fresh license key,
// suspend/cancel/resume/extend transitions, and reporting.
type Service struct {
	repo      SubscriptionRepo
	customers CustomerChecker
	devices   DeviceCounter
	now       func() time.Time
}

// NewService returns a Service with the given dependencies.
func NewService(repo SubscriptionRepo, customers CustomerChecker, devices DeviceCounter) *Service {
	return &Service{
		repo:      repo,
		customers: customers,
		devices:   devices,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateResult carries the new subscription and the raw license key. The raw
// key is shown exactly once; only its hash is persisted.
type CreateResult struct {
	Subscription *domain.Subscription
	LicenseKey   string
}

// Create provisions a subscription for the customer. A zero deviceLimit picks
// the plan default; a nil duration means no expiry.
func (s *Service) Create(ctx context.Context, customerID string, plan domain.Plan, deviceLimit int, duration *time.Duration) (*CreateResult, error) {
	if !domain.ValidPlan(plan) {
		return nil, ErrInvalidPlan
	}
	ok, err := s.customers.Exists(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCustomerNotFound
	}

	key, err := security.GenerateLicenseKey()
	if err != nil {
		return nil, err
	}
	if deviceLimit <= 0 {
		deviceLimit = defaultDeviceLimits[plan]
	}
	now := s.now()
	sub := &domain.Subscription{
		ID:             uuid.New().String(),
		CustomerID:     customerID,
		LicenseKeyHash: security.HashLicenseKey(key),
		Plan:           plan,
		Status:         domain.StatusActive,
		DeviceLimit:    deviceLimit,
		StartsAt:       now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if duration != nil {
		exp := now.Add(*duration)
		sub.ExpiresAt = &exp
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}
	return &CreateResult{Subscription: sub, LicenseKey: key}, nil
}

// Get returns the subscription with its classified state for now.
func (s *Service) Get(ctx context.Context, id string) (*domain.Subscription, domain.State, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if sub == nil {
		return nil, "", ErrSubscriptionNotFound
	}
	return sub, domain.Classify(sub, s.now()), nil
}

// GetByLicenseKey resolves a raw license key to its subscription.
func (s *Service) GetByLicenseKey(ctx context.Context, rawKey string) (*domain.Subscription, domain.State, error) {
	if err := security.ValidateLicenseKeyFormat(rawKey); err != nil {
		return nil, "", ErrSubscriptionNotFound
	}
	sub, err := s.repo.GetByLicenseKeyHash(ctx, security.HashLicenseKey(rawKey))
	if err != nil {
		return nil, "", err
	}
	if sub == nil {
		return nil, "", ErrSubscriptionNotFound
	}
	return sub, domain.Classify(sub, s.now()), nil
}

// Suspend suspends the subscription. Idempotent on an already-suspended one.
func (s *Service) Suspend(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.StatusCancelled {
		return nil, ErrCancelled
	}
	sub.Suspend(s.now())
	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Cancel cancels the subscription. Terminal; idempotent.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	sub.Cancel(s.now())
	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Resume reactivates a suspended subscription. Cancellation is terminal.
func (s *Service) Resume(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.StatusCancelled {
		return nil, ErrCancelled
	}
	if sub.Status != domain.StatusSuspended {
		return nil, ErrNotSuspended
	}
	sub.Resume(s.now())
	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Extend pushes expiry out by d. An expired-but-stored-active subscription
// becomes active again once its new expiry is in the future.
func (s *Service) Extend(ctx context.Context, id string, d time.Duration) (*domain.Subscription, error) {
	sub, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.StatusCancelled {
		return nil, ErrCancelled
	}
	now := s.now()
	sub.Extend(d, now)
	if sub.Status == domain.StatusExpired && sub.ExpiresAt.After(now) {
		sub.Status = domain.StatusActive
	}
	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// GetExpiringSoon returns active subscriptions whose expiry falls within the
// window from now.
func (s *Service) GetExpiringSoon(ctx context.Context, within time.Duration) ([]*domain.Subscription, error) {
	now := s.now()
	return s.repo.ListExpiringBefore(ctx, now, now.Add(within))
}

// Usage reports slot utilization for one subscription.
type Usage struct {
	SubscriptionID string
	ActiveDevices  int
	DeviceLimit    int
}

// GetUsage returns the subscription's current device slot usage.
func (s *Service) GetUsage(ctx context.Context, id string) (*Usage, error) {
	sub, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := s.devices.ActiveCount(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	return &Usage{SubscriptionID: sub.ID, ActiveDevices: n, DeviceLimit: sub.DeviceLimit}, nil
}

// Report aggregates subscription counts for the admin analytics endpoint.
type Report struct {
	Total        int
	ByStatus     map[domain.Status]int
	ExpiringSoon int // active subscriptions expiring within 30 days
}

// Analytics returns fleet-level subscription counts.
func (s *Service) Analytics(ctx context.Context) (*Report, error) {
	byStatus, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range byStatus {
		total += n
	}
	expiring, err := s.GetExpiringSoon(ctx, 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	return &Report{Total: total, ByStatus: byStatus, ExpiringSoon: len(expiring)}, nil
}

// ListByCustomer returns the customer's subscriptions.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Subscription, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}

func (s *Service) mustGet(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}
