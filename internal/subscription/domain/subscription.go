package domain

import (
	"errors"
	"time"
)

// Subscription is a customer's entitlement to run the product on a bounded
// set of devices. Plan, device limit, and expiry are owned by billing; the
// licensing core enforces them but never decides them.
type Subscription struct {
	ID             string
	CustomerID     string
	LicenseKeyHash string // SHA-256 of the license key; the raw key is never stored
	Plan           Plan
	Status         Status
	DeviceLimit    int
	StartsAt       time.Time
	ExpiresAt      *time.Time // nil means no expiry
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
	StatusPending   Status = "pending"
)

type Plan string

const (
	PlanBasic        Plan = "basic"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
	PlanTrial        Plan = "trial"
)

// ValidPlan reports whether p is a known plan tier.
func ValidPlan(p Plan) bool {
	switch p {
	case PlanBasic, PlanProfessional, PlanEnterprise, PlanTrial:
		return true
	}
	return false
}

// Validate validates the subscription for persistence. Returns an error describing the first validation failure.
func (s *Subscription) Validate() error {
	if s.CustomerID == "" {
		return errors.New("customer_id is required")
	}
	if s.LicenseKeyHash == "" {
		return errors.New("license_key_hash is required")
	}
	if !ValidPlan(s.Plan) {
		return errors.New("plan must be one of basic, professional, enterprise, trial")
	}
	if s.DeviceLimit <= 0 {
		return errors.New("device_limit must be positive")
	}
	if s.Status == "" {
		s.Status = StatusPending
	}
	return nil
}

// Suspend marks the subscription suspended. Idempotent.
func (s *Subscription) Suspend(now time.Time) {
	s.Status = StatusSuspended
	s.UpdatedAt = now
}

// Cancel marks the subscription cancelled. Idempotent.
func (s *Subscription) Cancel(now time.Time) {
	s.Status = StatusCancelled
	s.UpdatedAt = now
}

// Resume sets a suspended or cancelled subscription back to active.
func (s *Subscription) Resume(now time.Time) {
	s.Status = StatusActive
	s.UpdatedAt = now
}

// Extend pushes expiry out by d. A subscription without expiry gets now+d.
func (s *Subscription) Extend(d time.Duration, now time.Time) {
	if s.ExpiresAt != nil {
		t := s.ExpiresAt.Add(d)
		s.ExpiresAt = &t
	} else {
		t := now.Add(d)
		s.ExpiresAt = &t
	}
	s.UpdatedAt = now
}
