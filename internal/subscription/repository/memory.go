package repository

import (
	"context"
	"sync"
	"time"

	"flowlytix/licensing/internal/subscription/domain"
)

// MemoryRepository is an in-memory subscription store for development mode,
// when the server runs without a database. Not for production: contents are
// lost on restart.
type MemoryRepository struct {
	mu   sync.RWMutex
	subs map[string]*domain.Subscription
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{subs: make(map[string]*domain.Subscription)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.subs[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (r *MemoryRepository) GetByLicenseKeyHash(ctx context.Context, hash string) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.subs {
		if s.LicenseKeyHash == hash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(ctx context.Context, s *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.subs[s.ID] = &cp
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, s *domain.Subscription) error {
	return r.Create(ctx, s)
}

func (r *MemoryRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Subscription
	for _, s := range r.subs {
		if s.CustomerID == customerID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListExpiringBefore(ctx context.Context, now, cutoff time.Time) ([]*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Subscription
	for _, s := range r.subs {
		if s.Status != domain.StatusActive || s.ExpiresAt == nil {
			continue
		}
		if s.ExpiresAt.After(now) && !s.ExpiresAt.After(cutoff) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryRepository) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.Status]int)
	for _, s := range r.subs {
		out[s.Status]++
	}
	return out, nil
}
