package repository

import (
	"context"
	"sort"
	"sync"

	"flowlytix/licensing/internal/customer/domain"
)

// MemoryRepository is an in-memory customer store for development mode. Not
// for production: contents are lost on restart.
type MemoryRepository struct {
	mu        sync.RWMutex
	customers map[string]*domain.Customer
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{customers: make(map[string]*domain.Customer)}
}

func (r *MemoryRepository) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.customers[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r *MemoryRepository) GetCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.customers {
		if c.Email == email {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) CreateCustomer(ctx context.Context, c *domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.customers[c.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdateCustomer(ctx context.Context, c *domain.Customer) error {
	return r.CreateCustomer(ctx, c)
}

func (r *MemoryRepository) ListCustomers(ctx context.Context, limit, offset int) ([]*domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*domain.Customer, 0, len(r.customers))
	for _, c := range r.customers {
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
