package customer

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepository struct {
	mu        sync.RWMutex
	customers map[string]*Customer
}

func NewMemoryRepository() Repository {
	return &memoryRepository{customers: make(map[string]*Customer)}
}

func (r *memoryRepository) GetByEmail(_ context.Context, email string) (*Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.customers {
		if c.Email == email {
			return c.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (*Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (r *memoryRepository) Create(_ context.Context, c *Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.customers {
		if existing.Email == c.Email {
			return ErrEmailAlreadyUsed
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	r.customers[c.ID] = c.Clone()
	return nil
}

func (r *memoryRepository) List(_ context.Context, filter CustomerFilter) ([]*Customer, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Customer
	for _, c := range r.customers {
		if filter.Email != "" && !strings.Contains(strings.ToLower(c.Email), strings.ToLower(filter.Email)) {
			continue
		}
		if filter.DisplayName != "" && (c.DisplayName == nil ||
			!strings.Contains(strings.ToLower(*c.DisplayName), strings.ToLower(filter.DisplayName))) {
			continue
		}
		matched = append(matched, c.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		start := (page - 1) * filter.PageSize
		if start >= total {
			return nil, total, nil
		}
		end := start + filter.PageSize
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (r *memoryRepository) UpdateMemberships(_ context.Context, id string, memberships []Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.customers[id]
	if !ok {
		return ErrNotFound
	}
	c.Memberships = append([]Membership(nil), memberships...)
	return nil
}

func (r *memoryRepository) AddPoints(_ context.Context, id string, points int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.customers[id]
	if !ok {
		return ErrNotFound
	}
	c.LoyaltyPoints += points
	return nil
}
