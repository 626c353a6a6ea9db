package invoice

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepository struct {
	mu        sync.RWMutex
	invoices  map[string]*Invoice
	byBooking map[string]string
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		invoices:  make(map[string]*Invoice),
		byBooking: make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, inv *Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byBooking[inv.BookingID]; ok {
		return ErrAlreadyFinalized
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	inv.UpdatedAt = now

	r.invoices[inv.ID] = inv.Clone()
	r.byBooking[inv.BookingID] = inv.ID
	return nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (*Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inv, ok := r.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return inv.Clone(), nil
}

func (r *memoryRepository) GetByBooking(_ context.Context, bookingID string) (*Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byBooking[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	return r.invoices[id].Clone(), nil
}

func (r *memoryRepository) List(_ context.Context, filter Filter) ([]*Invoice, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Invoice
	for _, inv := range r.invoices {
		if filter.BookingID != "" && inv.BookingID != filter.BookingID {
			continue
		}
		if filter.CustomerID != "" && inv.CustomerID != filter.CustomerID {
			continue
		}
		if filter.BranchID != "" && inv.BranchID != filter.BranchID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, inv.Status) {
			continue
		}
		if filter.ExpiresBefore != nil && (inv.HoldExpiresAt == nil || inv.HoldExpiresAt.After(*filter.ExpiresBefore)) {
			continue
		}
		matched = append(matched, inv.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
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

func hasStatus(statuses []Status, s Status) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func (r *memoryRepository) Update(_ context.Context, inv *Invoice, from Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.invoices[inv.ID]
	if !ok || stored.Status != from {
		return ErrStaleState
	}
	inv.UpdatedAt = time.Now().UTC()
	r.invoices[inv.ID] = inv.Clone()
	return nil
}
