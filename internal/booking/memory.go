package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepository struct {
	mu       sync.RWMutex
	bookings map[string]*CourtBooking
	services map[string]*ServiceBooking // keyed by court booking id
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		bookings: make(map[string]*CourtBooking),
		services: make(map[string]*ServiceBooking),
	}
}

func (r *memoryRepository) CreateCourtBooking(_ context.Context, b *CourtBooking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	r.bookings[b.ID] = b.Clone()
	return nil
}

func (r *memoryRepository) GetCourtBooking(_ context.Context, id string) (*CourtBooking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

func (r *memoryRepository) ListCourtBookings(_ context.Context, filter Filter) ([]*CourtBooking, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*CourtBooking
	for _, b := range r.bookings {
		if matches(b, filter) {
			matched = append(matched, b.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		si, sj := matched[i].StartsAt(), matched[j].StartsAt()
		if !si.Equal(sj) {
			return si.Before(sj)
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

func matches(b *CourtBooking, f Filter) bool {
	if f.CustomerID != "" && b.CustomerID != f.CustomerID {
		return false
	}
	if f.CourtID != "" && b.CourtID != f.CourtID {
		return false
	}
	if f.BranchID != "" && b.BranchID != f.BranchID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if b.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && !b.EndsAt().After(*f.From) {
		return false
	}
	if f.To != nil && !b.StartsAt().Before(*f.To) {
		return false
	}
	if f.CreatedBefore != nil && !b.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

func (r *memoryRepository) UpdateCourtBooking(_ context.Context, b *CourtBooking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[b.ID]; !ok {
		return ErrNotFound
	}
	b.UpdatedAt = time.Now().UTC()
	r.bookings[b.ID] = b.Clone()
	return nil
}

func (r *memoryRepository) SaveServiceBooking(_ context.Context, s *ServiceBooking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[s.CourtBookingID]; !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	if existing, ok := r.services[s.CourtBookingID]; ok {
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
	} else {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	r.services[s.CourtBookingID] = s.Clone()
	return nil
}

func (r *memoryRepository) GetServiceBooking(_ context.Context, courtBookingID string) (*ServiceBooking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.services[courtBookingID]
	if !ok {
		return nil, ErrServiceBookingNotFound
	}
	return s.Clone(), nil
}
