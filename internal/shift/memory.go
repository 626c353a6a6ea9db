package shift

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepository struct {
	mu     sync.RWMutex
	shifts map[string]*ShiftAssignment
}

func NewMemoryRepository() Repository {
	return &memoryRepository{shifts: make(map[string]*ShiftAssignment)}
}

func (r *memoryRepository) Create(_ context.Context, a *ShiftAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	cp := *a
	r.shifts[a.ID] = &cp
	return nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (*ShiftAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.shifts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memoryRepository) List(_ context.Context, filter Filter) ([]*ShiftAssignment, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*ShiftAssignment
	for _, a := range r.shifts {
		if filter.StaffID != "" && a.StaffID != filter.StaffID {
			continue
		}
		if filter.BranchID != "" && a.BranchID != filter.BranchID {
			continue
		}
		if filter.From != nil && !a.End.After(*filter.From) {
			continue
		}
		if filter.To != nil && !a.Start.Before(*filter.To) {
			continue
		}
		cp := *a
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Start.Equal(matched[j].Start) {
			return matched[i].Start.Before(matched[j].Start)
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

func (r *memoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.shifts[id]; !ok {
		return ErrNotFound
	}
	delete(r.shifts, id)
	return nil
}
