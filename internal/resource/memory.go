package resource

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepository struct {
	mu        sync.RWMutex
	resources map[string]*Resource
}

func NewMemoryRepository() Repository {
	return &memoryRepository{resources: make(map[string]*Resource)}
}

func (r *memoryRepository) Create(_ context.Context, res *Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	res.CreatedAt = time.Now().UTC()
	cp := *res
	r.resources[res.ID] = &cp
	return nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (*Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.resources[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *res
	return &cp, nil
}

func (r *memoryRepository) List(_ context.Context, filter Filter) ([]*Resource, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Resource
	for _, res := range r.resources {
		if filter.BranchID != "" && res.BranchID != filter.BranchID {
			continue
		}
		if filter.Kind != "" && res.Kind != filter.Kind {
			continue
		}
		if filter.CourtType != "" && res.CourtType != filter.CourtType {
			continue
		}
		cp := *res
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil, len(matched), nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

func (r *memoryRepository) Update(_ context.Context, res *Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.resources[res.ID]; !ok {
		return ErrNotFound
	}
	cp := *res
	r.resources[res.ID] = &cp
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.resources[id]; !ok {
		return ErrNotFound
	}
	delete(r.resources, id)
	return nil
}
