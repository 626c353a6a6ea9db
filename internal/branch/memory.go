package branch

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepository struct {
	mu       sync.RWMutex
	branches map[string]*Branch
}

func NewMemoryRepository() Repository {
	return &memoryRepository{branches: make(map[string]*Branch)}
}

func (r *memoryRepository) Create(_ context.Context, b *Branch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = time.Now().UTC()
	cp := *b
	r.branches[b.ID] = &cp
	return nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (*Branch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.branches[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memoryRepository) List(_ context.Context, filter Filter) ([]*Branch, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keyword := strings.ToLower(filter.Keyword)
	var matched []*Branch
	for _, b := range r.branches {
		if keyword != "" &&
			!strings.Contains(strings.ToLower(b.Name), keyword) &&
			!strings.Contains(strings.ToLower(b.Address), keyword) {
			continue
		}
		cp := *b
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	return paginate(matched, filter.Page, filter.PageSize), len(matched), nil
}

func (r *memoryRepository) Update(_ context.Context, b *Branch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.branches[b.ID]; !ok {
		return ErrNotFound
	}
	cp := *b
	r.branches[b.ID] = &cp
	return nil
}

func paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
