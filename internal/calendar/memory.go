package calendar

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryRepository keeps reservations in per-resource buckets.
type memoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*Reservation
	byResource map[string][]*Reservation
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		byID:       make(map[string]*Reservation),
		byResource: make(map[string][]*Reservation),
	}
}

func (r *memoryRepository) Insert(_ context.Context, res *Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	stored := *res
	r.byID[stored.ID] = &stored

	bucket := append(r.byResource[stored.Slot.ResourceID], &stored)
	sort.SliceStable(bucket, func(i, j int) bool {
		return bucket[i].Slot.Start.Before(bucket[j].Slot.Start)
	})
	r.byResource[stored.Slot.ResourceID] = bucket
	return nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (*Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *res
	return &cp, nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)

	bucket := r.byResource[res.Slot.ResourceID]
	for i, b := range bucket {
		if b.ID == id {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(r.byResource, res.Slot.ResourceID)
	} else {
		r.byResource[res.Slot.ResourceID] = bucket
	}
	return nil
}

func (r *memoryRepository) ListByResource(_ context.Context, resourceID string, rng DateRange) ([]*Reservation, error) {
	window := TimeSlot{ResourceID: resourceID, Start: rng.From, End: rng.To}
	return r.collect(resourceID, window.Overlaps), nil
}

func (r *memoryRepository) FindOverlapping(_ context.Context, slot TimeSlot) ([]*Reservation, error) {
	return r.collect(slot.ResourceID, slot.Overlaps), nil
}

func (r *memoryRepository) collect(resourceID string, match func(TimeSlot) bool) []*Reservation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Reservation
	for _, res := range r.byResource[resourceID] {
		if match(res.Slot) {
			cp := *res
			result = append(result, &cp)
		}
	}
	return result
}
