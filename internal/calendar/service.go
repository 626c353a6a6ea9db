package calendar

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nekogravitycat/facility-booking-core/internal/metrics"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/keylock"
)

type ReserveRequest struct {
	Slot    TimeSlot
	Kind    SlotKind
	OwnerID string
}

type Service interface {
	IsAvailable(ctx context.Context, slot TimeSlot) (bool, error)
	Reserve(ctx context.Context, req ReserveRequest) (*Reservation, error)
	Release(ctx context.Context, reservationID string) error
	ListForResource(ctx context.Context, resourceID string, rng DateRange) ([]TimeSlot, error)
	ListReservations(ctx context.Context, resourceID string, rng DateRange) ([]*Reservation, error)
	// Verify scans stored reservations for overlaps and reports them as a consistency error.
	Verify(ctx context.Context, resourceID string, rng DateRange) error
}

type service struct {
	repo    Repository
	locks   *keylock.Map
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewService(repo Repository, logger *zap.Logger, m *metrics.Metrics) Service {
	return &service{
		repo:    repo,
		locks:   keylock.New(),
		logger:  logger,
		metrics: m,
	}
}

func (s *service) IsAvailable(ctx context.Context, slot TimeSlot) (bool, error) {
	if err := slot.Validate(); err != nil {
		return false, err
	}
	existing, err := s.repo.FindOverlapping(ctx, slot)
	if err != nil {
		return false, err
	}
	return len(existing) == 0, nil
}

func (s *service) Reserve(ctx context.Context, req ReserveRequest) (*Reservation, error) {
	if err := req.Slot.Validate(); err != nil {
		return nil, err
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown slot kind %q", ErrInvalidSlot, req.Kind)
	}

	// Check and insert must not interleave with another reserve on the same resource.
	unlock := s.locks.Lock(req.Slot.ResourceID)
	defer unlock()

	existing, err := s.repo.FindOverlapping(ctx, req.Slot)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		s.metrics.ObserveReservation(string(req.Kind), metrics.ResultConflict)
		return nil, ErrConflict
	}

	res := &Reservation{
		Slot:    req.Slot,
		Kind:    req.Kind,
		OwnerID: req.OwnerID,
	}
	if err := s.repo.Insert(ctx, res); err != nil {
		if errors.Is(err, ErrConflict) {
			s.metrics.ObserveReservation(string(req.Kind), metrics.ResultConflict)
		}
		return nil, err
	}

	s.metrics.ObserveReservation(string(req.Kind), metrics.ResultOK)
	s.logger.Debug("slot reserved",
		zap.String("reservation_id", res.ID),
		zap.String("resource_id", res.Slot.ResourceID),
		zap.Time("start", res.Slot.Start),
		zap.Time("end", res.Slot.End),
		zap.String("kind", string(res.Kind)),
	)
	return res, nil
}

func (s *service) Release(ctx context.Context, reservationID string) error {
	res, err := s.repo.GetByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	unlock := s.locks.Lock(res.Slot.ResourceID)
	defer unlock()

	if err := s.repo.Delete(ctx, reservationID); err != nil {
		return err
	}
	s.logger.Debug("slot released",
		zap.String("reservation_id", reservationID),
		zap.String("resource_id", res.Slot.ResourceID),
	)
	return nil
}

func (s *service) ListForResource(ctx context.Context, resourceID string, rng DateRange) ([]TimeSlot, error) {
	reservations, err := s.ListReservations(ctx, resourceID, rng)
	if err != nil {
		return nil, err
	}
	slots := make([]TimeSlot, 0, len(reservations))
	for _, r := range reservations {
		slots = append(slots, r.Slot)
	}
	return slots, nil
}

func (s *service) ListReservations(ctx context.Context, resourceID string, rng DateRange) ([]*Reservation, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListByResource(ctx, resourceID, rng)
}

func (s *service) Verify(ctx context.Context, resourceID string, rng DateRange) error {
	reservations, err := s.ListReservations(ctx, resourceID, rng)
	if err != nil {
		return err
	}

	// Sorted by start: any overlap shows up against the furthest-reaching earlier slot.
	var reach *Reservation
	for _, r := range reservations {
		if reach != nil && r.Slot.Overlaps(reach.Slot) {
			s.logger.Error("consistency violation: overlapping reservations",
				zap.String("resource_id", resourceID),
				zap.String("reservation_id", reach.ID),
				zap.String("conflicting_id", r.ID),
			)
			return fmt.Errorf("%w: %s and %s", ErrInconsistent, reach.ID, r.ID)
		}
		if reach == nil || r.Slot.End.After(reach.Slot.End) {
			reach = r
		}
	}
	return nil
}
