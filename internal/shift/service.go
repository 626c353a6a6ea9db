package shift

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nekogravitycat/facility-booking-core/internal/calendar"
	"github.com/nekogravitycat/facility-booking-core/internal/resource"
)

type AssignRequest struct {
	StaffID  string
	BranchID string // Optional; defaults to the staff member's branch
	Start    time.Time
	End      time.Time
	Note     string
}

type Service interface {
	// Assign books the staff member's calendar; an overlapping shift fails with ErrShiftConflict.
	Assign(ctx context.Context, req AssignRequest) (*ShiftAssignment, error)
	Unassign(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*ShiftAssignment, error)
	ListForStaff(ctx context.Context, staffID string, rng calendar.DateRange) ([]*ShiftAssignment, error)
	List(ctx context.Context, filter Filter) ([]*ShiftAssignment, int, error)
}

// StaffDirectory resolves staff members; resource.Service satisfies it.
type StaffDirectory interface {
	GetStaff(ctx context.Context, id string) (*resource.Resource, error)
}

type service struct {
	repo     Repository
	calendar calendar.Service
	staff    StaffDirectory
	logger   *zap.Logger
}

func NewService(repo Repository, cal calendar.Service, staff StaffDirectory, logger *zap.Logger) Service {
	return &service{
		repo:     repo,
		calendar: cal,
		staff:    staff,
		logger:   logger,
	}
}

func (s *service) Assign(ctx context.Context, req AssignRequest) (*ShiftAssignment, error) {
	member, err := s.staff.GetStaff(ctx, req.StaffID)
	if err != nil {
		return nil, err
	}
	branchID := strings.TrimSpace(req.BranchID)
	if branchID == "" {
		branchID = member.BranchID
	}
	if branchID != member.BranchID {
		return nil, ErrBranchMismatch
	}

	a := &ShiftAssignment{
		StaffID:  member.ID,
		BranchID: branchID,
		Date:     calendar.DayOf(req.Start),
		Start:    req.Start,
		End:      req.End,
		Note:     strings.TrimSpace(req.Note),
	}
	res, err := s.calendar.Reserve(ctx, calendar.ReserveRequest{
		Slot:    a.Slot(),
		Kind:    calendar.KindShift,
		OwnerID: member.ID,
	})
	if err != nil {
		if errors.Is(err, calendar.ErrConflict) {
			return nil, fmt.Errorf("%w: %w", ErrShiftConflict, err)
		}
		return nil, err
	}
	a.ReservationID = res.ID

	if err := s.repo.Create(ctx, a); err != nil {
		if relErr := s.calendar.Release(ctx, res.ID); relErr != nil {
			s.logger.Warn("rollback shift reservation failed", zap.String("reservation_id", res.ID), zap.Error(relErr))
		}
		return nil, fmt.Errorf("create shift failed: %w", err)
	}

	s.logger.Info("shift assigned",
		zap.String("shift_id", a.ID),
		zap.String("staff_id", a.StaffID),
		zap.Time("start", a.Start),
		zap.Time("end", a.End),
	)
	return a, nil
}

func (s *service) Unassign(ctx context.Context, id string) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.calendar.Release(ctx, a.ReservationID); err != nil {
		return fmt.Errorf("release shift reservation failed: %w", err)
	}
	return s.repo.Delete(ctx, id)
}

func (s *service) GetByID(ctx context.Context, id string) (*ShiftAssignment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListForStaff(ctx context.Context, staffID string, rng calendar.DateRange) ([]*ShiftAssignment, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	shifts, _, err := s.repo.List(ctx, Filter{StaffID: staffID, From: &rng.From, To: &rng.To})
	return shifts, err
}

func (s *service) List(ctx context.Context, filter Filter) ([]*ShiftAssignment, int, error) {
	return s.repo.List(ctx, filter)
}
