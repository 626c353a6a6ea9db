package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/nekogravitycat/facility-booking-core/internal/booking"
	"github.com/nekogravitycat/facility-booking-core/internal/branch"
	"github.com/nekogravitycat/facility-booking-core/internal/calendar"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/apperror"
	"github.com/nekogravitycat/facility-booking-core/internal/resource"
	"github.com/nekogravitycat/facility-booking-core/internal/shift"
)

// Reports only read; they may observe a slightly stale snapshot.
type Service interface {
	CourtUsage(ctx context.Context, q UsageQuery) ([]CourtUsage, error)
	WeeklySchedule(ctx context.Context, q ScheduleQuery) (*Schedule, error)
}

type CourtLister interface {
	List(ctx context.Context, filter resource.Filter) ([]*resource.Resource, int, error)
}

type BranchLookup interface {
	GetByID(ctx context.Context, id string) (*branch.Branch, error)
}

type BookingLister interface {
	ListCourtBookings(ctx context.Context, filter booking.Filter) ([]*booking.CourtBooking, int, error)
}

// SlotVerifier checks a resource's stored reservations for overlaps.
type SlotVerifier interface {
	Verify(ctx context.Context, resourceID string, rng calendar.DateRange) error
}

type ShiftLister interface {
	List(ctx context.Context, filter shift.Filter) ([]*shift.ShiftAssignment, int, error)
}

// countedStatuses are the booking states that consume court time in reports.
var countedStatuses = []booking.Status{booking.StatusPending, booking.StatusConfirmed, booking.StatusPaid}

const listPageSize = 100

type service struct {
	courts   CourtLister
	branches BranchLookup
	bookings BookingLister
	slots    SlotVerifier
	shifts   ShiftLister
	loc      *time.Location
	logger   *zap.Logger
}

// NewService builds the reporting service. Months are cut in loc; nil means UTC.
// A nil slots skips the per-court overlap check.
func NewService(courts CourtLister, branches BranchLookup, bookings BookingLister, slots SlotVerifier, shifts ShiftLister, loc *time.Location, logger *zap.Logger) Service {
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		courts:   courts,
		branches: branches,
		bookings: bookings,
		slots:    slots,
		shifts:   shifts,
		loc:      loc,
		logger:   logger,
	}
}

func (s *service) CourtUsage(ctx context.Context, q UsageQuery) ([]CourtUsage, error) {
	if err := validPeriod(q.Year, q.Month); err != nil {
		return nil, err
	}
	rng := calendar.MonthRange(q.Year, q.Month, s.loc)
	days := int64(daysIn(q.Year, q.Month))

	courts, err := s.listCourts(ctx, resource.Filter{BranchID: q.BranchID, Kind: resource.KindCourt, CourtType: q.CourtType})
	if err != nil {
		return nil, err
	}

	openMinutes := make(map[string]int64)
	usage := make(map[string]*CourtUsage, len(courts))
	for _, c := range courts {
		minutes, ok := openMinutes[c.BranchID]
		if !ok {
			minutes, err = s.branchOpenMinutes(ctx, c.BranchID)
			if err != nil {
				return nil, err
			}
			openMinutes[c.BranchID] = minutes
		}
		u := &CourtUsage{
			CourtID:         c.ID,
			CourtName:       c.Name,
			BranchID:        c.BranchID,
			CourtType:       c.CourtType,
			CapacityMinutes: days * minutes,
		}
		if u.Inconsistent, err = s.inconsistent(ctx, c.ID, rng); err != nil {
			return nil, err
		}
		usage[c.ID] = u
	}

	bookings, _, err := s.bookings.ListCourtBookings(ctx, booking.Filter{
		BranchID: q.BranchID,
		Statuses: countedStatuses,
		From:     &rng.From,
		To:       &rng.To,
	})
	if err != nil {
		return nil, fmt.Errorf("list bookings failed: %w", err)
	}

	for _, b := range bookings {
		u, ok := usage[b.CourtID]
		if !ok {
			continue
		}
		for _, slot := range b.Slots {
			if !slot.Start.Before(rng.To) || !slot.End.After(rng.From) {
				continue
			}
			u.SlotCount++
			u.BookedMinutes += int64(slot.Duration() / time.Minute)
		}
	}

	out := make([]CourtUsage, 0, len(usage))
	for _, u := range usage {
		u.Occupancy = occupancy(u.BookedMinutes, u.CapacityMinutes)
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourtID < out[j].CourtID })
	return out, nil
}

// inconsistent runs the overlap check for one court. A consistency error flags the
// row instead of failing the report; any other error is returned.
func (s *service) inconsistent(ctx context.Context, courtID string, rng calendar.DateRange) (bool, error) {
	if s.slots == nil {
		return false, nil
	}
	err := s.slots.Verify(ctx, courtID, rng)
	switch {
	case err == nil:
		return false, nil
	case apperror.IsFatal(err):
		s.logger.Error("court usage computed over inconsistent reservations",
			zap.String("court_id", courtID),
			zap.Time("from", rng.From),
			zap.Error(err),
		)
		return true, nil
	}
	return false, fmt.Errorf("verify court %s failed: %w", courtID, err)
}

// occupancy is booked/capacity clamped to [0, 1]; stored data may overlap.
func occupancy(booked, capacity int64) float64 {
	if capacity <= 0 || booked <= 0 {
		return 0
	}
	ratio := float64(booked) / float64(capacity)
	if ratio > 1 {
		return 1
	}
	return ratio
}

func (s *service) branchOpenMinutes(ctx context.Context, branchID string) (int64, error) {
	b, err := s.branches.GetByID(ctx, branchID)
	if err != nil {
		return 0, fmt.Errorf("load branch %s failed: %w", branchID, err)
	}
	hours, err := b.OperatingHours()
	if err != nil {
		s.logger.Warn("branch has no usable opening hours", zap.String("branch_id", branchID), zap.Error(err))
		return 0, nil
	}
	return int64(hours / time.Minute), nil
}

func (s *service) listCourts(ctx context.Context, filter resource.Filter) ([]*resource.Resource, error) {
	filter.PageSize = listPageSize
	var all []*resource.Resource
	for page := 1; ; page++ {
		filter.Page = page
		batch, total, err := s.courts.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list courts failed: %w", err)
		}
		all = append(all, batch...)
		if len(batch) == 0 || len(all) >= total {
			return all, nil
		}
	}
}

// TopCourts returns the most booked courts by slot count.
func TopCourts(usage []CourtUsage, limit int) []CourtUsage {
	return rank(usage, limit, func(a, b CourtUsage) bool { return a.SlotCount > b.SlotCount })
}

// LowCourts returns the least booked courts by slot count.
func LowCourts(usage []CourtUsage, limit int) []CourtUsage {
	return rank(usage, limit, func(a, b CourtUsage) bool { return a.SlotCount < b.SlotCount })
}

func rank(usage []CourtUsage, limit int, better func(a, b CourtUsage) bool) []CourtUsage {
	out := append([]CourtUsage(nil), usage...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SlotCount != out[j].SlotCount {
			return better(out[i], out[j])
		}
		return out[i].CourtID < out[j].CourtID
	})
	if limit >= 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func (s *service) WeeklySchedule(ctx context.Context, q ScheduleQuery) (*Schedule, error) {
	if err := validPeriod(q.Year, q.Month); err != nil {
		return nil, err
	}
	rng := calendar.MonthRange(q.Year, q.Month, s.loc)

	shifts, _, err := s.shifts.List(ctx, shift.Filter{BranchID: q.BranchID, From: &rng.From, To: &rng.To})
	if err != nil {
		return nil, fmt.Errorf("list shifts failed: %w", err)
	}
	bookings, _, err := s.bookings.ListCourtBookings(ctx, booking.Filter{
		BranchID: q.BranchID,
		Statuses: countedStatuses,
		From:     &rng.From,
		To:       &rng.To,
	})
	if err != nil {
		return nil, fmt.Errorf("list bookings failed: %w", err)
	}

	var entries []Entry
	for _, a := range shifts {
		entries = append(entries, Entry{
			Kind:       calendar.KindShift,
			ResourceID: a.StaffID,
			OwnerID:    a.StaffID,
			ShiftID:    a.ID,
			Start:      a.Start,
			End:        a.End,
		})
	}
	for _, b := range bookings {
		for _, slot := range b.Slots {
			entries = append(entries, Entry{
				Kind:       calendar.KindCustomerBooking,
				ResourceID: b.CourtID,
				OwnerID:    b.CustomerID,
				BookingID:  b.ID,
				Start:      slot.Start,
				End:        slot.End,
			})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Start.Before(entries[j].Start) })

	sched := &Schedule{Year: q.Year, Month: q.Month, StaffHours: make(map[string]float64)}
	for _, w := range weeksIn(q.Year, q.Month, s.loc) {
		sched.Weeks = append(sched.Weeks, WeekSchedule{Week: w})
	}

	for _, e := range entries {
		idx := weekIndex(sched.Weeks, e.Start)
		if idx < 0 {
			continue
		}
		ws := &sched.Weeks[idx]
		switch e.Kind {
		case calendar.KindShift:
			ws.ShiftMinutes += e.Minutes()
			sched.StaffHours[e.OwnerID] += float64(e.Minutes()) / 60
		case calendar.KindCustomerBooking:
			ws.BookingMinutes += e.Minutes()
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
		}
		ws.Entries = append(ws.Entries, e)
	}
	return sched, nil
}

func weekIndex(weeks []WeekSchedule, t time.Time) int {
	for i, w := range weeks {
		if w.Week.Contains(t) {
			return i
		}
	}
	return -1
}
