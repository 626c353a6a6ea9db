package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nekogravitycat/facility-booking-core/internal/booking"
	"github.com/nekogravitycat/facility-booking-core/internal/branch"
	"github.com/nekogravitycat/facility-booking-core/internal/calendar"
	"github.com/nekogravitycat/facility-booking-core/internal/resource"
	"github.com/nekogravitycat/facility-booking-core/internal/shift"
)

func date(month time.Month, day, hour int) time.Time {
	return time.Date(2025, month, day, hour, 0, 0, 0, time.UTC)
}

func TestWeeksInMonthCoversFebruary(t *testing.T) {
	weeks := WeeksInMonth(2025, time.February)
	require.Len(t, weeks, 5)

	assert.Equal(t, date(time.February, 1, 0), weeks[0].Start)
	assert.Equal(t, date(time.February, 2, 0), weeks[0].End)
	assert.Equal(t, date(time.February, 28, 0), weeks[len(weeks)-1].End)

	for i, w := range weeks {
		assert.Equal(t, i+1, w.Number)
		assert.False(t, w.End.Before(w.Start))
		if i > 0 {
			assert.Equal(t, weeks[i-1].End.AddDate(0, 0, 1), w.Start, "gap or overlap before week %d", w.Number)
			assert.Equal(t, time.Monday, w.Start.Weekday())
		}
		if i < len(weeks)-1 {
			assert.Equal(t, time.Sunday, w.End.Weekday())
		}
	}

	var days int
	for _, w := range weeks {
		days += int(w.End.Sub(w.Start).Hours()/24) + 1
	}
	assert.Equal(t, 28, days)
}

func TestWeeksInMonthStartingOnMonday(t *testing.T) {
	weeks := WeeksInMonth(2025, time.September)
	require.Len(t, weeks, 5)
	assert.Equal(t, date(time.September, 1, 0), weeks[0].Start)
	assert.Equal(t, date(time.September, 7, 0), weeks[0].End)
	assert.Equal(t, date(time.September, 29, 0), weeks[4].Start)
	assert.Equal(t, date(time.September, 30, 0), weeks[4].End)

	// Pure function of its arguments.
	assert.Equal(t, weeks, WeeksInMonth(2025, time.September))
}

type fixture struct {
	svc      Service
	bookings booking.Repository
	slots    calendar.Repository
	shifts   shift.Service
	branchID string
	staffID  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	branches := branch.NewService(branch.NewMemoryRepository())
	br, err := branches.Create(ctx, branch.CreateRequest{Name: "Central", OpeningHoursStart: "06:00", OpeningHoursEnd: "22:00"})
	require.NoError(t, err)
	resources := resource.NewService(resource.NewMemoryRepository(), branches)
	for _, req := range []resource.CreateRequest{
		{ID: "101", Name: "Court 101", CourtType: "badminton", PricePerHour: 100000},
		{ID: "102", Name: "Court 102", CourtType: "badminton", PricePerHour: 100000},
		{ID: "103", Name: "Court 103", CourtType: "badminton", PricePerHour: 100000},
		{ID: "201", Name: "Court 201", CourtType: "tennis", PricePerHour: 150000},
	} {
		req.BranchID = br.ID
		req.Kind = resource.KindCourt
		_, err := resources.Create(ctx, req)
		require.NoError(t, err)
	}
	staff, err := resources.Create(ctx, resource.CreateRequest{Name: "Tuan", BranchID: br.ID, Kind: resource.KindStaff})
	require.NoError(t, err)

	bookings := booking.NewMemoryRepository()
	slots := calendar.NewMemoryRepository()
	cal := calendar.NewService(slots, zap.NewNop(), nil)
	shifts := shift.NewService(shift.NewMemoryRepository(), cal, resources, zap.NewNop())

	return fixture{
		svc:      NewService(resources, branches, bookings, cal, shifts, nil, zap.NewNop()),
		bookings: bookings,
		slots:    slots,
		shifts:   shifts,
		branchID: br.ID,
		staffID:  staff.ID,
	}
}

func (f fixture) book(t *testing.T, courtID string, status booking.Status, slots ...calendar.TimeSlot) {
	t.Helper()
	for i := range slots {
		slots[i].ResourceID = courtID
	}
	require.NoError(t, f.bookings.CreateCourtBooking(context.Background(), &booking.CourtBooking{
		CourtID:  courtID,
		BranchID: f.branchID,
		Slots:    slots,
		Status:   status,
	}))
}

func hour(month time.Month, day, from, to int) calendar.TimeSlot {
	return calendar.TimeSlot{Start: date(month, day, from), End: date(month, day, to)}
}

func TestCourtUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.book(t, "101", booking.StatusPaid, hour(time.March, 3, 18, 19))
	f.book(t, "101", booking.StatusPending, hour(time.March, 4, 18, 19), hour(time.March, 5, 9, 10))
	f.book(t, "101", booking.StatusCancelled, hour(time.March, 6, 18, 19))
	f.book(t, "101", booking.StatusHeld, hour(time.March, 7, 18, 19))
	f.book(t, "101", booking.StatusPaid, hour(time.April, 1, 18, 19))
	f.book(t, "201", booking.StatusPaid, hour(time.March, 3, 18, 20))

	// Overlapping duplicates far beyond capacity.
	for day := 1; day <= 31; day++ {
		for i := 0; i < 3; i++ {
			f.book(t, "102", booking.StatusConfirmed, hour(time.March, day, 0, 23))
		}
	}

	usage, err := f.svc.CourtUsage(ctx, UsageQuery{Year: 2025, Month: time.March, CourtType: "badminton"})
	require.NoError(t, err)
	require.Len(t, usage, 3)

	byID := make(map[string]CourtUsage)
	for _, u := range usage {
		byID[u.CourtID] = u
		assert.EqualValues(t, 31*16*60, u.CapacityMinutes)
		assert.GreaterOrEqual(t, u.Occupancy, 0.0)
		assert.LessOrEqual(t, u.Occupancy, 1.0)
	}

	assert.Equal(t, 3, byID["101"].SlotCount)
	assert.EqualValues(t, 180, byID["101"].BookedMinutes)
	assert.InDelta(t, 180.0/29760.0, byID["101"].Occupancy, 1e-9)

	assert.Equal(t, 93, byID["102"].SlotCount)
	assert.Equal(t, 1.0, byID["102"].Occupancy)

	assert.Zero(t, byID["103"].SlotCount)
	assert.Zero(t, byID["103"].Occupancy)

	all, err := f.svc.CourtUsage(ctx, UsageQuery{Year: 2025, Month: time.March, BranchID: f.branchID})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = f.svc.CourtUsage(ctx, UsageQuery{Year: 2025, Month: 13})
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestCourtUsageFlagsOverlappingReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Written around the calendar's guard, as old imported data might be.
	for _, slot := range []calendar.TimeSlot{hour(time.March, 3, 8, 12), hour(time.March, 3, 9, 10)} {
		slot.ResourceID = "102"
		require.NoError(t, f.slots.Insert(ctx, &calendar.Reservation{Slot: slot, Kind: calendar.KindCustomerBooking}))
	}
	f.book(t, "102", booking.StatusPaid, hour(time.March, 3, 8, 12))
	f.book(t, "102", booking.StatusPaid, hour(time.March, 3, 9, 10))

	usage, err := f.svc.CourtUsage(ctx, UsageQuery{Year: 2025, Month: time.March, CourtType: "badminton"})
	require.NoError(t, err)

	for _, u := range usage {
		assert.Equal(t, u.CourtID == "102", u.Inconsistent, u.CourtID)
	}
}

func TestTopAndLowCourts(t *testing.T) {
	usage := []CourtUsage{
		{CourtID: "104", SlotCount: 5},
		{CourtID: "101", SlotCount: 9},
		{CourtID: "103", SlotCount: 5},
		{CourtID: "102", SlotCount: 1},
	}

	top := TopCourts(usage, 3)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"101", "103", "104"}, ids(top))

	low := LowCourts(usage, 2)
	assert.Equal(t, []string{"102", "103"}, ids(low))

	assert.Len(t, TopCourts(usage, 10), 4)
	assert.Equal(t, "104", usage[0].CourtID, "input must not be reordered")
}

func ids(usage []CourtUsage) []string {
	out := make([]string, len(usage))
	for i, u := range usage {
		out[i] = u.CourtID
	}
	return out
}

func TestWeeklySchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.shifts.Assign(ctx, shift.AssignRequest{StaffID: f.staffID, Start: date(time.March, 3, 8), End: date(time.March, 3, 12)})
	require.NoError(t, err)
	_, err = f.shifts.Assign(ctx, shift.AssignRequest{StaffID: f.staffID, Start: date(time.March, 4, 13), End: date(time.March, 4, 15)})
	require.NoError(t, err)
	f.book(t, "101", booking.StatusPaid, hour(time.March, 15, 18, 19))
	f.book(t, "101", booking.StatusCancelled, hour(time.March, 15, 19, 20))

	sched, err := f.svc.WeeklySchedule(ctx, ScheduleQuery{Year: 2025, Month: time.March, BranchID: f.branchID})
	require.NoError(t, err)
	require.Len(t, sched.Weeks, 6)

	// March 2025 opens on a Saturday: week 1 is Mar 1-2, week 2 Mar 3-9, week 3 Mar 10-16.
	assert.Empty(t, sched.Weeks[0].Entries)

	w2 := sched.Weeks[1]
	require.Len(t, w2.Entries, 2)
	for _, e := range w2.Entries {
		assert.Equal(t, calendar.KindShift, e.Kind)
		assert.NotEmpty(t, e.ShiftID)
	}
	assert.EqualValues(t, 360, w2.ShiftMinutes)
	assert.Zero(t, w2.BookingMinutes)

	w3 := sched.Weeks[2]
	require.Len(t, w3.Entries, 1)
	assert.Equal(t, calendar.KindCustomerBooking, w3.Entries[0].Kind)
	assert.Equal(t, "101", w3.Entries[0].ResourceID)
	assert.EqualValues(t, 60, w3.BookingMinutes)

	assert.Equal(t, map[string]float64{f.staffID: 6}, sched.StaffHours)
}
