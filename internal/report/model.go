package report

import (
	"time"

	"github.com/nekogravitycat/facility-booking-core/internal/calendar"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/apperror"
)

var (
	ErrInvalidPeriod = apperror.New(apperror.KindInvalidInput, "invalid report period")
	ErrUnknownKind   = apperror.New(apperror.KindInternal, "unknown schedule entry kind")
)

type UsageQuery struct {
	Year      int
	Month     time.Month
	BranchID  string // Optional
	CourtType string // Optional
}

// CourtUsage is one court's utilization over a month.
type CourtUsage struct {
	CourtID         string
	CourtName       string
	BranchID        string
	CourtType       string
	SlotCount       int
	BookedMinutes   int64
	CapacityMinutes int64
	Occupancy       float64 // Always within [0, 1]
	// Inconsistent is set when stored reservations for the court overlap in the month.
	Inconsistent bool
}

type ScheduleQuery struct {
	Year     int
	Month    time.Month
	BranchID string // Optional
}

// Entry is one item on the weekly schedule. Kind selects which of the
// reference fields is meaningful: ShiftID for shifts, BookingID for bookings.
type Entry struct {
	Kind       calendar.SlotKind
	ResourceID string // Staff member or court
	OwnerID    string // Staff member or customer
	ShiftID    string
	BookingID  string
	Start      time.Time
	End        time.Time
}

func (e Entry) Minutes() int64 {
	return int64(e.End.Sub(e.Start) / time.Minute)
}

type WeekSchedule struct {
	Week           Week
	Entries        []Entry
	ShiftMinutes   int64
	BookingMinutes int64
}

type Schedule struct {
	Year       int
	Month      time.Month
	Weeks      []WeekSchedule
	StaffHours map[string]float64 // Staff id -> shift hours over the month
}

func validPeriod(year int, month time.Month) error {
	if year < 1 || month < time.January || month > time.December {
		return ErrInvalidPeriod
	}
	return nil
}
