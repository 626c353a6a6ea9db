package shift

import (
	"time"

	"github.com/nekogravitycat/facility-booking-core/internal/calendar"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/apperror"
)

var (
	ErrNotFound       = apperror.New(apperror.KindNotFound, "shift assignment not found")
	ErrShiftConflict  = apperror.New(apperror.KindConflict, "staff member already has an overlapping shift")
	ErrBranchMismatch = apperror.New(apperror.KindInvalidInput, "staff member does not belong to this branch")
)

// ShiftAssignment is a staff member's working interval on one day.
type ShiftAssignment struct {
	ID            string
	StaffID       string
	BranchID      string
	Date          time.Time // Midnight of the shift's day
	Start         time.Time
	End           time.Time
	ReservationID string // Calendar reservation backing the shift
	Note          string
	CreatedAt     time.Time
}

func (a *ShiftAssignment) Slot() calendar.TimeSlot {
	return calendar.TimeSlot{ResourceID: a.StaffID, Start: a.Start, End: a.End}
}

func (a *ShiftAssignment) Duration() time.Duration {
	return a.End.Sub(a.Start)
}

type Filter struct {
	StaffID  string
	BranchID string
	From     *time.Time // Shifts ending after this time
	To       *time.Time // Shifts starting before this time
	Page     int
	PageSize int // 0 returns every match
}
