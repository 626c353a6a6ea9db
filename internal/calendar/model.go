package calendar

import (
	"time"

	"github.com/nekogravitycat/facility-booking-core/internal/pkg/apperror"
)

var (
	ErrInvalidSlot     = apperror.New(apperror.KindInvalidSlot, "slot start must be before end and within one calendar day")
	ErrConflict        = apperror.New(apperror.KindConflict, "time slot already reserved")
	ErrNotFound        = apperror.New(apperror.KindNotFound, "reservation not found")
	ErrInvalidRange    = apperror.New(apperror.KindInvalidInput, "date range start must be before end")
	ErrInconsistent    = apperror.New(apperror.KindConsistency, "overlapping reservations found for resource")
	ErrMissingResource = apperror.New(apperror.KindInvalidInput, "resource id is required")
)

// SlotKind tags what a reservation holds a resource for.
type SlotKind string

const (
	KindShift           SlotKind = "shift"
	KindCustomerBooking SlotKind = "customer_booking"
)

func (k SlotKind) Valid() bool {
	switch k {
	case KindShift, KindCustomerBooking:
		return true
	}
	return false
}

// TimeSlot is the half-open interval [Start, End) on one resource.
type TimeSlot struct {
	ResourceID string    `json:"resource_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// Overlaps reports whether the two intervals share any instant.
// Touching slots (a.End == b.Start) do not overlap.
func (s TimeSlot) Overlaps(o TimeSlot) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

func (s TimeSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Validate rejects empty, inverted and multi-day slots. A slot may end exactly
// at the following midnight.
func (s TimeSlot) Validate() error {
	if s.ResourceID == "" {
		return ErrMissingResource
	}
	if !s.Start.Before(s.End) {
		return ErrInvalidSlot
	}
	day := DayOf(s.Start)
	if s.End.After(day.AddDate(0, 0, 1)) {
		return ErrInvalidSlot
	}
	return nil
}

// DayOf truncates t to midnight in t's own location.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Reservation is a slot held on a resource by a booking or a shift.
type Reservation struct {
	ID        string
	Slot      TimeSlot
	Kind      SlotKind
	OwnerID   string // Court booking or shift assignment id
	CreatedAt time.Time
}

// DateRange is the half-open range [From, To).
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) Validate() error {
	if !r.From.Before(r.To) {
		return ErrInvalidRange
	}
	return nil
}

// MonthRange returns the range covering the whole calendar month.
func MonthRange(year int, month time.Month, loc *time.Location) DateRange {
	from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return DateRange{From: from, To: from.AddDate(0, 1, 0)}
}
