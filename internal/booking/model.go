package booking

import (
	"time"

	"github.com/nekogravitycat/facility-booking-core/internal/calendar"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/apperror"
)

var (
	ErrNotFound               = apperror.New(apperror.KindNotFound, "booking not found")
	ErrServiceBookingNotFound = apperror.New(apperror.KindNotFound, "service booking not found")
	ErrInvalidQuantity        = apperror.New(apperror.KindInvalidInput, "quantity must be positive")
	ErrInvalidPrice           = apperror.New(apperror.KindInvalidInput, "price cannot be negative")
	ErrInvalidDuration        = apperror.New(apperror.KindInvalidInput, "coach duration must be positive")
	ErrNoSlots                = apperror.New(apperror.KindInvalidInput, "at least one slot is required")
)

type Status string

const (
	StatusHeld      Status = "held"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// AcceptsServices reports whether services may still be attached or changed.
func (s Status) AcceptsServices() bool {
	return s == StatusHeld || s == StatusPending
}

// Occupying reports whether the booking still holds its court slots.
func (s Status) Occupying() bool {
	return s != StatusCancelled
}

// CourtBooking reserves one court for one or more slots, not necessarily contiguous.
type CourtBooking struct {
	ID             string
	CustomerID     string
	CourtID        string
	BranchID       string
	Slots          []calendar.TimeSlot
	ReservationIDs []string
	PricePerHour   int64
	TotalCourtFee  int64
	Status         Status
	CreatedBy      string // Actor that made the booking (customer or receptionist)
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StartsAt returns the earliest slot start.
func (b *CourtBooking) StartsAt() time.Time {
	var first time.Time
	for i, s := range b.Slots {
		if i == 0 || s.Start.Before(first) {
			first = s.Start
		}
	}
	return first
}

// EndsAt returns the latest slot end.
func (b *CourtBooking) EndsAt() time.Time {
	var last time.Time
	for _, s := range b.Slots {
		if s.End.After(last) {
			last = s.End
		}
	}
	return last
}

func (b *CourtBooking) Clone() *CourtBooking {
	cp := *b
	cp.Slots = append([]calendar.TimeSlot(nil), b.Slots...)
	cp.ReservationIDs = append([]string(nil), b.ReservationIDs...)
	return &cp
}

type ServiceItem struct {
	ServiceID string `json:"service_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type CoachItem struct {
	CoachID    string        `json:"coach_id"`
	Quantity   int           `json:"quantity"`
	HourlyRate int64         `json:"hourly_rate"`
	Duration   time.Duration `json:"duration"`
}

// ServiceBooking holds the extras attached to exactly one CourtBooking.
type ServiceBooking struct {
	ID              string
	CourtBookingID  string
	Items           []ServiceItem
	Coaches         []CoachItem
	TotalServiceFee int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s *ServiceBooking) Clone() *ServiceBooking {
	cp := *s
	cp.Items = append([]ServiceItem(nil), s.Items...)
	cp.Coaches = append([]CoachItem(nil), s.Coaches...)
	return &cp
}

// ValidateItems checks quantities, prices and durations.
func ValidateItems(items []ServiceItem, coaches []CoachItem) error {
	for _, it := range items {
		if it.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		if it.UnitPrice < 0 {
			return ErrInvalidPrice
		}
	}
	for _, c := range coaches {
		if c.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		if c.HourlyRate < 0 {
			return ErrInvalidPrice
		}
		if c.Duration <= 0 {
			return ErrInvalidDuration
		}
	}
	return nil
}

type Filter struct {
	CustomerID    string
	CourtID       string
	BranchID      string
	Statuses      []Status
	From          *time.Time // Bookings ending after this time
	To            *time.Time // Bookings starting before this time
	CreatedBefore *time.Time
	Page          int
	PageSize      int // 0 returns every match
}
