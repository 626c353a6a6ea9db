package workflow

import (
	"github.com/nekogravitycat/facility-booking-core/internal/calendar"
	"github.com/nekogravitycat/facility-booking-core/internal/invoice"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/apperror"
)

var (
	ErrSlotUnavailable     = apperror.New(apperror.KindConflict, "slot is no longer available")
	ErrInvalidBookingState = apperror.New(apperror.KindInvalidState, "booking is not in a modifiable state")
	ErrNoSelection         = apperror.New(apperror.KindInvalidState, "no court booking selected")
	ErrAlreadyFinalized    = invoice.ErrAlreadyFinalized
)

type SelectCourtRequest struct {
	CourtID string
	// Slots may be non-contiguous but must share the court. ResourceID is filled in from CourtID.
	Slots []calendar.TimeSlot
}
