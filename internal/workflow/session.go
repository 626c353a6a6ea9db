package workflow

import "github.com/google/uuid"

// Step is a position in the booking flow.
type Step int

const (
	StepCourt     Step = 1
	StepServices  Step = 2
	StepPayment   Step = 3
	StepCompleted Step = 4
)

type Role string

const (
	RoleCustomer     Role = "customer"
	RoleReceptionist Role = "receptionist"
)

// Actor is the caller identity supplied by the auth collaborator.
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// Session carries one booking flow's progress and selections. Callers keep it
// between requests; nothing in this package holds sessions globally.
type Session struct {
	ID               string `json:"id"`
	Actor            Actor  `json:"actor"`
	Step             Step   `json:"step"`
	CustomerID       string `json:"customer_id,omitempty"`
	CourtBookingID   string `json:"court_booking_id,omitempty"`
	ServiceBookingID string `json:"service_booking_id,omitempty"`
	PromoCode        string `json:"promo_code,omitempty"`
	InvoiceID        string `json:"invoice_id,omitempty"`
}

// NewSession starts a flow at the court step. A customer books for themselves;
// a receptionist names the customer or leaves it empty for a walk-in.
func NewSession(actor Actor, customerID string) *Session {
	if customerID == "" && actor.Role == RoleCustomer {
		customerID = actor.UserID
	}
	return &Session{
		ID:         uuid.NewString(),
		Actor:      actor,
		Step:       StepCourt,
		CustomerID: customerID,
	}
}

func (s *Session) CanAccessStep(step Step) bool {
	switch step {
	case StepCourt:
		return true
	case StepServices, StepPayment:
		// A finalized booking belongs to its invoice.
		return s.CourtBookingID != "" && s.InvoiceID == ""
	case StepCompleted:
		return s.InvoiceID != ""
	}
	return false
}

// GoTo moves to step when its guard holds and reports whether it moved.
// A gated step leaves the session unchanged.
func (s *Session) GoTo(step Step) bool {
	if !s.CanAccessStep(step) {
		return false
	}
	s.Step = step
	return true
}

// clearSelection drops everything chosen after the court step.
func (s *Session) clearSelection() {
	s.Step = StepCourt
	s.CourtBookingID = ""
	s.ServiceBookingID = ""
	s.PromoCode = ""
	s.InvoiceID = ""
}
