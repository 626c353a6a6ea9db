package invoice

import (
	"time"

	"github.com/nekogravitycat/facility-booking-core/internal/branch"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/apperror"
	"github.com/nekogravitycat/facility-booking-core/internal/pricing"
)

var (
	ErrNotFound             = apperror.New(apperror.KindNotFound, "invoice not found")
	ErrAlreadyFinalized     = apperror.New(apperror.KindAlreadyFinalized, "booking already has an invoice")
	ErrAlreadyTerminal      = apperror.New(apperror.KindAlreadyTerminal, "invoice is already closed")
	ErrInvalidTransition    = apperror.New(apperror.KindInvalidTransition, "invalid invoice state transition")
	ErrReasonRequired       = apperror.New(apperror.KindReasonRequired, "cancellation reason is required")
	ErrInvalidPaymentMethod = apperror.New(apperror.KindInvalidInput, "invalid payment method")
	ErrStaleState           = apperror.New(apperror.KindConflict, "invoice was changed concurrently")
)

type Status string

const (
	StatusHeld      Status = "held"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transition is allowed.
// Confirmed and paid are terminal successes, cancelled and expired terminal failures.
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusPaid, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusHeld:    {StatusPending, StatusCancelled},
	StatusPending: {StatusConfirmed, StatusPaid, StatusCancelled, StatusExpired},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	// PaymentOnline is captured immediately; the invoice starts confirmed.
	PaymentOnline PaymentMethod = "online"
	// PaymentCounter is settled in person; the invoice starts pending with a hold deadline.
	PaymentCounter PaymentMethod = "counter"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentOnline || m == PaymentCounter
}

type Invoice struct {
	ID            string
	BookingID     string
	BranchID      string
	CustomerID    string
	LineItems     []pricing.Line
	Subtotal      int64
	Discount      int64
	Total         int64
	PaymentMethod PaymentMethod
	Status        Status
	IssuedBy      string

	StartsAt      time.Time  // Start of the booked court time
	HoldExpiresAt *time.Time // Counter payments only

	CancelReason    string
	CancellationFee int64

	SettledAt *time.Time
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (inv *Invoice) Clone() *Invoice {
	cp := *inv
	cp.LineItems = append([]pricing.Line(nil), inv.LineItems...)
	return &cp
}

type CancellationRule string

const (
	RuleBefore24h CancellationRule = "before_24h"
	RuleWithin24h CancellationRule = "within_24h"
	RuleNoShow    CancellationRule = "no_show"
)

type CancellationQuote struct {
	InvoiceID string
	Rule      CancellationRule
	Percent   int
	Fee       int64
}

type CancelledInvoice struct {
	Invoice *Invoice
	Quote   CancellationQuote
}

// ComputeCancellation picks the fee rule by time left until startsAt.
// Exactly 24h before start already counts as within 24h.
func ComputeCancellation(total int64, startsAt, now time.Time, p branch.Policy) CancellationQuote {
	var q CancellationQuote
	switch left := startsAt.Sub(now); {
	case left <= 0:
		q.Rule, q.Percent = RuleNoShow, p.NoShowFeePct
	case left > 24*time.Hour:
		q.Rule, q.Percent = RuleBefore24h, p.CancelFeeBeforePct
	default:
		q.Rule, q.Percent = RuleWithin24h, p.CancelFeeWithinPct
	}
	q.Fee = pricing.PercentOf(total, q.Percent)
	return q
}

type Filter struct {
	BookingID     string
	CustomerID    string
	BranchID      string
	Statuses      []Status
	ExpiresBefore *time.Time // Hold deadline at or before this time
	Page          int
	PageSize      int // 0 returns every match
}
