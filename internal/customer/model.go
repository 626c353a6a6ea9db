package customer

import (
	"time"

	"github.com/nekogravitycat/facility-booking-core/internal/pkg/apperror"
	"github.com/nekogravitycat/facility-booking-core/internal/pricing"
)

var (
	ErrNotFound         = apperror.New(apperror.KindNotFound, "customer not found")
	ErrEmailAlreadyUsed = apperror.New(apperror.KindConflict, "email already used")
	ErrEmailRequired    = apperror.New(apperror.KindInvalidInput, "email is required")
	ErrInvalidTier      = apperror.New(apperror.KindInvalidInput, "invalid membership tier")
	ErrInvalidPoints    = apperror.New(apperror.KindInvalidInput, "points must be positive")
)

// Customer is a person who books courts. Memberships drive the tier discount.
type Customer struct {
	ID            string // UUID
	Email         string
	DisplayName   *string
	Phone         *string
	Memberships   []Membership
	LoyaltyPoints int64
	CreatedAt     time.Time
}

// Membership grants a tier until ValidUntil. A nil ValidUntil never lapses.
type Membership struct {
	Tier       pricing.Tier `json:"tier"`
	ValidUntil *time.Time   `json:"valid_until,omitempty"`
}

func (m Membership) ActiveAt(t time.Time) bool {
	return m.ValidUntil == nil || t.Before(*m.ValidUntil)
}

func (c *Customer) Clone() *Customer {
	cp := *c
	cp.Memberships = append([]Membership(nil), c.Memberships...)
	return &cp
}

// CustomerFilter defines filter options for listing customers.
type CustomerFilter struct {
	Email       string
	DisplayName string

	Page     int
	PageSize int
}
