package branch

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound            = errors.New("branch not found")
	ErrNameRequired        = errors.New("branch name is required")
	ErrInvalidOpeningHours = errors.New("invalid opening hours")
	ErrInvalidPolicy       = errors.New("invalid branch policy")
)

// Branch is a physical facility. Courts, staff and pricing policy are scoped to it.
type Branch struct {
	ID                string
	Name              string
	Address           string
	OpeningHoursStart string // Format: HH:MM or HH:MM:SS
	OpeningHoursEnd   string
	CreatedAt         time.Time
}

// OperatingHours returns how long the branch is open each day.
func (b *Branch) OperatingHours() (time.Duration, error) {
	opening, err := parseClock(b.OpeningHoursStart)
	if err != nil {
		return 0, ErrInvalidOpeningHours
	}
	closing, err := parseClock(b.OpeningHoursEnd)
	if err != nil {
		return 0, ErrInvalidOpeningHours
	}
	// Single-day operation: closing must come after opening.
	if !closing.After(opening) {
		return 0, ErrInvalidOpeningHours
	}
	return closing.Sub(opening), nil
}

func parseClock(s string) (time.Time, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		t, err = time.Parse("15:04", s)
	}
	return t, err
}

type Filter struct {
	Keyword  string
	Page     int
	PageSize int
}

// Policy is the per-branch configuration read by pricing and invoicing.
// Percentages are whole percents in [0, 100]; amounts are integral currency units.
type Policy struct {
	BranchID string

	CancelFeeBeforePct int // Cancelled more than 24h before start
	CancelFeeWithinPct int // Cancelled within 24h of start
	NoShowFeePct       int // Cancelled after start

	// Night window [NightStartHour, NightEndHour), wrapping past midnight when
	// start > end. Equal values disable the night surcharge.
	NightStartHour   int
	NightEndHour     int
	NightSurcharge   int64
	WeekendSurcharge int64
	HolidaySurcharge int64

	// LoyaltyPointRate is the spend in currency units that earns one point; 0 disables accrual.
	LoyaltyPointRate int64

	// HoldTimeout bounds how long an unpaid counter hold survives.
	HoldTimeout time.Duration
}

const DefaultHoldTimeout = 30 * time.Minute

func DefaultPolicy() Policy {
	return Policy{
		CancelFeeBeforePct: 10,
		CancelFeeWithinPct: 50,
		NoShowFeePct:       100,
		NightStartHour:     18,
		NightEndHour:       6,
		HoldTimeout:        DefaultHoldTimeout,
	}
}

func (p Policy) Validate() error {
	for name, pct := range map[string]int{
		"cancel_fee_before_pct": p.CancelFeeBeforePct,
		"cancel_fee_within_pct": p.CancelFeeWithinPct,
		"no_show_fee_pct":       p.NoShowFeePct,
	} {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("%w: %s must be within 0..100", ErrInvalidPolicy, name)
		}
	}
	if p.NightStartHour < 0 || p.NightStartHour > 23 || p.NightEndHour < 0 || p.NightEndHour > 24 {
		return fmt.Errorf("%w: night window hours out of range", ErrInvalidPolicy)
	}
	if p.NightSurcharge < 0 || p.WeekendSurcharge < 0 || p.HolidaySurcharge < 0 {
		return fmt.Errorf("%w: surcharges cannot be negative", ErrInvalidPolicy)
	}
	if p.LoyaltyPointRate < 0 {
		return fmt.Errorf("%w: loyalty point rate cannot be negative", ErrInvalidPolicy)
	}
	if p.HoldTimeout <= 0 {
		return fmt.Errorf("%w: hold timeout must be positive", ErrInvalidPolicy)
	}
	return nil
}

// IsNight reports whether hour falls in the night window.
func (p Policy) IsNight(hour int) bool {
	switch {
	case p.NightStartHour == p.NightEndHour:
		return false
	case p.NightStartHour < p.NightEndHour:
		return hour >= p.NightStartHour && hour < p.NightEndHour
	default:
		return hour >= p.NightStartHour || hour < p.NightEndHour
	}
}

// LoyaltyPoints returns the points earned for spending total.
func (p Policy) LoyaltyPoints(total int64) int64 {
	if p.LoyaltyPointRate <= 0 || total <= 0 {
		return 0
	}
	return total / p.LoyaltyPointRate
}
