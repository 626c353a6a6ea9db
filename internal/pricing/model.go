package pricing

import (
	"github.com/nekogravitycat/facility-booking-core/internal/calendar"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/apperror"
)

var (
	ErrNoCourtBooking   = apperror.New(apperror.KindInvalidInput, "a court booking is required for pricing")
	ErrInvalidPercent   = apperror.New(apperror.KindInvalidInput, "discount percent must be within 0..100")
	ErrUnknownPromotion = apperror.New(apperror.KindInvalidInput, "unknown promotion code")
)

// Tier is a membership level. Higher tiers never stack with lower ones.
type Tier string

const (
	TierNone     Tier = ""
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

var tierRank = map[Tier]int{
	TierNone:     0,
	TierSilver:   1,
	TierGold:     2,
	TierPlatinum: 3,
}

func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// HighestTier picks the best tier; unknown tiers rank below Silver.
func HighestTier(tiers []Tier) Tier {
	best := TierNone
	for _, t := range tiers {
		if tierRank[t] > tierRank[best] {
			best = t
		}
	}
	return best
}

// TierTable maps a tier to its discount percent.
type TierTable map[Tier]int

func DefaultTierTable() TierTable {
	return TierTable{
		TierSilver:   5,
		TierGold:     10,
		TierPlatinum: 20,
	}
}

type Promotion struct {
	Code    string
	Percent int
}

type SurchargeKind string

const (
	SurchargeNight   SurchargeKind = "night"
	SurchargeWeekend SurchargeKind = "weekend"
	SurchargeHoliday SurchargeKind = "holiday"
)

// Surcharge is one triggered increment for one slot.
type Surcharge struct {
	Kind   SurchargeKind
	Slot   calendar.TimeSlot
	Amount int64
}

// Line is a printable charge or credit. Discounts carry negative amounts.
type Line struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Amount      int64  `json:"amount"`
}

const (
	LineCourt         = "court"
	LineService       = "service"
	LineCoach         = "coach"
	LineTierDiscount  = "tier_discount"
	LinePromoDiscount = "promo_discount"
)

// Breakdown is the full pricing result. All amounts are integral currency units.
type Breakdown struct {
	CourtFee       int64
	ServiceFee     int64
	Surcharges     []Surcharge
	SurchargeTotal int64
	Subtotal       int64 // CourtFee + SurchargeTotal + ServiceFee

	Tier          Tier
	TierDiscount  int64
	PromoCode     string
	PromoDiscount int64
	Discount      int64 // TierDiscount + PromoDiscount

	Total int64
	Lines []Line
}
