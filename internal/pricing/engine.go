package pricing

import (
	"fmt"
	"time"

	"github.com/nekogravitycat/facility-booking-core/internal/booking"
	"github.com/nekogravitycat/facility-booking-core/internal/branch"
	"github.com/nekogravitycat/facility-booking-core/internal/calendar"
)

type Input struct {
	Court      *booking.CourtBooking
	Services   *booking.ServiceBooking // Optional
	Policy     branch.Policy
	Membership []Tier
	Promo      *Promotion // Optional
}

type Engine struct {
	holidays branch.HolidayCalendar
	tiers    TierTable
}

// NewEngine builds an engine. A nil holiday calendar means no holidays.
func NewEngine(holidays branch.HolidayCalendar, tiers TierTable) *Engine {
	if tiers == nil {
		tiers = DefaultTierTable()
	}
	return &Engine{holidays: holidays, tiers: tiers}
}

func (e *Engine) Price(in Input) (Breakdown, error) {
	if in.Court == nil || len(in.Court.Slots) == 0 {
		return Breakdown{}, ErrNoCourtBooking
	}
	if in.Court.PricePerHour < 0 {
		return Breakdown{}, booking.ErrInvalidPrice
	}

	var b Breakdown

	for _, slot := range in.Court.Slots {
		fee := slotFee(in.Court.PricePerHour, slot)
		b.CourtFee += fee
		b.Lines = append(b.Lines, Line{
			Code:        LineCourt,
			Description: fmt.Sprintf("Court %s %s", slot.ResourceID, formatSlot(slot)),
			Quantity:    1,
			Amount:      fee,
		})
	}

	b.Surcharges = e.surcharges(in.Court.Slots, in.Policy)
	for _, s := range b.Surcharges {
		b.SurchargeTotal += s.Amount
		b.Lines = append(b.Lines, Line{
			Code:        "surcharge_" + string(s.Kind),
			Description: fmt.Sprintf("%s surcharge %s", s.Kind, formatSlot(s.Slot)),
			Quantity:    1,
			Amount:      s.Amount,
		})
	}

	if in.Services != nil {
		if err := booking.ValidateItems(in.Services.Items, in.Services.Coaches); err != nil {
			return Breakdown{}, err
		}
		for _, it := range in.Services.Items {
			amount := it.UnitPrice * int64(it.Quantity)
			b.ServiceFee += amount
			b.Lines = append(b.Lines, Line{Code: LineService, Description: it.ServiceID, Quantity: it.Quantity, Amount: amount})
		}
		for _, c := range in.Services.Coaches {
			amount := coachFee(c)
			b.ServiceFee += amount
			b.Lines = append(b.Lines, Line{
				Code:        LineCoach,
				Description: fmt.Sprintf("%s x %s", c.CoachID, c.Duration),
				Quantity:    c.Quantity,
				Amount:      amount,
			})
		}
	}

	b.Subtotal = b.CourtFee + b.SurchargeTotal + b.ServiceFee

	// Tier first, then the promotion compounds on what is left.
	b.Tier = HighestTier(in.Membership)
	tierPct := e.tiers[b.Tier]
	if tierPct < 0 || tierPct > 100 {
		return Breakdown{}, fmt.Errorf("%w: tier %s has %d%%", ErrInvalidPercent, b.Tier, tierPct)
	}
	b.TierDiscount = PercentOf(b.Subtotal, tierPct)
	afterTier := b.Subtotal - b.TierDiscount

	if in.Promo != nil {
		if in.Promo.Percent < 0 || in.Promo.Percent > 100 {
			return Breakdown{}, fmt.Errorf("%w: promotion %s", ErrInvalidPercent, in.Promo.Code)
		}
		b.PromoCode = in.Promo.Code
		b.PromoDiscount = PercentOf(afterTier, in.Promo.Percent)
	}

	if b.TierDiscount > 0 {
		b.Lines = append(b.Lines, Line{Code: LineTierDiscount, Description: fmt.Sprintf("%s member %d%%", b.Tier, tierPct), Quantity: 1, Amount: -b.TierDiscount})
	}
	if b.PromoDiscount > 0 {
		b.Lines = append(b.Lines, Line{Code: LinePromoDiscount, Description: fmt.Sprintf("promotion %s %d%%", in.Promo.Code, in.Promo.Percent), Quantity: 1, Amount: -b.PromoDiscount})
	}

	b.Discount = b.TierDiscount + b.PromoDiscount
	b.Total = b.Subtotal - b.Discount
	if b.Total < 0 {
		b.Total = 0
	}
	return b, nil
}

// surcharges applies every triggered surcharge to every slot; they are additive.
func (e *Engine) surcharges(slots []calendar.TimeSlot, p branch.Policy) []Surcharge {
	var out []Surcharge
	for _, slot := range slots {
		if p.NightSurcharge > 0 && p.IsNight(slot.Start.Hour()) {
			out = append(out, Surcharge{Kind: SurchargeNight, Slot: slot, Amount: p.NightSurcharge})
		}
		if wd := slot.Start.Weekday(); p.WeekendSurcharge > 0 && (wd == time.Saturday || wd == time.Sunday) {
			out = append(out, Surcharge{Kind: SurchargeWeekend, Slot: slot, Amount: p.WeekendSurcharge})
		}
		if p.HolidaySurcharge > 0 && e.holidays != nil && e.holidays.IsHoliday(slot.Start) {
			out = append(out, Surcharge{Kind: SurchargeHoliday, Slot: slot, Amount: p.HolidaySurcharge})
		}
	}
	return out
}

func formatSlot(s calendar.TimeSlot) string {
	return s.Start.Format("2006-01-02 15:04") + "-" + s.End.Format("15:04")
}
