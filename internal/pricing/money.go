package pricing

import (
	"time"

	"github.com/nekogravitycat/facility-booking-core/internal/booking"
	"github.com/nekogravitycat/facility-booking-core/internal/calendar"
)

// RoundHalfUp divides num by den rounding halves away from zero.
// den must be positive.
func RoundHalfUp(num, den int64) int64 {
	if num < 0 {
		return -RoundHalfUp(-num, den)
	}
	return (num*2 + den) / (den * 2)
}

// PercentOf returns pct% of amount, rounded half-up to a whole unit.
func PercentOf(amount int64, pct int) int64 {
	return RoundHalfUp(amount*int64(pct), 100)
}

func slotFee(pricePerHour int64, slot calendar.TimeSlot) int64 {
	return hourly(pricePerHour, slot.Duration())
}

func coachFee(c booking.CoachItem) int64 {
	return hourly(c.HourlyRate*int64(c.Quantity), c.Duration)
}

// hourly prices d at rate per hour, to the minute.
func hourly(rate int64, d time.Duration) int64 {
	return RoundHalfUp(rate*int64(d/time.Minute), 60)
}

// CourtFee is the base fee for all slots at pricePerHour.
func CourtFee(pricePerHour int64, slots []calendar.TimeSlot) int64 {
	var total int64
	for _, s := range slots {
		total += slotFee(pricePerHour, s)
	}
	return total
}

// ServiceFee is Σ(unit × qty) for items plus Σ(rate × qty × duration) for coaches.
func ServiceFee(items []booking.ServiceItem, coaches []booking.CoachItem) int64 {
	var total int64
	for _, it := range items {
		total += it.UnitPrice * int64(it.Quantity)
	}
	for _, c := range coaches {
		total += coachFee(c)
	}
	return total
}
