package branch

import (
	"fmt"
	"time"
)

// HolidayCalendar answers whether a date is a public holiday.
type HolidayCalendar interface {
	IsHoliday(date time.Time) bool
}

const dateLayout = "2006-01-02"

// HolidaySet is a fixed set of calendar dates.
type HolidaySet struct {
	dates map[string]struct{}
}

// NewHolidaySet parses YYYY-MM-DD dates.
func NewHolidaySet(dates ...string) (*HolidaySet, error) {
	set := &HolidaySet{dates: make(map[string]struct{}, len(dates))}
	for _, d := range dates {
		t, err := time.Parse(dateLayout, d)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", d, err)
		}
		set.dates[t.Format(dateLayout)] = struct{}{}
	}
	return set, nil
}

// IsHoliday compares the calendar date of t in t's own location.
func (h *HolidaySet) IsHoliday(t time.Time) bool {
	if h == nil {
		return false
	}
	_, ok := h.dates[t.Format(dateLayout)]
	return ok
}

func (h *HolidaySet) Len() int {
	if h == nil {
		return 0
	}
	return len(h.dates)
}
