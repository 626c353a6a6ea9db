package report

import "time"

// Week is one Monday-based bucket of a month. Start and End are inclusive
// dates at midnight; partial weeks are clipped to the month.
type Week struct {
	Number int
	Start  time.Time
	End    time.Time
}

// Contains reports whether t falls on one of the week's days.
func (w Week) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End.AddDate(0, 0, 1))
}

// WeeksInMonth partitions the month into Monday-based weeks in UTC.
func WeeksInMonth(year int, month time.Month) []Week {
	return weeksIn(year, month, time.UTC)
}

func weeksIn(year int, month time.Month, loc *time.Location) []Week {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1)

	var weeks []Week
	for start := first; !start.After(last); {
		sinceMonday := (int(start.Weekday()) + 6) % 7
		end := start.AddDate(0, 0, 6-sinceMonday)
		if end.After(last) {
			end = last
		}
		weeks = append(weeks, Week{Number: len(weeks) + 1, Start: start, End: end})
		start = end.AddDate(0, 0, 1)
	}
	return weeks
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
