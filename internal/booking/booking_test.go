package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/facility-booking-core/internal/calendar"
)

func hours(day time.Time, from, to int) calendar.TimeSlot {
	return calendar.TimeSlot{
		ResourceID: "101",
		Start:      day.Add(time.Duration(from) * time.Hour),
		End:        day.Add(time.Duration(to) * time.Hour),
	}
}

func TestCourtBookingBounds(t *testing.T) {
	day := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	b := &CourtBooking{Slots: []calendar.TimeSlot{hours(day, 18, 19), hours(day, 9, 10), hours(day, 12, 14)}}

	assert.Equal(t, day.Add(9*time.Hour), b.StartsAt())
	assert.Equal(t, day.Add(19*time.Hour), b.EndsAt())
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, StatusHeld.AcceptsServices())
	assert.True(t, StatusPending.AcceptsServices())
	assert.False(t, StatusConfirmed.AcceptsServices())
	assert.False(t, StatusPaid.AcceptsServices())
	assert.False(t, StatusCancelled.AcceptsServices())

	assert.True(t, StatusPaid.Occupying())
	assert.False(t, StatusCancelled.Occupying())
}

func TestValidateItems(t *testing.T) {
	tests := []struct {
		name    string
		items   []ServiceItem
		coaches []CoachItem
		wantErr error
	}{
		{name: "empty"},
		{
			name:    "valid",
			items:   []ServiceItem{{ServiceID: "water", Quantity: 2, UnitPrice: 10000}},
			coaches: []CoachItem{{CoachID: "c1", Quantity: 1, HourlyRate: 200000, Duration: time.Hour}},
		},
		{name: "zero quantity", items: []ServiceItem{{ServiceID: "water", Quantity: 0}}, wantErr: ErrInvalidQuantity},
		{name: "negative price", items: []ServiceItem{{ServiceID: "water", Quantity: 1, UnitPrice: -1}}, wantErr: ErrInvalidPrice},
		{name: "coach without duration", coaches: []CoachItem{{CoachID: "c1", Quantity: 1, HourlyRate: 1}}, wantErr: ErrInvalidDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateItems(tt.items, tt.coaches)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	day := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	morning := &CourtBooking{CustomerID: "cus-1", CourtID: "101", BranchID: "d1", Slots: []calendar.TimeSlot{hours(day, 9, 10)}, Status: StatusPaid}
	evening := &CourtBooking{CustomerID: "cus-2", CourtID: "101", BranchID: "d1", Slots: []calendar.TimeSlot{hours(day, 18, 19)}, Status: StatusHeld}
	nextDay := &CourtBooking{CustomerID: "cus-1", CourtID: "102", BranchID: "d2", Slots: []calendar.TimeSlot{hours(day.AddDate(0, 0, 1), 9, 10)}, Status: StatusCancelled}
	for _, b := range []*CourtBooking{evening, nextDay, morning} {
		require.NoError(t, repo.CreateCourtBooking(ctx, b))
		require.NotEmpty(t, b.ID)
	}

	t.Run("Stored copy is isolated", func(t *testing.T) {
		morning.Slots[0].ResourceID = "mutated"
		got, err := repo.GetCourtBooking(ctx, morning.ID)
		require.NoError(t, err)
		assert.Equal(t, "101", got.Slots[0].ResourceID)
		morning.Slots[0].ResourceID = "101"
	})

	t.Run("Filter by status and range", func(t *testing.T) {
		from, to := day, day.AddDate(0, 0, 1)
		list, total, err := repo.ListCourtBookings(ctx, Filter{
			Statuses: []Status{StatusPaid, StatusHeld},
			From:     &from,
			To:       &to,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Equal(t, morning.ID, list[0].ID, "ordered by start")
		assert.Equal(t, evening.ID, list[1].ID)
	})

	t.Run("Filter by customer with pagination", func(t *testing.T) {
		list, total, err := repo.ListCourtBookings(ctx, Filter{CustomerID: "cus-1", Page: 2, PageSize: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, list, 1)
		assert.Equal(t, nextDay.ID, list[0].ID)
	})

	t.Run("Update", func(t *testing.T) {
		evening.Status = StatusPending
		require.NoError(t, repo.UpdateCourtBooking(ctx, evening))
		got, err := repo.GetCourtBooking(ctx, evening.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)

		assert.ErrorIs(t, repo.UpdateCourtBooking(ctx, &CourtBooking{ID: "missing"}), ErrNotFound)
	})

	t.Run("Service booking is replaced in place", func(t *testing.T) {
		sb := &ServiceBooking{CourtBookingID: evening.ID, Items: []ServiceItem{{ServiceID: "water", Quantity: 1, UnitPrice: 10000}}}
		require.NoError(t, repo.SaveServiceBooking(ctx, sb))
		firstID := sb.ID

		replacement := &ServiceBooking{CourtBookingID: evening.ID, Items: []ServiceItem{{ServiceID: "shuttle", Quantity: 3, UnitPrice: 25000}}}
		require.NoError(t, repo.SaveServiceBooking(ctx, replacement))
		assert.Equal(t, firstID, replacement.ID)

		got, err := repo.GetServiceBooking(ctx, evening.ID)
		require.NoError(t, err)
		require.Len(t, got.Items, 1)
		assert.Equal(t, "shuttle", got.Items[0].ServiceID)

		_, err = repo.GetServiceBooking(ctx, morning.ID)
		assert.ErrorIs(t, err, ErrServiceBookingNotFound)

		assert.ErrorIs(t, repo.SaveServiceBooking(ctx, &ServiceBooking{CourtBookingID: "orphan"}), ErrNotFound)
	})
}
