package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nekogravitycat/facility-booking-core/internal/booking"
	"github.com/nekogravitycat/facility-booking-core/internal/branch"
	"github.com/nekogravitycat/facility-booking-core/internal/calendar"
	"github.com/nekogravitycat/facility-booking-core/internal/customer"
	"github.com/nekogravitycat/facility-booking-core/internal/events"
	"github.com/nekogravitycat/facility-booking-core/internal/invoice"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/clock"
	"github.com/nekogravitycat/facility-booking-core/internal/pricing"
	"github.com/nekogravitycat/facility-booking-core/internal/resource"
)

var (
	now      = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	saturday = time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
)

func hours(from, to int) calendar.TimeSlot {
	return calendar.TimeSlot{
		Start: saturday.Add(time.Duration(from) * time.Hour),
		End:   saturday.Add(time.Duration(to) * time.Hour),
	}
}

type fixture struct {
	svc       Service
	clock     *clock.Fixed
	calendar  calendar.Service
	bookings  booking.Repository
	invoices  invoice.Service
	customers customer.Service
	recorder  *events.Recorder
	deps      Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	branches := branch.NewService(branch.NewMemoryRepository())
	br, err := branches.Create(ctx, branch.CreateRequest{Name: "Riverside", OpeningHoursStart: "06:00", OpeningHoursEnd: "22:00"})
	require.NoError(t, err)
	courts := resource.NewService(resource.NewMemoryRepository(), branches)
	_, err = courts.Create(ctx, resource.CreateRequest{
		ID: "101", Name: "Court 101", BranchID: br.ID, Kind: resource.KindCourt, CourtType: "badminton", PricePerHour: 100000,
	})
	require.NoError(t, err)

	policy := branch.DefaultPolicy()
	policy.NightSurcharge = 30000
	policy.WeekendSurcharge = 20000
	settings := branch.NewStaticSettings(policy)

	f := &fixture{
		clock:     clock.NewFixed(now),
		calendar:  calendar.NewService(calendar.NewMemoryRepository(), zap.NewNop(), nil),
		bookings:  booking.NewMemoryRepository(),
		customers: customer.NewService(customer.NewMemoryRepository()),
		recorder:  events.NewRecorder(),
	}
	f.invoices = invoice.NewService(invoice.NewMemoryRepository(), invoice.Deps{
		Bookings: f.bookings,
		Slots:    f.calendar,
		Settings: settings,
		Loyalty:  f.customers,
		Events:   f.recorder,
		Clock:    f.clock,
	})
	f.deps = Deps{
		Calendar:    f.calendar,
		Bookings:    f.bookings,
		Courts:      courts,
		Engine:      pricing.NewEngine(nil, nil),
		Settings:    settings,
		Invoices:    f.invoices,
		Memberships: f.customers,
		Promotions:  pricing.NewPromoBook(map[string]int{"SPRING10": 10}),
		Events:      f.recorder,
		Clock:       f.clock,
	}
	f.svc = NewService(f.deps)
	return f
}

func (f *fixture) free(t *testing.T, slot calendar.TimeSlot) bool {
	t.Helper()
	slot.ResourceID = "101"
	ok, err := f.calendar.IsAvailable(context.Background(), slot)
	require.NoError(t, err)
	return ok
}

func receptionist() Actor {
	return Actor{UserID: "staff-1", Role: RoleReceptionist}
}

func TestSessionGuards(t *testing.T) {
	sess := NewSession(receptionist(), "")
	assert.Equal(t, StepCourt, sess.Step)
	assert.True(t, sess.CanAccessStep(StepCourt))
	assert.False(t, sess.CanAccessStep(StepServices))
	assert.False(t, sess.CanAccessStep(StepPayment))

	assert.False(t, sess.GoTo(StepPayment))
	assert.Equal(t, StepCourt, sess.Step)

	sess.CourtBookingID = "b1"
	assert.True(t, sess.GoTo(StepPayment))
	assert.Equal(t, StepPayment, sess.Step)
	assert.False(t, sess.GoTo(StepCompleted))

	sess.InvoiceID = "inv-1"
	assert.False(t, sess.CanAccessStep(StepServices))
	assert.False(t, sess.CanAccessStep(StepPayment))
	assert.True(t, sess.GoTo(StepCompleted))
	assert.False(t, sess.GoTo(StepServices))
	assert.Equal(t, StepCompleted, sess.Step)

	customerSess := NewSession(Actor{UserID: "cust-9", Role: RoleCustomer}, "")
	assert.Equal(t, "cust-9", customerSess.CustomerID)
}

func TestSelectCourtHoldsSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := NewSession(receptionist(), "")

	b, err := f.svc.SelectCourt(ctx, sess, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(20, 21), hours(18, 19)}})
	require.NoError(t, err)
	assert.Equal(t, booking.StatusHeld, b.Status)
	assert.Len(t, b.ReservationIDs, 2)
	assert.Equal(t, saturday.Add(18*time.Hour), b.StartsAt())
	assert.EqualValues(t, 200000, b.TotalCourtFee)
	assert.Equal(t, StepServices, sess.Step)
	assert.Equal(t, b.ID, sess.CourtBookingID)
	assert.False(t, f.free(t, hours(18, 19)))
	assert.True(t, f.free(t, hours(19, 20)))
	assert.Equal(t, []string{events.BookingHeld}, f.recorder.Keys())
}

func TestSelectCourtConflictLeavesNoPartialHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := NewSession(receptionist(), "")
	_, err := f.svc.SelectCourt(ctx, first, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(19, 20)}})
	require.NoError(t, err)

	second := NewSession(receptionist(), "")
	_, err = f.svc.SelectCourt(ctx, second, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(18, 19), hours(19, 20)}})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.ErrorIs(t, err, calendar.ErrConflict)
	assert.Equal(t, StepCourt, second.Step)
	assert.Empty(t, second.CourtBookingID)
	assert.True(t, f.free(t, hours(18, 19)))
}

func TestSelectCourtRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := NewSession(receptionist(), "")

	_, err := f.svc.SelectCourt(ctx, sess, SelectCourtRequest{CourtID: "101"})
	assert.ErrorIs(t, err, booking.ErrNoSlots)

	_, err = f.svc.SelectCourt(ctx, sess, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(18, 18)}})
	assert.ErrorIs(t, err, calendar.ErrInvalidSlot)

	_, err = f.svc.SelectCourt(ctx, sess, SelectCourtRequest{CourtID: "404", Slots: []calendar.TimeSlot{hours(18, 19)}})
	assert.ErrorIs(t, err, resource.ErrNotFound)
}

func TestReselectReleasesPreviousHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := NewSession(receptionist(), "")

	first, err := f.svc.SelectCourt(ctx, sess, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(18, 19)}})
	require.NoError(t, err)
	_, err = f.svc.SelectCourt(ctx, sess, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(10, 11)}})
	require.NoError(t, err)

	assert.True(t, f.free(t, hours(18, 19)))
	stored, err := f.bookings.GetCourtBooking(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, stored.Status)
}

func TestCounterFlowEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.customers.Register(ctx, customer.RegisterRequest{Email: "lan@example.com"})
	require.NoError(t, err)
	require.NoError(t, f.customers.GrantMembership(ctx, c.ID, customer.Membership{Tier: pricing.TierGold}))

	sess := NewSession(receptionist(), c.ID)
	b, err := f.svc.SelectCourt(ctx, sess, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(18, 19)}})
	require.NoError(t, err)

	sb, err := f.svc.AttachServices(ctx, sess, []booking.ServiceItem{{ServiceID: "water", Quantity: 2, UnitPrice: 10000}}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 20000, sb.TotalServiceFee)
	assert.Equal(t, StepPayment, sess.Step)

	stored, err := f.bookings.GetCourtBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, stored.Status)

	promo, err := f.svc.ApplyPromo(ctx, sess, "spring10")
	require.NoError(t, err)
	assert.Equal(t, "SPRING10", promo.Code)

	// 100000 court + 30000 night + 20000 weekend + 20000 water, then gold 10%, then promo 10%.
	quote, err := f.svc.Quote(ctx, sess)
	require.NoError(t, err)
	assert.EqualValues(t, 170000, quote.Subtotal)
	assert.Equal(t, pricing.TierGold, quote.Tier)
	assert.EqualValues(t, 137700, quote.Total)

	inv, err := f.svc.Finalize(ctx, sess, invoice.PaymentCounter)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, inv.Status)
	assert.Equal(t, quote.Total, inv.Total)
	assert.Equal(t, StepCompleted, sess.Step)
	assert.Equal(t, inv.ID, sess.InvoiceID)

	_, err = f.svc.Finalize(ctx, sess, invoice.PaymentCounter)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)

	list, total, err := f.invoices.List(ctx, invoice.Filter{BookingID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)

	stored, err = f.bookings.GetCourtBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, stored.Status)
}

func TestOnlineFinalizeConfirmsBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := NewSession(receptionist(), "")

	b, err := f.svc.SelectCourt(ctx, sess, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(9, 10)}})
	require.NoError(t, err)

	// Services are optional; payment is reachable once a court is held.
	require.True(t, sess.GoTo(StepPayment))
	inv, err := f.svc.Finalize(ctx, sess, invoice.PaymentOnline)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusConfirmed, inv.Status)

	stored, err := f.bookings.GetCourtBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, stored.Status)

	_, err = f.svc.AttachServices(ctx, sess, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidBookingState)

	other := NewSession(receptionist(), "")
	_, err = f.svc.ResumeBooking(ctx, other, b.ID)
	assert.ErrorIs(t, err, ErrInvalidBookingState)
}

func TestConcurrentFinalizeCreatesOneInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := NewSession(receptionist(), "")
	b, err := f.svc.SelectCourt(ctx, sess, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(9, 10)}})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			copySess := *sess
			_, results[i] = f.svc.Finalize(ctx, &copySess, invoice.PaymentCounter)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, ErrAlreadyFinalized), err)
	}
	assert.Equal(t, 1, ok)

	_, total, err := f.invoices.List(ctx, invoice.Filter{BookingID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestGatedOperationsNeedSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := NewSession(receptionist(), "")

	_, err := f.svc.AttachServices(ctx, sess, nil, nil)
	assert.ErrorIs(t, err, ErrNoSelection)
	_, err = f.svc.Quote(ctx, sess)
	assert.ErrorIs(t, err, ErrNoSelection)
	_, err = f.svc.Finalize(ctx, sess, invoice.PaymentOnline)
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestApplyUnknownPromo(t *testing.T) {
	f := newFixture(t)
	sess := NewSession(receptionist(), "")

	_, err := f.svc.ApplyPromo(context.Background(), sess, "NOPE")
	assert.ErrorIs(t, err, pricing.ErrUnknownPromotion)
	assert.Empty(t, sess.PromoCode)
}

func TestResetReleasesHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := NewSession(receptionist(), "cust-1")

	b, err := f.svc.SelectCourt(ctx, sess, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(18, 19)}})
	require.NoError(t, err)
	_, err = f.svc.ApplyPromo(ctx, sess, "SPRING10")
	require.NoError(t, err)

	require.NoError(t, f.svc.Reset(ctx, sess))
	assert.Equal(t, StepCourt, sess.Step)
	assert.Empty(t, sess.CourtBookingID)
	assert.Empty(t, sess.PromoCode)
	assert.Equal(t, "cust-1", sess.CustomerID)
	assert.True(t, f.free(t, hours(18, 19)))

	stored, err := f.bookings.GetCourtBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, stored.Status)

	require.NoError(t, f.svc.Reset(ctx, sess))
}

func TestResetKeepsInvoicedBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := NewSession(receptionist(), "")

	_, err := f.svc.SelectCourt(ctx, sess, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(18, 19)}})
	require.NoError(t, err)
	_, err = f.svc.Finalize(ctx, sess, invoice.PaymentCounter)
	require.NoError(t, err)

	require.NoError(t, f.svc.Reset(ctx, sess))
	assert.False(t, f.free(t, hours(18, 19)))
}

func TestResumeBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := NewSession(receptionist(), "cust-2")
	b, err := f.svc.SelectCourt(ctx, first, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(18, 19)}})
	require.NoError(t, err)
	sb, err := f.svc.AttachServices(ctx, first, []booking.ServiceItem{{ServiceID: "towel", Quantity: 1, UnitPrice: 5000}}, nil)
	require.NoError(t, err)

	resumed := NewSession(receptionist(), "")
	got, err := f.svc.ResumeBooking(ctx, resumed, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, "cust-2", resumed.CustomerID)
	assert.Equal(t, sb.ID, resumed.ServiceBookingID)
	assert.True(t, resumed.CanAccessStep(StepPayment))
}

func TestReleaseAbandoned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := NewSession(receptionist(), "")
	_, err := f.svc.SelectCourt(ctx, stale, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(18, 19)}})
	require.NoError(t, err)

	invoiced := NewSession(receptionist(), "")
	_, err = f.svc.SelectCourt(ctx, invoiced, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(10, 11)}})
	require.NoError(t, err)
	_, err = f.svc.Finalize(ctx, invoiced, invoice.PaymentCounter)
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	fresh := NewSession(receptionist(), "")
	_, err = f.svc.SelectCourt(ctx, fresh, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(12, 13)}})
	require.NoError(t, err)

	f.clock.Advance(25 * time.Minute)
	n, err := f.svc.ReleaseAbandoned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.True(t, f.free(t, hours(18, 19)))
	assert.False(t, f.free(t, hours(10, 11)))
	assert.False(t, f.free(t, hours(12, 13)))
}

func TestFinalizedBookingRejectsChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := NewSession(receptionist(), "")

	b, err := f.svc.SelectCourt(ctx, sess, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(10, 11)}})
	require.NoError(t, err)
	_, err = f.svc.AttachServices(ctx, sess, []booking.ServiceItem{{ServiceID: "water", Quantity: 1, UnitPrice: 10000}}, nil)
	require.NoError(t, err)
	stale := *sess

	inv, err := f.svc.Finalize(ctx, sess, invoice.PaymentCounter)
	require.NoError(t, err)

	rackets := []booking.ServiceItem{{ServiceID: "racket", Quantity: 5, UnitPrice: 50000}}
	_, err = f.svc.AttachServices(ctx, sess, rackets, nil)
	assert.ErrorIs(t, err, ErrInvalidBookingState)
	assert.Equal(t, StepCompleted, sess.Step)
	assert.False(t, sess.GoTo(StepServices))

	_, err = f.svc.Quote(ctx, sess)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)

	// A copy of the session taken before finalizing must not get around the invoice.
	_, err = f.svc.AttachServices(ctx, &stale, rackets, nil)
	assert.ErrorIs(t, err, ErrInvalidBookingState)
	_, err = f.svc.Quote(ctx, &stale)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)

	other := NewSession(receptionist(), "")
	_, err = f.svc.ResumeBooking(ctx, other, b.ID)
	assert.ErrorIs(t, err, ErrInvalidBookingState)
	assert.Empty(t, other.CourtBookingID)

	sb, err := f.bookings.GetServiceBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 10000, sb.TotalServiceFee)

	stored, err := f.invoices.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.Total, stored.Total)
}

func TestReselectConflictKeepsPreviousHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := NewSession(receptionist(), "")
	held, err := f.svc.SelectCourt(ctx, sess, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(10, 11)}})
	require.NoError(t, err)

	rival := NewSession(receptionist(), "")
	_, err = f.svc.SelectCourt(ctx, rival, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(12, 13)}})
	require.NoError(t, err)

	_, err = f.svc.SelectCourt(ctx, sess, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(11, 12), hours(12, 13)}})
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	assert.Equal(t, held.ID, sess.CourtBookingID)
	assert.Equal(t, StepServices, sess.Step)
	assert.False(t, f.free(t, hours(10, 11)))
	assert.True(t, f.free(t, hours(11, 12)))

	stored, err := f.bookings.GetCourtBooking(ctx, held.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusHeld, stored.Status)

	_, err = f.svc.Finalize(ctx, sess, invoice.PaymentCounter)
	require.NoError(t, err)
}

func TestReselectOverlappingOwnHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := NewSession(receptionist(), "")

	first, err := f.svc.SelectCourt(ctx, sess, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(10, 11)}})
	require.NoError(t, err)

	second, err := f.svc.SelectCourt(ctx, sess, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(10, 12)}})
	require.NoError(t, err)
	assert.Equal(t, second.ID, sess.CourtBookingID)
	require.Len(t, second.ReservationIDs, 1)
	assert.NotEmpty(t, second.ReservationIDs[0])
	assert.False(t, f.free(t, hours(10, 11)))
	assert.False(t, f.free(t, hours(11, 12)))

	stored, err := f.bookings.GetCourtBooking(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, stored.Status)
}

// failingInvoices fails the next Create before delegating.
type failingInvoices struct {
	Invoices
	fail bool
}

func (i *failingInvoices) Create(ctx context.Context, req invoice.CreateRequest) (*invoice.Invoice, error) {
	if i.fail {
		i.fail = false
		return nil, errors.New("invoice store unavailable")
	}
	return i.Invoices.Create(ctx, req)
}

func TestFinalizeCanBeRetriedAfterInvoiceFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deps := f.deps
	deps.Invoices = &failingInvoices{Invoices: f.invoices, fail: true}
	svc := NewService(deps)

	sess := NewSession(receptionist(), "")
	b, err := svc.SelectCourt(ctx, sess, SelectCourtRequest{CourtID: "101", Slots: []calendar.TimeSlot{hours(10, 11)}})
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, sess, invoice.PaymentOnline)
	require.Error(t, err)
	assert.Empty(t, sess.InvoiceID)

	stored, err := f.bookings.GetCourtBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusHeld, stored.Status)

	inv, err := svc.Finalize(ctx, sess, invoice.PaymentOnline)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusConfirmed, inv.Status)

	stored, err = f.bookings.GetCourtBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, stored.Status)
}
