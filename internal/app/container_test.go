package app

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nekogravitycat/facility-booking-core/internal/branch"
	"github.com/nekogravitycat/facility-booking-core/internal/calendar"
	"github.com/nekogravitycat/facility-booking-core/internal/events"
	"github.com/nekogravitycat/facility-booking-core/internal/invoice"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/clock"
	"github.com/nekogravitycat/facility-booking-core/internal/resource"
	"github.com/nekogravitycat/facility-booking-core/internal/workflow"
)

const settingsTOML = `
holidays = ["2025-03-15"]

[defaults]
hold_timeout = "15m"

[promotions]
OPENING = 20
`

type harness struct {
	c        *Container
	clock    *clock.Fixed
	recorder *events.Recorder
	court    *resource.Resource
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	settings, err := branch.ParseSettings(settingsTOML, 0)
	require.NoError(t, err)

	h := &harness{
		clock:    clock.NewFixed(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
		recorder: events.NewRecorder(),
	}
	h.c = NewContainer(Config{
		Settings:   settings,
		Publisher:  h.recorder,
		Registerer: prometheus.NewRegistry(),
		Clock:      h.clock,
		Logger:     zap.NewNop(),
	})

	br, err := h.c.Branches.Create(ctx, branch.CreateRequest{Name: "Harbour", OpeningHoursStart: "08:00", OpeningHoursEnd: "22:00"})
	require.NoError(t, err)
	h.court, err = h.c.Resources.Create(ctx, resource.CreateRequest{
		Name: "Court A", BranchID: br.ID, Kind: resource.KindCourt, CourtType: "tennis", PricePerHour: 80000,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) counterBooking(t *testing.T) (*workflow.Session, *invoice.Invoice) {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

	sess := workflow.NewSession(workflow.Actor{UserID: "desk-1", Role: workflow.RoleReceptionist}, "")
	_, err := h.c.Workflow.SelectCourt(ctx, sess, workflow.SelectCourtRequest{
		CourtID: h.court.ID,
		Slots:   []calendar.TimeSlot{{Start: start, End: start.Add(time.Hour)}},
	})
	require.NoError(t, err)
	_, err = h.c.Workflow.ApplyPromo(ctx, sess, "OPENING")
	require.NoError(t, err)
	require.True(t, sess.GoTo(workflow.StepPayment))

	inv, err := h.c.Workflow.Finalize(ctx, sess, invoice.PaymentCounter)
	require.NoError(t, err)
	return sess, inv
}

func TestContainerCounterBookingUsesSettings(t *testing.T) {
	h := newHarness(t)
	_, inv := h.counterBooking(t)

	assert.Equal(t, invoice.StatusPending, inv.Status)
	require.NotNil(t, inv.HoldExpiresAt)
	assert.Equal(t, h.clock.Now().Add(15*time.Minute), *inv.HoldExpiresAt)
	assert.Positive(t, inv.Discount)
	assert.Equal(t, inv.Subtotal-inv.Discount, inv.Total)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.c.Metrics.Finalizations.WithLabelValues(string(invoice.PaymentCounter))))
}

func TestSweepJobsExpireOverdueInvoices(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, inv := h.counterBooking(t)

	sched := NewScheduler(time.Minute, zap.NewNop(), h.c.Metrics, h.c.SweepJobs()...)

	sched.RunOnce(ctx)
	got, err := h.c.Invoices.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, got.Status)

	h.clock.Advance(16 * time.Minute)
	sched.RunOnce(ctx)

	got, err = h.c.Invoices.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusExpired, got.Status)

	start := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	free, err := h.c.Calendar.IsAvailable(ctx, calendar.TimeSlot{ResourceID: h.court.ID, Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.True(t, free)

	assert.Equal(t, float64(1), testutil.ToFloat64(h.c.Metrics.SweepExpired.WithLabelValues(JobExpireInvoices)))
	assert.Equal(t, float64(0), testutil.ToFloat64(h.c.Metrics.SweepExpired.WithLabelValues(JobReleaseAbandoned)))
}

func TestSweepJobsReleaseAbandonedHolds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	sess := workflow.NewSession(workflow.Actor{UserID: "cust-1", Role: workflow.RoleCustomer}, "")
	_, err := h.c.Workflow.SelectCourt(ctx, sess, workflow.SelectCourtRequest{
		CourtID: h.court.ID,
		Slots:   []calendar.TimeSlot{{Start: start, End: start.Add(time.Hour)}},
	})
	require.NoError(t, err)

	h.clock.Advance(20 * time.Minute)
	NewScheduler(time.Minute, zap.NewNop(), h.c.Metrics, h.c.SweepJobs()...).RunOnce(ctx)

	free, err := h.c.Calendar.IsAvailable(ctx, calendar.TimeSlot{ResourceID: h.court.ID, Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.True(t, free)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.c.Metrics.SweepExpired.WithLabelValues(JobReleaseAbandoned)))
}

func TestNewContainerDefaultsWithoutSettings(t *testing.T) {
	c := NewContainer(Config{HoldTimeout: 5 * time.Minute})
	require.NotNil(t, c.Workflow)
	require.NotNil(t, c.Metrics)
	assert.Len(t, c.SweepJobs(), 3)
}

func TestVerifyCalendarsPassesOnGuardedData(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.counterBooking(t)

	n, err := h.c.VerifyCalendars(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
