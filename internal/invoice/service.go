package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nekogravitycat/facility-booking-core/internal/booking"
	"github.com/nekogravitycat/facility-booking-core/internal/branch"
	"github.com/nekogravitycat/facility-booking-core/internal/events"
	"github.com/nekogravitycat/facility-booking-core/internal/metrics"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/clock"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/keylock"
	"github.com/nekogravitycat/facility-booking-core/internal/pricing"
)

var tracer = otel.Tracer("github.com/nekogravitycat/facility-booking-core/internal/invoice")

type Service interface {
	// Create issues the invoice for a finalized booking. Online payments start
	// confirmed, counter payments start pending with a hold deadline.
	Create(ctx context.Context, req CreateRequest) (*Invoice, error)
	GetByID(ctx context.Context, id string) (*Invoice, error)
	GetByBooking(ctx context.Context, bookingID string) (*Invoice, error)
	List(ctx context.Context, filter Filter) ([]*Invoice, int, error)

	QuoteCancellation(ctx context.Context, id string) (CancellationQuote, error)
	Cancel(ctx context.Context, id, reason string) (*CancelledInvoice, error)
	MarkPaid(ctx context.Context, id string) (*Invoice, error)
	ConfirmOnline(ctx context.Context, id string) (*Invoice, error)
	// ExpireOverdue moves every pending invoice past its hold deadline to expired
	// and frees the booked slots. It returns how many invoices it expired.
	ExpireOverdue(ctx context.Context) (int, error)
}

type CreateRequest struct {
	Booking       *booking.CourtBooking
	Breakdown     pricing.Breakdown
	PaymentMethod PaymentMethod
	IssuedBy      string
}

// SlotReleaser frees calendar reservations; calendar.Service satisfies it.
type SlotReleaser interface {
	Release(ctx context.Context, reservationID string) error
}

// LoyaltyLedger credits points; customer.Service satisfies it.
type LoyaltyLedger interface {
	AwardPoints(ctx context.Context, customerID string, points int64) error
}

type Deps struct {
	Bookings booking.Repository
	Slots    SlotReleaser
	Settings branch.Settings
	Loyalty  LoyaltyLedger // Optional
	Events   events.Publisher
	Clock    clock.Clock
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

type service struct {
	repo     Repository
	bookings booking.Repository
	slots    SlotReleaser
	settings branch.Settings
	loyalty  LoyaltyLedger
	events   events.Publisher
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics
	locks    *keylock.Map
}

func NewService(repo Repository, deps Deps) Service {
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = events.NewLogPublisher(deps.Logger)
	}
	return &service{
		repo:     repo,
		bookings: deps.Bookings,
		slots:    deps.Slots,
		settings: deps.Settings,
		loyalty:  deps.Loyalty,
		events:   deps.Events,
		clock:    deps.Clock,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		locks:    keylock.New(),
	}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (_ *Invoice, err error) {
	ctx, span := tracer.Start(ctx, "invoice.Create")
	defer func() { endSpan(span, err) }()

	if req.Booking == nil {
		return nil, booking.ErrNotFound
	}
	if !req.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, req.PaymentMethod)
	}
	span.SetAttributes(
		attribute.String("booking.id", req.Booking.ID),
		attribute.String("invoice.payment_method", string(req.PaymentMethod)),
	)

	policy, err := s.settings.Policy(ctx, req.Booking.BranchID)
	if err != nil {
		return nil, fmt.Errorf("load branch policy failed: %w", err)
	}

	now := s.clock.Now()
	inv := &Invoice{
		BookingID:     req.Booking.ID,
		BranchID:      req.Booking.BranchID,
		CustomerID:    req.Booking.CustomerID,
		LineItems:     append([]pricing.Line(nil), req.Breakdown.Lines...),
		Subtotal:      req.Breakdown.Subtotal,
		Discount:      req.Breakdown.Discount,
		Total:         req.Breakdown.Total,
		PaymentMethod: req.PaymentMethod,
		IssuedBy:      req.IssuedBy,
		StartsAt:      req.Booking.StartsAt(),
		CreatedAt:     now,
	}
	switch req.PaymentMethod {
	case PaymentOnline:
		inv.Status = StatusConfirmed
		inv.SettledAt = &now
	case PaymentCounter:
		inv.Status = StatusPending
		deadline := now.Add(policy.HoldTimeout)
		inv.HoldExpiresAt = &deadline
	}

	if err := s.repo.Create(ctx, inv); err != nil {
		if errors.Is(err, ErrAlreadyFinalized) {
			return nil, err
		}
		return nil, fmt.Errorf("create invoice failed: %w", err)
	}

	s.metrics.ObserveFinalization(string(inv.PaymentMethod))
	s.metrics.ObserveTransition(string(inv.Status))
	s.publish(ctx, events.InvoiceCreated, inv)
	if inv.Status == StatusConfirmed {
		s.publish(ctx, events.InvoiceConfirmed, inv)
		s.awardLoyalty(ctx, inv, policy)
	}

	s.logger.Info("invoice created",
		zap.String("invoice_id", inv.ID),
		zap.String("booking_id", inv.BookingID),
		zap.String("status", string(inv.Status)),
		zap.Int64("total", inv.Total),
	)
	return inv, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Invoice, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetByBooking(ctx context.Context, bookingID string) (*Invoice, error) {
	return s.repo.GetByBooking(ctx, bookingID)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Invoice, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) QuoteCancellation(ctx context.Context, id string) (CancellationQuote, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return CancellationQuote{}, err
	}
	if inv.Status.Terminal() {
		return CancellationQuote{}, ErrAlreadyTerminal
	}
	policy, err := s.settings.Policy(ctx, inv.BranchID)
	if err != nil {
		return CancellationQuote{}, fmt.Errorf("load branch policy failed: %w", err)
	}
	q := ComputeCancellation(inv.Total, inv.StartsAt, s.clock.Now(), policy)
	q.InvoiceID = inv.ID
	return q, nil
}

func (s *service) Cancel(ctx context.Context, id, reason string) (_ *CancelledInvoice, err error) {
	ctx, span := tracer.Start(ctx, "invoice.Cancel", trace.WithAttributes(attribute.String("invoice.id", id)))
	defer func() { endSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}
	if !CanTransition(inv.Status, StatusCancelled) {
		return nil, ErrInvalidTransition
	}

	policy, err := s.settings.Policy(ctx, inv.BranchID)
	if err != nil {
		return nil, fmt.Errorf("load branch policy failed: %w", err)
	}

	now := s.clock.Now()
	quote := ComputeCancellation(inv.Total, inv.StartsAt, now, policy)
	quote.InvoiceID = inv.ID

	// The booking is closed first so a failed release leaves the invoice open for a retry.
	if err := s.closeBooking(ctx, inv.BookingID); err != nil {
		return nil, err
	}

	from := inv.Status
	inv.Status = StatusCancelled
	inv.CancelReason = reason
	inv.CancellationFee = quote.Fee
	inv.ClosedAt = &now
	if err := s.repo.Update(ctx, inv, from); err != nil {
		return nil, fmt.Errorf("cancel invoice failed: %w", err)
	}

	s.metrics.ObserveTransition(string(inv.Status))
	s.publish(ctx, events.InvoiceCancelled, inv)
	s.logger.Info("invoice cancelled",
		zap.String("invoice_id", inv.ID),
		zap.String("rule", string(quote.Rule)),
		zap.Int64("fee", quote.Fee),
		zap.String("reason", reason),
	)
	return &CancelledInvoice{Invoice: inv, Quote: quote}, nil
}

func (s *service) MarkPaid(ctx context.Context, id string) (*Invoice, error) {
	return s.settle(ctx, "invoice.MarkPaid", id, StatusPaid, booking.StatusPaid, events.InvoicePaid)
}

func (s *service) ConfirmOnline(ctx context.Context, id string) (*Invoice, error) {
	return s.settle(ctx, "invoice.ConfirmOnline", id, StatusConfirmed, booking.StatusConfirmed, events.InvoiceConfirmed)
}

// settle moves a pending invoice to a terminal success state.
func (s *service) settle(ctx context.Context, op, id string, to Status, bookingStatus booking.Status, key string) (_ *Invoice, err error) {
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(attribute.String("invoice.id", id)))
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(id)
	defer unlock()

	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status.Terminal() {
		// Losing a race against the sweep or a cancel still reads as an invalid transition.
		return nil, fmt.Errorf("%w: %w", ErrInvalidTransition, ErrAlreadyTerminal)
	}
	if !CanTransition(inv.Status, to) {
		return nil, ErrInvalidTransition
	}

	previous, err := s.setBookingStatus(ctx, inv.BookingID, bookingStatus)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	from := inv.Status
	inv.Status = to
	inv.SettledAt = &now
	if err := s.repo.Update(ctx, inv, from); err != nil {
		if _, rerr := s.setBookingStatus(ctx, inv.BookingID, previous); rerr != nil {
			s.logger.Error("restore booking status failed",
				zap.String("invoice_id", inv.ID),
				zap.String("booking_id", inv.BookingID),
				zap.Error(rerr),
			)
		}
		return nil, fmt.Errorf("update invoice failed: %w", err)
	}

	policy, err := s.settings.Policy(ctx, inv.BranchID)
	if err != nil {
		s.logger.Warn("load branch policy failed, skipping loyalty", zap.String("invoice_id", inv.ID), zap.Error(err))
	} else {
		s.awardLoyalty(ctx, inv, policy)
	}

	s.metrics.ObserveTransition(string(inv.Status))
	s.publish(ctx, key, inv)
	s.logger.Info("invoice settled", zap.String("invoice_id", inv.ID), zap.String("status", string(inv.Status)))
	return inv, nil
}

func (s *service) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	overdue, _, err := s.repo.List(ctx, Filter{
		Statuses:      []Status{StatusPending},
		ExpiresBefore: &now,
	})
	if err != nil {
		return 0, fmt.Errorf("list overdue invoices failed: %w", err)
	}

	var expired int
	var errs []error
	for _, inv := range overdue {
		ok, err := s.expire(ctx, inv.ID)
		if err != nil {
			s.logger.Error("expire invoice failed", zap.String("invoice_id", inv.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, errors.Join(errs...)
}

// expire re-checks the invoice under its lock; a concurrent transition wins silently.
func (s *service) expire(ctx context.Context, id string) (_ bool, err error) {
	ctx, span := tracer.Start(ctx, "invoice.Expire", trace.WithAttributes(attribute.String("invoice.id", id)))
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(id)
	defer unlock()

	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	now := s.clock.Now()
	if inv.Status != StatusPending || inv.HoldExpiresAt == nil || inv.HoldExpiresAt.After(now) {
		return false, nil
	}

	if err := s.closeBooking(ctx, inv.BookingID); err != nil {
		return false, err
	}
	inv.Status = StatusExpired
	inv.ClosedAt = &now
	if err := s.repo.Update(ctx, inv, StatusPending); err != nil {
		if errors.Is(err, ErrStaleState) {
			return false, nil
		}
		return false, err
	}

	s.metrics.ObserveTransition(string(inv.Status))
	s.publish(ctx, events.InvoiceExpired, inv)
	s.logger.Info("invoice expired", zap.String("invoice_id", inv.ID), zap.String("booking_id", inv.BookingID))
	return true, nil
}

// closeBooking releases every reserved slot and marks the booking cancelled.
// Running it again on a closed booking only repeats the idempotent releases.
func (s *service) closeBooking(ctx context.Context, bookingID string) error {
	b, err := s.bookings.GetCourtBooking(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("load booking failed: %w", err)
	}
	for _, resID := range b.ReservationIDs {
		if err := s.slots.Release(ctx, resID); err != nil {
			return fmt.Errorf("release slot %s failed: %w", resID, err)
		}
	}
	if b.Status == booking.StatusCancelled {
		return nil
	}
	b.Status = booking.StatusCancelled
	if err := s.bookings.UpdateCourtBooking(ctx, b); err != nil {
		return fmt.Errorf("update booking failed: %w", err)
	}
	if err := s.events.Publish(ctx, events.BookingCancelled, map[string]any{
		"booking_id": b.ID,
		"court_id":   b.CourtID,
	}); err != nil {
		s.logger.Warn("publish event failed", zap.String("key", events.BookingCancelled), zap.Error(err))
	}
	return nil
}

// setBookingStatus returns the status the booking had before the update.
func (s *service) setBookingStatus(ctx context.Context, bookingID string, status booking.Status) (booking.Status, error) {
	b, err := s.bookings.GetCourtBooking(ctx, bookingID)
	if err != nil {
		return "", fmt.Errorf("load booking failed: %w", err)
	}
	previous := b.Status
	if previous == status {
		return previous, nil
	}
	b.Status = status
	if err := s.bookings.UpdateCourtBooking(ctx, b); err != nil {
		return "", fmt.Errorf("update booking failed: %w", err)
	}
	return previous, nil
}

func (s *service) awardLoyalty(ctx context.Context, inv *Invoice, policy branch.Policy) {
	points := policy.LoyaltyPoints(inv.Total)
	if s.loyalty == nil || points <= 0 || inv.CustomerID == "" {
		return
	}
	if err := s.loyalty.AwardPoints(ctx, inv.CustomerID, points); err != nil {
		s.logger.Warn("award loyalty points failed",
			zap.String("invoice_id", inv.ID),
			zap.String("customer_id", inv.CustomerID),
			zap.Error(err),
		)
	}
}

func (s *service) publish(ctx context.Context, key string, inv *Invoice) {
	payload := map[string]any{
		"invoice_id":     inv.ID,
		"booking_id":     inv.BookingID,
		"customer_id":    inv.CustomerID,
		"status":         string(inv.Status),
		"payment_method": string(inv.PaymentMethod),
		"total":          inv.Total,
	}
	if err := s.events.Publish(ctx, key, payload); err != nil {
		s.logger.Warn("publish event failed", zap.String("key", key), zap.Error(err))
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
