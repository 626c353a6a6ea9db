package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nekogravitycat/facility-booking-core/internal/booking"
	"github.com/nekogravitycat/facility-booking-core/internal/branch"
	"github.com/nekogravitycat/facility-booking-core/internal/calendar"
	"github.com/nekogravitycat/facility-booking-core/internal/events"
	"github.com/nekogravitycat/facility-booking-core/internal/invoice"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/apperror"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/clock"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/keylock"
	"github.com/nekogravitycat/facility-booking-core/internal/pricing"
	"github.com/nekogravitycat/facility-booking-core/internal/resource"
)

var tracer = otel.Tracer("github.com/nekogravitycat/facility-booking-core/internal/workflow")

type Service interface {
	// SelectCourt reserves the slots and creates a held booking. Any hold the
	// session already carried is released first.
	SelectCourt(ctx context.Context, sess *Session, req SelectCourtRequest) (*booking.CourtBooking, error)
	// ResumeBooking picks up an existing held or pending booking.
	ResumeBooking(ctx context.Context, sess *Session, bookingID string) (*booking.CourtBooking, error)
	AttachServices(ctx context.Context, sess *Session, items []booking.ServiceItem, coaches []booking.CoachItem) (*booking.ServiceBooking, error)
	// ApplyPromo stores a promotion code on the session; an empty code clears it.
	ApplyPromo(ctx context.Context, sess *Session, code string) (pricing.Promotion, error)
	// Quote prices the current selection without finalizing it.
	Quote(ctx context.Context, sess *Session) (pricing.Breakdown, error)
	Finalize(ctx context.Context, sess *Session, method invoice.PaymentMethod) (*invoice.Invoice, error)
	Reset(ctx context.Context, sess *Session) error
	// ReleaseAbandoned cancels uninvoiced bookings older than their branch hold timeout.
	ReleaseAbandoned(ctx context.Context) (int, error)
}

// CourtDirectory resolves courts; resource.Service satisfies it.
type CourtDirectory interface {
	GetCourt(ctx context.Context, id string) (*resource.Resource, error)
}

// MembershipResolver yields the tiers a customer holds; customer.Service satisfies it.
type MembershipResolver interface {
	ActiveTiers(ctx context.Context, customerID string, at time.Time) ([]pricing.Tier, error)
}

// PromoCatalog resolves promotion codes; *pricing.PromoBook satisfies it.
type PromoCatalog interface {
	Lookup(ctx context.Context, code string) (pricing.Promotion, error)
}

// Invoices is the slice of invoice.Service the workflow drives.
type Invoices interface {
	Create(ctx context.Context, req invoice.CreateRequest) (*invoice.Invoice, error)
	GetByBooking(ctx context.Context, bookingID string) (*invoice.Invoice, error)
}

type Deps struct {
	Calendar    calendar.Service
	Bookings    booking.Repository
	Courts      CourtDirectory
	Engine      *pricing.Engine
	Settings    branch.Settings
	Invoices    Invoices
	Memberships MembershipResolver // Optional
	Promotions  PromoCatalog       // Optional
	Events      events.Publisher
	Clock       clock.Clock
	Logger      *zap.Logger
}

type service struct {
	calendar    calendar.Service
	bookings    booking.Repository
	courts      CourtDirectory
	engine      *pricing.Engine
	settings    branch.Settings
	invoices    Invoices
	memberships MembershipResolver
	promotions  PromoCatalog
	events      events.Publisher
	clock       clock.Clock
	logger      *zap.Logger
	locks       *keylock.Map
}

func NewService(deps Deps) Service {
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = events.NewLogPublisher(deps.Logger)
	}
	if deps.Engine == nil {
		deps.Engine = pricing.NewEngine(nil, nil)
	}
	return &service{
		calendar:    deps.Calendar,
		bookings:    deps.Bookings,
		courts:      deps.Courts,
		engine:      deps.Engine,
		settings:    deps.Settings,
		invoices:    deps.Invoices,
		memberships: deps.Memberships,
		promotions:  deps.Promotions,
		events:      deps.Events,
		clock:       deps.Clock,
		logger:      deps.Logger,
		locks:       keylock.New(),
	}
}

func (s *service) SelectCourt(ctx context.Context, sess *Session, req SelectCourtRequest) (_ *booking.CourtBooking, err error) {
	ctx, span := tracer.Start(ctx, "workflow.SelectCourt", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("court.id", req.CourtID),
		attribute.Int("slots", len(req.Slots)),
	))
	defer func() { endSpan(span, err) }()

	if len(req.Slots) == 0 {
		return nil, booking.ErrNoSlots
	}
	court, err := s.courts.GetCourt(ctx, req.CourtID)
	if err != nil {
		return nil, err
	}

	slots := make([]calendar.TimeSlot, len(req.Slots))
	for i, slot := range req.Slots {
		slot.ResourceID = court.ID
		if err := slot.Validate(); err != nil {
			return nil, err
		}
		slots[i] = slot
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })

	prev, err := s.currentHold(ctx, sess)
	if err != nil {
		return nil, err
	}

	// Slots overlapping the session's own hold can only be reserved once that hold is
	// dropped; everything else is reserved first so a conflict keeps the old hold.
	ownOverlap := make([]bool, len(slots))
	for i, slot := range slots {
		ownOverlap[i] = prev != nil && prev.CourtID == court.ID && overlapsAny(slot, prev.Slots)
	}
	reservationIDs := make([]string, len(slots))
	if err := s.reserveSlots(ctx, sess, slots, reservationIDs, func(i int) bool { return !ownOverlap[i] }); err != nil {
		return nil, err
	}
	if prev != nil {
		if err := s.dropHeld(ctx, sess); err != nil {
			s.releaseAll(ctx, reservationIDs)
			return nil, err
		}
		if err := s.reserveSlots(ctx, sess, slots, reservationIDs, func(i int) bool { return ownOverlap[i] }); err != nil {
			s.releaseAll(ctx, reservationIDs)
			sess.clearSelection()
			return nil, err
		}
	}

	b := &booking.CourtBooking{
		CustomerID:     sess.CustomerID,
		CourtID:        court.ID,
		BranchID:       court.BranchID,
		Slots:          slots,
		ReservationIDs: reservationIDs,
		PricePerHour:   court.PricePerHour,
		TotalCourtFee:  pricing.CourtFee(court.PricePerHour, slots),
		Status:         booking.StatusHeld,
		CreatedBy:      sess.Actor.UserID,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.bookings.CreateCourtBooking(ctx, b); err != nil {
		s.releaseAll(ctx, reservationIDs)
		if prev != nil {
			sess.clearSelection()
		}
		return nil, fmt.Errorf("create court booking failed: %w", err)
	}

	sess.clearSelection()
	sess.CourtBookingID = b.ID
	sess.Step = StepServices

	s.publish(ctx, events.BookingHeld, map[string]any{
		"booking_id":  b.ID,
		"court_id":    b.CourtID,
		"customer_id": b.CustomerID,
		"starts_at":   b.StartsAt(),
	})
	s.logger.Info("court held",
		zap.String("booking_id", b.ID),
		zap.String("court_id", b.CourtID),
		zap.Int("slots", len(slots)),
	)
	return b, nil
}

func (s *service) ResumeBooking(ctx context.Context, sess *Session, bookingID string) (*booking.CourtBooking, error) {
	b, err := s.openBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if sess.CourtBookingID != "" && sess.CourtBookingID != b.ID {
		if err := s.dropHeld(ctx, sess); err != nil {
			return nil, err
		}
	}

	sess.clearSelection()
	sess.CourtBookingID = b.ID
	if b.CustomerID != "" {
		sess.CustomerID = b.CustomerID
	}
	sb, err := s.bookings.GetServiceBooking(ctx, b.ID)
	switch {
	case err == nil:
		sess.ServiceBookingID = sb.ID
	case !errors.Is(err, booking.ErrServiceBookingNotFound):
		return nil, err
	}
	sess.Step = StepServices
	return b, nil
}

func (s *service) AttachServices(ctx context.Context, sess *Session, items []booking.ServiceItem, coaches []booking.CoachItem) (*booking.ServiceBooking, error) {
	if sess.InvoiceID != "" {
		return nil, ErrInvalidBookingState
	}
	if !sess.CanAccessStep(StepServices) {
		return nil, ErrNoSelection
	}
	if err := booking.ValidateItems(items, coaches); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(sess.CourtBookingID)
	defer unlock()

	b, err := s.lockedOpenBooking(ctx, sess.CourtBookingID)
	if err != nil {
		return nil, err
	}

	sb, err := s.bookings.GetServiceBooking(ctx, b.ID)
	if err != nil {
		if !errors.Is(err, booking.ErrServiceBookingNotFound) {
			return nil, err
		}
		sb = &booking.ServiceBooking{CourtBookingID: b.ID}
	}
	sb.Items = append([]booking.ServiceItem(nil), items...)
	sb.Coaches = append([]booking.CoachItem(nil), coaches...)
	sb.TotalServiceFee = pricing.ServiceFee(items, coaches)
	if err := s.bookings.SaveServiceBooking(ctx, sb); err != nil {
		return nil, fmt.Errorf("save service booking failed: %w", err)
	}

	if b.Status == booking.StatusHeld {
		b.Status = booking.StatusPending
		if err := s.bookings.UpdateCourtBooking(ctx, b); err != nil {
			return nil, fmt.Errorf("update court booking failed: %w", err)
		}
	}

	sess.ServiceBookingID = sb.ID
	sess.Step = StepPayment
	return sb, nil
}

func (s *service) ApplyPromo(ctx context.Context, sess *Session, code string) (pricing.Promotion, error) {
	if code == "" {
		sess.PromoCode = ""
		return pricing.Promotion{}, nil
	}
	if s.promotions == nil {
		return pricing.Promotion{}, pricing.ErrUnknownPromotion
	}
	promo, err := s.promotions.Lookup(ctx, code)
	if err != nil {
		return pricing.Promotion{}, err
	}
	sess.PromoCode = promo.Code
	return promo, nil
}

// Quote prices the open selection. A finalized booking is quoted by its invoice instead.
func (s *service) Quote(ctx context.Context, sess *Session) (pricing.Breakdown, error) {
	if sess.InvoiceID != "" {
		return pricing.Breakdown{}, ErrAlreadyFinalized
	}
	if !sess.CanAccessStep(StepServices) {
		return pricing.Breakdown{}, ErrNoSelection
	}
	if _, err := s.invoices.GetByBooking(ctx, sess.CourtBookingID); err == nil {
		return pricing.Breakdown{}, ErrAlreadyFinalized
	} else if !errors.Is(err, invoice.ErrNotFound) {
		return pricing.Breakdown{}, err
	}
	b, err := s.bookings.GetCourtBooking(ctx, sess.CourtBookingID)
	if err != nil {
		return pricing.Breakdown{}, err
	}
	return s.price(ctx, sess, b)
}

func (s *service) Finalize(ctx context.Context, sess *Session, method invoice.PaymentMethod) (_ *invoice.Invoice, err error) {
	ctx, span := tracer.Start(ctx, "workflow.Finalize", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("payment_method", string(method)),
	))
	defer func() { endSpan(span, err) }()

	if sess.InvoiceID != "" {
		return nil, ErrAlreadyFinalized
	}
	if !sess.CanAccessStep(StepPayment) {
		return nil, ErrNoSelection
	}
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %q", invoice.ErrInvalidPaymentMethod, method)
	}

	unlock := s.locks.Lock(sess.CourtBookingID)
	defer unlock()

	if _, err := s.invoices.GetByBooking(ctx, sess.CourtBookingID); err == nil {
		return nil, ErrAlreadyFinalized
	} else if !errors.Is(err, invoice.ErrNotFound) {
		return nil, err
	}

	b, err := s.bookings.GetCourtBooking(ctx, sess.CourtBookingID)
	if err != nil {
		return nil, err
	}
	if !b.Status.AcceptsServices() {
		return nil, ErrInvalidBookingState
	}

	breakdown, err := s.price(ctx, sess, b)
	if err != nil {
		return nil, err
	}

	// The booking moves first: once the invoice exists a retry only sees ErrAlreadyFinalized.
	previous := b.Status
	switch method {
	case invoice.PaymentOnline:
		b.Status = booking.StatusConfirmed
	case invoice.PaymentCounter:
		b.Status = booking.StatusPending
	}
	if b.Status != previous {
		if err := s.bookings.UpdateCourtBooking(ctx, b); err != nil {
			return nil, fmt.Errorf("update court booking failed: %w", err)
		}
	}

	inv, err := s.invoices.Create(ctx, invoice.CreateRequest{
		Booking:       b,
		Breakdown:     breakdown,
		PaymentMethod: method,
		IssuedBy:      sess.Actor.UserID,
	})
	if err != nil {
		if b.Status != previous {
			b.Status = previous
			if rerr := s.bookings.UpdateCourtBooking(ctx, b); rerr != nil {
				s.logger.Error("restore court booking status failed",
					zap.String("booking_id", b.ID),
					zap.String("status", string(previous)),
					zap.Error(rerr),
				)
			}
		}
		return nil, err
	}

	sess.InvoiceID = inv.ID
	sess.Step = StepCompleted

	s.logger.Info("booking finalized",
		zap.String("booking_id", b.ID),
		zap.String("invoice_id", inv.ID),
		zap.String("payment_method", string(method)),
		zap.Int64("total", inv.Total),
	)
	return inv, nil
}

func (s *service) Reset(ctx context.Context, sess *Session) error {
	if err := s.dropHeld(ctx, sess); err != nil {
		return err
	}
	sess.clearSelection()
	return nil
}

func (s *service) ReleaseAbandoned(ctx context.Context) (int, error) {
	open, _, err := s.bookings.ListCourtBookings(ctx, booking.Filter{
		Statuses: []booking.Status{booking.StatusHeld, booking.StatusPending},
	})
	if err != nil {
		return 0, fmt.Errorf("list open bookings failed: %w", err)
	}

	now := s.clock.Now()
	policies := make(map[string]branch.Policy)
	var released int
	var errs []error
	for _, b := range open {
		policy, ok := policies[b.BranchID]
		if !ok {
			if policy, err = s.settings.Policy(ctx, b.BranchID); err != nil {
				errs = append(errs, err)
				continue
			}
			policies[b.BranchID] = policy
		}
		if now.Before(b.CreatedAt.Add(policy.HoldTimeout)) {
			continue
		}

		ok, err := s.releaseIfAbandoned(ctx, b.ID)
		if err != nil {
			s.logger.Error("release abandoned booking failed", zap.String("booking_id", b.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if ok {
			released++
		}
	}
	return released, errors.Join(errs...)
}

// releaseIfAbandoned re-checks under the booking lock so a concurrent Finalize wins.
func (s *service) releaseIfAbandoned(ctx context.Context, bookingID string) (bool, error) {
	unlock := s.locks.Lock(bookingID)
	defer unlock()

	if _, err := s.invoices.GetByBooking(ctx, bookingID); err == nil {
		return false, nil
	} else if !errors.Is(err, invoice.ErrNotFound) {
		return false, err
	}
	b, err := s.bookings.GetCourtBooking(ctx, bookingID)
	if err != nil {
		return false, err
	}
	if !b.Status.AcceptsServices() {
		return false, nil
	}
	if err := s.cancel(ctx, b); err != nil {
		return false, err
	}
	s.logger.Info("abandoned hold released", zap.String("booking_id", b.ID))
	return true, nil
}

// openBooking loads a booking that still accepts changes: held or pending and not invoiced.
func (s *service) openBooking(ctx context.Context, bookingID string) (*booking.CourtBooking, error) {
	unlock := s.locks.Lock(bookingID)
	defer unlock()
	return s.lockedOpenBooking(ctx, bookingID)
}

// lockedOpenBooking is openBooking for callers already holding the booking lock.
func (s *service) lockedOpenBooking(ctx context.Context, bookingID string) (*booking.CourtBooking, error) {
	b, err := s.bookings.GetCourtBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.Status.AcceptsServices() {
		return nil, ErrInvalidBookingState
	}
	if _, err := s.invoices.GetByBooking(ctx, bookingID); err == nil {
		return nil, ErrInvalidBookingState
	} else if !errors.Is(err, invoice.ErrNotFound) {
		return nil, err
	}
	return b, nil
}

// currentHold returns the session's booking when dropHeld would cancel it, or nil.
func (s *service) currentHold(ctx context.Context, sess *Session) (*booking.CourtBooking, error) {
	if sess.CourtBookingID == "" {
		return nil, nil
	}
	b, err := s.openBooking(ctx, sess.CourtBookingID)
	switch {
	case err == nil:
		return b, nil
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, ErrInvalidBookingState):
		return nil, nil
	}
	return nil, err
}

// reserveSlots reserves slots[i] for every i picked and records the id in ids[i].
// On failure it releases what this call reserved.
func (s *service) reserveSlots(ctx context.Context, sess *Session, slots []calendar.TimeSlot, ids []string, pick func(i int) bool) error {
	var reserved []string
	for i, slot := range slots {
		if !pick(i) {
			continue
		}
		res, err := s.calendar.Reserve(ctx, calendar.ReserveRequest{
			Slot:    slot,
			Kind:    calendar.KindCustomerBooking,
			OwnerID: sess.CustomerID,
		})
		if err != nil {
			s.releaseAll(ctx, reserved)
			for j := range ids {
				if pick(j) {
					ids[j] = ""
				}
			}
			if errors.Is(err, calendar.ErrConflict) {
				return fmt.Errorf("%w: %w", ErrSlotUnavailable, err)
			}
			return err
		}
		ids[i] = res.ID
		reserved = append(reserved, res.ID)
	}
	return nil
}

func overlapsAny(slot calendar.TimeSlot, held []calendar.TimeSlot) bool {
	for _, h := range held {
		if slot.Overlaps(h) {
			return true
		}
	}
	return false
}

// dropHeld cancels the session's current booking when it was never invoiced.
func (s *service) dropHeld(ctx context.Context, sess *Session) error {
	if sess.CourtBookingID == "" {
		return nil
	}
	unlock := s.locks.Lock(sess.CourtBookingID)
	defer unlock()

	if _, err := s.invoices.GetByBooking(ctx, sess.CourtBookingID); err == nil {
		return nil
	} else if !errors.Is(err, invoice.ErrNotFound) {
		return err
	}
	b, err := s.bookings.GetCourtBooking(ctx, sess.CourtBookingID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return nil
		}
		return err
	}
	if !b.Status.AcceptsServices() {
		return nil
	}
	return s.cancel(ctx, b)
}

func (s *service) cancel(ctx context.Context, b *booking.CourtBooking) error {
	for _, id := range b.ReservationIDs {
		if err := s.calendar.Release(ctx, id); err != nil {
			return fmt.Errorf("release slot %s failed: %w", id, err)
		}
	}
	b.Status = booking.StatusCancelled
	if err := s.bookings.UpdateCourtBooking(ctx, b); err != nil {
		return fmt.Errorf("update court booking failed: %w", err)
	}
	s.publish(ctx, events.BookingCancelled, map[string]any{
		"booking_id": b.ID,
		"court_id":   b.CourtID,
	})
	return nil
}

// releaseAll undoes partial reservations; release is idempotent so errors are only logged.
func (s *service) releaseAll(ctx context.Context, reservationIDs []string) {
	for _, id := range reservationIDs {
		if id == "" {
			continue
		}
		if err := s.calendar.Release(ctx, id); err != nil {
			s.logger.Warn("rollback reservation failed", zap.String("reservation_id", id), zap.Error(err))
		}
	}
}

func (s *service) price(ctx context.Context, sess *Session, b *booking.CourtBooking) (pricing.Breakdown, error) {
	policy, err := s.settings.Policy(ctx, b.BranchID)
	if err != nil {
		return pricing.Breakdown{}, fmt.Errorf("load branch policy failed: %w", err)
	}

	in := pricing.Input{Court: b, Policy: policy}

	sb, err := s.bookings.GetServiceBooking(ctx, b.ID)
	switch {
	case err == nil:
		in.Services = sb
	case !errors.Is(err, booking.ErrServiceBookingNotFound):
		return pricing.Breakdown{}, err
	}

	if s.memberships != nil && b.CustomerID != "" {
		tiers, err := s.memberships.ActiveTiers(ctx, b.CustomerID, s.clock.Now())
		if err != nil && apperror.KindOf(err) != apperror.KindNotFound {
			return pricing.Breakdown{}, fmt.Errorf("resolve membership failed: %w", err)
		}
		in.Membership = tiers
	}

	if sess.PromoCode != "" {
		if s.promotions == nil {
			return pricing.Breakdown{}, pricing.ErrUnknownPromotion
		}
		promo, err := s.promotions.Lookup(ctx, sess.PromoCode)
		if err != nil {
			return pricing.Breakdown{}, err
		}
		in.Promo = &promo
	}

	return s.engine.Price(in)
}

func (s *service) publish(ctx context.Context, key string, payload map[string]any) {
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
