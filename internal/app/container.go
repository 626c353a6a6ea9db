package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nekogravitycat/facility-booking-core/internal/booking"
	"github.com/nekogravitycat/facility-booking-core/internal/branch"
	"github.com/nekogravitycat/facility-booking-core/internal/calendar"
	"github.com/nekogravitycat/facility-booking-core/internal/customer"
	"github.com/nekogravitycat/facility-booking-core/internal/events"
	"github.com/nekogravitycat/facility-booking-core/internal/invoice"
	"github.com/nekogravitycat/facility-booking-core/internal/metrics"
	"github.com/nekogravitycat/facility-booking-core/internal/pkg/clock"
	"github.com/nekogravitycat/facility-booking-core/internal/pricing"
	"github.com/nekogravitycat/facility-booking-core/internal/report"
	"github.com/nekogravitycat/facility-booking-core/internal/resource"
	"github.com/nekogravitycat/facility-booking-core/internal/shift"
	"github.com/nekogravitycat/facility-booking-core/internal/workflow"
)

const (
	JobExpireInvoices   = "expire_invoices"
	JobReleaseAbandoned = "release_abandoned"
	JobVerifyCalendar   = "verify_calendar"
)

const resourcePageSize = 100

// Config holds the dependencies and settings required to start the application.
type Config struct {
	DBPool      *pgxpool.Pool        // nil selects in-memory stores
	Settings    *branch.SettingsFile // nil falls back to the default policy
	HoldTimeout time.Duration
	Publisher   events.Publisher
	Registerer  prometheus.Registerer
	Clock       clock.Clock
	Logger      *zap.Logger
	Location    *time.Location // Reporting time zone; nil means UTC
}

// Container holds the initialized components that are needed externally.
type Container struct {
	Branches  branch.Service
	Resources resource.Service
	Customers customer.Service
	Calendar  calendar.Service
	Shifts    shift.Service
	Invoices  invoice.Service
	Workflow  workflow.Service
	Reports   report.Service
	Metrics   *metrics.Metrics

	clock clock.Clock
	loc   *time.Location
}

type repositories struct {
	branches  branch.Repository
	resources resource.Repository
	customers customer.Repository
	calendar  calendar.Repository
	bookings  booking.Repository
	invoices  invoice.Repository
	shifts    shift.Repository
}

func newRepositories(pool *pgxpool.Pool) repositories {
	if pool == nil {
		return repositories{
			branches:  branch.NewMemoryRepository(),
			resources: resource.NewMemoryRepository(),
			customers: customer.NewMemoryRepository(),
			calendar:  calendar.NewMemoryRepository(),
			bookings:  booking.NewMemoryRepository(),
			invoices:  invoice.NewMemoryRepository(),
			shifts:    shift.NewMemoryRepository(),
		}
	}
	return repositories{
		branches:  branch.NewPgxRepository(pool),
		resources: resource.NewPgxRepository(pool),
		customers: customer.NewPgxRepository(pool),
		calendar:  calendar.NewPgxRepository(pool),
		bookings:  booking.NewPgxRepository(pool),
		invoices:  invoice.NewPgxRepository(pool),
		shifts:    shift.NewPgxRepository(pool),
	}
}

// NewContainer initializes all modules and returns the container.
func NewContainer(cfg Config) *Container {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NewLogPublisher(cfg.Logger)
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}

	// Branch settings, holidays and promotions
	var (
		settings   branch.Settings
		holidays   branch.HolidayCalendar
		promotions = pricing.NewPromoBook(nil)
	)
	if cfg.Settings != nil {
		settings = cfg.Settings.StaticSettings
		holidays = cfg.Settings.Holidays
		promotions = pricing.NewPromoBook(cfg.Settings.Promotions)
	} else {
		def := branch.DefaultPolicy()
		if cfg.HoldTimeout > 0 {
			def.HoldTimeout = cfg.HoldTimeout
		}
		settings = branch.NewStaticSettings(def)
	}

	m := metrics.New(cfg.Registerer)
	repos := newRepositories(cfg.DBPool)

	// Directory modules
	branchService := branch.NewService(repos.branches)
	resourceService := resource.NewService(repos.resources, branchService)
	customerService := customer.NewService(repos.customers)

	// Calendar and shifts
	calendarService := calendar.NewService(repos.calendar, cfg.Logger.Named("calendar"), m)
	shiftService := shift.NewService(repos.shifts, calendarService, resourceService, cfg.Logger.Named("shift"))

	// Invoice lifecycle
	invoiceService := invoice.NewService(repos.invoices, invoice.Deps{
		Bookings: repos.bookings,
		Slots:    calendarService,
		Settings: settings,
		Loyalty:  customerService,
		Events:   cfg.Publisher,
		Clock:    cfg.Clock,
		Logger:   cfg.Logger.Named("invoice"),
		Metrics:  m,
	})

	// Booking workflow
	workflowService := workflow.NewService(workflow.Deps{
		Calendar:    calendarService,
		Bookings:    repos.bookings,
		Courts:      resourceService,
		Engine:      pricing.NewEngine(holidays, pricing.DefaultTierTable()),
		Settings:    settings,
		Invoices:    invoiceService,
		Memberships: customerService,
		Promotions:  promotions,
		Events:      cfg.Publisher,
		Clock:       cfg.Clock,
		Logger:      cfg.Logger.Named("workflow"),
	})

	// Reporting
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	reportService := report.NewService(resourceService, branchService, repos.bookings, calendarService, shiftService, loc, cfg.Logger.Named("report"))

	return &Container{
		Branches:  branchService,
		Resources: resourceService,
		Customers: customerService,
		Calendar:  calendarService,
		Shifts:    shiftService,
		Invoices:  invoiceService,
		Workflow:  workflowService,
		Reports:   reportService,
		Metrics:   m,
		clock:     cfg.Clock,
		loc:       loc,
	}
}

// SweepJobs returns the background jobs: hold expiry and the calendar overlap check.
func (c *Container) SweepJobs() []Job {
	return []Job{
		{Name: JobExpireInvoices, Run: c.Invoices.ExpireOverdue},
		{Name: JobReleaseAbandoned, Run: c.Workflow.ReleaseAbandoned},
		{Name: JobVerifyCalendar, Run: c.VerifyCalendars},
	}
}

// VerifyCalendars checks every resource's reservations in the current and next
// month. Overlaps come back as consistency errors; it never releases anything.
func (c *Container) VerifyCalendars(ctx context.Context) (int, error) {
	now := c.clock.Now().In(c.loc)
	from := calendar.MonthRange(now.Year(), now.Month(), c.loc).From
	rng := calendar.DateRange{From: from, To: from.AddDate(0, 2, 0)}

	var errs []error
	filter := resource.Filter{PageSize: resourcePageSize}
	for seen, page := 0, 1; ; page++ {
		filter.Page = page
		batch, total, err := c.Resources.List(ctx, filter)
		if err != nil {
			return 0, fmt.Errorf("list resources failed: %w", err)
		}
		for _, r := range batch {
			if err := c.Calendar.Verify(ctx, r.ID, rng); err != nil {
				errs = append(errs, err)
			}
		}
		seen += len(batch)
		if len(batch) == 0 || seen >= total {
			break
		}
	}
	return 0, errors.Join(errs...)
}
