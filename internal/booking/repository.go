package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	CreateCourtBooking(ctx context.Context, b *CourtBooking) error
	GetCourtBooking(ctx context.Context, id string) (*CourtBooking, error)
	ListCourtBookings(ctx context.Context, filter Filter) ([]*CourtBooking, int, error)
	UpdateCourtBooking(ctx context.Context, b *CourtBooking) error

	// SaveServiceBooking creates or replaces the service booking of its court booking.
	SaveServiceBooking(ctx context.Context, s *ServiceBooking) error
	GetServiceBooking(ctx context.Context, courtBookingID string) (*ServiceBooking, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var courtBookingColumns = []string{
	"id", "customer_id", "court_id", "branch_id", "slots", "reservation_ids",
	"price_per_hour", "total_court_fee", "status", "created_by", "created_at", "updated_at",
}

func (r *pgxRepository) CreateCourtBooking(ctx context.Context, b *CourtBooking) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.court_bookings").
		Columns(
			"customer_id", "court_id", "branch_id", "slots", "reservation_ids",
			"starts_at", "ends_at", "price_per_hour", "total_court_fee", "status", "created_by",
		).
		Values(
			b.CustomerID, b.CourtID, b.BranchID, b.Slots, b.ReservationIDs,
			b.StartsAt(), b.EndsAt(), b.PricePerHour, b.TotalCourtFee, b.Status, b.CreatedBy,
		).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create court booking query failed: %w", err)
	}

	return r.pool.QueryRow(ctx, query, args...).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
}

func (r *pgxRepository) GetCourtBooking(ctx context.Context, id string) (*CourtBooking, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(courtBookingColumns...).
		From("public.court_bookings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get court booking query failed: %w", err)
	}

	var b CourtBooking
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&b.ID, &b.CustomerID, &b.CourtID, &b.BranchID, &b.Slots, &b.ReservationIDs,
		&b.PricePerHour, &b.TotalCourtFee, &b.Status, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get court booking failed: %w", err)
	}
	return &b, nil
}

func (r *pgxRepository) ListCourtBookings(ctx context.Context, filter Filter) ([]*CourtBooking, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query := psql.Select(append(courtBookingColumns, "count(*) OVER() as total_count")...).
		From("public.court_bookings")

	if filter.CustomerID != "" {
		query = query.Where(squirrel.Eq{"customer_id": filter.CustomerID})
	}
	if filter.CourtID != "" {
		query = query.Where(squirrel.Eq{"court_id": filter.CourtID})
	}
	if filter.BranchID != "" {
		query = query.Where(squirrel.Eq{"branch_id": filter.BranchID})
	}
	if len(filter.Statuses) > 0 {
		query = query.Where(squirrel.Eq{"status": filter.Statuses})
	}
	// Date range filtering (intersection logic)
	if filter.From != nil {
		query = query.Where(squirrel.Gt{"ends_at": *filter.From})
	}
	if filter.To != nil {
		query = query.Where(squirrel.Lt{"starts_at": *filter.To})
	}
	if filter.CreatedBefore != nil {
		query = query.Where(squirrel.Lt{"created_at": *filter.CreatedBefore})
	}

	query = query.OrderBy("starts_at ASC", "id ASC")

	if filter.PageSize > 0 {
		if filter.Page < 1 {
			filter.Page = 1
		}
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Limit(uint64(filter.PageSize)).Offset(uint64(offset))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list court bookings query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list court bookings failed: %w", err)
	}
	defer rows.Close()

	var bookings []*CourtBooking
	var total int

	for rows.Next() {
		var b CourtBooking
		if err := rows.Scan(
			&b.ID, &b.CustomerID, &b.CourtID, &b.BranchID, &b.Slots, &b.ReservationIDs,
			&b.PricePerHour, &b.TotalCourtFee, &b.Status, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan court booking failed: %w", err)
		}
		bookings = append(bookings, &b)
	}

	return bookings, total, rows.Err()
}

func (r *pgxRepository) UpdateCourtBooking(ctx context.Context, b *CourtBooking) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.court_bookings").
		Set("slots", b.Slots).
		Set("reservation_ids", b.ReservationIDs).
		Set("starts_at", b.StartsAt()).
		Set("ends_at", b.EndsAt()).
		Set("total_court_fee", b.TotalCourtFee).
		Set("status", b.Status).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": b.ID}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build update court booking query failed: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update court booking failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) SaveServiceBooking(ctx context.Context, s *ServiceBooking) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.service_bookings").
		Columns("court_booking_id", "items", "coaches", "total_service_fee").
		Values(s.CourtBookingID, s.Items, s.Coaches, s.TotalServiceFee).
		Suffix(`ON CONFLICT (court_booking_id) DO UPDATE
			SET items = EXCLUDED.items,
			    coaches = EXCLUDED.coaches,
			    total_service_fee = EXCLUDED.total_service_fee,
			    updated_at = now()
			RETURNING id, created_at, updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build save service booking query failed: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return fmt.Errorf("save service booking failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) GetServiceBooking(ctx context.Context, courtBookingID string) (*ServiceBooking, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"id", "court_booking_id", "items", "coaches", "total_service_fee", "created_at", "updated_at",
	).
		From("public.service_bookings").
		Where(squirrel.Eq{"court_booking_id": courtBookingID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get service booking query failed: %w", err)
	}

	var s ServiceBooking
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&s.ID, &s.CourtBookingID, &s.Items, &s.Coaches, &s.TotalServiceFee, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceBookingNotFound
		}
		return nil, fmt.Errorf("get service booking failed: %w", err)
	}
	return &s, nil
}
