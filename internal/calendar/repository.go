package calendar

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Insert(ctx context.Context, r *Reservation) error
	GetByID(ctx context.Context, id string) (*Reservation, error)
	// Delete removes the reservation. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
	// ListByResource returns reservations intersecting the range, ordered by start time.
	ListByResource(ctx context.Context, resourceID string, rng DateRange) ([]*Reservation, error)
	// FindOverlapping returns reservations on slot.ResourceID that overlap slot.
	FindOverlapping(ctx context.Context, slot TimeSlot) ([]*Reservation, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var reservationColumns = []string{"id", "resource_id", "start_time", "end_time", "kind", "owner_id", "created_at"}

func (r *pgxRepository) Insert(ctx context.Context, res *Reservation) error {
	query, args, err := psql.Insert("public.slot_reservations").
		Columns("resource_id", "start_time", "end_time", "kind", "owner_id").
		Values(res.Slot.ResourceID, res.Slot.Start, res.Slot.End, res.Kind, res.OwnerID).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert reservation query failed: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&res.ID, &res.CreatedAt); err != nil {
		// The exclusion constraint catches overlaps written by other processes.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ExclusionViolation {
			return ErrConflict
		}
		return fmt.Errorf("insert reservation failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Reservation, error) {
	query, args, err := psql.Select(reservationColumns...).
		From("public.slot_reservations").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get reservation query failed: %w", err)
	}

	res, err := scanReservation(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reservation failed: %w", err)
	}
	return res, nil
}

func (r *pgxRepository) Delete(ctx context.Context, id string) error {
	query, args, err := psql.Delete("public.slot_reservations").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete reservation query failed: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("delete reservation failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) ListByResource(ctx context.Context, resourceID string, rng DateRange) ([]*Reservation, error) {
	query, args, err := psql.Select(reservationColumns...).
		From("public.slot_reservations").
		Where(squirrel.Eq{"resource_id": resourceID}).
		Where(squirrel.Lt{"start_time": rng.To}).
		Where(squirrel.Gt{"end_time": rng.From}).
		OrderBy("start_time ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list reservations query failed: %w", err)
	}
	return r.query(ctx, query, args)
}

func (r *pgxRepository) FindOverlapping(ctx context.Context, slot TimeSlot) ([]*Reservation, error) {
	// (NewStart < ExistingEnd) AND (NewEnd > ExistingStart)
	query, args, err := psql.Select(reservationColumns...).
		From("public.slot_reservations").
		Where(squirrel.Eq{"resource_id": slot.ResourceID}).
		Where(squirrel.Lt{"start_time": slot.End}).
		Where(squirrel.Gt{"end_time": slot.Start}).
		OrderBy("start_time ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build overlap query failed: %w", err)
	}
	return r.query(ctx, query, args)
}

func (r *pgxRepository) query(ctx context.Context, query string, args []interface{}) ([]*Reservation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations failed: %w", err)
	}
	defer rows.Close()

	var result []*Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation failed: %w", err)
		}
		result = append(result, res)
	}
	return result, rows.Err()
}

func scanReservation(row pgx.Row) (*Reservation, error) {
	var res Reservation
	if err := row.Scan(
		&res.ID, &res.Slot.ResourceID, &res.Slot.Start, &res.Slot.End,
		&res.Kind, &res.OwnerID, &res.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &res, nil
}
