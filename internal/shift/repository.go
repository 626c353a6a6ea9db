package shift

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, a *ShiftAssignment) error
	GetByID(ctx context.Context, id string) (*ShiftAssignment, error)
	List(ctx context.Context, filter Filter) ([]*ShiftAssignment, int, error)
	Delete(ctx context.Context, id string) error
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func (r *pgxRepository) Create(ctx context.Context, a *ShiftAssignment) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.shift_assignments").
		Columns("staff_id", "branch_id", "shift_date", "start_time", "end_time", "reservation_id", "note").
		Values(a.StaffID, a.BranchID, a.Date, a.Start, a.End, a.ReservationID, a.Note).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create shift query failed: %w", err)
	}
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&a.ID, &a.CreatedAt); err != nil {
		return fmt.Errorf("create shift failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*ShiftAssignment, error) {
	const query = `
		SELECT id, staff_id, branch_id, shift_date, start_time, end_time, reservation_id, note, created_at
		FROM public.shift_assignments
		WHERE id = $1
	`
	var a ShiftAssignment
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.StaffID, &a.BranchID, &a.Date, &a.Start, &a.End, &a.ReservationID, &a.Note, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get shift failed: %w", err)
	}
	return &a, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*ShiftAssignment, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query := psql.Select(
		"id", "staff_id", "branch_id", "shift_date", "start_time", "end_time", "reservation_id", "note", "created_at",
		"count(*) OVER() as total_count",
	).From("public.shift_assignments")

	if filter.StaffID != "" {
		query = query.Where(squirrel.Eq{"staff_id": filter.StaffID})
	}
	if filter.BranchID != "" {
		query = query.Where(squirrel.Eq{"branch_id": filter.BranchID})
	}
	if filter.From != nil {
		query = query.Where(squirrel.Gt{"end_time": *filter.From})
	}
	if filter.To != nil {
		query = query.Where(squirrel.Lt{"start_time": *filter.To})
	}

	query = query.OrderBy("start_time ASC", "id ASC")
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Limit(uint64(filter.PageSize)).Offset(uint64((page - 1) * filter.PageSize))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list shifts query failed: %w", err)
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list shifts failed: %w", err)
	}
	defer rows.Close()

	var shifts []*ShiftAssignment
	var total int
	for rows.Next() {
		var a ShiftAssignment
		if err := rows.Scan(
			&a.ID, &a.StaffID, &a.BranchID, &a.Date, &a.Start, &a.End, &a.ReservationID, &a.Note, &a.CreatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan shift failed: %w", err)
		}
		shifts = append(shifts, &a)
	}
	return shifts, total, rows.Err()
}

func (r *pgxRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM public.shift_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete shift failed: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
