package branch

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines data access methods for branches.
type Repository interface {
	Create(ctx context.Context, b *Branch) error
	GetByID(ctx context.Context, id string) (*Branch, error)
	List(ctx context.Context, filter Filter) ([]*Branch, int, error)
	Update(ctx context.Context, b *Branch) error
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func (r *pgxRepository) Create(ctx context.Context, b *Branch) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.branches").
		Columns("name", "address", "opening_hours_start", "opening_hours_end").
		Values(b.Name, b.Address, b.OpeningHoursStart, b.OpeningHoursEnd).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create branch query failed: %w", err)
	}

	// Postgres casts "HH:MM:SS" strings to TIME.
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&b.ID, &b.CreatedAt); err != nil {
		return fmt.Errorf("create branch failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Branch, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"id", "name", "address", "opening_hours_start::text", "opening_hours_end::text", "created_at",
	).
		From("public.branches").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get branch query failed: %w", err)
	}

	var b Branch
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&b.ID, &b.Name, &b.Address, &b.OpeningHoursStart, &b.OpeningHoursEnd, &b.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get branch failed: %w", err)
	}
	return &b, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Branch, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query := psql.Select(
		"id", "name", "address", "opening_hours_start::text", "opening_hours_end::text", "created_at",
		"count(*) OVER() as total_count",
	).From("public.branches")

	if filter.Keyword != "" {
		like := "%" + filter.Keyword + "%"
		query = query.Where(squirrel.Or{
			squirrel.ILike{"name": like},
			squirrel.ILike{"address": like},
		})
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize
	query = query.OrderBy("name ASC").Limit(uint64(filter.PageSize)).Offset(uint64(offset))

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list branches query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list branches failed: %w", err)
	}
	defer rows.Close()

	var branches []*Branch
	var total int
	for rows.Next() {
		var b Branch
		if err := rows.Scan(
			&b.ID, &b.Name, &b.Address, &b.OpeningHoursStart, &b.OpeningHoursEnd, &b.CreatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan branch failed: %w", err)
		}
		branches = append(branches, &b)
	}
	return branches, total, rows.Err()
}

func (r *pgxRepository) Update(ctx context.Context, b *Branch) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.branches").
		Set("name", b.Name).
		Set("address", b.Address).
		Set("opening_hours_start", b.OpeningHoursStart).
		Set("opening_hours_end", b.OpeningHoursEnd).
		Where(squirrel.Eq{"id": b.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update branch query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update branch failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
