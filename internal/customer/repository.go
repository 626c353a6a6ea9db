package customer

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines methods for accessing customer data from storage.
type Repository interface {
	GetByEmail(ctx context.Context, email string) (*Customer, error)
	GetByID(ctx context.Context, id string) (*Customer, error)
	Create(ctx context.Context, c *Customer) error
	List(ctx context.Context, filter CustomerFilter) ([]*Customer, int, error)
	UpdateMemberships(ctx context.Context, id string, memberships []Membership) error
	// AddPoints increments the loyalty balance atomically.
	AddPoints(ctx context.Context, id string, points int64) error
}

type pgxCustomerRepository struct {
	pool *pgxpool.Pool
}

// NewPgxRepository creates a new Repository implementation using pgxpool.
func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxCustomerRepository{
		pool: pool,
	}
}

const selectCustomer = `
	SELECT
		c.id,
		c.email,
		c.display_name,
		c.phone,
		c.memberships,
		c.loyalty_points,
		c.created_at
	FROM public.customers c
`

func (r *pgxCustomerRepository) GetByEmail(ctx context.Context, email string) (*Customer, error) {
	c, err := scanCustomer(r.pool.QueryRow(ctx, selectCustomer+" WHERE c.email = $1", email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("GetByEmail query failed: %w", err)
	}
	return c, nil
}

func (r *pgxCustomerRepository) GetByID(ctx context.Context, id string) (*Customer, error) {
	c, err := scanCustomer(r.pool.QueryRow(ctx, selectCustomer+" WHERE c.id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("GetByID query failed: %w", err)
	}
	return c, nil
}

func (r *pgxCustomerRepository) Create(ctx context.Context, c *Customer) error {
	const query = `
		INSERT INTO public.customers (email, display_name, phone, memberships)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	memberships := c.Memberships
	if memberships == nil {
		memberships = []Membership{}
	}

	err := r.pool.QueryRow(ctx, query, c.Email, c.DisplayName, c.Phone, memberships).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrEmailAlreadyUsed
		}
		return fmt.Errorf("create customer failed: %w", err)
	}
	return nil
}

func (r *pgxCustomerRepository) List(ctx context.Context, filter CustomerFilter) ([]*Customer, int, error) {
	query := `
		SELECT
			c.id,
			c.email,
			c.display_name,
			c.phone,
			c.memberships,
			c.loyalty_points,
			c.created_at,
			count(*) OVER() as total_count
		FROM public.customers c
		WHERE 1=1
	`
	args := []any{}
	argID := 1

	if filter.Email != "" {
		args = append(args, "%"+filter.Email+"%")
		query += " AND c.email ILIKE $" + strconv.Itoa(argID)
		argID++
	}
	if filter.DisplayName != "" {
		args = append(args, "%"+filter.DisplayName+"%")
		query += " AND c.display_name ILIKE $" + strconv.Itoa(argID)
		argID++
	}

	query += " ORDER BY c.created_at DESC"

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		args = append(args, filter.PageSize, (page-1)*filter.PageSize)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argID, argID+1)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list customers query failed: %w", err)
	}
	defer rows.Close()

	var customers []*Customer
	var total int
	for rows.Next() {
		c, err := scanCustomer(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan customer failed: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

func (r *pgxCustomerRepository) UpdateMemberships(ctx context.Context, id string, memberships []Membership) error {
	const query = `UPDATE public.customers SET memberships = $1 WHERE id = $2`
	if memberships == nil {
		memberships = []Membership{}
	}
	cmd, err := r.pool.Exec(ctx, query, memberships, id)
	if err != nil {
		return fmt.Errorf("update memberships failed: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxCustomerRepository) AddPoints(ctx context.Context, id string, points int64) error {
	const query = `UPDATE public.customers SET loyalty_points = loyalty_points + $1 WHERE id = $2`
	cmd, err := r.pool.Exec(ctx, query, points, id)
	if err != nil {
		return fmt.Errorf("add loyalty points failed: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCustomer(row pgx.Row, extra ...any) (*Customer, error) {
	var c Customer
	dest := []any{&c.ID, &c.Email, &c.DisplayName, &c.Phone, &c.Memberships, &c.LoyaltyPoints, &c.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &c, nil
}
