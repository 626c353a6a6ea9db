package invoice

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
	// Create fails with ErrAlreadyFinalized when the booking already has an invoice.
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id string) (*Invoice, error)
	GetByBooking(ctx context.Context, bookingID string) (*Invoice, error)
	List(ctx context.Context, filter Filter) ([]*Invoice, int, error)
	// Update persists inv only while the stored status is still from.
	Update(ctx context.Context, inv *Invoice, from Status) error
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var invoiceColumns = []string{
	"id", "booking_id", "branch_id", "customer_id", "line_items", "subtotal", "discount", "total",
	"payment_method", "status", "issued_by", "starts_at", "hold_expires_at", "cancel_reason",
	"cancellation_fee", "settled_at", "closed_at", "created_at", "updated_at",
}

func (r *pgxRepository) Create(ctx context.Context, inv *Invoice) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.invoices").
		Columns(
			"booking_id", "branch_id", "customer_id", "line_items", "subtotal", "discount", "total",
			"payment_method", "status", "issued_by", "starts_at", "hold_expires_at", "settled_at",
		).
		Values(
			inv.BookingID, inv.BranchID, inv.CustomerID, inv.LineItems, inv.Subtotal, inv.Discount, inv.Total,
			inv.PaymentMethod, inv.Status, inv.IssuedBy, inv.StartsAt, inv.HoldExpiresAt, inv.SettledAt,
		).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create invoice query failed: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrAlreadyFinalized
		}
		return fmt.Errorf("create invoice failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Invoice, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

func (r *pgxRepository) GetByBooking(ctx context.Context, bookingID string) (*Invoice, error) {
	return r.getOne(ctx, squirrel.Eq{"booking_id": bookingID})
}

func (r *pgxRepository) getOne(ctx context.Context, where squirrel.Eq) (*Invoice, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(invoiceColumns...).
		From("public.invoices").
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get invoice query failed: %w", err)
	}

	inv, err := scanInvoice(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get invoice failed: %w", err)
	}
	return inv, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Invoice, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query := psql.Select(invoiceColumns...).
		Column("count(*) OVER() as total_count").
		From("public.invoices")

	if filter.BookingID != "" {
		query = query.Where(squirrel.Eq{"booking_id": filter.BookingID})
	}
	if filter.CustomerID != "" {
		query = query.Where(squirrel.Eq{"customer_id": filter.CustomerID})
	}
	if filter.BranchID != "" {
		query = query.Where(squirrel.Eq{"branch_id": filter.BranchID})
	}
	if len(filter.Statuses) > 0 {
		query = query.Where(squirrel.Eq{"status": filter.Statuses})
	}
	if filter.ExpiresBefore != nil {
		query = query.Where(squirrel.LtOrEq{"hold_expires_at": *filter.ExpiresBefore})
	}

	query = query.OrderBy("created_at ASC", "id ASC")
	if filter.PageSize > 0 {
		if filter.Page < 1 {
			filter.Page = 1
		}
		query = query.Limit(uint64(filter.PageSize)).Offset(uint64((filter.Page - 1) * filter.PageSize))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list invoices query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices failed: %w", err)
	}
	defer rows.Close()

	var invoices []*Invoice
	var total int
	for rows.Next() {
		inv, err := scanInvoice(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan invoice failed: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, total, rows.Err()
}

func (r *pgxRepository) Update(ctx context.Context, inv *Invoice, from Status) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.invoices").
		Set("status", inv.Status).
		Set("cancel_reason", inv.CancelReason).
		Set("cancellation_fee", inv.CancellationFee).
		Set("settled_at", inv.SettledAt).
		Set("closed_at", inv.ClosedAt).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": inv.ID, "status": from}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build update invoice query failed: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&inv.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStaleState
		}
		return fmt.Errorf("update invoice failed: %w", err)
	}
	return nil
}

func scanInvoice(row pgx.Row, extra ...any) (*Invoice, error) {
	var inv Invoice
	dest := []any{
		&inv.ID, &inv.BookingID, &inv.BranchID, &inv.CustomerID, &inv.LineItems,
		&inv.Subtotal, &inv.Discount, &inv.Total, &inv.PaymentMethod, &inv.Status, &inv.IssuedBy,
		&inv.StartsAt, &inv.HoldExpiresAt, &inv.CancelReason, &inv.CancellationFee,
		&inv.SettledAt, &inv.ClosedAt, &inv.CreatedAt, &inv.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &inv, nil
}
