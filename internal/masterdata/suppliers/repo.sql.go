package suppliers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/larderhq/larder/internal/shared"
)

// Repository persists suppliers in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, code, name, COALESCE(contact_person, ''), COALESCE(email, ''),
	COALESCE(phone, ''), COALESCE(address, ''), COALESCE(payment_terms, ''),
	is_active, created_at, updated_at`

func scan(row pgx.Row) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.ContactPerson, &s.Email, &s.Phone,
		&s.Address, &s.PaymentTerms, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, shared.ErrNotFound
	}
	return s, err
}

// uniqueViolation reports a duplicate code or name insert.
func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *Repository) Insert(ctx context.Context, s Supplier) (Supplier, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO suppliers (code, name, contact_person, email, phone, address, payment_terms, is_active)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)
		RETURNING `+columns,
		s.Code, s.Name, s.ContactPerson, s.Email, s.Phone, s.Address, s.PaymentTerms, s.IsActive)
	out, err := scan(row)
	if uniqueViolation(err) {
		return Supplier{}, fmt.Errorf("%w: supplier code or name already exists", shared.ErrConflict)
	}
	return out, err
}

func (r *Repository) Get(ctx context.Context, id int64) (Supplier, error) {
	return scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM suppliers WHERE id = $1`, id))
}

func (r *Repository) List(ctx context.Context, f shared.ListFilters) ([]Supplier, int, error) {
	where := "TRUE"
	args := []any{}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = "(code ILIKE $1 OR name ILIKE $1 OR contact_person ILIKE $1)"
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM suppliers WHERE %s ORDER BY name ASC LIMIT $%d OFFSET $%d`,
		columns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Supplier, 0)
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *Repository) Update(ctx context.Context, id int64, p Patch) (Supplier, error) {
	set := []string{"updated_at = NOW()"}
	args := []any{}
	add := func(expr string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf(expr, len(args)))
	}
	if p.Code != nil {
		add("code = $%d", *p.Code)
	}
	if p.Name != nil {
		add("name = $%d", *p.Name)
	}
	if p.ContactPerson != nil {
		add("contact_person = NULLIF($%d, '')", *p.ContactPerson)
	}
	if p.Email != nil {
		add("email = NULLIF($%d, '')", *p.Email)
	}
	if p.Phone != nil {
		add("phone = NULLIF($%d, '')", *p.Phone)
	}
	if p.Address != nil {
		add("address = NULLIF($%d, '')", *p.Address)
	}
	if p.PaymentTerms != nil {
		add("payment_terms = NULLIF($%d, '')", *p.PaymentTerms)
	}
	if p.IsActive != nil {
		add("is_active = $%d", *p.IsActive)
	}
	args = append(args, id)
	row := r.pool.QueryRow(ctx, fmt.Sprintf(
		`UPDATE suppliers SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(set, ", "), len(args), columns), args...)
	out, err := scan(row)
	if uniqueViolation(err) {
		return Supplier{}, fmt.Errorf("%w: supplier code or name already exists", shared.ErrConflict)
	}
	return out, err
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountOrders reports how many purchase orders reference a supplier.
func (r *Repository) CountOrders(ctx context.Context, supplierID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders WHERE supplier_id = $1`, supplierID).Scan(&n)
	return n, err
}
