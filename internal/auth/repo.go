package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/larderhq/larder/internal/shared"
)

// Repository provides employee lookups backed by PostgreSQL.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Employee, error)
	FindByID(ctx context.Context, id int64) (*Employee, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the employee repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const employeeColumns = `id, name, email, password_hash, role, is_active, created_at, updated_at`

func (r *repository) FindByEmail(ctx context.Context, email string) (*Employee, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE email=$1`, email)
	return scanEmployee(row)
}

func (r *repository) FindByID(ctx context.Context, id int64) (*Employee, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id=$1`, id)
	return scanEmployee(row)
}

func scanEmployee(row pgx.Row) (*Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.Name, &e.Email, &e.PasswordHash, &e.Role, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}
