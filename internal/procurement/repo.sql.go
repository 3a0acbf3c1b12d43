package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/larderhq/larder/internal/platform/db"
	"github.com/larderhq/larder/internal/shared"
)

// Repository is the pgx-backed implementation of RepositoryPort.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, order_number, supplier_id, supplier_name, status, total,
	COALESCE(notes, ''), order_date, expected_date, created_by, received_by, received_at, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.SupplierID, &o.SupplierName, &o.Status, &o.Total,
		&o.Notes, &o.OrderDate, &o.ExpectedDate, &o.CreatedBy, &o.ReceivedBy, &o.ReceivedAt,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, shared.ErrNotFound
	}
	return o, err
}

func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q rowQuerier, orderID int64) ([]OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT id, item_id, item_name, quantity, unit_cost, line_total
		FROM purchase_order_lines
		WHERE order_id = $1
		ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]OrderLine, 0)
	for rows.Next() {
		var ln OrderLine
		if err := rows.Scan(&ln.ID, &ln.ItemID, &ln.ItemName, &ln.Quantity, &ln.UnitCost, &ln.LineTotal); err != nil {
			return nil, err
		}
		ln.OrderID = orderID
		lines = append(lines, ln)
	}
	return lines, rows.Err()
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1`, id))
	if err != nil {
		return Order{}, err
	}
	o.Lines, err = loadLines(ctx, r.pool, o.ID)
	return o, err
}

func (r *Repository) ListOrders(ctx context.Context, lf ListFilter, f shared.ListFilters) ([]Order, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	if lf.Status != "" {
		args = append(args, lf.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if lf.SupplierID != 0 {
		args = append(args, lf.SupplierID)
		where = append(where, fmt.Sprintf("supplier_id = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = append(where, fmt.Sprintf("(order_number ILIKE $%d OR supplier_name ILIKE $%d)", len(args), len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM purchase_orders WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range orders {
		if orders[i].Lines, err = loadLines(ctx, r.pool, orders[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return orders, total, nil
}

func (r *Repository) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM purchase_orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// OrderActor resolves the employee behind an order for ledger enrichment.
// Receipts are attributed to whoever received the goods, falling back to the
// order's creator.
func (r *Repository) OrderActor(ctx context.Context, refID int64) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `
		SELECT e.name FROM purchase_orders o
		JOIN employees e ON e.id = COALESCE(o.received_by, o.created_by)
		WHERE o.id = $1`, refID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	return name, err
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) InsertOrder(ctx context.Context, o Order) (Order, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO purchase_orders
			(order_number, supplier_id, supplier_name, status, total, notes, order_date, expected_date, created_by)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
		RETURNING `+orderColumns,
		o.Number, o.SupplierID, o.SupplierName, o.Status, o.Total, o.Notes, o.OrderDate, o.ExpectedDate, o.CreatedBy)
	return scanOrder(row)
}

func (t *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Order{}, err
	}
	o.Lines, err = loadLines(ctx, t.tx, o.ID)
	return o, err
}

func (t *txRepository) UpdateOrderHeader(ctx context.Context, id int64, notes string, orderDate time.Time, expected *time.Time, total float64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE purchase_orders
		SET notes = NULLIF($2, ''), order_date = $3, expected_date = $4, total = $5, updated_at = $6
		WHERE id = $1`, id, notes, orderDate, expected, total, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepository) ReplaceLines(ctx context.Context, orderID int64, lines []OrderLine) ([]OrderLine, error) {
	if _, err := t.tx.Exec(ctx, `DELETE FROM purchase_order_lines WHERE order_id = $1`, orderID); err != nil {
		return nil, err
	}
	out := make([]OrderLine, 0, len(lines))
	for _, ln := range lines {
		ln.OrderID = orderID
		err := t.tx.QueryRow(ctx, `
			INSERT INTO purchase_order_lines (order_id, item_id, item_name, quantity, unit_cost, line_total)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			orderID, ln.ItemID, ln.ItemName, ln.Quantity, ln.UnitCost, ln.LineTotal).Scan(&ln.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ln)
	}
	return out, nil
}

func (t *txRepository) SetOrderStatus(ctx context.Context, id int64, status OrderStatus, receivedBy *int64, receivedAt *time.Time, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE purchase_orders
		SET status = $2, received_by = $3, received_at = $4, updated_at = $5
		WHERE id = $1`, id, status, receivedBy, receivedAt, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
