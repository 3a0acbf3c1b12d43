package inventory

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

const itemColumns = `id, name, unit, kind, current_stock, opening_stock, minimum_stock,
	cost_per_unit, locked, COALESCE(category, ''), COALESCE(supplier, ''), created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Name, &it.Unit, &it.Kind, &it.CurrentStock, &it.OpeningStock,
		&it.MinimumStock, &it.CostPerUnit, &it.Locked, &it.Category, &it.Supplier,
		&it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, shared.ErrNotFound
	}
	return it, err
}

func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *Repository) InsertItem(ctx context.Context, it Item) (Item, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO inventory_items
			(name, unit, kind, current_stock, opening_stock, minimum_stock, cost_per_unit, locked, category, supplier)
		VALUES ($1, $2, $3, $4, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''))
		RETURNING `+itemColumns,
		it.Name, it.Unit, it.Kind, it.CurrentStock, it.MinimumStock, it.CostPerUnit,
		it.Locked, it.Category, it.Supplier)
	return scanItem(row)
}

func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id = $1`, id)
	return scanItem(row)
}

var itemSortColumns = map[string]string{
	"name":         "name",
	"currentStock": "current_stock",
	"minimumStock": "minimum_stock",
	"createdAt":    "created_at",
}

func sortOrder(allowed map[string]string, sortBy, sortDir, fallback string) string {
	col, ok := allowed[sortBy]
	if !ok {
		return fallback
	}
	dir := "ASC"
	if strings.EqualFold(sortDir, "desc") {
		dir = "DESC"
	}
	return col + " " + dir
}

func (r *Repository) ListItems(ctx context.Context, f shared.ListFilters) ([]Item, int, error) {
	where := "TRUE"
	args := []any{}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = fmt.Sprintf("name ILIKE $%d", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_items WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := sortOrder(itemSortColumns, f.SortBy, f.SortDir, "name ASC")
	args = append(args, f.Limit, f.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM inventory_items WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		itemColumns, where, order, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

func (r *Repository) UpdateItem(ctx context.Context, id int64, p ItemPatch) (Item, error) {
	set := []string{"updated_at = NOW()"}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Unit != nil {
		add("unit", *p.Unit)
	}
	if p.Kind != nil {
		add("kind", *p.Kind)
	}
	if p.MinimumStock != nil {
		add("minimum_stock", *p.MinimumStock)
	}
	if p.CostPerUnit != nil {
		add("cost_per_unit", *p.CostPerUnit)
	}
	if p.Locked != nil {
		add("locked", *p.Locked)
	}
	if p.Category != nil {
		args = append(args, *p.Category)
		set = append(set, fmt.Sprintf("category = NULLIF($%d, '')", len(args)))
	}
	if p.Supplier != nil {
		args = append(args, *p.Supplier)
		set = append(set, fmt.Sprintf("supplier = NULLIF($%d, '')", len(args)))
	}
	args = append(args, id)
	row := r.pool.QueryRow(ctx, fmt.Sprintf(
		`UPDATE inventory_items SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(set, ", "), len(args), itemColumns), args...)
	return scanItem(row)
}

func (r *Repository) DeleteItem(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM inventory_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *Repository) CountLedgerRefs(ctx context.Context, itemID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_logs WHERE item_id = $1`, itemID).Scan(&n)
	return n, err
}

const adjustmentColumns = `id, item_id, adjustment_type, change, quantity,
	COALESCE(notes, ''), created_by, created_at, voided_at`

func scanAdjustment(row pgx.Row) (Adjustment, error) {
	var a Adjustment
	err := row.Scan(&a.ID, &a.ItemID, &a.Type, &a.Change, &a.Quantity,
		&a.Notes, &a.CreatedBy, &a.CreatedAt, &a.VoidedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Adjustment{}, shared.ErrNotFound
	}
	return a, err
}

func (r *Repository) GetAdjustment(ctx context.Context, id int64) (Adjustment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments WHERE id = $1`, id)
	return scanAdjustment(row)
}

func (r *Repository) ListAdjustments(ctx context.Context, itemID int64, f shared.ListFilters) ([]Adjustment, int, error) {
	where := "TRUE"
	args := []any{}
	if itemID != 0 {
		args = append(args, itemID)
		where = fmt.Sprintf("item_id = $%d", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_adjustments WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM stock_adjustments WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		adjustmentColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Adjustment, 0)
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *Repository) UpdateAdjustmentNotes(ctx context.Context, id int64, notes string) (Adjustment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE stock_adjustments SET notes = NULLIF($2, '')
		WHERE id = $1
		RETURNING `+adjustmentColumns, id, notes)
	return scanAdjustment(row)
}

const movementColumns = `id, item_id, movement_type, quantity, reason,
	COALESCE(reference_type, ''), COALESCE(reference_id, ''), COALESCE(notes, ''),
	COALESCE(location_from, ''), COALESCE(location_to, ''), created_by, created_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.ItemID, &m.Type, &m.Quantity, &m.Reason,
		&m.ReferenceType, &m.ReferenceID, &m.Notes,
		&m.LocationFrom, &m.LocationTo, &m.CreatedBy, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, shared.ErrNotFound
	}
	return m, err
}

func (r *Repository) GetMovement(ctx context.Context, id int64) (Movement, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE id = $1`, id)
	return scanMovement(row)
}

func (r *Repository) ListMovements(ctx context.Context, itemID int64, movementType MovementType, f shared.ListFilters) ([]Movement, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	if itemID != 0 {
		args = append(args, itemID)
		where = append(where, fmt.Sprintf("item_id = $%d", len(args)))
	}
	if movementType != "" {
		args = append(args, movementType)
		where = append(where, fmt.Sprintf("movement_type = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM stock_movements WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		movementColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Movement, 0)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

const logColumns = `l.id, l.item_id, COALESCE(i.name, ''), l.change, l.new_quantity,
	l.reason, l.reference_id, l.created_at`

func scanLog(row pgx.Row) (LogEntry, error) {
	var e LogEntry
	err := row.Scan(&e.ID, &e.ItemID, &e.ItemName, &e.Change, &e.NewQuantity,
		&e.Reason, &e.ReferenceID, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return LogEntry{}, shared.ErrNotFound
	}
	return e, err
}

func (r *Repository) GetLog(ctx context.Context, id int64) (LogEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+logColumns+`
		FROM inventory_logs l
		LEFT JOIN inventory_items i ON i.id = l.item_id
		WHERE l.id = $1`, id)
	return scanLog(row)
}

func (r *Repository) ListLogs(ctx context.Context, lf LogFilter, f shared.ListFilters) ([]LogEntry, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	if lf.ItemID != 0 {
		args = append(args, lf.ItemID)
		where = append(where, fmt.Sprintf("l.item_id = $%d", len(args)))
	}
	if lf.Reason != "" {
		args = append(args, lf.Reason)
		where = append(where, fmt.Sprintf("l.reason = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_logs l WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM inventory_logs l
		LEFT JOIN inventory_items i ON i.id = l.item_id
		WHERE %s
		ORDER BY l.created_at DESC, l.id DESC
		LIMIT $%d OFFSET $%d`, logColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]LogEntry, 0)
	for rows.Next() {
		e, err := scanLog(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// AdjustmentActor resolves the employee name behind an adjustment ledger row.
func (r *Repository) AdjustmentActor(ctx context.Context, refID int64) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `
		SELECT e.name FROM stock_adjustments a
		JOIN employees e ON e.id = a.created_by
		WHERE a.id = $1`, refID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	return name, err
}

// MovementActor resolves the employee name behind a movement ledger row.
func (r *Repository) MovementActor(ctx context.Context, refID int64) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `
		SELECT e.name FROM stock_movements m
		JOIN employees e ON e.id = m.created_by
		WHERE m.id = $1`, refID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	return name, err
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) GetItemForUpdate(ctx context.Context, id int64) (Item, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id = $1 FOR UPDATE`, id)
	return scanItem(row)
}

func (t *txRepository) SetItemStock(ctx context.Context, id int64, qty float64, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE inventory_items SET current_stock = $2, updated_at = $3 WHERE id = $1`,
		id, qty, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepository) InsertAdjustment(ctx context.Context, a Adjustment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_adjustments (item_id, adjustment_type, change, quantity, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
		RETURNING id`,
		a.ItemID, a.Type, a.Change, a.Quantity, a.Notes, a.CreatedBy, a.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepository) GetAdjustmentForUpdate(ctx context.Context, id int64) (Adjustment, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments WHERE id = $1 FOR UPDATE`, id)
	return scanAdjustment(row)
}

func (t *txRepository) MarkAdjustmentVoided(ctx context.Context, id int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE stock_adjustments SET voided_at = $2 WHERE id = $1 AND voided_at IS NULL`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_movements
			(item_id, movement_type, quantity, reason, reference_type, reference_id, notes, location_from, location_to, created_by, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10, $11)
		RETURNING id`,
		m.ItemID, m.Type, m.Quantity, m.Reason, m.ReferenceType, m.ReferenceID,
		m.Notes, m.LocationFrom, m.LocationTo, m.CreatedBy, m.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepository) AppendLog(ctx context.Context, e LogEntry) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO inventory_logs (item_id, change, new_quantity, reason, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		e.ItemID, e.Change, e.NewQuantity, e.Reason, e.ReferenceID, e.CreatedAt).Scan(&id)
	return id, err
}
