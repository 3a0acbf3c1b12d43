package inventory

import (
	"context"
	"time"

	"github.com/larderhq/larder/internal/shared"
)

// ItemPatch carries optional item metadata updates. Stock quantities are not
// patchable here; they change only through the ledger coordinator.
type ItemPatch struct {
	Name         *string
	Unit         *string
	Kind         *ItemKind
	MinimumStock *float64
	CostPerUnit  *float64
	Locked       *bool
	Category     *string
	Supplier     *string
}

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error

	InsertItem(ctx context.Context, it Item) (Item, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	ListItems(ctx context.Context, f shared.ListFilters) ([]Item, int, error)
	UpdateItem(ctx context.Context, id int64, p ItemPatch) (Item, error)
	DeleteItem(ctx context.Context, id int64) error
	CountLedgerRefs(ctx context.Context, itemID int64) (int, error)

	GetAdjustment(ctx context.Context, id int64) (Adjustment, error)
	ListAdjustments(ctx context.Context, itemID int64, f shared.ListFilters) ([]Adjustment, int, error)
	UpdateAdjustmentNotes(ctx context.Context, id int64, notes string) (Adjustment, error)

	GetMovement(ctx context.Context, id int64) (Movement, error)
	ListMovements(ctx context.Context, itemID int64, movementType MovementType, f shared.ListFilters) ([]Movement, int, error)

	GetLog(ctx context.Context, id int64) (LogEntry, error)
	ListLogs(ctx context.Context, lf LogFilter, f shared.ListFilters) ([]LogEntry, int, error)
}

// TxRepository is the slice of the repository visible inside a ledger
// transaction. Every stock change flows through these methods under a single
// row lock.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, id int64) (Item, error)
	SetItemStock(ctx context.Context, id int64, qty float64, at time.Time) error
	InsertAdjustment(ctx context.Context, a Adjustment) (int64, error)
	MarkAdjustmentVoided(ctx context.Context, id int64, at time.Time) error
	GetAdjustmentForUpdate(ctx context.Context, id int64) (Adjustment, error)
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	AppendLog(ctx context.Context, e LogEntry) (int64, error)
}
