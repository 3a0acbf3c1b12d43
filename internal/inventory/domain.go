package inventory

import (
	"fmt"
	"time"

	"github.com/larderhq/larder/internal/shared"
)

// ItemKind distinguishes raw ingredients from semi-finished preparations.
type ItemKind string

const (
	ItemKindRaw          ItemKind = "raw"
	ItemKindSemiFinished ItemKind = "semi_finished"
)

// AdjustmentType enumerates why a manual correction was made.
type AdjustmentType string

const (
	AdjustmentManual        AdjustmentType = "manual"
	AdjustmentPhysicalCount AdjustmentType = "physical_count"
	AdjustmentVariance      AdjustmentType = "variance"
)

// ChangeDirection is the direction of an adjustment.
type ChangeDirection string

const (
	ChangeIncrement ChangeDirection = "increment"
	ChangeDecrement ChangeDirection = "decrement"
)

// MovementType enumerates how stock physically moved.
type MovementType string

const (
	MovementIn         MovementType = "in"
	MovementOut        MovementType = "out"
	MovementTransfer   MovementType = "transfer"
	MovementWaste      MovementType = "waste"
	MovementProduction MovementType = "production"
)

// LogReason tags a ledger entry with why stock changed. It is supplied
// explicitly by the caller, never inferred from movement direction.
type LogReason string

const (
	ReasonAdjustment    LogReason = "adjustment"
	ReasonMovement      LogReason = "movement"
	ReasonPurchaseOrder LogReason = "purchase_order"
	ReasonSale          LogReason = "sale"
	ReasonReturn        LogReason = "return"
)

// Item holds the current quantity-on-hand and reorder metadata for a stocked
// item. CurrentStock is mutated only through the ledger coordinator;
// OpeningStock is fixed at creation so the ledger balance is checkable.
type Item struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Unit         string    `json:"unit"`
	Kind         ItemKind  `json:"kind"`
	CurrentStock float64   `json:"currentStock"`
	OpeningStock float64   `json:"openingStock"`
	MinimumStock float64   `json:"minimumStock"`
	CostPerUnit  float64   `json:"costPerUnit"`
	Locked       bool      `json:"locked"`
	Category     string    `json:"category,omitempty"`
	Supplier     string    `json:"supplier,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Adjustment records a manual, physical-count, or variance correction. It is
// immutable once posted apart from its notes; voiding issues a compensating
// ledger entry instead of deleting history.
type Adjustment struct {
	ID        int64           `json:"id"`
	ItemID    int64           `json:"itemId"`
	Type      AdjustmentType  `json:"adjustmentType"`
	Change    ChangeDirection `json:"change"`
	Quantity  float64         `json:"quantity"`
	Notes     string          `json:"notes,omitempty"`
	CreatedBy int64           `json:"createdBy"`
	CreatedAt time.Time       `json:"createdAt"`
	VoidedAt  *time.Time      `json:"voidedAt,omitempty"`
}

// Movement records directional quantity flow tied to a reference document.
type Movement struct {
	ID            int64        `json:"id"`
	ItemID        int64        `json:"itemId"`
	Type          MovementType `json:"movementType"`
	Quantity      float64      `json:"quantity"`
	Reason        LogReason    `json:"reason"`
	ReferenceType string       `json:"referenceType,omitempty"`
	ReferenceID   string       `json:"referenceId,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	LocationFrom  string       `json:"locationFrom,omitempty"`
	LocationTo    string       `json:"locationTo,omitempty"`
	CreatedBy     int64        `json:"createdBy"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// LogEntry is one append-only ledger row. Change is signed; NewQuantity is
// the on-hand quantity materialized at write time. ReferenceID points into
// the collection selected by Reason.
type LogEntry struct {
	ID          int64     `json:"id"`
	ItemID      int64     `json:"itemId"`
	ItemName    string    `json:"itemName,omitempty"`
	Change      float64   `json:"change"`
	NewQuantity float64   `json:"newQuantity"`
	Reason      LogReason `json:"reason"`
	ReferenceID *int64    `json:"referenceId,omitempty"`
	CreatedAt   time.Time `json:"timestamp"`
}

// EnrichedLogEntry is the read view of a ledger row with the acting user
// resolved through the cause record.
type EnrichedLogEntry struct {
	ID               int64     `json:"id"`
	ItemID           int64     `json:"itemId"`
	ItemName         string    `json:"itemName"`
	Change           float64   `json:"change"`
	PreviousQuantity float64   `json:"previousQuantity"`
	NewQuantity      float64   `json:"newQuantity"`
	User             string    `json:"user"`
	Reason           LogReason `json:"reason"`
	Timestamp        time.Time `json:"timestamp"`
}

// AdjustmentInput describes a stock adjustment request.
type AdjustmentInput struct {
	ItemID         int64
	Type           AdjustmentType
	Change         ChangeDirection
	Quantity       float64
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// MovementInput describes a stock movement request.
type MovementInput struct {
	ItemID         int64
	Type           MovementType
	Quantity       float64
	Reason         LogReason
	ReferenceType  string
	ReferenceID    string
	Notes          string
	LocationFrom   string
	LocationTo     string
	ActorID        int64
	IdempotencyKey string
}

// ReceiptLine is one received purchase-order line.
type ReceiptLine struct {
	ItemID   int64
	Quantity float64
}

// ReceiptInput posts received purchase-order goods into stock, one ledger
// entry per line, all in a single transaction.
type ReceiptInput struct {
	OrderID        int64
	ActorID        int64
	Lines          []ReceiptLine
	IdempotencyKey string
}

// LogFilter narrows ledger listings.
type LogFilter struct {
	ItemID int64
	Reason LogReason
}

// Module errors wrap the shared sentinels so the HTTP layer maps them to
// status codes without knowing inventory specifics.
var (
	ErrInvalidQuantity   = fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", shared.ErrConflict)
	ErrItemLocked        = fmt.Errorf("%w: item is locked", shared.ErrConflict)
	ErrActorRequired     = fmt.Errorf("%w: acting employee required", shared.ErrUnauthorized)
	ErrAdjustmentVoided  = fmt.Errorf("%w: adjustment already voided", shared.ErrConflict)
	ErrItemReferenced    = fmt.Errorf("%w: item referenced by ledger entries", shared.ErrConflict)
)

// MovementDelta returns the signed on-hand effect of a movement type.
// Transfers relocate stock without changing the on-hand quantity, so their
// delta is zero and no ledger entry is written.
func MovementDelta(t MovementType, qty float64) (float64, bool) {
	switch t {
	case MovementIn, MovementProduction:
		return qty, true
	case MovementOut, MovementWaste:
		return -qty, true
	case MovementTransfer:
		return 0, false
	default:
		return 0, false
	}
}
