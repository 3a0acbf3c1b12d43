// Package procurement manages purchase orders and their handoff into stock.
package procurement

import (
	"fmt"
	"time"

	"github.com/larderhq/larder/internal/shared"
)

// OrderStatus is the purchase-order lifecycle state. Orders are created
// pending; receiving or cancelling are explicit transitions and stock only
// moves on receive.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusReceived  OrderStatus = "received"
	StatusCancelled OrderStatus = "cancelled"
)

// OrderLine is one ordered item. ItemName and line amounts are snapshotted
// server-side at write time so later item edits do not rewrite order history.
type OrderLine struct {
	ID        int64   `json:"id"`
	OrderID   int64   `json:"-"`
	ItemID    int64   `json:"itemId"`
	ItemName  string  `json:"itemName"`
	Quantity  float64 `json:"quantity"`
	UnitCost  float64 `json:"unitCost"`
	LineTotal float64 `json:"lineTotal"`
}

// Order is a purchase order with its lines. SupplierName is a snapshot taken
// at creation.
type Order struct {
	ID           int64       `json:"id"`
	Number       string      `json:"number"`
	SupplierID   int64       `json:"supplierId"`
	SupplierName string      `json:"supplierName"`
	Status       OrderStatus `json:"status"`
	Total        float64     `json:"total"`
	Notes        string      `json:"notes,omitempty"`
	OrderDate    time.Time   `json:"orderDate"`
	ExpectedDate *time.Time  `json:"expectedDate,omitempty"`
	CreatedBy    int64       `json:"createdBy"`
	ReceivedBy   *int64      `json:"receivedBy,omitempty"`
	ReceivedAt   *time.Time  `json:"receivedAt,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
	Lines        []OrderLine `json:"lines"`
}

// LineInput is one requested order line.
type LineInput struct {
	ItemID   int64
	Quantity float64
	UnitCost float64
}

// OrderInput describes a create or update request. Updates replace the full
// line set.
type OrderInput struct {
	SupplierID   int64
	Notes        string
	OrderDate    time.Time
	ExpectedDate *time.Time
	Lines        []LineInput
	ActorID      int64
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status     OrderStatus
	SupplierID int64
}

var (
	ErrOrderNotPending = fmt.Errorf("%w: order is not pending", shared.ErrConflict)
	ErrOrderReceived   = fmt.Errorf("%w: received orders are permanent", shared.ErrConflict)
	ErrEmptyOrder      = fmt.Errorf("%w: order has no lines", shared.ErrValidation)
)
