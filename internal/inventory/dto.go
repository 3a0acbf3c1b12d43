package inventory

// createItemRequest is the POST /inventory/items payload.
type createItemRequest struct {
	Name         string   `json:"name" validate:"required,max=120"`
	Unit         string   `json:"unit" validate:"required,max=32"`
	Kind         ItemKind `json:"kind" validate:"omitempty,oneof=raw semi_finished"`
	CurrentStock float64  `json:"currentStock" validate:"gte=0"`
	MinimumStock float64  `json:"minimumStock" validate:"gte=0"`
	CostPerUnit  float64  `json:"costPerUnit" validate:"gte=0"`
	Locked       bool     `json:"locked"`
	Category     string   `json:"category" validate:"max=64"`
	Supplier     string   `json:"supplier" validate:"max=120"`
}

// updateItemRequest patches item metadata. Absent fields are left untouched.
type updateItemRequest struct {
	Name         *string   `json:"name" validate:"omitempty,max=120"`
	Unit         *string   `json:"unit" validate:"omitempty,max=32"`
	Kind         *ItemKind `json:"kind" validate:"omitempty,oneof=raw semi_finished"`
	MinimumStock *float64  `json:"minimumStock" validate:"omitempty,gte=0"`
	CostPerUnit  *float64  `json:"costPerUnit" validate:"omitempty,gte=0"`
	Locked       *bool     `json:"locked"`
	Category     *string   `json:"category" validate:"omitempty,max=64"`
	Supplier     *string   `json:"supplier" validate:"omitempty,max=120"`
}

type createAdjustmentRequest struct {
	ItemID         int64           `json:"itemId" validate:"required,gt=0"`
	Type           AdjustmentType  `json:"adjustmentType" validate:"required,oneof=manual physical_count variance"`
	Change         ChangeDirection `json:"change" validate:"required,oneof=increment decrement"`
	Quantity       float64         `json:"quantity" validate:"required,gt=0"`
	Notes          string          `json:"notes" validate:"max=500"`
	IdempotencyKey string          `json:"idempotencyKey" validate:"omitempty,max=64"`
}

type updateAdjustmentRequest struct {
	Notes string `json:"notes" validate:"max=500"`
}

type createMovementRequest struct {
	ItemID         int64        `json:"itemId" validate:"required,gt=0"`
	Type           MovementType `json:"movementType" validate:"required,oneof=in out transfer waste production"`
	Quantity       float64      `json:"quantity" validate:"required,gt=0"`
	Reason         LogReason    `json:"reason" validate:"omitempty,oneof=movement sale return"`
	ReferenceType  string       `json:"referenceType" validate:"max=64"`
	ReferenceID    string       `json:"referenceId" validate:"omitempty,uuid4|max=64"`
	Notes          string       `json:"notes" validate:"max=500"`
	LocationFrom   string       `json:"locationFrom" validate:"max=64"`
	LocationTo     string       `json:"locationTo" validate:"max=64"`
	IdempotencyKey string       `json:"idempotencyKey" validate:"omitempty,max=64"`
}
