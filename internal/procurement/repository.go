package procurement

import (
	"context"
	"time"

	"github.com/larderhq/larder/internal/shared"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error

	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, lf ListFilter, f shared.ListFilters) ([]Order, int, error)
	DeleteOrder(ctx context.Context, id int64) error
}

// TxRepository is the slice of the repository visible inside an order
// transaction.
type TxRepository interface {
	InsertOrder(ctx context.Context, o Order) (Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	UpdateOrderHeader(ctx context.Context, id int64, notes string, orderDate time.Time, expected *time.Time, total float64, at time.Time) error
	ReplaceLines(ctx context.Context, orderID int64, lines []OrderLine) ([]OrderLine, error)
	SetOrderStatus(ctx context.Context, id int64, status OrderStatus, receivedBy *int64, receivedAt *time.Time, at time.Time) error
}
