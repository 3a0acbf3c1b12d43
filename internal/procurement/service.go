package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/larderhq/larder/internal/inventory"
	"github.com/larderhq/larder/internal/shared"
)

// ItemCatalog validates order lines against the item store and supplies name
// snapshots.
type ItemCatalog interface {
	GetItem(ctx context.Context, id int64) (inventory.Item, error)
}

// StockPoster posts received goods into stock through the ledger coordinator.
type StockPoster interface {
	PostReceipt(ctx context.Context, in inventory.ReceiptInput) ([]inventory.LogEntry, error)
}

// SupplierDirectory resolves supplier names for the order snapshot.
type SupplierDirectory interface {
	SupplierName(ctx context.Context, id int64) (string, error)
}

// Service owns the purchase-order lifecycle. Orders never touch stock until
// an explicit receive, which hands the lines to the inventory ledger.
type Service struct {
	logger    *slog.Logger
	repo      RepositoryPort
	items     ItemCatalog
	stock     StockPoster
	suppliers SupplierDirectory
	now       func() time.Time
}

func NewService(logger *slog.Logger, repo RepositoryPort, items ItemCatalog, stock StockPoster, suppliers SupplierDirectory) *Service {
	return &Service{
		logger:    logger,
		repo:      repo,
		items:     items,
		stock:     stock,
		suppliers: suppliers,
		now:       time.Now,
	}
}

// buildLines validates every requested line against the item store before
// anything persists. Validation is all or nothing: unknown items are
// collected and reported together.
func (s *Service) buildLines(ctx context.Context, in []LineInput) ([]OrderLine, float64, error) {
	if len(in) == 0 {
		return nil, 0, ErrEmptyOrder
	}
	var (
		lines   = make([]OrderLine, 0, len(in))
		total   float64
		missing []string
	)
	seen := make(map[int64]bool, len(in))
	for _, li := range in {
		if li.Quantity <= 0 {
			return nil, 0, fmt.Errorf("%w: line quantity must be positive", shared.ErrValidation)
		}
		if li.UnitCost < 0 {
			return nil, 0, fmt.Errorf("%w: unit cost cannot be negative", shared.ErrValidation)
		}
		if seen[li.ItemID] {
			return nil, 0, fmt.Errorf("%w: duplicate line for item %d", shared.ErrValidation, li.ItemID)
		}
		seen[li.ItemID] = true

		item, err := s.items.GetItem(ctx, li.ItemID)
		if err != nil {
			if shared.IsNotFound(err) {
				missing = append(missing, strconv.FormatInt(li.ItemID, 10))
				continue
			}
			return nil, 0, fmt.Errorf("lookup item %d: %w", li.ItemID, err)
		}
		lineTotal := li.Quantity * li.UnitCost
		total += lineTotal
		lines = append(lines, OrderLine{
			ItemID:    li.ItemID,
			ItemName:  item.Name,
			Quantity:  li.Quantity,
			UnitCost:  li.UnitCost,
			LineTotal: lineTotal,
		})
	}
	if len(missing) > 0 {
		return nil, 0, fmt.Errorf("%w: unknown items: %s", shared.ErrValidation, strings.Join(missing, ", "))
	}
	return lines, total, nil
}

// Create validates all lines, snapshots the supplier and item names, and
// persists the order as pending. Stock is untouched. Totals are recomputed
// server-side regardless of what the client sent.
func (s *Service) Create(ctx context.Context, in OrderInput) (Order, error) {
	if in.ActorID == 0 {
		return Order{}, fmt.Errorf("%w: acting employee required", shared.ErrUnauthorized)
	}
	supplierName, err := s.suppliers.SupplierName(ctx, in.SupplierID)
	if err != nil {
		if shared.IsNotFound(err) {
			return Order{}, fmt.Errorf("%w: unknown supplier %d", shared.ErrValidation, in.SupplierID)
		}
		return Order{}, fmt.Errorf("lookup supplier: %w", err)
	}
	lines, total, err := s.buildLines(ctx, in.Lines)
	if err != nil {
		return Order{}, err
	}

	var created Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		now := s.now().UTC()
		orderDate := in.OrderDate
		if orderDate.IsZero() {
			orderDate = now
		}
		created, err = tx.InsertOrder(ctx, Order{
			Number:       orderNumber(now),
			SupplierID:   in.SupplierID,
			SupplierName: supplierName,
			Status:       StatusPending,
			Total:        total,
			Notes:        in.Notes,
			OrderDate:    orderDate,
			ExpectedDate: in.ExpectedDate,
			CreatedBy:    in.ActorID,
		})
		if err != nil {
			return err
		}
		created.Lines, err = tx.ReplaceLines(ctx, created.ID, lines)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("purchase order created",
		"order_id", created.ID, "number", created.Number,
		"supplier_id", created.SupplierID, "total", created.Total)
	return created, nil
}

// orderNumber builds a human-readable order number. Uniqueness comes from the
// nanosecond component; the unique index on order_number backs it up.
func orderNumber(now time.Time) string {
	return fmt.Sprintf("PO-%s-%06d", now.Format("20060102"), now.Nanosecond()/1000%1000000)
}

func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *Service) List(ctx context.Context, lf ListFilter, f shared.ListFilters) ([]Order, int, error) {
	return s.repo.ListOrders(ctx, lf, f)
}

// Update replaces the notes, expected date, and line set of a pending order.
// Supplier and creator are fixed at creation.
func (s *Service) Update(ctx context.Context, id int64, in OrderInput) (Order, error) {
	lines, total, err := s.buildLines(ctx, in.Lines)
	if err != nil {
		return Order{}, err
	}
	var updated Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status != StatusPending {
			return ErrOrderNotPending
		}
		now := s.now().UTC()
		orderDate := in.OrderDate
		if orderDate.IsZero() {
			orderDate = order.OrderDate
		}
		if err := tx.UpdateOrderHeader(ctx, id, in.Notes, orderDate, in.ExpectedDate, total, now); err != nil {
			return err
		}
		order.Notes = in.Notes
		order.OrderDate = orderDate
		order.ExpectedDate = in.ExpectedDate
		order.Total = total
		order.UpdatedAt = now
		if order.Lines, err = tx.ReplaceLines(ctx, id, lines); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return updated, nil
}

// Receive transitions a pending order to received and posts one ledger entry
// per line. The status flips first under a row lock so concurrent receives
// collide there; if the stock posting then fails, the transition is rolled
// back to pending.
func (s *Service) Receive(ctx context.Context, id int64, actorID int64, idempotencyKey string) (Order, []inventory.LogEntry, error) {
	if actorID == 0 {
		return Order{}, nil, fmt.Errorf("%w: acting employee required", shared.ErrUnauthorized)
	}
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if o.Status != StatusPending {
			return ErrOrderNotPending
		}
		now := s.now().UTC()
		if err := tx.SetOrderStatus(ctx, id, StatusReceived, &actorID, &now, now); err != nil {
			return err
		}
		o.Status = StatusReceived
		o.ReceivedBy = &actorID
		o.ReceivedAt = &now
		o.UpdatedAt = now
		order = o
		return nil
	})
	if err != nil {
		return Order{}, nil, err
	}

	receiptLines := make([]inventory.ReceiptLine, 0, len(order.Lines))
	for _, ln := range order.Lines {
		receiptLines = append(receiptLines, inventory.ReceiptLine{ItemID: ln.ItemID, Quantity: ln.Quantity})
	}
	if idempotencyKey == "" {
		idempotencyKey = fmt.Sprintf("po-receive-%d", id)
	}
	entries, err := s.stock.PostReceipt(ctx, inventory.ReceiptInput{
		OrderID:        id,
		ActorID:        actorID,
		Lines:          receiptLines,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		if revertErr := s.revertToPending(ctx, id); revertErr != nil {
			s.logger.Error("revert order after failed receipt",
				"order_id", id, "error", revertErr)
		}
		return Order{}, nil, fmt.Errorf("post receipt: %w", err)
	}
	s.logger.Info("purchase order received",
		"order_id", id, "lines", len(entries), "received_by", actorID)
	return order, entries, nil
}

func (s *Service) revertToPending(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetOrderStatus(ctx, id, StatusPending, nil, nil, s.now().UTC())
	})
}

// Cancel transitions a pending order to cancelled.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) (Order, error) {
	if actorID == 0 {
		return Order{}, fmt.Errorf("%w: acting employee required", shared.ErrUnauthorized)
	}
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if o.Status != StatusPending {
			return ErrOrderNotPending
		}
		now := s.now().UTC()
		if err := tx.SetOrderStatus(ctx, id, StatusCancelled, nil, nil, now); err != nil {
			return err
		}
		o.Status = StatusCancelled
		o.UpdatedAt = now
		order = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("purchase order cancelled", "order_id", id, "actor_id", actorID)
	return order, nil
}

// Delete removes a pending or cancelled order. Received orders stay: the
// ledger references them.
func (s *Service) Delete(ctx context.Context, id int64) error {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if order.Status == StatusReceived {
		return ErrOrderReceived
	}
	return s.repo.DeleteOrder(ctx, id)
}
