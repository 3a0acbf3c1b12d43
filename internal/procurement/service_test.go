package procurement

import (
	"context"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/larderhq/larder/internal/inventory"
	"github.com/larderhq/larder/internal/shared"
)

type memoryOrders struct {
	orders map[int64]Order
	nextID int64
	lineID int64
}

func newMemoryOrders() *memoryOrders {
	return &memoryOrders{orders: map[int64]Order{}}
}

func (r *memoryOrders) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return fn(ctx, &memoryOrdersTx{r: r})
}

func (r *memoryOrders) GetOrder(_ context.Context, id int64) (Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return Order{}, shared.ErrNotFound
	}
	return o, nil
}

func (r *memoryOrders) ListOrders(_ context.Context, lf ListFilter, _ shared.ListFilters) ([]Order, int, error) {
	out := make([]Order, 0)
	for _, o := range r.orders {
		if lf.Status != "" && o.Status != lf.Status {
			continue
		}
		if lf.SupplierID != 0 && o.SupplierID != lf.SupplierID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memoryOrders) DeleteOrder(_ context.Context, id int64) error {
	if _, ok := r.orders[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.orders, id)
	return nil
}

type memoryOrdersTx struct {
	r *memoryOrders
}

func (t *memoryOrdersTx) InsertOrder(_ context.Context, o Order) (Order, error) {
	t.r.nextID++
	o.ID = t.r.nextID
	now := time.Now()
	o.CreatedAt, o.UpdatedAt = now, now
	t.r.orders[o.ID] = o
	return o, nil
}

func (t *memoryOrdersTx) GetOrderForUpdate(_ context.Context, id int64) (Order, error) {
	o, ok := t.r.orders[id]
	if !ok {
		return Order{}, shared.ErrNotFound
	}
	return o, nil
}

func (t *memoryOrdersTx) UpdateOrderHeader(_ context.Context, id int64, notes string, orderDate time.Time, expected *time.Time, total float64, at time.Time) error {
	o, ok := t.r.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	o.Notes = notes
	o.OrderDate = orderDate
	o.ExpectedDate = expected
	o.Total = total
	o.UpdatedAt = at
	t.r.orders[id] = o
	return nil
}

func (t *memoryOrdersTx) ReplaceLines(_ context.Context, orderID int64, lines []OrderLine) ([]OrderLine, error) {
	o, ok := t.r.orders[orderID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	out := make([]OrderLine, 0, len(lines))
	for _, ln := range lines {
		t.r.lineID++
		ln.ID = t.r.lineID
		ln.OrderID = orderID
		out = append(out, ln)
	}
	o.Lines = out
	t.r.orders[orderID] = o
	return out, nil
}

func (t *memoryOrdersTx) SetOrderStatus(_ context.Context, id int64, status OrderStatus, receivedBy *int64, receivedAt *time.Time, at time.Time) error {
	o, ok := t.r.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	o.Status = status
	o.ReceivedBy = receivedBy
	o.ReceivedAt = receivedAt
	o.UpdatedAt = at
	t.r.orders[id] = o
	return nil
}

type fakeCatalog struct {
	items map[int64]inventory.Item
}

func (c *fakeCatalog) GetItem(_ context.Context, id int64) (inventory.Item, error) {
	it, ok := c.items[id]
	if !ok {
		return inventory.Item{}, shared.ErrNotFound
	}
	return it, nil
}

type fakeStock struct {
	receipts []inventory.ReceiptInput
	fail     error
}

func (s *fakeStock) PostReceipt(_ context.Context, in inventory.ReceiptInput) ([]inventory.LogEntry, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	s.receipts = append(s.receipts, in)
	entries := make([]inventory.LogEntry, len(in.Lines))
	for i, ln := range in.Lines {
		entries[i] = inventory.LogEntry{
			ID:     int64(i + 1),
			ItemID: ln.ItemID,
			Change: ln.Quantity,
			Reason: inventory.ReasonPurchaseOrder,
		}
	}
	return entries, nil
}

type fakeSuppliers struct {
	names map[int64]string
}

func (s *fakeSuppliers) SupplierName(_ context.Context, id int64) (string, error) {
	name, ok := s.names[id]
	if !ok {
		return "", shared.ErrNotFound
	}
	return name, nil
}

func newTestService() (*Service, *memoryOrders, *fakeStock) {
	repo := newMemoryOrders()
	catalog := &fakeCatalog{items: map[int64]inventory.Item{
		1: {ID: 1, Name: "Flour T55", Unit: "kg"},
		2: {ID: 2, Name: "Olive Oil", Unit: "l"},
	}}
	stock := &fakeStock{}
	dir := &fakeSuppliers{names: map[int64]string{10: "Valley Mills"}}
	svc := NewService(slog.New(slog.DiscardHandler), repo, catalog, stock, dir)
	return svc, repo, stock
}

func TestCreateRecomputesTotalsAndSnapshotsNames(t *testing.T) {
	svc, _, _ := newTestService()

	order, err := svc.Create(context.Background(), OrderInput{
		SupplierID: 10,
		ActorID:    1,
		Lines: []LineInput{
			{ItemID: 1, Quantity: 25, UnitCost: 1.10},
			{ItemID: 2, Quantity: 6, UnitCost: 7.40},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, order.Status)
	require.Equal(t, "Valley Mills", order.SupplierName)
	require.NotEmpty(t, order.Number)

	require.Len(t, order.Lines, 2)
	require.Equal(t, "Flour T55", order.Lines[0].ItemName)
	require.InDelta(t, 27.5, order.Lines[0].LineTotal, 1e-9)
	require.InDelta(t, 71.9, order.Total, 1e-9)
}

func TestCreateCarriesOrderDate(t *testing.T) {
	svc, _, _ := newTestService()

	orderDate := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	order, err := svc.Create(context.Background(), OrderInput{
		SupplierID: 10,
		OrderDate:  orderDate,
		ActorID:    1,
		Lines:      []LineInput{{ItemID: 1, Quantity: 5, UnitCost: 1.10}},
	})
	require.NoError(t, err)
	require.Equal(t, orderDate, order.OrderDate)

	// Omitted, the order date defaults to creation time.
	order, err = svc.Create(context.Background(), OrderInput{
		SupplierID: 10,
		ActorID:    1,
		Lines:      []LineInput{{ItemID: 1, Quantity: 5, UnitCost: 1.10}},
	})
	require.NoError(t, err)
	require.False(t, order.OrderDate.IsZero())

	// Updates keep the stored date unless a new one is supplied.
	moved := orderDate.AddDate(0, 0, 3)
	updated, err := svc.Update(context.Background(), order.ID, OrderInput{
		SupplierID: 10,
		OrderDate:  moved,
		Lines:      []LineInput{{ItemID: 1, Quantity: 5, UnitCost: 1.10}},
	})
	require.NoError(t, err)
	require.Equal(t, moved, updated.OrderDate)

	updated, err = svc.Update(context.Background(), order.ID, OrderInput{
		SupplierID: 10,
		Lines:      []LineInput{{ItemID: 1, Quantity: 5, UnitCost: 1.10}},
	})
	require.NoError(t, err)
	require.Equal(t, moved, updated.OrderDate)
}

func TestCreateRejectsUnknownItemsTogether(t *testing.T) {
	svc, repo, _ := newTestService()

	_, err := svc.Create(context.Background(), OrderInput{
		SupplierID: 10,
		ActorID:    1,
		Lines: []LineInput{
			{ItemID: 1, Quantity: 5, UnitCost: 1},
			{ItemID: 77, Quantity: 5, UnitCost: 1},
			{ItemID: 78, Quantity: 5, UnitCost: 1},
		},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorContains(t, err, "77")
	require.ErrorContains(t, err, "78")
	require.Empty(t, repo.orders)
}

func TestCreateRejectsUnknownSupplier(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), OrderInput{
		SupplierID: 999,
		ActorID:    1,
		Lines:      []LineInput{{ItemID: 1, Quantity: 1, UnitCost: 1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateOnlyWhilePending(t *testing.T) {
	svc, repo, _ := newTestService()

	order, err := svc.Create(context.Background(), OrderInput{
		SupplierID: 10,
		ActorID:    1,
		Lines:      []LineInput{{ItemID: 1, Quantity: 10, UnitCost: 2}},
	})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), order.ID, OrderInput{
		SupplierID: 10,
		Notes:      "rush order",
		Lines:      []LineInput{{ItemID: 2, Quantity: 3, UnitCost: 7}},
	})
	require.NoError(t, err)
	require.Equal(t, "rush order", updated.Notes)
	require.InDelta(t, 21.0, updated.Total, 1e-9)
	require.Len(t, updated.Lines, 1)
	require.Equal(t, "Olive Oil", updated.Lines[0].ItemName)

	// Flip to received behind the service's back and retry.
	o := repo.orders[order.ID]
	o.Status = StatusReceived
	repo.orders[order.ID] = o

	_, err = svc.Update(context.Background(), order.ID, OrderInput{
		SupplierID: 10,
		Lines:      []LineInput{{ItemID: 1, Quantity: 1, UnitCost: 1}},
	})
	require.ErrorIs(t, err, ErrOrderNotPending)
}

func TestReceivePostsLinesAndTransitions(t *testing.T) {
	svc, repo, stock := newTestService()

	order, err := svc.Create(context.Background(), OrderInput{
		SupplierID: 10,
		ActorID:    1,
		Lines: []LineInput{
			{ItemID: 1, Quantity: 25, UnitCost: 1.10},
			{ItemID: 2, Quantity: 6, UnitCost: 7.40},
		},
	})
	require.NoError(t, err)

	received, entries, err := svc.Receive(context.Background(), order.ID, 3, "")
	require.NoError(t, err)
	require.Equal(t, StatusReceived, received.Status)
	require.NotNil(t, received.ReceivedAt)
	require.Equal(t, int64(3), *received.ReceivedBy)
	require.Len(t, entries, 2)

	require.Len(t, stock.receipts, 1)
	require.Equal(t, order.ID, stock.receipts[0].OrderID)
	require.Equal(t, int64(3), stock.receipts[0].ActorID)
	require.NotEmpty(t, stock.receipts[0].IdempotencyKey)

	// Receiving again conflicts.
	_, _, err = svc.Receive(context.Background(), order.ID, 3, "")
	require.ErrorIs(t, err, ErrOrderNotPending)
	require.Equal(t, StatusReceived, repo.orders[order.ID].Status)
}

func TestReceiveRevertsWhenPostingFails(t *testing.T) {
	svc, repo, stock := newTestService()

	order, err := svc.Create(context.Background(), OrderInput{
		SupplierID: 10,
		ActorID:    1,
		Lines:      []LineInput{{ItemID: 1, Quantity: 25, UnitCost: 1.10}},
	})
	require.NoError(t, err)

	stock.fail = inventory.ErrItemLocked
	_, _, err = svc.Receive(context.Background(), order.ID, 3, "")
	require.ErrorIs(t, err, inventory.ErrItemLocked)
	require.Equal(t, StatusPending, repo.orders[order.ID].Status)
}

func TestCancelAndDelete(t *testing.T) {
	svc, repo, _ := newTestService()

	order, err := svc.Create(context.Background(), OrderInput{
		SupplierID: 10,
		ActorID:    1,
		Lines:      []LineInput{{ItemID: 1, Quantity: 5, UnitCost: 2}},
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), order.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	// Cancelled orders never took stock, so they can be deleted.
	require.NoError(t, svc.Delete(context.Background(), order.ID))
	require.Empty(t, repo.orders)
}

func TestDeleteReceivedOrderBlocked(t *testing.T) {
	svc, repo, _ := newTestService()

	order, err := svc.Create(context.Background(), OrderInput{
		SupplierID: 10,
		ActorID:    1,
		Lines:      []LineInput{{ItemID: 1, Quantity: 5, UnitCost: 2}},
	})
	require.NoError(t, err)

	_, _, err = svc.Receive(context.Background(), order.ID, 1, "")
	require.NoError(t, err)

	err = svc.Delete(context.Background(), order.ID)
	require.ErrorIs(t, err, ErrOrderReceived)
	require.Contains(t, repo.orders, order.ID)
}
