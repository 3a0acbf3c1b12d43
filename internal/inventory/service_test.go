package inventory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/larderhq/larder/internal/shared"
)

type memoryRepo struct {
	mu          sync.Mutex
	items       map[int64]Item
	adjustments map[int64]Adjustment
	movements   map[int64]Movement
	logs        map[int64]LogEntry
	nextItem    int64
	nextAdj     int64
	nextMov     int64
	nextLog     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		items:       map[int64]Item{},
		adjustments: map[int64]Adjustment{},
		movements:   map[int64]Movement{},
		logs:        map[int64]LogEntry{},
	}
}

func (r *memoryRepo) addItem(it Item) Item {
	r.nextItem++
	it.ID = r.nextItem
	it.OpeningStock = it.CurrentStock
	r.items[it.ID] = it
	return it
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	items, adjs := cloneMap(r.items), cloneMap(r.adjustments)
	movs, logs := cloneMap(r.movements), cloneMap(r.logs)
	ni, na, nm, nl := r.nextItem, r.nextAdj, r.nextMov, r.nextLog
	if err := fn(ctx, &memoryTx{r: r}); err != nil {
		r.items, r.adjustments, r.movements, r.logs = items, adjs, movs, logs
		r.nextItem, r.nextAdj, r.nextMov, r.nextLog = ni, na, nm, nl
		return err
	}
	return nil
}

func (r *memoryRepo) InsertItem(_ context.Context, it Item) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	it.CreatedAt, it.UpdatedAt = now, now
	return r.addItem(it), nil
}

func (r *memoryRepo) GetItem(_ context.Context, id int64) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return Item{}, shared.ErrNotFound
	}
	return it, nil
}

func (r *memoryRepo) ListItems(_ context.Context, f shared.ListFilters) ([]Item, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Item, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, it)
	}
	switch f.SortBy {
	case "name":
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	default:
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	if f.SortDir == "desc" {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) UpdateItem(_ context.Context, id int64, p ItemPatch) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return Item{}, shared.ErrNotFound
	}
	if p.Name != nil {
		it.Name = *p.Name
	}
	if p.MinimumStock != nil {
		it.MinimumStock = *p.MinimumStock
	}
	if p.Locked != nil {
		it.Locked = *p.Locked
	}
	r.items[id] = it
	return it, nil
}

func (r *memoryRepo) DeleteItem(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *memoryRepo) CountLedgerRefs(_ context.Context, itemID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.logs {
		if e.ItemID == itemID {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) GetAdjustment(_ context.Context, id int64) (Adjustment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.adjustments[id]
	if !ok {
		return Adjustment{}, shared.ErrNotFound
	}
	return a, nil
}

func (r *memoryRepo) ListAdjustments(_ context.Context, itemID int64, _ shared.ListFilters) ([]Adjustment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Adjustment, 0)
	for _, a := range r.adjustments {
		if itemID == 0 || a.ItemID == itemID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memoryRepo) UpdateAdjustmentNotes(_ context.Context, id int64, notes string) (Adjustment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.adjustments[id]
	if !ok {
		return Adjustment{}, shared.ErrNotFound
	}
	a.Notes = notes
	r.adjustments[id] = a
	return a, nil
}

func (r *memoryRepo) GetMovement(_ context.Context, id int64) (Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.movements[id]
	if !ok {
		return Movement{}, shared.ErrNotFound
	}
	return m, nil
}

func (r *memoryRepo) ListMovements(_ context.Context, itemID int64, mt MovementType, _ shared.ListFilters) ([]Movement, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Movement, 0)
	for _, m := range r.movements {
		if itemID != 0 && m.ItemID != itemID {
			continue
		}
		if mt != "" && m.Type != mt {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memoryRepo) GetLog(_ context.Context, id int64) (LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.logs[id]
	if !ok {
		return LogEntry{}, shared.ErrNotFound
	}
	if it, ok := r.items[e.ItemID]; ok {
		e.ItemName = it.Name
	}
	return e, nil
}

func (r *memoryRepo) ListLogs(_ context.Context, lf LogFilter, _ shared.ListFilters) ([]LogEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, 0)
	for _, e := range r.logs {
		if lf.ItemID != 0 && e.ItemID != lf.ItemID {
			continue
		}
		if lf.Reason != "" && e.Reason != lf.Reason {
			continue
		}
		if it, ok := r.items[e.ItemID]; ok {
			e.ItemName = it.Name
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

type memoryTx struct {
	r *memoryRepo
}

func (t *memoryTx) GetItemForUpdate(_ context.Context, id int64) (Item, error) {
	it, ok := t.r.items[id]
	if !ok {
		return Item{}, shared.ErrNotFound
	}
	return it, nil
}

func (t *memoryTx) SetItemStock(_ context.Context, id int64, qty float64, at time.Time) error {
	it, ok := t.r.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	it.CurrentStock = qty
	it.UpdatedAt = at
	t.r.items[id] = it
	return nil
}

func (t *memoryTx) InsertAdjustment(_ context.Context, a Adjustment) (int64, error) {
	t.r.nextAdj++
	a.ID = t.r.nextAdj
	t.r.adjustments[a.ID] = a
	return a.ID, nil
}

func (t *memoryTx) GetAdjustmentForUpdate(_ context.Context, id int64) (Adjustment, error) {
	a, ok := t.r.adjustments[id]
	if !ok {
		return Adjustment{}, shared.ErrNotFound
	}
	return a, nil
}

func (t *memoryTx) MarkAdjustmentVoided(_ context.Context, id int64, at time.Time) error {
	a, ok := t.r.adjustments[id]
	if !ok {
		return shared.ErrNotFound
	}
	a.VoidedAt = &at
	t.r.adjustments[id] = a
	return nil
}

func (t *memoryTx) InsertMovement(_ context.Context, m Movement) (int64, error) {
	t.r.nextMov++
	m.ID = t.r.nextMov
	t.r.movements[m.ID] = m
	return m.ID, nil
}

func (t *memoryTx) AppendLog(_ context.Context, e LogEntry) (int64, error) {
	t.r.nextLog++
	e.ID = t.r.nextLog
	t.r.logs[e.ID] = e
	return e.ID, nil
}

type fakeGuard struct {
	seen map[string]bool
}

func (g *fakeGuard) CheckAndInsert(_ context.Context, key, _ string) error {
	if g.seen == nil {
		g.seen = map[string]bool{}
	}
	if g.seen[key] {
		return shared.ErrIdempotencyConflict
	}
	g.seen[key] = true
	return nil
}

func (g *fakeGuard) Delete(_ context.Context, key string) error {
	delete(g.seen, key)
	return nil
}

type fakeMetrics struct {
	counts map[string]int
}

func (m *fakeMetrics) RecordLedgerEntry(reason string) {
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[reason]++
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestService(repo *memoryRepo) (*Service, *fakeGuard, *fakeMetrics) {
	guard := &fakeGuard{}
	metrics := &fakeMetrics{}
	svc := NewService(testLogger(), repo, guard, metrics, false)
	return svc, guard, metrics
}

func TestPostAdjustmentAppendsLedgerEntry(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(Item{Name: "Olive Oil", Unit: "l", CurrentStock: 18})
	svc, _, metrics := newTestService(repo)

	adj, entry, err := svc.PostAdjustment(context.Background(), AdjustmentInput{
		ItemID:   item.ID,
		Type:     AdjustmentManual,
		Change:   ChangeDecrement,
		Quantity: 3,
		Notes:    "spillage",
		ActorID:  7,
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), adj.CreatedBy)

	require.Equal(t, -3.0, entry.Change)
	require.Equal(t, 15.0, entry.NewQuantity)
	require.Equal(t, ReasonAdjustment, entry.Reason)
	require.NotNil(t, entry.ReferenceID)
	require.Equal(t, adj.ID, *entry.ReferenceID)

	got, err := repo.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	require.Equal(t, 15.0, got.CurrentStock)
	require.Equal(t, 1, metrics.counts[string(ReasonAdjustment)])
}

func TestPostAdjustmentRejectsNegativeBalance(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(Item{Name: "Cod", Unit: "kg", CurrentStock: 2})
	svc, _, _ := newTestService(repo)

	_, _, err := svc.PostAdjustment(context.Background(), AdjustmentInput{
		ItemID:   item.ID,
		Type:     AdjustmentManual,
		Change:   ChangeDecrement,
		Quantity: 5,
		ActorID:  1,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// Nothing committed: stock unchanged, no ledger entry, no cause record.
	got, err := repo.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	require.Equal(t, 2.0, got.CurrentStock)
	require.Empty(t, repo.logs)
	require.Empty(t, repo.adjustments)
}

func TestPostAdjustmentAllowNegative(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(Item{Name: "Cod", Unit: "kg", CurrentStock: 2})
	svc := NewService(testLogger(), repo, nil, nil, true)

	_, entry, err := svc.PostAdjustment(context.Background(), AdjustmentInput{
		ItemID:   item.ID,
		Type:     AdjustmentVariance,
		Change:   ChangeDecrement,
		Quantity: 5,
		ActorID:  1,
	})
	require.NoError(t, err)
	require.Equal(t, -3.0, entry.NewQuantity)
}

func TestPostAdjustmentRequiresActor(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(Item{Name: "Flour T55", Unit: "kg", CurrentStock: 10})
	svc, _, _ := newTestService(repo)

	_, _, err := svc.PostAdjustment(context.Background(), AdjustmentInput{
		ItemID:   item.ID,
		Type:     AdjustmentManual,
		Change:   ChangeIncrement,
		Quantity: 1,
	})
	require.ErrorIs(t, err, ErrActorRequired)
}

func TestPostAdjustmentLockedItem(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(Item{Name: "Saffron", Unit: "g", CurrentStock: 40, Locked: true})
	svc, _, _ := newTestService(repo)

	_, _, err := svc.PostAdjustment(context.Background(), AdjustmentInput{
		ItemID:   item.ID,
		Type:     AdjustmentManual,
		Change:   ChangeIncrement,
		Quantity: 5,
		ActorID:  1,
	})
	require.ErrorIs(t, err, ErrItemLocked)
}

func TestPostAdjustmentIdempotency(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(Item{Name: "Olive Oil", Unit: "l", CurrentStock: 18})
	svc, _, _ := newTestService(repo)

	in := AdjustmentInput{
		ItemID:         item.ID,
		Type:           AdjustmentManual,
		Change:         ChangeIncrement,
		Quantity:       2,
		ActorID:        1,
		IdempotencyKey: "adj-retry-1",
	}
	_, _, err := svc.PostAdjustment(context.Background(), in)
	require.NoError(t, err)

	_, _, err = svc.PostAdjustment(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	got, err := repo.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	require.Equal(t, 20.0, got.CurrentStock)
}

func TestPostAdjustmentIdempotencyKeyReleasedOnFailure(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(Item{Name: "Cod", Unit: "kg", CurrentStock: 1})
	svc, guard, _ := newTestService(repo)

	in := AdjustmentInput{
		ItemID:         item.ID,
		Type:           AdjustmentManual,
		Change:         ChangeDecrement,
		Quantity:       5,
		ActorID:        1,
		IdempotencyKey: "adj-fail-1",
	}
	_, _, err := svc.PostAdjustment(context.Background(), in)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.False(t, guard.seen["adj-fail-1"])
}

func TestVoidAdjustmentPostsReversal(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(Item{Name: "Olive Oil", Unit: "l", CurrentStock: 18})
	svc, _, _ := newTestService(repo)

	adj, _, err := svc.PostAdjustment(context.Background(), AdjustmentInput{
		ItemID:   item.ID,
		Type:     AdjustmentManual,
		Change:   ChangeDecrement,
		Quantity: 4,
		ActorID:  1,
	})
	require.NoError(t, err)

	entry, err := svc.VoidAdjustment(context.Background(), adj.ID, 2)
	require.NoError(t, err)
	require.Equal(t, 4.0, entry.Change)
	require.Equal(t, 18.0, entry.NewQuantity)

	stored, err := repo.GetAdjustment(context.Background(), adj.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.VoidedAt)

	// Both the original entry and the reversal stay in the ledger.
	logs, _, err := repo.ListLogs(context.Background(), LogFilter{ItemID: item.ID}, shared.ListFilters{})
	require.NoError(t, err)
	require.Len(t, logs, 2)

	// Voiding twice is rejected.
	_, err = svc.VoidAdjustment(context.Background(), adj.ID, 2)
	require.ErrorIs(t, err, ErrAdjustmentVoided)
}

func TestPostMovementDirections(t *testing.T) {
	cases := []struct {
		movementType MovementType
		want         float64
		postsLedger  bool
	}{
		{MovementIn, 15.0, true},
		{MovementProduction, 15.0, true},
		{MovementOut, 5.0, true},
		{MovementWaste, 5.0, true},
		{MovementTransfer, 10.0, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.movementType), func(t *testing.T) {
			repo := newMemoryRepo()
			item := repo.addItem(Item{Name: "Passata", Unit: "l", CurrentStock: 10})
			svc, _, _ := newTestService(repo)

			mv, err := svc.PostMovement(context.Background(), MovementInput{
				ItemID:       item.ID,
				Type:         tc.movementType,
				Quantity:     5,
				ActorID:      3,
				LocationFrom: "dry store",
				LocationTo:   "kitchen",
			})
			require.NoError(t, err)
			require.NotZero(t, mv.ID)
			require.NotEmpty(t, mv.ReferenceID)

			got, err := repo.GetItem(context.Background(), item.ID)
			require.NoError(t, err)
			require.Equal(t, tc.want, got.CurrentStock)

			logs, _, err := repo.ListLogs(context.Background(), LogFilter{ItemID: item.ID}, shared.ListFilters{})
			require.NoError(t, err)
			if tc.postsLedger {
				require.Len(t, logs, 1)
				require.Equal(t, ReasonMovement, logs[0].Reason)
			} else {
				require.Empty(t, logs)
			}
		})
	}
}

func TestPostMovementExplicitReason(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(Item{Name: "Pizza Dough", Unit: "kg", CurrentStock: 12})
	svc, _, metrics := newTestService(repo)

	_, err := svc.PostMovement(context.Background(), MovementInput{
		ItemID:   item.ID,
		Type:     MovementOut,
		Quantity: 2,
		Reason:   ReasonSale,
		ActorID:  3,
	})
	require.NoError(t, err)

	logs, _, err := repo.ListLogs(context.Background(), LogFilter{Reason: ReasonSale}, shared.ListFilters{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, 1, metrics.counts[string(ReasonSale)])
}

func TestPostReceiptBatchIsAtomic(t *testing.T) {
	repo := newMemoryRepo()
	flour := repo.addItem(Item{Name: "Flour T55", Unit: "kg", CurrentStock: 50})
	locked := repo.addItem(Item{Name: "Truffle", Unit: "g", CurrentStock: 5, Locked: true})
	svc, _, _ := newTestService(repo)

	_, err := svc.PostReceipt(context.Background(), ReceiptInput{
		OrderID: 9,
		ActorID: 1,
		Lines: []ReceiptLine{
			{ItemID: flour.ID, Quantity: 25},
			{ItemID: locked.ID, Quantity: 10},
		},
	})
	require.ErrorIs(t, err, ErrItemLocked)

	got, err := repo.GetItem(context.Background(), flour.ID)
	require.NoError(t, err)
	require.Equal(t, 50.0, got.CurrentStock)
	require.Empty(t, repo.logs)
}

func TestDeleteItemBlockedByLedger(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(Item{Name: "Olive Oil", Unit: "l", CurrentStock: 18})
	svc, _, _ := newTestService(repo)

	_, _, err := svc.PostAdjustment(context.Background(), AdjustmentInput{
		ItemID:   item.ID,
		Type:     AdjustmentManual,
		Change:   ChangeIncrement,
		Quantity: 1,
		ActorID:  1,
	})
	require.NoError(t, err)

	err = svc.DeleteItem(context.Background(), item.ID)
	require.ErrorIs(t, err, ErrItemReferenced)
}

func TestCreateItemNormalizesName(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)

	// "Crème" with a combining accent normalizes to the precomposed form.
	created, err := svc.CreateItem(context.Background(), Item{
		Name:         "  Crème Fraiche ",
		Unit:         "l",
		CurrentStock: 4,
	})
	require.NoError(t, err)
	require.Equal(t, "Crème Fraiche", created.Name)
	require.Equal(t, ItemKindRaw, created.Kind)
	require.Equal(t, 4.0, created.OpeningStock)
}

// Walks a full week in the life of a flour item and checks the ledger
// replays to the stored balance at every step.
func TestLedgerBalanceScenario(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	flour := repo.addItem(Item{Name: "Flour T55", Unit: "kg", CurrentStock: 50})
	svc, _, _ := newTestService(repo)

	_, _, err := svc.PostAdjustment(ctx, AdjustmentInput{
		ItemID:   flour.ID,
		Type:     AdjustmentPhysicalCount,
		Change:   ChangeDecrement,
		Quantity: 2,
		Notes:    "weekly count",
		ActorID:  1,
	})
	require.NoError(t, err)

	_, err = svc.PostMovement(ctx, MovementInput{
		ItemID:   flour.ID,
		Type:     MovementOut,
		Quantity: 5,
		ActorID:  2,
	})
	require.NoError(t, err)

	_, err = svc.PostReceipt(ctx, ReceiptInput{
		OrderID: 42,
		ActorID: 1,
		Lines:   []ReceiptLine{{ItemID: flour.ID, Quantity: 25}},
	})
	require.NoError(t, err)

	got, err := repo.GetItem(ctx, flour.ID)
	require.NoError(t, err)
	require.Equal(t, 68.0, got.CurrentStock)

	logs, _, err := repo.ListLogs(ctx, LogFilter{ItemID: flour.ID}, shared.ListFilters{})
	require.NoError(t, err)
	require.Len(t, logs, 3)

	// Opening stock plus replayed changes equals the stored quantity, and
	// each entry's materialized quantity matches the running balance.
	balance := got.OpeningStock
	for _, e := range logs {
		balance += e.Change
		require.Equal(t, balance, e.NewQuantity)
	}
	require.Equal(t, got.CurrentStock, balance)
}
