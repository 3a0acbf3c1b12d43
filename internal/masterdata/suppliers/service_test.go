package suppliers

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/larderhq/larder/internal/shared"
)

type fakeRepo struct {
	suppliers map[int64]Supplier
	orders    map[int64]int
	nextID    int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{suppliers: map[int64]Supplier{}, orders: map[int64]int{}}
}

func (r *fakeRepo) Insert(_ context.Context, s Supplier) (Supplier, error) {
	for _, existing := range r.suppliers {
		if existing.Name == s.Name {
			return Supplier{}, shared.ErrConflict
		}
	}
	r.nextID++
	s.ID = r.nextID
	r.suppliers[s.ID] = s
	return s, nil
}

func (r *fakeRepo) Get(_ context.Context, id int64) (Supplier, error) {
	s, ok := r.suppliers[id]
	if !ok {
		return Supplier{}, shared.ErrNotFound
	}
	return s, nil
}

func (r *fakeRepo) List(_ context.Context, _ shared.ListFilters) ([]Supplier, int, error) {
	out := make([]Supplier, 0, len(r.suppliers))
	for _, s := range r.suppliers {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (r *fakeRepo) Update(_ context.Context, id int64, p Patch) (Supplier, error) {
	s, ok := r.suppliers[id]
	if !ok {
		return Supplier{}, shared.ErrNotFound
	}
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
	r.suppliers[id] = s
	return s, nil
}

func (r *fakeRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.suppliers[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.suppliers, id)
	return nil
}

func (r *fakeRepo) CountOrders(_ context.Context, id int64) (int, error) {
	return r.orders[id], nil
}

func newTestService() (*Service, *fakeRepo) {
	repo := newFakeRepo()
	return NewService(slog.New(slog.DiscardHandler), repo), repo
}

func TestCreateNormalizesCodeAndName(t *testing.T) {
	svc, _ := newTestService()

	s, err := svc.Create(context.Background(), Supplier{Code: " vm-01 ", Name: "  Valley Mills  ", IsActive: true})
	require.NoError(t, err)
	require.Equal(t, "VM-01", s.Code)
	require.Equal(t, "Valley Mills", s.Name)

	_, err = svc.Create(context.Background(), Supplier{Code: "VM-02", Name: "   "})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), Supplier{Name: "No Code"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeleteBlockedByOrders(t *testing.T) {
	svc, repo := newTestService()

	s, err := svc.Create(context.Background(), Supplier{Code: "HF-01", Name: "Harbor Fish Co", IsActive: true})
	require.NoError(t, err)

	repo.orders[s.ID] = 3
	err = svc.Delete(context.Background(), s.ID)
	require.ErrorIs(t, err, shared.ErrConflict)

	repo.orders[s.ID] = 0
	require.NoError(t, svc.Delete(context.Background(), s.ID))
}

func TestSupplierNameRejectsInactive(t *testing.T) {
	svc, _ := newTestService()

	s, err := svc.Create(context.Background(), Supplier{Code: "GP-01", Name: "Greenfield Produce", IsActive: true})
	require.NoError(t, err)

	name, err := svc.SupplierName(context.Background(), s.ID)
	require.NoError(t, err)
	require.Equal(t, "Greenfield Produce", name)

	inactive := false
	_, err = svc.Update(context.Background(), s.ID, Patch{IsActive: &inactive})
	require.NoError(t, err)

	_, err = svc.SupplierName(context.Background(), s.ID)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.SupplierName(context.Background(), 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
