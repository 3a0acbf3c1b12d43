package suppliers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/larderhq/larder/internal/shared"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	Insert(ctx context.Context, s Supplier) (Supplier, error)
	Get(ctx context.Context, id int64) (Supplier, error)
	List(ctx context.Context, f shared.ListFilters) ([]Supplier, int, error)
	Update(ctx context.Context, id int64, p Patch) (Supplier, error)
	Delete(ctx context.Context, id int64) error
	CountOrders(ctx context.Context, supplierID int64) (int, error)
}

// Service owns the supplier directory.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
}

func NewService(logger *slog.Logger, repo RepositoryPort) *Service {
	return &Service{logger: logger, repo: repo}
}

func (s *Service) Create(ctx context.Context, sup Supplier) (Supplier, error) {
	sup.Code = strings.ToUpper(strings.TrimSpace(sup.Code))
	if sup.Code == "" {
		return Supplier{}, fmt.Errorf("%w: code is required", shared.ErrValidation)
	}
	sup.Name = norm.NFC.String(strings.TrimSpace(sup.Name))
	if sup.Name == "" {
		return Supplier{}, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	created, err := s.repo.Insert(ctx, sup)
	if err != nil {
		return Supplier{}, err
	}
	s.logger.Info("supplier created", "supplier_id", created.ID, "name", created.Name)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f shared.ListFilters) ([]Supplier, int, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) Update(ctx context.Context, id int64, p Patch) (Supplier, error) {
	if p.Code != nil {
		c := strings.ToUpper(strings.TrimSpace(*p.Code))
		if c == "" {
			return Supplier{}, fmt.Errorf("%w: code cannot be empty", shared.ErrValidation)
		}
		p.Code = &c
	}
	if p.Name != nil {
		n := norm.NFC.String(strings.TrimSpace(*p.Name))
		if n == "" {
			return Supplier{}, fmt.Errorf("%w: name cannot be empty", shared.ErrValidation)
		}
		p.Name = &n
	}
	return s.repo.Update(ctx, id, p)
}

// Delete removes a supplier unless purchase orders reference it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	n, err := s.repo.CountOrders(ctx, id)
	if err != nil {
		return fmt.Errorf("count supplier orders: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: supplier has %d purchase orders", shared.ErrConflict, n)
	}
	return s.repo.Delete(ctx, id)
}

// SupplierName resolves a supplier's name for order snapshots. Inactive
// suppliers cannot take new orders.
func (s *Service) SupplierName(ctx context.Context, id int64) (string, error) {
	sup, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !sup.IsActive {
		return "", fmt.Errorf("%w: supplier %q is inactive", shared.ErrConflict, sup.Name)
	}
	return sup.Name, nil
}
