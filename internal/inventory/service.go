package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/larderhq/larder/internal/shared"
)

// IdempotencyGuard reserves request keys so retried writes post once.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// LedgerMetrics counts committed ledger entries by reason.
type LedgerMetrics interface {
	RecordLedgerEntry(reason string)
}

// Service owns item state and is the single writer of the inventory ledger.
// Every stock change runs through postChange: one transaction that locks the
// item row, applies the delta, persists the cause record, and appends exactly
// one ledger entry with the resulting quantity.
type Service struct {
	logger        *slog.Logger
	repo          RepositoryPort
	idem          IdempotencyGuard
	metrics       LedgerMetrics
	allowNegative bool
	now           func() time.Time
}

func NewService(logger *slog.Logger, repo RepositoryPort, idem IdempotencyGuard, metrics LedgerMetrics, allowNegative bool) *Service {
	return &Service{
		logger:        logger,
		repo:          repo,
		idem:          idem,
		metrics:       metrics,
		allowNegative: allowNegative,
		now:           time.Now,
	}
}

const idempotencyModule = "inventory"

// normalizeName trims and NFC-normalizes a user-supplied name so lookups and
// uniqueness behave the same regardless of input composition.
func normalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// CreateItem registers a new stocked item. The initial quantity becomes both
// the current and the opening stock; subsequent changes are ledger-only.
func (s *Service) CreateItem(ctx context.Context, it Item) (Item, error) {
	it.Name = normalizeName(it.Name)
	if it.Name == "" {
		return Item{}, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if it.CurrentStock < 0 || it.MinimumStock < 0 {
		return Item{}, fmt.Errorf("%w: stock quantities cannot be negative", shared.ErrValidation)
	}
	if it.Kind == "" {
		it.Kind = ItemKindRaw
	}
	created, err := s.repo.InsertItem(ctx, it)
	if err != nil {
		return Item{}, fmt.Errorf("insert item: %w", err)
	}
	s.logger.Info("inventory item created", "item_id", created.ID, "name", created.Name)
	return created, nil
}

func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

func (s *Service) ListItems(ctx context.Context, f shared.ListFilters) ([]Item, int, error) {
	return s.repo.ListItems(ctx, f)
}

// UpdateItem patches item metadata. Stock quantities are deliberately not
// patchable; they change only through adjustments, movements, and receipts.
func (s *Service) UpdateItem(ctx context.Context, id int64, p ItemPatch) (Item, error) {
	if p.Name != nil {
		n := normalizeName(*p.Name)
		if n == "" {
			return Item{}, fmt.Errorf("%w: name cannot be empty", shared.ErrValidation)
		}
		p.Name = &n
	}
	return s.repo.UpdateItem(ctx, id, p)
}

// DeleteItem removes an item unless the ledger still references it.
func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	n, err := s.repo.CountLedgerRefs(ctx, id)
	if err != nil {
		return fmt.Errorf("count ledger refs: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %d ledger entries", ErrItemReferenced, n)
	}
	return s.repo.DeleteItem(ctx, id)
}

// causeFn persists the cause record inside the ledger transaction and returns
// its id for the ledger row's reference. A nil causeFn means the cause lives
// outside this module (purchase orders) and refID is used as-is.
type causeFn func(ctx context.Context, tx TxRepository) (int64, error)

type ledgerPost struct {
	itemID int64
	delta  float64
	reason LogReason
	refID  int64
	cause  causeFn
}

// postChange is the only code path that mutates CurrentStock. It locks the
// item row, checks the resulting balance, persists the cause, and appends the
// ledger entry in the same transaction, so a committed change and its ledger
// row are inseparable.
func (s *Service) postChange(ctx context.Context, p ledgerPost) (LogEntry, error) {
	var entry LogEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, p.itemID)
		if err != nil {
			return err
		}
		if item.Locked {
			return ErrItemLocked
		}
		next := item.CurrentStock + p.delta
		if next < 0 && !s.allowNegative {
			return fmt.Errorf("%w: item %d has %.3f, change %.3f", ErrInsufficientStock, item.ID, item.CurrentStock, p.delta)
		}
		now := s.now().UTC()
		if err := tx.SetItemStock(ctx, item.ID, next, now); err != nil {
			return err
		}
		refID := p.refID
		if p.cause != nil {
			refID, err = p.cause(ctx, tx)
			if err != nil {
				return err
			}
		}
		entry = LogEntry{
			ItemID:      item.ID,
			Change:      p.delta,
			NewQuantity: next,
			Reason:      p.reason,
			ReferenceID: &refID,
			CreatedAt:   now,
		}
		entry.ID, err = tx.AppendLog(ctx, entry)
		return err
	})
	if err != nil {
		return LogEntry{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordLedgerEntry(string(p.reason))
	}
	s.logger.Info("ledger entry posted",
		"item_id", entry.ItemID, "reason", entry.Reason,
		"change", entry.Change, "new_quantity", entry.NewQuantity)
	return entry, nil
}

// withIdempotency reserves the key before running post, and releases it again
// when the post fails so the client can retry.
func (s *Service) withIdempotency(ctx context.Context, key string, post func() error) error {
	if key == "" || s.idem == nil {
		return post()
	}
	if err := s.idem.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
		return err
	}
	if err := post(); err != nil {
		if delErr := s.idem.Delete(ctx, key); delErr != nil {
			s.logger.Error("release idempotency key", "key", key, "error", delErr)
		}
		return err
	}
	return nil
}

// PostAdjustment applies a manual stock correction and its ledger entry.
func (s *Service) PostAdjustment(ctx context.Context, in AdjustmentInput) (Adjustment, LogEntry, error) {
	if in.ActorID == 0 {
		return Adjustment{}, LogEntry{}, ErrActorRequired
	}
	if in.Quantity <= 0 {
		return Adjustment{}, LogEntry{}, ErrInvalidQuantity
	}
	delta := in.Quantity
	if in.Change == ChangeDecrement {
		delta = -in.Quantity
	}

	var (
		adj   Adjustment
		entry LogEntry
	)
	err := s.withIdempotency(ctx, in.IdempotencyKey, func() error {
		var err error
		entry, err = s.postChange(ctx, ledgerPost{
			itemID: in.ItemID,
			delta:  delta,
			reason: ReasonAdjustment,
			cause: func(ctx context.Context, tx TxRepository) (int64, error) {
				adj = Adjustment{
					ItemID:    in.ItemID,
					Type:      in.Type,
					Change:    in.Change,
					Quantity:  in.Quantity,
					Notes:     in.Notes,
					CreatedBy: in.ActorID,
					CreatedAt: s.now().UTC(),
				}
				var err error
				adj.ID, err = tx.InsertAdjustment(ctx, adj)
				return adj.ID, err
			},
		})
		return err
	})
	if err != nil {
		return Adjustment{}, LogEntry{}, err
	}
	return adj, entry, nil
}

// VoidAdjustment reverses a posted adjustment with a compensating ledger
// entry. The original adjustment and its ledger row stay in place.
func (s *Service) VoidAdjustment(ctx context.Context, id int64, actorID int64) (LogEntry, error) {
	if actorID == 0 {
		return LogEntry{}, ErrActorRequired
	}
	var entry LogEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		adj, err := tx.GetAdjustmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if adj.VoidedAt != nil {
			return ErrAdjustmentVoided
		}
		item, err := tx.GetItemForUpdate(ctx, adj.ItemID)
		if err != nil {
			return err
		}
		delta := -adj.Quantity
		if adj.Change == ChangeDecrement {
			delta = adj.Quantity
		}
		next := item.CurrentStock + delta
		if next < 0 && !s.allowNegative {
			return fmt.Errorf("%w: reversal would drive item %d negative", ErrInsufficientStock, item.ID)
		}
		now := s.now().UTC()
		if err := tx.SetItemStock(ctx, item.ID, next, now); err != nil {
			return err
		}
		if err := tx.MarkAdjustmentVoided(ctx, adj.ID, now); err != nil {
			return err
		}
		refID := adj.ID
		entry = LogEntry{
			ItemID:      item.ID,
			Change:      delta,
			NewQuantity: next,
			Reason:      ReasonAdjustment,
			ReferenceID: &refID,
			CreatedAt:   now,
		}
		entry.ID, err = tx.AppendLog(ctx, entry)
		return err
	})
	if err != nil {
		return LogEntry{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordLedgerEntry(string(ReasonAdjustment))
	}
	s.logger.Info("adjustment voided", "adjustment_id", id, "actor_id", actorID)
	return entry, nil
}

func (s *Service) GetAdjustment(ctx context.Context, id int64) (Adjustment, error) {
	return s.repo.GetAdjustment(ctx, id)
}

func (s *Service) ListAdjustments(ctx context.Context, itemID int64, f shared.ListFilters) ([]Adjustment, int, error) {
	return s.repo.ListAdjustments(ctx, itemID, f)
}

// UpdateAdjustmentNotes is the only mutation a posted adjustment allows.
func (s *Service) UpdateAdjustmentNotes(ctx context.Context, id int64, notes string) (Adjustment, error) {
	return s.repo.UpdateAdjustmentNotes(ctx, id, notes)
}

// PostMovement records directional stock flow. The ledger reason comes from
// the caller; direction only determines the sign of the change. Transfers
// relocate stock between locations without touching the on-hand quantity, so
// they record a movement but no ledger entry.
func (s *Service) PostMovement(ctx context.Context, in MovementInput) (Movement, error) {
	if in.ActorID == 0 {
		return Movement{}, ErrActorRequired
	}
	if in.Quantity <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if in.Reason == "" {
		in.Reason = ReasonMovement
	}
	if in.ReferenceID == "" {
		// Movements always carry a document reference so physical flow can
		// be traced back from the ledger.
		in.ReferenceType = "internal"
		in.ReferenceID = uuid.NewString()
	}

	mv := Movement{
		ItemID:        in.ItemID,
		Type:          in.Type,
		Quantity:      in.Quantity,
		Reason:        in.Reason,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		Notes:         in.Notes,
		LocationFrom:  in.LocationFrom,
		LocationTo:    in.LocationTo,
		CreatedBy:     in.ActorID,
	}

	delta, posts := MovementDelta(in.Type, in.Quantity)
	err := s.withIdempotency(ctx, in.IdempotencyKey, func() error {
		if !posts {
			return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				item, err := tx.GetItemForUpdate(ctx, in.ItemID)
				if err != nil {
					return err
				}
				if item.Locked {
					return ErrItemLocked
				}
				mv.CreatedAt = s.now().UTC()
				mv.ID, err = tx.InsertMovement(ctx, mv)
				return err
			})
		}
		_, err := s.postChange(ctx, ledgerPost{
			itemID: in.ItemID,
			delta:  delta,
			reason: in.Reason,
			cause: func(ctx context.Context, tx TxRepository) (int64, error) {
				mv.CreatedAt = s.now().UTC()
				var err error
				mv.ID, err = tx.InsertMovement(ctx, mv)
				return mv.ID, err
			},
		})
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	return mv, nil
}

func (s *Service) GetMovement(ctx context.Context, id int64) (Movement, error) {
	return s.repo.GetMovement(ctx, id)
}

func (s *Service) ListMovements(ctx context.Context, itemID int64, movementType MovementType, f shared.ListFilters) ([]Movement, int, error) {
	return s.repo.ListMovements(ctx, itemID, movementType, f)
}

// PostReceipt increments stock for goods received against a purchase order.
// All lines post in one transaction so a failed line leaves no partial
// receipt. The order itself is the cause record, so every ledger entry
// references its id. Items lock in id order to keep concurrent multi-line
// receipts deadlock free.
func (s *Service) PostReceipt(ctx context.Context, in ReceiptInput) ([]LogEntry, error) {
	if in.ActorID == 0 {
		return nil, ErrActorRequired
	}
	if len(in.Lines) == 0 {
		return nil, fmt.Errorf("%w: receipt has no lines", shared.ErrValidation)
	}
	lines := make([]ReceiptLine, len(in.Lines))
	copy(lines, in.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ItemID < lines[j].ItemID })
	for _, ln := range lines {
		if ln.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	entries := make([]LogEntry, 0, len(lines))
	err := s.withIdempotency(ctx, in.IdempotencyKey, func() error {
		entries = entries[:0]
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			now := s.now().UTC()
			for _, ln := range lines {
				item, err := tx.GetItemForUpdate(ctx, ln.ItemID)
				if err != nil {
					return err
				}
				if item.Locked {
					return ErrItemLocked
				}
				next := item.CurrentStock + ln.Quantity
				if err := tx.SetItemStock(ctx, item.ID, next, now); err != nil {
					return err
				}
				refID := in.OrderID
				entry := LogEntry{
					ItemID:      item.ID,
					Change:      ln.Quantity,
					NewQuantity: next,
					Reason:      ReasonPurchaseOrder,
					ReferenceID: &refID,
					CreatedAt:   now,
				}
				if entry.ID, err = tx.AppendLog(ctx, entry); err != nil {
					return err
				}
				entries = append(entries, entry)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		for range entries {
			s.metrics.RecordLedgerEntry(string(ReasonPurchaseOrder))
		}
	}
	s.logger.Info("purchase order receipt posted", "order_id", in.OrderID, "lines", len(entries))
	return entries, nil
}

func (s *Service) GetLog(ctx context.Context, id int64) (LogEntry, error) {
	return s.repo.GetLog(ctx, id)
}

func (s *Service) ListLogs(ctx context.Context, lf LogFilter, f shared.ListFilters) ([]LogEntry, int, error) {
	return s.repo.ListLogs(ctx, lf, f)
}
