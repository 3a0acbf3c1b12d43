package inventory

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/larderhq/larder/internal/shared"
)

// ActorResolver maps a ledger reference id to the acting employee's name.
type ActorResolver func(ctx context.Context, refID int64) (string, error)

const (
	actorSystem  = "System"
	actorUnknown = "Unknown"

	enrichConcurrency = 8
)

// Enricher resolves the acting user for ledger entries at read time. Each
// reason dispatches to the resolver for its cause collection; entries with no
// reference belong to the system, and a dangling or failed lookup degrades to
// "Unknown" rather than failing the listing.
type Enricher struct {
	logger    *slog.Logger
	resolvers map[LogReason]ActorResolver
}

func NewEnricher(logger *slog.Logger, resolvers map[LogReason]ActorResolver) *Enricher {
	return &Enricher{logger: logger, resolvers: resolvers}
}

// Enrich resolves actors for a page of ledger entries concurrently, keeping
// input order.
func (e *Enricher) Enrich(ctx context.Context, entries []LogEntry) ([]EnrichedLogEntry, error) {
	out := make([]EnrichedLogEntry, len(entries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i, entry := range entries {
		g.Go(func() error {
			out[i] = EnrichedLogEntry{
				ID:               entry.ID,
				ItemID:           entry.ItemID,
				ItemName:         entry.ItemName,
				Change:           entry.Change,
				PreviousQuantity: entry.NewQuantity - entry.Change,
				NewQuantity:      entry.NewQuantity,
				User:             e.resolveActor(ctx, entry),
				Reason:           entry.Reason,
				Timestamp:        entry.CreatedAt,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EnrichOne resolves a single ledger entry.
func (e *Enricher) EnrichOne(ctx context.Context, entry LogEntry) EnrichedLogEntry {
	return EnrichedLogEntry{
		ID:               entry.ID,
		ItemID:           entry.ItemID,
		ItemName:         entry.ItemName,
		Change:           entry.Change,
		PreviousQuantity: entry.NewQuantity - entry.Change,
		NewQuantity:      entry.NewQuantity,
		User:             e.resolveActor(ctx, entry),
		Reason:           entry.Reason,
		Timestamp:        entry.CreatedAt,
	}
}

func (e *Enricher) resolveActor(ctx context.Context, entry LogEntry) string {
	if entry.ReferenceID == nil {
		return actorSystem
	}
	resolve, ok := e.resolvers[entry.Reason]
	if !ok {
		return actorUnknown
	}
	name, err := resolve(ctx, *entry.ReferenceID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			e.logger.Warn("resolve ledger actor",
				"log_id", entry.ID, "reason", entry.Reason, "error", err)
		}
		return actorUnknown
	}
	if name == "" {
		return actorUnknown
	}
	return name
}
