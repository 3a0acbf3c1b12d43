package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/larderhq/larder/internal/shared"
)

func ref(id int64) *int64 { return &id }

func TestEnrichDispatchesByReason(t *testing.T) {
	resolvers := map[LogReason]ActorResolver{
		ReasonAdjustment: func(context.Context, int64) (string, error) {
			return "Ana Ruiz", nil
		},
		ReasonPurchaseOrder: func(context.Context, int64) (string, error) {
			return "Ben Okafor", nil
		},
	}
	e := NewEnricher(testLogger(), resolvers)

	now := time.Now()
	entries := []LogEntry{
		{ID: 1, ItemID: 5, ItemName: "Flour T55", Change: -2, NewQuantity: 48, Reason: ReasonAdjustment, ReferenceID: ref(11), CreatedAt: now},
		{ID: 2, ItemID: 5, ItemName: "Flour T55", Change: 25, NewQuantity: 73, Reason: ReasonPurchaseOrder, ReferenceID: ref(42), CreatedAt: now},
		{ID: 3, ItemID: 5, ItemName: "Flour T55", Change: 1, NewQuantity: 74, Reason: ReasonAdjustment, CreatedAt: now},
	}
	out, err := e.Enrich(context.Background(), entries)
	require.NoError(t, err)
	require.Len(t, out, 3)

	require.Equal(t, "Ana Ruiz", out[0].User)
	require.Equal(t, 50.0, out[0].PreviousQuantity)
	require.Equal(t, "Ben Okafor", out[1].User)
	require.Equal(t, 48.0, out[1].PreviousQuantity)
	// No reference means a system-originated entry.
	require.Equal(t, "System", out[2].User)
}

func TestEnrichDegradesToUnknown(t *testing.T) {
	resolvers := map[LogReason]ActorResolver{
		ReasonAdjustment: func(context.Context, int64) (string, error) {
			return "", shared.ErrNotFound
		},
		ReasonMovement: func(context.Context, int64) (string, error) {
			return "", errors.New("connection reset")
		},
	}
	e := NewEnricher(testLogger(), resolvers)

	entries := []LogEntry{
		{ID: 1, Reason: ReasonAdjustment, ReferenceID: ref(99)},
		{ID: 2, Reason: ReasonMovement, ReferenceID: ref(100)},
		{ID: 3, Reason: ReasonSale, ReferenceID: ref(101)},
	}
	out, err := e.Enrich(context.Background(), entries)
	require.NoError(t, err)

	// Dangling reference, failed lookup, and missing resolver all degrade
	// instead of failing the listing.
	require.Equal(t, "Unknown", out[0].User)
	require.Equal(t, "Unknown", out[1].User)
	require.Equal(t, "Unknown", out[2].User)
}

func TestEnrichKeepsOrder(t *testing.T) {
	e := NewEnricher(testLogger(), nil)
	entries := make([]LogEntry, 50)
	for i := range entries {
		entries[i] = LogEntry{ID: int64(i + 1), Change: 1, NewQuantity: float64(i + 1)}
	}
	out, err := e.Enrich(context.Background(), entries)
	require.NoError(t, err)
	for i := range out {
		require.Equal(t, int64(i+1), out[i].ID)
	}
}
