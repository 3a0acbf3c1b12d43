package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// balanceTolerance absorbs float accumulation noise when summing changes.
const balanceTolerance = 1e-6

// LedgerIntegrity recomputes each item's balance from its opening stock plus
// the sum of ledger changes and reports drift against the stored quantity.
// A mismatch means a stock write bypassed the ledger coordinator.
type LedgerIntegrity struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

// Handle processes TaskTypeLedgerIntegrity tasks.
func (j *LedgerIntegrity) Handle(ctx context.Context, _ *asynq.Task) error {
	rows, err := j.Pool.Query(ctx, `
		SELECT i.id, i.name, i.current_stock,
		       i.opening_stock + COALESCE(SUM(l.change), 0) AS ledger_balance
		FROM inventory_items i
		LEFT JOIN inventory_logs l ON l.item_id = i.id
		GROUP BY i.id, i.name, i.current_stock, i.opening_stock`)
	if err != nil {
		return fmt.Errorf("ledger integrity query: %w", err)
	}
	defer rows.Close()

	checked, drifted := 0, 0
	for rows.Next() {
		var (
			id              int64
			name            string
			current, ledger float64
		)
		if err := rows.Scan(&id, &name, &current, &ledger); err != nil {
			return err
		}
		checked++
		if math.Abs(current-ledger) > balanceTolerance {
			drifted++
			j.Logger.Error("ledger balance drift",
				"item_id", id, "name", name,
				"current_stock", current, "ledger_balance", ledger)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if drifted > 0 {
		return fmt.Errorf("ledger integrity: %d of %d items drifted", drifted, checked)
	}
	j.Logger.Info("ledger integrity check passed", "items", checked)
	return nil
}
