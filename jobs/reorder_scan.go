package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Mailer enqueues outbound mail from inside a job.
type Mailer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// ReorderScan finds items at or below their minimum stock and mails the
// purchasing contact one digest per run.
type ReorderScan struct {
	Pool       *pgxpool.Pool
	Mailer     Mailer
	Logger     *slog.Logger
	AlertEmail string
}

type lowStockItem struct {
	id      int64
	name    string
	unit    string
	current float64
	minimum float64
}

// Handle processes TaskTypeReorderScan tasks.
func (j *ReorderScan) Handle(ctx context.Context, _ *asynq.Task) error {
	rows, err := j.Pool.Query(ctx, `
		SELECT id, name, unit, current_stock, minimum_stock
		FROM inventory_items
		WHERE minimum_stock > 0 AND current_stock <= minimum_stock
		ORDER BY name`)
	if err != nil {
		return fmt.Errorf("reorder scan query: %w", err)
	}
	defer rows.Close()

	var low []lowStockItem
	for rows.Next() {
		var it lowStockItem
		if err := rows.Scan(&it.id, &it.name, &it.unit, &it.current, &it.minimum); err != nil {
			return err
		}
		low = append(low, it)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(low) == 0 {
		j.Logger.Info("reorder scan clean")
		return nil
	}

	var b strings.Builder
	b.WriteString("Items at or below minimum stock:\n\n")
	for _, it := range low {
		fmt.Fprintf(&b, "- %s: %.2f %s on hand (minimum %.2f)\n", it.name, it.current, it.unit, it.minimum)
	}
	if j.Mailer != nil && j.AlertEmail != "" {
		_, err = j.Mailer.EnqueueSendEmail(ctx, SendEmailPayload{
			To:      j.AlertEmail,
			Subject: fmt.Sprintf("Reorder alert: %d items low", len(low)),
			Body:    b.String(),
		})
		if err != nil {
			return fmt.Errorf("enqueue reorder mail: %w", err)
		}
	}
	j.Logger.Warn("reorder scan found low stock", "items", len(low))
	return nil
}
