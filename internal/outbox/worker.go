package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sink receives drained outbox envelopes. Satisfied by Publisher.
type Sink interface {
	Publish(ctx context.Context, documentID string, envelope []byte) error
}

// Worker polls the ledger outbox and forwards pending rows to the sink.
// Rows are marked published only after the sink accepted them, so a crash
// between the two steps re-delivers rather than drops.
type Worker struct {
	db        *sql.DB
	sink      Sink
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewWorker(db *sql.DB, sink Sink, logger *slog.Logger, interval time.Duration, batchSize int) *Worker {
	return &Worker{
		db:        db,
		sink:      sink,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run drains the outbox until ctx is cancelled. Transient drain errors are
// logged and retried on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.DrainOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

type pendingRow struct {
	id         int64
	documentID uuid.UUID
	envelope   []byte
}

// DrainOnce publishes up to one batch of pending rows.
func (w *Worker) DrainOnce(ctx context.Context) error {
	rows, err := w.db.QueryContext(ctx, `
		SELECT id, document_id, payload
		FROM ledger_outbox
		WHERE published_at IS NULL
		ORDER BY id ASC
		LIMIT $1
	`, w.batchSize)
	if err != nil {
		return fmt.Errorf("select pending outbox rows: %w", err)
	}

	var pending []pendingRow
	for rows.Next() {
		var row pendingRow
		if err := rows.Scan(&row.id, &row.documentID, &row.envelope); err != nil {
			rows.Close()
			return fmt.Errorf("scan outbox row: %w", err)
		}
		pending = append(pending, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate outbox rows: %w", err)
	}
	rows.Close()

	for _, row := range pending {
		if err := w.sink.Publish(ctx, row.documentID.String(), row.envelope); err != nil {
			return err
		}
		if _, err := w.db.ExecContext(ctx, `
			UPDATE ledger_outbox SET published_at = NOW() WHERE id = $1
		`, row.id); err != nil {
			return fmt.Errorf("mark outbox row published: %w", err)
		}
	}
	if len(pending) > 0 {
		w.logger.DebugContext(ctx, "outbox drained", "published", len(pending))
	}
	return nil
}
