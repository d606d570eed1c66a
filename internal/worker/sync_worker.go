// Package worker hosts the outbox consumer run by cmd/fisse-worker.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"fisse/internal/amqp"
	"fisse/internal/storage"
)

// maxStartupBatches bounds the drain at startup so a broken remote cannot
// keep the worker from reaching its consume loop.
const maxStartupBatches = 50

// Drainer is the part of the sync processor the worker drives.
type Drainer interface {
	Wake()
	ProcessBatch(ctx context.Context) int
}

// SyncWorker turns outbox notifications into sync processor runs.
type SyncWorker struct {
	storage *storage.SQLiteRepository
	drainer Drainer
}

func NewSyncWorker(storage *storage.SQLiteRepository, drainer Drainer) *SyncWorker {
	return &SyncWorker{
		storage: storage,
		drainer: drainer,
	}
}

// HandleOutboxMessage wakes the processor for a notified entry. Entries
// already handled, by the inline push or an earlier wake, are acked without
// work.
func (w *SyncWorker) HandleOutboxMessage(ctx context.Context, msg *amqp.OutboxChangedMessage) error {
	item, err := w.storage.GetSyncItem(ctx, msg.QueueID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("get outbox entry %d: %w", msg.QueueID, err)
	}
	// cleaned-up rows are gone from the table
	if item == nil || item.Status == storage.SyncCompleted {
		slog.DebugContext(ctx, "Outbox entry already synced",
			"queue_id", msg.QueueID,
			"collection", msg.Collection,
			"key", msg.Key)
		return nil
	}

	slog.InfoContext(ctx, "Outbox entry pending, waking sync processor",
		"queue_id", msg.QueueID,
		"collection", msg.Collection,
		"key", msg.Key,
		"status", item.Status)
	w.drainer.Wake()
	return nil
}

// StartupSyncCheck recovers entries left processing by a crash and drains
// the outbox once before consuming messages.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	if err := w.storage.ResetStaleProcessing(ctx); err != nil {
		return fmt.Errorf("reset stale outbox entries: %w", err)
	}

	stats, err := w.storage.GetSyncQueueStats(ctx)
	if err != nil {
		return fmt.Errorf("outbox stats: %w", err)
	}
	if stats.Pending == 0 {
		slog.InfoContext(ctx, "No pending outbox entries on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending outbox entries on startup, processing...",
		"pending", stats.Pending,
		"failed", stats.Failed)

	total := 0
	for i := 0; i < maxStartupBatches; i++ {
		n := w.drainer.ProcessBatch(ctx)
		if n == 0 || ctx.Err() != nil {
			break
		}
		total += n
	}

	slog.InfoContext(ctx, "Startup sync completed", "processed", total)
	return nil
}
