package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fisse/internal/core"
	"fisse/internal/metrics"
	"fisse/internal/remote"
	"fisse/internal/storage"
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to check for due outbox entries (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of entries to process per cycle (default: 10)
	BatchSize int

	// MaxRetries is the number of attempts before an entry is parked as failed (default: 5)
	MaxRetries int

	// BaseBackoff is the delay after the first failure; it doubles per attempt (default: 2s)
	BaseBackoff time.Duration

	// MaxBackoff caps the retry delay (default: 5m)
	MaxBackoff time.Duration

	// CleanupInterval is how often to clean up completed entries (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old completed entries must be before cleanup (default: 24h)
	CleanupAge time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      5,
		BaseBackoff:     2 * time.Second,
		MaxBackoff:      5 * time.Minute,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// SyncProcessor drains the local outbox into the remote document tier.
type SyncProcessor struct {
	storage *storage.SQLiteRepository
	remote  remote.DocumentStore
	config  SyncProcessorConfig

	wakeCh chan struct{}

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(
	storage *storage.SQLiteRepository,
	remoteStore remote.DocumentStore,
	config SyncProcessorConfig,
) *SyncProcessor {
	return &SyncProcessor{
		storage: storage,
		remote:  remoteStore,
		config:  config,
		wakeCh:  make(chan struct{}, 1),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// Reset any entries left in processing by a previous crash
	if p.storage != nil {
		if err := p.storage.ResetStaleProcessing(ctx); err != nil {
			slog.WarnContext(ctx, "Failed to reset stale processing items", "error", err)
		}
	}

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Wake asks the loop to process a batch now instead of at the next tick.
// It never blocks; wake-ups arriving while one is queued are merged.
func (p *SyncProcessor) Wake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.ProcessBatch(ctx)
		case <-p.wakeCh:
			p.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			p.cleanupCompleted(ctx)
			p.refreshStats(ctx)
		}
	}
}

// ProcessBatch pushes up to BatchSize due entries and returns how many reached
// the remote tier. Nothing is attempted while the remote tier is unreachable.
func (p *SyncProcessor) ProcessBatch(ctx context.Context) int {
	if p.storage == nil || p.remote == nil {
		return 0
	}
	if !p.remote.Reachable(ctx) {
		slog.DebugContext(ctx, "Remote unreachable, outbox processing deferred")
		return 0
	}

	items, err := p.storage.DequeueSyncBatch(ctx, int64(p.config.BatchSize))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dequeue sync batch", "error", err)
		return 0
	}
	if len(items) == 0 {
		return 0
	}

	slog.DebugContext(ctx, "Processing sync batch", "count", len(items))

	synced := 0
	for _, item := range items {
		if p.stopping(ctx) {
			return synced
		}

		claimed, err := p.storage.ClaimSync(ctx, item.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to claim sync item",
				"id", item.ID, "error", err)
			continue
		}
		if !claimed {
			slog.DebugContext(ctx, "Sync item no longer pending, skipped", "id", item.ID)
			continue
		}

		if err := p.push(ctx, item); err != nil {
			p.handleFailure(ctx, item, err)
			continue
		}
		p.handleSuccess(ctx, item)
		synced++
	}
	return synced
}

func (p *SyncProcessor) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if p.stopCh == nil {
		return false
	}
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

func (p *SyncProcessor) push(ctx context.Context, item storage.SyncQueueItem) error {
	switch item.Operation {
	case storage.OpPut:
		if err := p.remote.Put(ctx, item.Collection, item.Key, item.Body); err != nil {
			return fmt.Errorf("put %s/%s: %w", item.Collection, item.Key, err)
		}
	case storage.OpDelete:
		if err := p.remote.Delete(ctx, item.Collection, item.Key); err != nil {
			return fmt.Errorf("delete %s/%s: %w", item.Collection, item.Key, err)
		}
	default:
		return fmt.Errorf("unknown operation: %s", item.Operation)
	}
	return nil
}

func (p *SyncProcessor) handleSuccess(ctx context.Context, item storage.SyncQueueItem) {
	metrics.OutboxProcessed.WithLabelValues("synced").Inc()
	requeued, err := p.storage.CompleteSync(ctx, item.ID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync complete",
			"id", item.ID, "error", err)
		return
	}
	if requeued != 0 {
		p.Wake()
	}
	slog.DebugContext(ctx, "Outbox entry synced",
		"id", item.ID,
		"collection", item.Collection,
		"key", item.Key,
		"operation", item.Operation)
}

// handleFailure schedules a retry with exponential backoff, or parks the
// entry once the retry budget is spent.
func (p *SyncProcessor) handleFailure(ctx context.Context, item storage.SyncQueueItem, processErr error) {
	attempt := item.Attempts + 1
	slog.WarnContext(ctx, "Sync processing failed",
		"id", item.ID,
		"operation", item.Operation,
		"attempt", attempt,
		"error", processErr)

	// an unreachable remote is not the entry's fault; it does not spend the budget
	if errors.Is(processErr, core.ErrRemoteUnavailable) {
		metrics.OutboxProcessed.WithLabelValues("deferred").Inc()
		if err := p.storage.DeferSync(ctx, item.ID, processErr.Error(), time.Now().Add(p.config.BaseBackoff)); err != nil {
			slog.ErrorContext(ctx, "Failed to reschedule sync item", "id", item.ID, "error", err)
		}
		return
	}

	if attempt >= int64(p.config.MaxRetries) {
		metrics.OutboxProcessed.WithLabelValues("failed").Inc()
		if err := p.storage.MarkSyncFailed(ctx, item.ID, processErr.Error()); err != nil {
			slog.ErrorContext(ctx, "Failed to mark sync as failed",
				"id", item.ID, "error", err)
		}
		slog.ErrorContext(ctx, "Sync item failed permanently after max retries",
			"id", item.ID,
			"collection", item.Collection,
			"key", item.Key,
			"attempts", attempt)
		return
	}

	metrics.OutboxProcessed.WithLabelValues("retry").Inc()
	next := time.Now().Add(p.backoff(attempt))
	if err := p.storage.IncrementSyncAttempt(ctx, item.ID, processErr.Error(), next); err != nil {
		slog.ErrorContext(ctx, "Failed to increment sync attempt",
			"id", item.ID, "error", err)
	}
}

// backoff returns BaseBackoff * 2^(attempt-1), capped at MaxBackoff.
func (p *SyncProcessor) backoff(attempt int64) time.Duration {
	d := p.config.BaseBackoff
	for i := int64(1); i < attempt; i++ {
		d *= 2
		if d >= p.config.MaxBackoff {
			return p.config.MaxBackoff
		}
	}
	return min(d, p.config.MaxBackoff)
}

func (p *SyncProcessor) cleanupCompleted(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupAge)
	if err := p.storage.CleanupCompletedSyncs(ctx, cutoff); err != nil {
		slog.ErrorContext(ctx, "Failed to cleanup completed syncs", "error", err)
	}
}

func (p *SyncProcessor) refreshStats(ctx context.Context) {
	stats, err := p.Stats(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read outbox stats", "error", err)
		return
	}
	metrics.OutboxDepth.WithLabelValues(storage.SyncPending).Set(float64(stats.Pending))
	metrics.OutboxDepth.WithLabelValues(storage.SyncProcessing).Set(float64(stats.Processing))
	metrics.OutboxDepth.WithLabelValues(storage.SyncCompleted).Set(float64(stats.Completed))
	metrics.OutboxDepth.WithLabelValues(storage.SyncFailed).Set(float64(stats.Failed))
}

// Stats returns current queue statistics
func (p *SyncProcessor) Stats(ctx context.Context) (*storage.SyncQueueStats, error) {
	return p.storage.GetSyncQueueStats(ctx)
}

// RetryFailed resets all failed entries for retry and wakes the loop.
func (p *SyncProcessor) RetryFailed(ctx context.Context) error {
	if err := p.storage.RetryFailedSyncs(ctx); err != nil {
		return err
	}
	p.Wake()
	return nil
}
