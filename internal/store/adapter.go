// Package store is the dual-tier document facade: a durable local SQLite tier
// that always answers, and a remote tier that is authoritative when reachable.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fisse/internal/cache"
	"fisse/internal/core"
	"fisse/internal/log"
	"fisse/internal/metrics"
	"fisse/internal/remote"
	"fisse/internal/storage"
)

// OutboxNotifier is told about writes the inline push could not deliver, so an
// out-of-process worker can drain them without waiting for its next poll.
type OutboxNotifier interface {
	NotifyOutbox(ctx context.Context, collection, key string, queueID int64) error
}

// Adapter implements the read/write policy over both tiers.
type Adapter struct {
	local    *storage.SQLiteRepository
	remote   remote.DocumentStore
	cache    *cache.LRUCache[[]byte]
	notifier OutboxNotifier
	logger   *log.Logger
}

type Option func(*Adapter)

// WithCache puts an in-memory LRU in front of local reads.
func WithCache(size int, ttl time.Duration) Option {
	return func(a *Adapter) {
		a.cache = cache.NewLRUCache[[]byte](size, ttl)
	}
}

func WithNotifier(n OutboxNotifier) Option {
	return func(a *Adapter) { a.notifier = n }
}

func WithLogger(l *log.Logger) Option {
	return func(a *Adapter) { a.logger = l.WithComponent(log.ComponentStore) }
}

func New(local *storage.SQLiteRepository, rem remote.DocumentStore, opts ...Option) *Adapter {
	a := &Adapter{
		local:  local,
		remote: rem,
		logger: log.Default(log.ComponentStore),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Cache exposes the hot cache for registration with a cache.Manager; nil when disabled.
func (a *Adapter) Cache() *cache.LRUCache[[]byte] {
	return a.cache
}

// Reachable reports whether the remote tier is currently usable.
func (a *Adapter) Reachable(ctx context.Context) bool {
	return a.remote != nil && a.remote.Reachable(ctx)
}

// Read decodes the document at (collection, key) into dst. The remote value
// wins when the remote tier answers, except for keys with local writes still
// waiting in the outbox.
func (a *Adapter) Read(ctx context.Context, collection, key string, dst any) (bool, error) {
	body, found, err := a.ReadRaw(ctx, collection, key)
	if err != nil || !found {
		return found, err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return true, nil
}

func (a *Adapter) ReadRaw(ctx context.Context, collection, key string) ([]byte, bool, error) {
	if a.Reachable(ctx) {
		body, found, err := a.readRemote(ctx, collection, key)
		if err == nil {
			return body, found, nil
		}
		a.logger.WarnContext(ctx, "Remote read failed, serving local copy",
			log.FieldCollection, collection,
			log.FieldKey, key,
			log.FieldError, err)
	}
	return a.readLocal(ctx, collection, key)
}

func (a *Adapter) readRemote(ctx context.Context, collection, key string) ([]byte, bool, error) {
	body, found, err := a.remote.Get(ctx, collection, key)
	if err != nil {
		return nil, false, err
	}

	pending, err := a.local.HasPendingSync(ctx, collection, key)
	if err != nil {
		return nil, false, err
	}
	if pending {
		// the local value is newer than anything the remote has seen
		metrics.StoreReads.WithLabelValues(collection, "local_pending").Inc()
		return a.readLocal(ctx, collection, key)
	}

	metrics.StoreReads.WithLabelValues(collection, "remote").Inc()
	if !found {
		if err := a.local.DeleteDocument(ctx, collection, key); err != nil {
			return nil, false, err
		}
		a.cacheDelete(collection, key)
		return nil, false, nil
	}
	if err := a.local.PutDocument(ctx, collection, key, body); err != nil {
		return nil, false, err
	}
	a.cacheSet(collection, key, body)
	return body, true, nil
}

func (a *Adapter) readLocal(ctx context.Context, collection, key string) ([]byte, bool, error) {
	if a.cache != nil {
		if body, ok := a.cache.Get(cacheKey(collection, key)); ok {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return body, true, nil
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}
	body, found, err := a.local.GetDocument(ctx, collection, key)
	if err != nil {
		return nil, false, err
	}
	metrics.StoreReads.WithLabelValues(collection, "local").Inc()
	if found {
		a.cacheSet(collection, key, body)
	}
	return body, found, nil
}

// Write persists v locally together with its outbox entry, then tries the
// remote tier inline. A remote failure is logged and left to the outbox.
func (a *Adapter) Write(ctx context.Context, collection, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}

	queueID, err := a.local.WriteThrough(ctx, collection, key, body)
	if err != nil {
		return err
	}
	a.cacheSet(collection, key, body)

	a.push(ctx, collection, key, queueID, func() error {
		return a.remote.Put(ctx, collection, key, body)
	})
	return nil
}

// Delete removes the document from both tiers with the same policy as Write.
func (a *Adapter) Delete(ctx context.Context, collection, key string) error {
	queueID, err := a.local.DeleteThrough(ctx, collection, key)
	if err != nil {
		return err
	}
	a.cacheDelete(collection, key)

	a.push(ctx, collection, key, queueID, func() error {
		return a.remote.Delete(ctx, collection, key)
	})
	return nil
}

func (a *Adapter) push(ctx context.Context, collection, key string, queueID int64, send func() error) {
	if !a.Reachable(ctx) {
		metrics.StoreWrites.WithLabelValues(collection, "deferred").Inc()
		a.notify(ctx, collection, key, queueID)
		return
	}

	if err := send(); err != nil {
		metrics.StoreWrites.WithLabelValues(collection, "failed").Inc()
		a.logger.WarnContext(ctx, "Remote write failed, change kept on this device",
			log.FieldCollection, collection,
			log.FieldKey, key,
			"queue_id", queueID,
			log.FieldError, err)
		a.notify(ctx, collection, key, queueID)
		return
	}

	metrics.StoreWrites.WithLabelValues(collection, "ok").Inc()
	requeued, err := a.local.CompleteSync(ctx, queueID)
	if err != nil {
		a.logger.WarnContext(ctx, "Failed to mark outbox entry complete",
			"queue_id", queueID,
			log.FieldError, err)
		return
	}
	if requeued != 0 {
		a.notify(ctx, collection, key, requeued)
	}
}

func (a *Adapter) notify(ctx context.Context, collection, key string, queueID int64) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.NotifyOutbox(ctx, collection, key, queueID); err != nil {
		a.logger.DebugContext(ctx, "Outbox notification not sent",
			"queue_id", queueID,
			log.FieldError, err)
	}
}

// List returns every document of collection, merging the tiers with the
// same precedence as Read.
func (a *Adapter) List(ctx context.Context, collection string) (map[string][]byte, error) {
	if a.Reachable(ctx) {
		docs, err := a.listRemote(ctx, collection)
		if err == nil {
			return docs, nil
		}
		a.logger.WarnContext(ctx, "Remote list failed, serving local copy",
			log.FieldCollection, collection,
			log.FieldError, err)
	}
	metrics.StoreReads.WithLabelValues(collection, "local").Inc()
	return a.local.ListDocuments(ctx, collection)
}

func (a *Adapter) listRemote(ctx context.Context, collection string) (map[string][]byte, error) {
	remoteDocs, err := a.remote.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	pending, err := a.local.PendingSyncKeys(ctx, collection)
	if err != nil {
		return nil, err
	}
	localDocs, err := a.local.ListDocuments(ctx, collection)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(remoteDocs))
	for key, body := range remoteDocs {
		if _, shadowed := pending[key]; shadowed {
			continue
		}
		if err := a.local.PutDocument(ctx, collection, key, body); err != nil {
			return nil, err
		}
		a.cacheSet(collection, key, body)
		out[key] = body
	}
	for key, body := range localDocs {
		if _, shadowed := pending[key]; shadowed {
			out[key] = body
			continue
		}
		if _, ok := remoteDocs[key]; !ok {
			if err := a.local.DeleteDocument(ctx, collection, key); err != nil {
				return nil, err
			}
			a.cacheDelete(collection, key)
		}
	}
	metrics.StoreReads.WithLabelValues(collection, "remote").Inc()
	return out, nil
}

// NewID returns a remote-assigned id, or a local placeholder while offline.
func (a *Adapter) NewID(ctx context.Context, collection string) string {
	if a.Reachable(ctx) {
		id, err := a.remote.NewID(ctx, collection)
		if err == nil {
			return id
		}
		if !errors.Is(err, core.ErrRemoteUnavailable) {
			a.logger.WarnContext(ctx, "Remote id allocation failed",
				log.FieldCollection, collection,
				log.FieldError, err)
		}
	}
	return core.NewPlaceholderID()
}

// Forget drops the hot-cache entry for a document. The durable copies are untouched.
func (a *Adapter) Forget(collection, key string) {
	a.cacheDelete(collection, key)
}

func (a *Adapter) cacheSet(collection, key string, body []byte) {
	if a.cache != nil {
		a.cache.Set(cacheKey(collection, key), body)
	}
}

func (a *Adapter) cacheDelete(collection, key string) {
	if a.cache != nil {
		a.cache.Delete(cacheKey(collection, key))
	}
}

func cacheKey(collection, key string) string {
	return collection + "/" + key
}

// ListAs decodes every document of collection into T, skipping undecodable ones.
func ListAs[T any](ctx context.Context, a *Adapter, collection string) (map[string]T, error) {
	docs, err := a.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(docs))
	for key, body := range docs {
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			a.logger.WarnContext(ctx, "Skipping undecodable document",
				log.FieldCollection, collection,
				log.FieldKey, key,
				log.FieldError, err)
			continue
		}
		out[key] = v
	}
	return out, nil
}
