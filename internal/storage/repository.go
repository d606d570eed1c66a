package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Sync queue operations and states.
const (
	OpPut    = "put"
	OpDelete = "delete"

	SyncPending    = "pending"
	SyncProcessing = "processing"
	SyncCompleted  = "completed"
	SyncFailed     = "failed"
)

// SQLiteRepository is the always-available local tier: a keyed document table
// plus the outbox of writes still owed to the remote tier.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// SyncQueueItem is one outbox row.
type SyncQueueItem struct {
	ID            int64
	Collection    string
	Key           string
	Operation     string
	Body          []byte
	Status        string
	Attempts      int64
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
}

// SyncQueueStats counts outbox rows by state.
type SyncQueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// a single writer keeps SQLITE_BUSY out of concurrent callers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// GetDocument returns the cached body for (collection, key).
func (r *SQLiteRepository) GetDocument(ctx context.Context, collection, key string) ([]byte, bool, error) {
	var body string
	err := r.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND doc_key = ?`,
		collection, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get document %s/%s: %w", collection, key, err)
	}
	return []byte(body), true, nil
}

// ListDocuments returns every cached body in collection keyed by document key.
func (r *SQLiteRepository) ListDocuments(ctx context.Context, collection string) (map[string][]byte, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT doc_key, body FROM documents WHERE collection = ? ORDER BY doc_key`, collection)
	if err != nil {
		return nil, fmt.Errorf("list documents %s: %w", collection, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out[key] = []byte(body)
	}
	return out, rows.Err()
}

// PutDocument overwrites the local copy without queueing a remote write.
// Used when the remote tier is the source of the value.
func (r *SQLiteRepository) PutDocument(ctx context.Context, collection, key string, body []byte) error {
	if _, err := r.db.ExecContext(ctx, upsertDocumentSQL, collection, key, string(body), r.nowMillis()); err != nil {
		return fmt.Errorf("put document %s/%s: %w", collection, key, err)
	}
	return nil
}

// DeleteDocument removes the local copy without queueing a remote delete.
func (r *SQLiteRepository) DeleteDocument(ctx context.Context, collection, key string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND doc_key = ?`, collection, key); err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, key, err)
	}
	return nil
}

const upsertDocumentSQL = `
	INSERT INTO documents (collection, doc_key, body, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (collection, doc_key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`

// WriteThrough stores body locally and queues the matching remote write in
// the same transaction, so the local result and its outbox entry commit together.
func (r *SQLiteRepository) WriteThrough(ctx context.Context, collection, key string, body []byte) (int64, error) {
	var queueID int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertDocumentSQL, collection, key, string(body), r.nowMillis()); err != nil {
			return fmt.Errorf("upsert document: %w", err)
		}
		id, err := r.enqueue(ctx, tx, collection, key, OpPut, body)
		if err != nil {
			return err
		}
		queueID = id
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("write through %s/%s: %w", collection, key, err)
	}

	slog.DebugContext(ctx, "Document saved to SQLite",
		"collection", collection,
		"key", key,
		"queue_id", queueID)

	return queueID, nil
}

// DeleteThrough removes the local copy and queues the remote delete atomically.
func (r *SQLiteRepository) DeleteThrough(ctx context.Context, collection, key string) (int64, error) {
	var queueID int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = ? AND doc_key = ?`, collection, key); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		id, err := r.enqueue(ctx, tx, collection, key, OpDelete, nil)
		if err != nil {
			return err
		}
		queueID = id
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete through %s/%s: %w", collection, key, err)
	}
	return queueID, nil
}

// enqueue supersedes older unsent writes for the same document: only the
// newest body needs to reach the remote tier.
func (r *SQLiteRepository) enqueue(ctx context.Context, tx *sql.Tx, collection, key, op string, body []byte) (int64, error) {
	now := r.nowMillis()
	if _, err := tx.ExecContext(ctx, `
		UPDATE sync_queue SET status = 'completed', last_error = 'superseded', updated_at = ?
		WHERE collection = ? AND doc_key = ? AND status IN ('pending', 'failed')`,
		now, collection, key); err != nil {
		return 0, fmt.Errorf("supersede queued writes: %w", err)
	}

	var bodyArg any
	if body != nil {
		bodyArg = string(body)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO sync_queue (collection, doc_key, operation, body, status, attempts, next_attempt_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', 0, ?, ?, ?)`,
		collection, key, op, bodyArg, now, now, now)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", op, err)
	}
	return res.LastInsertId()
}

// HasPendingSync reports whether (collection, key) still has an unsent write.
func (r *SQLiteRepository) HasPendingSync(ctx context.Context, collection, key string) (bool, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sync_queue
		WHERE collection = ? AND doc_key = ? AND status IN ('pending', 'processing', 'failed')`,
		collection, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check pending sync: %w", err)
	}
	return n > 0, nil
}

// PendingSyncKeys returns the keys in collection that still have unsent writes.
func (r *SQLiteRepository) PendingSyncKeys(ctx context.Context, collection string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT doc_key FROM sync_queue
		WHERE collection = ? AND status IN ('pending', 'processing', 'failed')`, collection)
	if err != nil {
		return nil, fmt.Errorf("list pending sync keys: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out[key] = struct{}{}
	}
	return out, rows.Err()
}

// GetSyncItem returns a single outbox row.
func (r *SQLiteRepository) GetSyncItem(ctx context.Context, id int64) (*SyncQueueItem, error) {
	row := r.db.QueryRowContext(ctx, selectSyncColumns+` WHERE id = ?`, id)
	item, err := scanSyncItem(row)
	if err != nil {
		return nil, fmt.Errorf("get sync item %d: %w", id, err)
	}
	return item, nil
}

// DequeueSyncBatch returns up to limit pending rows that are due, oldest first.
func (r *SQLiteRepository) DequeueSyncBatch(ctx context.Context, limit int64) ([]SyncQueueItem, error) {
	rows, err := r.db.QueryContext(ctx, selectSyncColumns+`
		WHERE status = 'pending' AND next_attempt_at <= ?
		ORDER BY id
		LIMIT ?`, r.nowMillis(), limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue sync batch: %w", err)
	}
	defer rows.Close()

	var items []SyncQueueItem
	for rows.Next() {
		item, err := scanSyncItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ClaimSync moves a pending row to processing. It reports false when the row
// was no longer pending: superseded by a newer write, or claimed by another run.
func (r *SQLiteRepository) ClaimSync(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = 'processing', updated_at = ?
		WHERE id = ? AND status = 'pending'`, r.nowMillis(), id)
	if err != nil {
		return false, fmt.Errorf("claim sync %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim sync %d: %w", id, err)
	}
	return n == 1, nil
}

// CompleteSync marks a pushed row completed. When the local document no
// longer matches what the row carried, a newer write may have reached the
// remote tier first, so the current local state is queued again and the key
// stays shadowed until a matching push lands. The new row id is returned, or
// zero when nothing was queued.
func (r *SQLiteRepository) CompleteSync(ctx context.Context, id int64) (int64, error) {
	var requeued int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var (
			collection, key, op string
			pushed              sql.NullString
		)
		err := tx.QueryRowContext(ctx,
			`SELECT collection, doc_key, operation, body FROM sync_queue WHERE id = ?`, id).
			Scan(&collection, &key, &op, &pushed)
		if err != nil {
			return fmt.Errorf("load sync item: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE sync_queue SET status = 'completed', updated_at = ? WHERE id = ?`,
			r.nowMillis(), id); err != nil {
			return fmt.Errorf("mark sync completed: %w", err)
		}

		var current sql.NullString
		err = tx.QueryRowContext(ctx,
			`SELECT body FROM documents WHERE collection = ? AND doc_key = ?`, collection, key).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load document: %w", err)
		}

		switch {
		case current.Valid && op == OpPut && pushed.String == current.String:
			return nil
		case !current.Valid && op == OpDelete:
			return nil
		case current.Valid:
			requeued, err = r.enqueue(ctx, tx, collection, key, OpPut, []byte(current.String))
		default:
			requeued, err = r.enqueue(ctx, tx, collection, key, OpDelete, nil)
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("complete sync %d: %w", id, err)
	}
	if requeued != 0 {
		slog.InfoContext(ctx, "Outdated push requeued",
			"id", id,
			"queue_id", requeued)
	}
	return requeued, nil
}

// MarkSyncFailed parks the row after the retry budget is spent.
func (r *SQLiteRepository) MarkSyncFailed(ctx context.Context, id int64, lastError string) error {
	if err := r.setSyncStatus(ctx, id, SyncFailed, lastError); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Sync item marked as failed", "id", id)
	return nil
}

// IncrementSyncAttempt returns the row to pending, due again at nextAttempt.
func (r *SQLiteRepository) IncrementSyncAttempt(ctx context.Context, id int64, lastError string, nextAttempt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue
		SET status = 'pending', attempts = attempts + 1, last_error = ?, next_attempt_at = ?, updated_at = ?
		WHERE id = ?`,
		lastError, nextAttempt.UnixMilli(), r.nowMillis(), id)
	if err != nil {
		return fmt.Errorf("increment sync attempt: %w", err)
	}
	return nil
}

// DeferSync returns the row to pending, due at nextAttempt, without counting an attempt.
func (r *SQLiteRepository) DeferSync(ctx context.Context, id int64, lastError string, nextAttempt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = 'pending', last_error = ?, next_attempt_at = ?, updated_at = ?
		WHERE id = ?`,
		lastError, nextAttempt.UnixMilli(), r.nowMillis(), id)
	if err != nil {
		return fmt.Errorf("defer sync: %w", err)
	}
	return nil
}

// ResetStaleProcessing returns rows left in processing by a crashed run to pending.
func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = 'pending', updated_at = ? WHERE status = 'processing'`, r.nowMillis())
	if err != nil {
		return fmt.Errorf("reset stale processing: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.InfoContext(ctx, "Reset stale sync items", "count", n)
	}
	return nil
}

// CleanupCompletedSyncs deletes completed rows last touched before cutoff.
func (r *SQLiteRepository) CleanupCompletedSyncs(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE status = 'completed' AND updated_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return fmt.Errorf("cleanup completed syncs: %w", err)
	}
	return nil
}

// RetryFailedSyncs puts every failed row back in the queue with a fresh budget.
func (r *SQLiteRepository) RetryFailedSyncs(ctx context.Context) error {
	now := r.nowMillis()
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = 'pending', attempts = 0, next_attempt_at = ?, updated_at = ?
		WHERE status = 'failed'`, now, now)
	if err != nil {
		return fmt.Errorf("retry failed syncs: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSyncQueueStats(ctx context.Context) (*SyncQueueStats, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sync_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("sync queue stats: %w", err)
	}
	defer rows.Close()

	stats := &SyncQueueStats{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		switch status {
		case SyncPending:
			stats.Pending = n
		case SyncProcessing:
			stats.Processing = n
		case SyncCompleted:
			stats.Completed = n
		case SyncFailed:
			stats.Failed = n
		}
	}
	return stats, rows.Err()
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id int64, status, lastError string) error {
	var errArg any
	if lastError != "" {
		errArg = lastError
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = ?, last_error = COALESCE(?, last_error), updated_at = ?
		WHERE id = ?`, status, errArg, r.nowMillis(), id)
	if err != nil {
		return fmt.Errorf("mark sync %s: %w", status, err)
	}
	return nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) nowMillis() int64 {
	return r.now().UnixMilli()
}

const selectSyncColumns = `
	SELECT id, collection, doc_key, operation, body, status, attempts, last_error, next_attempt_at, created_at
	FROM sync_queue`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSyncItem(s scanner) (*SyncQueueItem, error) {
	var (
		item                 SyncQueueItem
		body, lastErr        sql.NullString
		nextAttempt, created int64
	)
	if err := s.Scan(&item.ID, &item.Collection, &item.Key, &item.Operation, &body,
		&item.Status, &item.Attempts, &lastErr, &nextAttempt, &created); err != nil {
		return nil, err
	}
	if body.Valid {
		item.Body = []byte(body.String)
	}
	item.LastError = lastErr.String
	item.NextAttemptAt = time.UnixMilli(nextAttempt)
	item.CreatedAt = time.UnixMilli(created)
	return &item, nil
}
