package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fisse/internal/core"
	"fisse/internal/remote/memory"
	"fisse/internal/storage"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []int64
}

func (n *recordingNotifier) NotifyOutbox(_ context.Context, _, _ string, queueID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, queueID)
	return nil
}

func newTestAdapter(t *testing.T, opts ...Option) (*Adapter, *storage.SQLiteRepository, *memory.Store) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "fisse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	rem := memory.New()
	return New(repo, rem, opts...), repo, rem
}

func TestWriteReachesBothTiers(t *testing.T) {
	ctx := context.Background()
	a, repo, rem := newTestAdapter(t)

	require.NoError(t, a.Write(ctx, "expense_templates", "t1", doc{Name: "Rent", Count: 1}))

	body, found, err := rem.Get(ctx, "expense_templates", "t1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"name":"Rent","count":1}`, string(body))

	pending, err := repo.HasPendingSync(ctx, "expense_templates", "t1")
	require.NoError(t, err)
	assert.False(t, pending, "inline push completes the outbox entry")
}

func TestOfflineWriteIsDurableAndReadable(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	a, repo, rem := newTestAdapter(t, WithNotifier(n))
	rem.SetReachable(false)

	require.NoError(t, a.Write(ctx, "expense_periods", "2025-03", doc{Name: "March"}))

	var got doc
	found, err := a.Read(ctx, "expense_periods", "2025-03", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "March", got.Name)

	stats, err := repo.GetSyncQueueStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Pending)
	assert.Len(t, n.calls, 1)
	assert.Zero(t, rem.Puts())
}

func TestRemoteWinsWhenNothingPending(t *testing.T) {
	ctx := context.Background()
	a, repo, rem := newTestAdapter(t, WithCache(10, time.Minute))

	require.NoError(t, a.Write(ctx, "expense_templates", "t1", doc{Name: "old"}))
	require.NoError(t, rem.Put(ctx, "expense_templates", "t1", []byte(`{"name":"new"}`)))

	var got doc
	found, err := a.Read(ctx, "expense_templates", "t1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "new", got.Name)

	body, _, err := repo.GetDocument(ctx, "expense_templates", "t1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"new"}`, string(body), "remote value overwrites local")
}

func TestPendingWriteShadowsStaleRemote(t *testing.T) {
	ctx := context.Background()
	a, _, rem := newTestAdapter(t)

	require.NoError(t, rem.Put(ctx, "expense_periods", "2025-03", []byte(`{"name":"stale"}`)))
	rem.SetReachable(false)
	require.NoError(t, a.Write(ctx, "expense_periods", "2025-03", doc{Name: "fresh"}))
	rem.SetReachable(true)

	var got doc
	found, err := a.Read(ctx, "expense_periods", "2025-03", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "fresh", got.Name)

	docs, err := a.List(ctx, "expense_periods")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"fresh","count":0}`, string(docs["2025-03"]))
}

func TestRemoteFailureFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	a, _, rem := newTestAdapter(t)

	require.NoError(t, a.Write(ctx, "income_templates", "s", doc{Name: "Salary"}))
	rem.FailNext(errors.New("timeout"))

	var got doc
	found, err := a.Read(ctx, "income_templates", "s", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Salary", got.Name)
}

func TestReadAbsentEverywhere(t *testing.T) {
	ctx := context.Background()
	a, _, rem := newTestAdapter(t)

	var got doc
	found, err := a.Read(ctx, "expense_periods", "1999-01", &got)
	require.NoError(t, err)
	assert.False(t, found)

	rem.SetReachable(false)
	found, err = a.Read(ctx, "expense_periods", "1999-01", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListMergesTiers(t *testing.T) {
	ctx := context.Background()
	a, repo, rem := newTestAdapter(t)

	require.NoError(t, a.Write(ctx, "expense_templates", "a", doc{Name: "A"}))
	require.NoError(t, a.Write(ctx, "expense_templates", "b", doc{Name: "B"}))
	// deleted by another device
	require.NoError(t, rem.Delete(ctx, "expense_templates", "b"))
	require.NoError(t, rem.Put(ctx, "expense_templates", "c", []byte(`{"name":"C"}`)))

	got, err := ListAs[doc](ctx, a, "expense_templates")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "A", got["a"].Name)
	assert.Equal(t, "C", got["c"].Name)

	local, err := repo.ListDocuments(ctx, "expense_templates")
	require.NoError(t, err)
	assert.Len(t, local, 2)
	assert.NotContains(t, local, "b")
}

func TestDeleteOffline(t *testing.T) {
	ctx := context.Background()
	a, repo, rem := newTestAdapter(t)

	require.NoError(t, a.Write(ctx, "expense_templates", "a", doc{Name: "A"}))
	rem.SetReachable(false)
	require.NoError(t, a.Delete(ctx, "expense_templates", "a"))

	var got doc
	found, err := a.Read(ctx, "expense_templates", "a", &got)
	require.NoError(t, err)
	assert.False(t, found)

	batch, err := repo.DequeueSyncBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, storage.OpDelete, batch[0].Operation)
}

func TestNewIDPlaceholderWhenOffline(t *testing.T) {
	ctx := context.Background()
	a, _, rem := newTestAdapter(t)

	assert.False(t, core.IsPlaceholderID(a.NewID(ctx, "expense_templates")))
	rem.SetReachable(false)
	assert.True(t, core.IsPlaceholderID(a.NewID(ctx, "expense_templates")))
}

func TestCacheServesRepeatedLocalReads(t *testing.T) {
	ctx := context.Background()
	a, _, rem := newTestAdapter(t, WithCache(10, time.Minute))
	rem.SetReachable(false)

	require.NoError(t, a.Write(ctx, "expense_periods", "2025-03", doc{Name: "x"}))
	var got doc
	for i := 0; i < 3; i++ {
		_, err := a.Read(ctx, "expense_periods", "2025-03", &got)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, a.Cache().Stats().Hits)
}
