package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"fisse/internal/core"
	"fisse/internal/ledger"
	"fisse/internal/remote/memory"
	"fisse/internal/storage"
	"fisse/internal/store"
)

var testNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	repo   *storage.SQLiteRepository
	remote *memory.Store
	store  *store.Adapter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "fisse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	rem := memory.New()
	return &testEnv{repo: repo, remote: rem, store: store.New(repo, rem)}
}

type testServices struct {
	*testEnv
	templates *TemplateRegistry
	periods   *PeriodMaterializer
	lifecycle *ItemLifecycle
}

// newTestServices wires the engine over a fresh store with a fixed clock.
func newTestServices(t *testing.T, l ledger.Ledger) *testServices {
	t.Helper()
	env := newTestEnv(t)
	clock := func() time.Time { return testNow }

	templates := NewTemplateRegistry(env.store)
	templates.now = clock
	periods := NewPeriodMaterializer(env.store, templates)
	periods.now = clock
	lifecycle := NewItemLifecycle(periods, templates, l)
	lifecycle.now = clock

	return &testServices{testEnv: env, templates: templates, periods: periods, lifecycle: lifecycle}
}

func (s *testServices) addTemplate(t *testing.T, side core.Side, name, amount string) core.Template {
	t.Helper()
	tpl, err := s.templates.Upsert(context.Background(), core.Template{
		Side:          side,
		DisplayName:   name,
		DefaultAmount: decimal.RequireFromString(amount),
		Category:      "Housing",
		Active:        true,
		Cadence:       core.Monthly,
		AnchorDay:     1,
	})
	require.NoError(t, err)
	return tpl
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}
