package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fisse/internal/config"
	"fisse/internal/core"
	"fisse/internal/services"
)

func TestFromAppConfig(t *testing.T) {
	app := &config.Config{
		SQLiteDBPath:  "/tmp/fisse.db",
		RemoteBackend: "firestore",
		UserID:        "u1",
		LedgerBackend: "postgres",
		PostgresURL:   "postgres://localhost/fisse",
		CacheSize:     32,
		CacheTTL:      time.Second,
	}

	cfg, err := FromAppConfig(app)
	require.NoError(t, err)
	assert.Equal(t, FirestoreRemote, cfg.Remote)
	assert.Equal(t, PostgresLedger, cfg.Ledger)
	assert.Equal(t, "postgres://localhost/fisse", cfg.PostgresURL)
	assert.Equal(t, 32, cfg.CacheSize)

	_, err = FromAppConfig(nil)
	assert.Error(t, err)

	app.LedgerBackend = "csv"
	_, err = FromAppConfig(app)
	assert.ErrorContains(t, err, "invalid ledger backend")
}

func TestConfigValidate(t *testing.T) {
	base := Config{SQLiteDBPath: "x.db", Remote: MemoryRemote, Ledger: DocstoreLedger}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "no sqlite path", mutate: func(c *Config) { c.SQLiteDBPath = "" }, wantErr: "SQLite database path"},
		{name: "bad remote", mutate: func(c *Config) { c.Remote = "redis" }, wantErr: "invalid remote backend"},
		{name: "firestore without project", mutate: func(c *Config) { c.Remote = FirestoreRemote }, wantErr: "Firestore project ID"},
		{name: "postgres without url", mutate: func(c *Config) { c.Ledger = PostgresLedger }, wantErr: "Postgres URL"},
		{name: "sheets without id", mutate: func(c *Config) { c.Ledger = SheetsLedger }, wantErr: "Spreadsheet ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCreateBackendMemoryDocstore(t *testing.T) {
	ctx := context.Background()
	b, err := NewFactory(nil).CreateBackend(ctx, Config{
		SQLiteDBPath: filepath.Join(t.TempDir(), "fisse.db"),
		Remote:       MemoryRemote,
		Ledger:       DocstoreLedger,
		CacheSize:    16,
		CacheTTL:     time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Cleanup() })

	assert.Nil(t, b.AMQP)
	assert.NotNil(t, b.Store.Cache())

	svc := NewServices(b, services.DefaultSyncProcessorConfig())
	tpl, err := svc.Templates.Upsert(ctx, core.Template{
		Side:          core.SideExpense,
		DisplayName:   "Rent",
		DefaultAmount: decimal.NewFromInt(900),
		Active:        true,
		Cadence:       core.Monthly,
		AnchorDay:     1,
	})
	require.NoError(t, err)

	period := core.PeriodKey("2025-03")
	p, err := svc.Periods.EnsureExpensePeriod(ctx, period)
	require.NoError(t, err)
	require.Len(t, p.Items, 1)

	item, err := svc.Lifecycle.Pay(ctx, period, core.ItemID(tpl.ID, period), nil)
	require.NoError(t, err)
	assert.Equal(t, core.ExpensePaid, item.Status)

	tx, err := b.Ledger.FindByItem(ctx, period, item.ID)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.True(t, core.AmountsEqual(decimal.NewFromInt(900), tx.Amount))
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Remote: MemoryRemote, Ledger: DocstoreLedger})
	assert.Error(t, err)
}
