// Package ledger defines the external record of actual money movements that
// paid and received items link to.
package ledger

import (
	"context"
	"errors"

	"fisse/internal/core"
)

var ErrTransactionNotFound = errors.New("ledger transaction not found")

//go:generate mockgen -source=ledger.go -destination=ledger_mock.go -package=ledger
type Ledger interface {
	// Create records tx and returns its id.
	Create(ctx context.Context, tx core.LedgerTransaction) (string, error)

	// Delete removes the transaction. Unknown ids yield ErrTransactionNotFound.
	Delete(ctx context.Context, id string) error

	// FindByItem returns the transaction tagged with itemID in period, or nil.
	FindByItem(ctx context.Context, period core.PeriodKey, itemID string) (*core.LedgerTransaction, error)
}

// HistorySource lists the pre-template transaction history for migration.
type HistorySource interface {
	ListLegacy(ctx context.Context) ([]core.LedgerTransaction, error)
}
