// Package docstore keeps ledger transactions as documents in the dual-tier
// store, next to the periods that link to them.
package docstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fisse/internal/core"
	"fisse/internal/ledger"
	"fisse/internal/store"
)

const Collection = "transactions"

// Ensure interface conformance
var (
	_ ledger.Ledger        = (*Ledger)(nil)
	_ ledger.HistorySource = (*Ledger)(nil)
)

type Ledger struct {
	store *store.Adapter
	now   func() time.Time
}

func New(s *store.Adapter) *Ledger {
	return &Ledger{store: s, now: time.Now}
}

func (l *Ledger) Create(ctx context.Context, tx core.LedgerTransaction) (string, error) {
	if tx.ID == "" {
		tx.ID = l.store.NewID(ctx, Collection)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = l.now().UTC()
	}
	if err := l.store.Write(ctx, Collection, tx.ID, tx); err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}
	return tx.ID, nil
}

func (l *Ledger) Delete(ctx context.Context, id string) error {
	var tx core.LedgerTransaction
	found, err := l.store.Read(ctx, Collection, id, &tx)
	if err != nil {
		return fmt.Errorf("read transaction %s: %w", id, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, id)
	}
	return l.store.Delete(ctx, Collection, id)
}

// FindByItem scans the collection; a personal ledger stays small enough for that.
func (l *Ledger) FindByItem(ctx context.Context, period core.PeriodKey, itemID string) (*core.LedgerTransaction, error) {
	all, err := store.ListAs[core.LedgerTransaction](ctx, l.store, Collection)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	var match *core.LedgerTransaction
	for id, tx := range all {
		if tx.ItemID != itemID || tx.Period != period {
			continue
		}
		if tx.ID == "" {
			tx.ID = id
		}
		// the oldest one wins if a retried pay left duplicates
		if match == nil || tx.CreatedAt.Before(match.CreatedAt) {
			found := tx
			match = &found
		}
	}
	return match, nil
}

// ListLegacy returns transactions that were never linked to an item, oldest first.
func (l *Ledger) ListLegacy(ctx context.Context) ([]core.LedgerTransaction, error) {
	all, err := store.ListAs[core.LedgerTransaction](ctx, l.store, Collection)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]core.LedgerTransaction, 0, len(all))
	for id, tx := range all {
		if tx.ItemID != "" {
			continue
		}
		if tx.ID == "" {
			tx.ID = id
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
