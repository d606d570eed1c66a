package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fisse/internal/core"
	"fisse/internal/ledger"
	"fisse/internal/metrics"
)

// Repair kinds, also used as metric labels.
const (
	RepairPartialPay  = "partial_pay"
	RepairPartialUndo = "partial_undo"
	RepairRelink      = "relink"
)

// RepairReport summarizes one RepairPeriod run.
type RepairReport struct {
	Period   core.PeriodKey `json:"period"`
	Checked  int            `json:"checked"`
	Repaired map[string]int `json:"repaired"`
}

// RepairPeriod reconciles every expense item of an existing period with the
// ledger. Periods that were never materialized are left absent.
func (c *ItemLifecycle) RepairPeriod(ctx context.Context, period core.PeriodKey) (RepairReport, error) {
	if err := period.Validate(); err != nil {
		return RepairReport{}, err
	}
	unlock := c.periods.lock(core.SideExpense, period)
	defer unlock()

	report := RepairReport{Period: period, Repaired: map[string]int{}}
	p, found, err := c.periods.LoadExpensePeriod(ctx, period)
	if err != nil || !found {
		return report, err
	}

	changed := false
	for i := range p.Items {
		report.Checked++
		kind, err := c.reconcile(ctx, period, &p.Items[i])
		if err != nil {
			return report, err
		}
		if kind != "" {
			report.Repaired[kind]++
			changed = true
		}
	}
	if changed {
		if err := c.periods.SaveExpensePeriod(ctx, p); err != nil {
			return report, fmt.Errorf("save repaired period: %w", err)
		}
	}

	slog.InfoContext(ctx, "Period repair completed",
		"period", period,
		"checked", report.Checked,
		"repaired", report.Repaired)
	return report, nil
}

// repairItem reconciles one item in p and persists p if it changed.
func (c *ItemLifecycle) repairItem(ctx context.Context, p *core.ExpensePeriod, idx int) error {
	kind, err := c.reconcile(ctx, p.Period, &p.Items[idx])
	if err != nil {
		return err
	}
	if kind == "" {
		return nil
	}
	if err := c.periods.SaveExpensePeriod(ctx, *p); err != nil {
		return fmt.Errorf("save repaired item: %w", err)
	}
	return nil
}

// reconcile makes item agree with the ledger and returns the kind of repair
// applied, or "" when they already agreed. The ledger wins: a paid status
// counts only while it points at a live transaction.
func (c *ItemLifecycle) reconcile(ctx context.Context, period core.PeriodKey, item *core.ExpenseItem) (string, error) {
	tx, err := c.ledger.FindByItem(ctx, period, item.ID)
	if err != nil {
		return "", fmt.Errorf("find ledger transaction for %s: %w", item.ID, err)
	}

	var kind string
	switch item.Status {
	case core.ExpensePending:
		if tx == nil {
			return "", nil
		}
		// transaction written, item update lost
		changedAt := tx.CreatedAt
		if changedAt.IsZero() {
			changedAt = c.now().UTC()
		}
		id := tx.ID
		item.Status = core.ExpensePaid
		item.Amount = tx.Amount
		item.LinkedTransactionID = &id
		item.StatusChangedAt = &changedAt
		kind = RepairPartialPay

	case core.ExpensePaid:
		switch {
		case tx == nil:
			// transaction gone, item update lost
			item.Status = core.ExpensePending
			item.LinkedTransactionID = nil
			item.StatusChangedAt = nil
			kind = RepairPartialUndo
		case item.LinkedTransactionID == nil || *item.LinkedTransactionID != tx.ID:
			id := tx.ID
			item.LinkedTransactionID = &id
			kind = RepairRelink
		default:
			return "", nil
		}

	default:
		return "", nil
	}

	metrics.Repairs.WithLabelValues(kind).Inc()
	slog.WarnContext(ctx, "Item repaired from ledger",
		"kind", kind,
		"period", period,
		"item_id", item.ID,
		"status", item.Status)
	return kind, nil
}

func isTransactionNotFound(err error) bool {
	return errors.Is(err, ledger.ErrTransactionNotFound)
}
