package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fisse/internal/core"
	"fisse/internal/metrics"
)

// ToggleReceived moves an income item to status, stamping or clearing
// receivedAt. It has no ledger effect. Unknown items and no-op toggles are
// ignored.
func (c *ItemLifecycle) ToggleReceived(ctx context.Context, period core.PeriodKey, itemID string, status core.IncomeStatus) error {
	unlock := c.periods.lock(core.SideIncome, period)
	defer unlock()

	p, err := c.periods.EnsureIncomePeriod(ctx, period)
	if err != nil {
		return err
	}
	idx := p.FindItem(itemID)
	if idx < 0 || p.Items[idx].Status == status {
		return nil
	}
	next, err := p.Items[idx].Status.Transition(status)
	if err != nil {
		return err
	}

	now := c.now().UTC()
	item := &p.Items[idx]
	item.Status = next
	item.StatusChangedAt = &now
	if next == core.IncomeReceived {
		item.ReceivedAt = &now
	} else {
		item.ReceivedAt = nil
	}

	if err := c.periods.SaveIncomePeriod(ctx, p); err != nil {
		return fmt.Errorf("toggle %s: %w", itemID, err)
	}
	metrics.ItemTransitions.WithLabelValues(string(core.SideIncome), string(next)).Inc()
	slog.InfoContext(ctx, "Income item toggled",
		"period", period,
		"item_id", itemID,
		"status", next)
	return nil
}

// UpdateIncomeAmount is UpdateExpenseAmount for the income side.
func (c *ItemLifecycle) UpdateIncomeAmount(ctx context.Context, period core.PeriodKey, itemID string, amount decimal.Decimal, persistAsDefault bool) (core.IncomeItem, error) {
	if amount.IsNegative() {
		return core.IncomeItem{}, core.ErrInvalidAmount
	}
	amount = amount.Round(2)

	unlock := c.periods.lock(core.SideIncome, period)
	defer unlock()

	p, err := c.periods.EnsureIncomePeriod(ctx, period)
	if err != nil {
		return core.IncomeItem{}, err
	}
	idx := p.FindItem(itemID)
	if idx < 0 {
		return core.IncomeItem{}, fmt.Errorf("%w: %s in %s", core.ErrItemNotFound, itemID, period)
	}

	tpl, err := c.defaultTarget(ctx, core.SideIncome, p.Items[idx].TemplateID, persistAsDefault)
	if err != nil {
		return core.IncomeItem{}, err
	}

	p.Items[idx].Amount = amount
	if err := c.periods.SaveIncomePeriod(ctx, p); err != nil {
		return core.IncomeItem{}, fmt.Errorf("update amount %s: %w", itemID, err)
	}
	if err := c.persistDefault(ctx, tpl, amount); err != nil {
		return core.IncomeItem{}, err
	}
	return p.Items[idx], nil
}

// AddExtra appends an ad hoc income entry to period. A zero date means now.
func (c *ItemLifecycle) AddExtra(ctx context.Context, period core.PeriodKey, e core.ExtraEntry) (core.ExtraEntry, error) {
	now := c.now().UTC()
	e.Description = strings.TrimSpace(e.Description)
	e.Amount = e.Amount.Round(2)
	if e.Date.IsZero() {
		e.Date = now
	}
	if err := e.Validate(); err != nil {
		return core.ExtraEntry{}, err
	}
	e.ID = uuid.NewString()
	e.CreatedAt = now

	unlock := c.periods.lock(core.SideIncome, period)
	defer unlock()

	p, err := c.periods.EnsureIncomePeriod(ctx, period)
	if err != nil {
		return core.ExtraEntry{}, err
	}
	p.Extras = append(p.Extras, e)
	if err := c.periods.SaveIncomePeriod(ctx, p); err != nil {
		return core.ExtraEntry{}, fmt.Errorf("add extra: %w", err)
	}
	slog.InfoContext(ctx, "Extra added", "period", period, "extra_id", e.ID)
	return e, nil
}

// EditExtra replaces description, amount and date of an existing entry. A
// zero date keeps the entry's current one.
func (c *ItemLifecycle) EditExtra(ctx context.Context, period core.PeriodKey, e core.ExtraEntry) (core.ExtraEntry, error) {
	e.Description = strings.TrimSpace(e.Description)
	e.Amount = e.Amount.Round(2)

	unlock := c.periods.lock(core.SideIncome, period)
	defer unlock()

	p, err := c.periods.EnsureIncomePeriod(ctx, period)
	if err != nil {
		return core.ExtraEntry{}, err
	}
	idx := p.FindExtra(e.ID)
	if idx < 0 {
		return core.ExtraEntry{}, fmt.Errorf("%w: %s in %s", core.ErrExtraNotFound, e.ID, period)
	}
	if e.Date.IsZero() {
		e.Date = p.Extras[idx].Date
	}
	if err := e.Validate(); err != nil {
		return core.ExtraEntry{}, err
	}
	e.CreatedAt = p.Extras[idx].CreatedAt
	p.Extras[idx] = e
	if err := c.periods.SaveIncomePeriod(ctx, p); err != nil {
		return core.ExtraEntry{}, fmt.Errorf("edit extra: %w", err)
	}
	return e, nil
}

// DeleteExtra removes an entry; unknown ids are ignored.
func (c *ItemLifecycle) DeleteExtra(ctx context.Context, period core.PeriodKey, extraID string) error {
	unlock := c.periods.lock(core.SideIncome, period)
	defer unlock()

	p, err := c.periods.EnsureIncomePeriod(ctx, period)
	if err != nil {
		return err
	}
	idx := p.FindExtra(extraID)
	if idx < 0 {
		return nil
	}
	p.Extras = append(p.Extras[:idx], p.Extras[idx+1:]...)
	if err := c.periods.SaveIncomePeriod(ctx, p); err != nil {
		return fmt.Errorf("delete extra: %w", err)
	}
	slog.InfoContext(ctx, "Extra deleted", "period", period, "extra_id", extraID)
	return nil
}
