package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fisse/internal/core"
	"fisse/internal/ledger"
	"fisse/internal/log"
	"fisse/internal/metrics"
)

// ItemLifecycle moves materialized items between statuses and keeps the
// ledger in step with paid expenses.
//
// Pay and undo touch two stores with no shared transaction. Each runs the
// repair step for its item first, so a previous partial attempt is healed
// before a new one starts.
type ItemLifecycle struct {
	periods   *PeriodMaterializer
	templates *TemplateRegistry
	ledger    ledger.Ledger
	now       func() time.Time
}

func NewItemLifecycle(periods *PeriodMaterializer, templates *TemplateRegistry, l ledger.Ledger) *ItemLifecycle {
	return &ItemLifecycle{
		periods:   periods,
		templates: templates,
		ledger:    l,
		now:       time.Now,
	}
}

// Pay records the expense in the ledger and marks the item paid. A nil
// actual pays the item's current amount. Paying an already paid item
// returns it unchanged.
func (c *ItemLifecycle) Pay(ctx context.Context, period core.PeriodKey, itemID string, actual *decimal.Decimal) (core.ExpenseItem, error) {
	amount, err := optionalAmount(actual)
	if err != nil {
		return core.ExpenseItem{}, err
	}
	unlock := c.periods.lock(core.SideExpense, period)
	defer unlock()

	p, idx, err := c.loadExpenseItem(ctx, period, itemID)
	if err != nil {
		return core.ExpenseItem{}, err
	}
	if idx < 0 {
		return core.ExpenseItem{}, fmt.Errorf("%w: %s in %s", core.ErrItemNotFound, itemID, period)
	}
	if err := c.repairItem(ctx, &p, idx); err != nil {
		return core.ExpenseItem{}, err
	}

	item := p.Items[idx]
	if item.Status == core.ExpensePaid {
		return item, nil
	}
	next, err := item.Status.Transition(core.ExpensePaid)
	if err != nil {
		return core.ExpenseItem{}, err
	}
	if amount == nil {
		amount = &item.Amount
	}

	now := c.now().UTC()
	txID, err := c.ledger.Create(ctx, core.LedgerTransaction{
		Side:        core.SideExpense,
		Amount:      *amount,
		Category:    item.Category,
		Description: item.NameSnapshot,
		Date:        now,
		TemplateID:  item.TemplateID,
		ItemID:      item.ID,
		Period:      period,
		CreatedAt:   now,
	})
	if err != nil {
		return core.ExpenseItem{}, fmt.Errorf("create ledger transaction: %w", err)
	}

	item.Status = next
	item.Amount = *amount
	item.LinkedTransactionID = &txID
	item.StatusChangedAt = &now
	p.Items[idx] = item

	if err := c.periods.SaveExpensePeriod(ctx, p); err != nil {
		c.reportPartial(ctx, log.OpPay, period, itemID, txID, err)
		return core.ExpenseItem{}, fmt.Errorf("pay %s: %w", itemID, err)
	}

	metrics.ItemTransitions.WithLabelValues(string(core.SideExpense), string(next)).Inc()
	slog.InfoContext(ctx, "Item paid",
		"period", period,
		"item_id", itemID,
		"amount", item.Amount.StringFixed(2),
		"transaction_id", txID)
	return item, nil
}

// Undo deletes the linked ledger transaction and returns the item to
// pending. The amount keeps the value last paid. Undoing a pending item
// returns it unchanged.
func (c *ItemLifecycle) Undo(ctx context.Context, period core.PeriodKey, itemID string) (core.ExpenseItem, error) {
	unlock := c.periods.lock(core.SideExpense, period)
	defer unlock()

	p, idx, err := c.loadExpenseItem(ctx, period, itemID)
	if err != nil {
		return core.ExpenseItem{}, err
	}
	if idx < 0 {
		return core.ExpenseItem{}, fmt.Errorf("%w: %s in %s", core.ErrItemNotFound, itemID, period)
	}
	if err := c.repairItem(ctx, &p, idx); err != nil {
		return core.ExpenseItem{}, err
	}

	item := p.Items[idx]
	if item.Status == core.ExpensePending {
		return item, nil
	}
	next, err := item.Status.Transition(core.ExpensePending)
	if err != nil {
		return core.ExpenseItem{}, err
	}
	if item.LinkedTransactionID == nil {
		return core.ExpenseItem{}, fmt.Errorf("%w: %s", core.ErrNotLinked, itemID)
	}

	txID := *item.LinkedTransactionID
	if err := c.ledger.Delete(ctx, txID); err != nil && !isTransactionNotFound(err) {
		return core.ExpenseItem{}, fmt.Errorf("delete ledger transaction %s: %w", txID, err)
	}

	item.Status = next
	item.LinkedTransactionID = nil
	item.StatusChangedAt = nil
	p.Items[idx] = item

	if err := c.periods.SaveExpensePeriod(ctx, p); err != nil {
		c.reportPartial(ctx, log.OpUndo, period, itemID, txID, err)
		return core.ExpenseItem{}, fmt.Errorf("undo %s: %w", itemID, err)
	}

	metrics.ItemTransitions.WithLabelValues(string(core.SideExpense), string(next)).Inc()
	slog.InfoContext(ctx, "Item payment undone",
		"period", period,
		"item_id", itemID,
		"transaction_id", txID)
	return item, nil
}

// Skip marks a pending item skipped for the period. Unknown and already
// skipped items are left alone.
func (c *ItemLifecycle) Skip(ctx context.Context, period core.PeriodKey, itemID string) error {
	unlock := c.periods.lock(core.SideExpense, period)
	defer unlock()

	p, idx, err := c.loadExpenseItem(ctx, period, itemID)
	if err != nil {
		return err
	}
	if idx < 0 || p.Items[idx].Status == core.ExpenseSkipped {
		return nil
	}
	next, err := p.Items[idx].Status.Transition(core.ExpenseSkipped)
	if err != nil {
		return err
	}

	now := c.now().UTC()
	p.Items[idx].Status = next
	p.Items[idx].StatusChangedAt = &now
	if err := c.periods.SaveExpensePeriod(ctx, p); err != nil {
		return fmt.Errorf("skip %s: %w", itemID, err)
	}

	metrics.ItemTransitions.WithLabelValues(string(core.SideExpense), string(next)).Inc()
	slog.InfoContext(ctx, "Item skipped", "period", period, "item_id", itemID)
	return nil
}

// UpdateExpenseAmount changes the item's amount for this period only. With
// persistAsDefault the template default changes too, which affects periods
// materialized later and nothing already materialized.
func (c *ItemLifecycle) UpdateExpenseAmount(ctx context.Context, period core.PeriodKey, itemID string, amount decimal.Decimal, persistAsDefault bool) (core.ExpenseItem, error) {
	if amount.IsNegative() {
		return core.ExpenseItem{}, core.ErrInvalidAmount
	}
	amount = amount.Round(2)

	unlock := c.periods.lock(core.SideExpense, period)
	defer unlock()

	p, idx, err := c.loadExpenseItem(ctx, period, itemID)
	if err != nil {
		return core.ExpenseItem{}, err
	}
	if idx < 0 {
		return core.ExpenseItem{}, fmt.Errorf("%w: %s in %s", core.ErrItemNotFound, itemID, period)
	}

	tpl, err := c.defaultTarget(ctx, core.SideExpense, p.Items[idx].TemplateID, persistAsDefault)
	if err != nil {
		return core.ExpenseItem{}, err
	}

	p.Items[idx].Amount = amount
	if err := c.periods.SaveExpensePeriod(ctx, p); err != nil {
		return core.ExpenseItem{}, fmt.Errorf("update amount %s: %w", itemID, err)
	}
	if err := c.persistDefault(ctx, tpl, amount); err != nil {
		return core.ExpenseItem{}, err
	}
	return p.Items[idx], nil
}

// defaultTarget loads the template whose default an amount update will
// change, before anything is written. It returns nil when persist is false.
func (c *ItemLifecycle) defaultTarget(ctx context.Context, side core.Side, templateID string, persist bool) (*core.Template, error) {
	if !persist {
		return nil, nil
	}
	t, err := c.templates.Get(ctx, side, templateID)
	if err != nil {
		return nil, fmt.Errorf("persist default amount: %w", err)
	}
	return &t, nil
}

func (c *ItemLifecycle) persistDefault(ctx context.Context, t *core.Template, amount decimal.Decimal) error {
	if t == nil {
		return nil
	}
	t.DefaultAmount = amount
	if _, err := c.templates.Upsert(ctx, *t); err != nil {
		return fmt.Errorf("persist default amount: %w", err)
	}
	return nil
}

func (c *ItemLifecycle) loadExpenseItem(ctx context.Context, period core.PeriodKey, itemID string) (core.ExpensePeriod, int, error) {
	p, err := c.periods.EnsureExpensePeriod(ctx, period)
	if err != nil {
		return core.ExpensePeriod{}, -1, err
	}
	return p, p.FindItem(itemID), nil
}

func (c *ItemLifecycle) reportPartial(ctx context.Context, operation string, period core.PeriodKey, itemID, txID string, err error) {
	metrics.Inconsistencies.WithLabelValues(operation).Inc()
	fields := log.NewFields().
		WithComponent(log.ComponentLifecycle).
		WithOperation(operation).
		WithItem(core.SideExpense, period, itemID).
		WithError(err).
		Critical()
	fields[log.FieldTxID] = txID
	slog.ErrorContext(ctx, "Ledger and item out of step, repair pending", fields.ToSlice()...)
}

func optionalAmount(d *decimal.Decimal) (*decimal.Decimal, error) {
	if d == nil {
		return nil, nil
	}
	if d.IsNegative() {
		return nil, core.ErrInvalidAmount
	}
	rounded := d.Round(2)
	return &rounded, nil
}

// periodLocks serializes read-modify-write cycles on one period document.
type periodLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *periodLocks) lock(side core.Side, period core.PeriodKey) func() {
	key := string(side) + "/" + string(period)
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
