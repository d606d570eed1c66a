package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"fisse/internal/core"
	"fisse/internal/metrics"
	"fisse/internal/store"
)

// PeriodMaterializer creates period documents from templates exactly once per
// period and side. Existing documents are returned unchanged.
type PeriodMaterializer struct {
	store     *store.Adapter
	templates *TemplateRegistry
	group     singleflight.Group
	locks     periodLocks
	now       func() time.Time
}

func NewPeriodMaterializer(s *store.Adapter, templates *TemplateRegistry) *PeriodMaterializer {
	return &PeriodMaterializer{store: s, templates: templates, now: time.Now}
}

// EnsureExpensePeriod returns the expense document for period, creating it
// from the active expense templates if it does not exist yet.
func (m *PeriodMaterializer) EnsureExpensePeriod(ctx context.Context, period core.PeriodKey) (core.ExpensePeriod, error) {
	if err := period.Validate(); err != nil {
		return core.ExpensePeriod{}, err
	}
	v, err, _ := m.group.Do(string(core.SideExpense)+"/"+string(period), func() (any, error) {
		p, found, err := m.LoadExpensePeriod(ctx, period)
		if err != nil || found {
			return p, err
		}
		templates, err := m.templates.Active(ctx, core.SideExpense)
		if err != nil {
			return core.ExpensePeriod{}, err
		}
		return m.createExpensePeriod(ctx, period, templates)
	})
	if err != nil {
		return core.ExpensePeriod{}, err
	}
	return v.(core.ExpensePeriod), nil
}

// EnsureIncomePeriod is EnsureExpensePeriod for the income side.
func (m *PeriodMaterializer) EnsureIncomePeriod(ctx context.Context, period core.PeriodKey) (core.IncomePeriod, error) {
	if err := period.Validate(); err != nil {
		return core.IncomePeriod{}, err
	}
	v, err, _ := m.group.Do(string(core.SideIncome)+"/"+string(period), func() (any, error) {
		p, found, err := m.LoadIncomePeriod(ctx, period)
		if err != nil || found {
			return p, err
		}
		templates, err := m.templates.Active(ctx, core.SideIncome)
		if err != nil {
			return core.IncomePeriod{}, err
		}
		return m.createIncomePeriod(ctx, period, templates)
	})
	if err != nil {
		return core.IncomePeriod{}, err
	}
	return v.(core.IncomePeriod), nil
}

// lock serializes read-modify-write cycles on one period document. Ensure*
// does not take it, so holders may materialize the period they locked.
func (m *PeriodMaterializer) lock(side core.Side, period core.PeriodKey) func() {
	return m.locks.lock(side, period)
}

// RegenerateExpensePeriod materializes period from a caller-supplied template
// snapshot instead of reading the registry. With force set, an existing
// document is discarded and rebuilt, losing any item state it held.
func (m *PeriodMaterializer) RegenerateExpensePeriod(ctx context.Context, period core.PeriodKey, templates []core.Template, force bool) (core.ExpensePeriod, error) {
	if err := period.Validate(); err != nil {
		return core.ExpensePeriod{}, err
	}
	unlock := m.lock(core.SideExpense, period)
	defer unlock()

	collection := core.SideExpense.PeriodsCollection()
	if force {
		m.store.Forget(collection, string(period))
	} else {
		p, found, err := m.LoadExpensePeriod(ctx, period)
		if err != nil || found {
			return p, err
		}
	}
	return m.createExpensePeriod(ctx, period, activeOnly(templates, core.SideExpense))
}

func (m *PeriodMaterializer) RegenerateIncomePeriod(ctx context.Context, period core.PeriodKey, templates []core.Template, force bool) (core.IncomePeriod, error) {
	if err := period.Validate(); err != nil {
		return core.IncomePeriod{}, err
	}
	unlock := m.lock(core.SideIncome, period)
	defer unlock()

	collection := core.SideIncome.PeriodsCollection()
	if force {
		m.store.Forget(collection, string(period))
	} else {
		p, found, err := m.LoadIncomePeriod(ctx, period)
		if err != nil || found {
			return p, err
		}
	}
	return m.createIncomePeriod(ctx, period, activeOnly(templates, core.SideIncome))
}

// LoadExpensePeriod reads the expense document without materializing it.
func (m *PeriodMaterializer) LoadExpensePeriod(ctx context.Context, period core.PeriodKey) (core.ExpensePeriod, bool, error) {
	var p core.ExpensePeriod
	found, err := m.store.Read(ctx, core.SideExpense.PeriodsCollection(), string(period), &p)
	if err != nil {
		return core.ExpensePeriod{}, false, fmt.Errorf("read expense period %s: %w", period, err)
	}
	return p, found, nil
}

func (m *PeriodMaterializer) LoadIncomePeriod(ctx context.Context, period core.PeriodKey) (core.IncomePeriod, bool, error) {
	var p core.IncomePeriod
	found, err := m.store.Read(ctx, core.SideIncome.PeriodsCollection(), string(period), &p)
	if err != nil {
		return core.IncomePeriod{}, false, fmt.Errorf("read income period %s: %w", period, err)
	}
	return p, found, nil
}

// SaveExpensePeriod writes p through the store.
func (m *PeriodMaterializer) SaveExpensePeriod(ctx context.Context, p core.ExpensePeriod) error {
	if err := m.store.Write(ctx, core.SideExpense.PeriodsCollection(), string(p.Period), p); err != nil {
		return fmt.Errorf("write expense period %s: %w", p.Period, err)
	}
	return nil
}

func (m *PeriodMaterializer) SaveIncomePeriod(ctx context.Context, p core.IncomePeriod) error {
	if err := m.store.Write(ctx, core.SideIncome.PeriodsCollection(), string(p.Period), p); err != nil {
		return fmt.Errorf("write income period %s: %w", p.Period, err)
	}
	return nil
}

func (m *PeriodMaterializer) createExpensePeriod(ctx context.Context, period core.PeriodKey, templates []core.Template) (core.ExpensePeriod, error) {
	p := core.ExpensePeriod{
		Period:        period,
		Items:         make([]core.ExpenseItem, 0, len(templates)),
		InitializedAt: m.now().UTC(),
	}
	for _, t := range templates {
		p.Items = append(p.Items, core.ExpenseItem{
			Item:   newItem(t, period),
			Status: core.ExpensePending,
		})
	}
	sort.SliceStable(p.Items, func(i, j int) bool { return itemLess(p.Items[i].Item, p.Items[j].Item) })

	if err := m.SaveExpensePeriod(ctx, p); err != nil {
		return core.ExpensePeriod{}, err
	}
	metrics.PeriodsMaterialized.WithLabelValues(string(core.SideExpense)).Inc()
	slog.InfoContext(ctx, "Period materialized",
		"side", core.SideExpense,
		"period", period,
		"items", len(p.Items))
	return p, nil
}

func (m *PeriodMaterializer) createIncomePeriod(ctx context.Context, period core.PeriodKey, templates []core.Template) (core.IncomePeriod, error) {
	p := core.IncomePeriod{
		Period:        period,
		Items:         make([]core.IncomeItem, 0, len(templates)),
		Extras:        []core.ExtraEntry{},
		InitializedAt: m.now().UTC(),
	}
	for _, t := range templates {
		p.Items = append(p.Items, core.IncomeItem{
			Item:   newItem(t, period),
			Status: core.IncomePending,
		})
	}
	sort.SliceStable(p.Items, func(i, j int) bool { return itemLess(p.Items[i].Item, p.Items[j].Item) })

	if err := m.SaveIncomePeriod(ctx, p); err != nil {
		return core.IncomePeriod{}, err
	}
	metrics.PeriodsMaterialized.WithLabelValues(string(core.SideIncome)).Inc()
	slog.InfoContext(ctx, "Period materialized",
		"side", core.SideIncome,
		"period", period,
		"items", len(p.Items))
	return p, nil
}

func newItem(t core.Template, period core.PeriodKey) core.Item {
	return core.Item{
		ID:           core.ItemID(t.ID, period),
		TemplateID:   t.ID,
		NameSnapshot: t.DisplayName,
		Category:     t.Category,
		Amount:       t.DefaultAmount,
		DueDate:      dueDateFor(t, period),
	}
}

func itemLess(a, b core.Item) bool {
	if !a.DueDate.Equal(b.DueDate) {
		return a.DueDate.Before(b.DueDate)
	}
	return a.NameSnapshot < b.NameSnapshot
}

// activeOnly also drops templates of the other side and duplicate ids, so a
// snapshot can never yield two items for one template.
func activeOnly(templates []core.Template, side core.Side) []core.Template {
	seen := make(map[string]struct{}, len(templates))
	out := make([]core.Template, 0, len(templates))
	for _, t := range templates {
		if !t.Active || (t.Side != "" && t.Side != side) {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}
