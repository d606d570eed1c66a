package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"fisse/internal/core"
	"fisse/internal/ledger"
)

// DefaultDuplicateTolerance is how far apart two otherwise equal extras may
// be dated and still count as the same entry.
const DefaultDuplicateTolerance = time.Minute

// MigrationReport counts what one migration run did.
type MigrationReport struct {
	Scanned           int `json:"scanned"`
	TemplatesCreated  int `json:"templatesCreated"`
	TemplatesExisting int `json:"templatesExisting"`
	ExtrasCreated     int `json:"extrasCreated"`
	ExtrasDuplicate   int `json:"extrasDuplicate"`
	Ignored           int `json:"ignored"`
}

// LegacyMigration imports pre-template ledger history: recurring entries
// become templates, one-off income entries become extras of their period.
// Running it again creates nothing new.
type LegacyMigration struct {
	templates *TemplateRegistry
	lifecycle *ItemLifecycle
	tolerance time.Duration
}

func NewLegacyMigration(templates *TemplateRegistry, lifecycle *ItemLifecycle) *LegacyMigration {
	return &LegacyMigration{
		templates: templates,
		lifecycle: lifecycle,
		tolerance: DefaultDuplicateTolerance,
	}
}

// WithTolerance overrides DefaultDuplicateTolerance.
func (m *LegacyMigration) WithTolerance(d time.Duration) *LegacyMigration {
	m.tolerance = d
	return m
}

func (m *LegacyMigration) Run(ctx context.Context, source ledger.HistorySource) (MigrationReport, error) {
	var report MigrationReport
	history, err := source.ListLegacy(ctx)
	if err != nil {
		return report, fmt.Errorf("list legacy history: %w", err)
	}
	report.Scanned = len(history)

	// oldest first, so templates are created from the first matching entry
	sort.SliceStable(history, func(i, j int) bool { return history[i].Date.Before(history[j].Date) })

	extras := map[core.PeriodKey][]core.LedgerTransaction{}
	var recurring []core.LedgerTransaction
	for _, tx := range history {
		switch {
		case strings.TrimSpace(tx.Description) == "" || tx.Side.Validate() != nil:
			report.Ignored++
		case tx.Recurring:
			recurring = append(recurring, tx)
		case tx.Side == core.SideIncome:
			p := core.PeriodOf(tx.Date.UTC())
			extras[p] = append(extras[p], tx)
		default:
			// one-off expenses stay in the ledger only
			report.Ignored++
		}
	}

	if err := m.migrateTemplates(ctx, recurring, &report); err != nil {
		return report, err
	}

	periods := make([]core.PeriodKey, 0, len(extras))
	for p := range extras {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i] < periods[j] })
	for _, p := range periods {
		created, dup, err := m.lifecycle.importExtras(ctx, p, extras[p], m.tolerance)
		if err != nil {
			return report, err
		}
		report.ExtrasCreated += created
		report.ExtrasDuplicate += dup
	}

	slog.InfoContext(ctx, "Legacy migration completed",
		"scanned", report.Scanned,
		"templates_created", report.TemplatesCreated,
		"templates_existing", report.TemplatesExisting,
		"extras_created", report.ExtrasCreated,
		"extras_duplicate", report.ExtrasDuplicate,
		"ignored", report.Ignored)
	return report, nil
}

func (m *LegacyMigration) migrateTemplates(ctx context.Context, recurring []core.LedgerTransaction, report *MigrationReport) error {
	known := map[core.Side]map[string]bool{}
	for _, side := range []core.Side{core.SideExpense, core.SideIncome} {
		existing, err := m.templates.List(ctx, side)
		if err != nil {
			return err
		}
		names := make(map[string]bool, len(existing))
		for _, t := range existing {
			names[core.NormalizeName(t.DisplayName)] = true
		}
		known[side] = names
	}

	for _, tx := range recurring {
		name := core.NormalizeName(tx.Description)
		if known[tx.Side][name] {
			report.TemplatesExisting++
			continue
		}
		t, err := m.templates.Upsert(ctx, templateFromHistory(tx))
		if err != nil {
			return fmt.Errorf("create template from %q: %w", tx.Description, err)
		}
		known[tx.Side][name] = true
		report.TemplatesCreated++
		slog.DebugContext(ctx, "Template created from history",
			"template_id", t.ID,
			"name", t.DisplayName,
			"side", t.Side)
	}
	return nil
}

func templateFromHistory(tx core.LedgerTransaction) core.Template {
	cadence := tx.Cadence
	if cadence.Validate() != nil {
		cadence = core.Monthly
	}
	anchor := tx.Date.Day()
	if cadence == core.Weekly {
		anchor = isoWeekday(tx.Date)
	}
	amount := tx.Amount
	if amount.IsNegative() {
		amount = amount.Neg()
	}
	return core.Template{
		Side:          tx.Side,
		DisplayName:   strings.Join(strings.Fields(tx.Description), " "),
		DefaultAmount: amount,
		Category:      tx.Category,
		Active:        true,
		Cadence:       cadence,
		AnchorDay:     anchor,
	}
}

// isoWeekday maps Monday..Sunday to 1..7.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// importExtras adds history entries as extras of period, skipping entries
// already present. A period that does not exist yet is materialized first,
// so it holds the items of the templates active now.
func (c *ItemLifecycle) importExtras(ctx context.Context, period core.PeriodKey, history []core.LedgerTransaction, tolerance time.Duration) (created, duplicate int, err error) {
	unlock := c.periods.lock(core.SideIncome, period)
	defer unlock()

	p, err := c.periods.EnsureIncomePeriod(ctx, period)
	if err != nil {
		return 0, 0, err
	}

	now := c.now().UTC()
	for _, tx := range history {
		entry := core.ExtraEntry{
			ID:          tx.ID,
			Description: strings.TrimSpace(tx.Description),
			Amount:      tx.Amount.Abs().Round(2),
			Date:        tx.Date,
			CreatedAt:   now,
		}
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if hasDuplicateExtra(p.Extras, entry, tolerance) {
			duplicate++
			continue
		}
		p.Extras = append(p.Extras, entry)
		created++
	}

	if created == 0 {
		return 0, duplicate, nil
	}
	if err := c.periods.SaveIncomePeriod(ctx, p); err != nil {
		return 0, duplicate, fmt.Errorf("save migrated extras for %s: %w", period, err)
	}
	return created, duplicate, nil
}

func hasDuplicateExtra(extras []core.ExtraEntry, e core.ExtraEntry, tolerance time.Duration) bool {
	name := core.NormalizeName(e.Description)
	for _, x := range extras {
		if core.NormalizeName(x.Description) != name || !core.AmountsEqual(x.Amount, e.Amount) {
			continue
		}
		diff := x.Date.Sub(e.Date)
		if diff < 0 {
			diff = -diff
		}
		if diff <= tolerance {
			return true
		}
	}
	return false
}
