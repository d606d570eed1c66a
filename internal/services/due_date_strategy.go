// Package services holds the recurring item engine: templates, period
// materialization, the item lifecycle, ledger repair, legacy migration and
// outbox sync.
//
// This file implements the Strategy Pattern for due dates. Each cadence has
// its own strategy that places a template's anchor day inside a period.
package services

import (
	"fmt"
	"time"

	"fisse/internal/core"
)

// DueDateStrategy computes when an item materialized in period falls due.
type DueDateStrategy interface {
	DueDate(period core.PeriodKey, anchorDay int) time.Time
}

// MonthlyDue places the item on anchorDay, clamped to the last day of the month.
type MonthlyDue struct{}

func (MonthlyDue) DueDate(period core.PeriodKey, anchorDay int) time.Time {
	return dayInPeriod(period, anchorDay)
}

// WeeklyDue places the item on the first occurrence of the anchor weekday
// (1 = Monday ... 7 = Sunday) in the period.
type WeeklyDue struct{}

func (WeeklyDue) DueDate(period core.PeriodKey, anchorDay int) time.Time {
	start := period.Start()
	if anchorDay < 1 || anchorDay > 7 {
		return start
	}
	target := time.Weekday(anchorDay % 7)
	offset := (int(target) - int(start.Weekday()) + 7) % 7
	return start.AddDate(0, 0, offset)
}

// YearlyDue behaves like MonthlyDue: yearly templates still get one item in
// every period, the cadence only describes how the amount is usually billed.
type YearlyDue struct{}

func (YearlyDue) DueDate(period core.PeriodKey, anchorDay int) time.Time {
	return dayInPeriod(period, anchorDay)
}

func dayInPeriod(period core.PeriodKey, anchorDay int) time.Time {
	start := period.Start()
	if anchorDay < 1 {
		return start
	}
	day := min(anchorDay, period.DaysIn())
	return start.AddDate(0, 0, day-1)
}

var dueDateStrategies = map[core.Cadence]DueDateStrategy{
	core.Weekly:  WeeklyDue{},
	core.Monthly: MonthlyDue{},
	core.Yearly:  YearlyDue{},
}

// GetDueDateStrategy returns the strategy for cadence.
func GetDueDateStrategy(cadence core.Cadence) (DueDateStrategy, error) {
	s, ok := dueDateStrategies[cadence]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidCadence, string(cadence))
	}
	return s, nil
}

// RegisterDueDateStrategy installs or replaces the strategy for cadence.
// Not safe for use concurrently with materialization.
func RegisterDueDateStrategy(cadence core.Cadence, s DueDateStrategy) {
	dueDateStrategies[cadence] = s
}

// dueDateFor falls back to the period start when the template carries an
// unknown cadence, which only happens with documents written by other clients.
func dueDateFor(t core.Template, period core.PeriodKey) time.Time {
	s, err := GetDueDateStrategy(t.Cadence)
	if err != nil {
		return period.Start()
	}
	return s.DueDate(period, t.AnchorDay)
}
