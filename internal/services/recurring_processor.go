package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fisse/internal/core"
)

// RolloverResult reports one ProcessRollover run.
type RolloverResult struct {
	Periods  []core.PeriodKey
	Repaired int
}

// RecurringProcessor keeps the current and the next period materialized on
// both sides so templates turn into items without anyone opening the period.
type RecurringProcessor struct {
	periods   *PeriodMaterializer
	lifecycle *ItemLifecycle
}

func NewRecurringProcessor(periods *PeriodMaterializer, lifecycle *ItemLifecycle) *RecurringProcessor {
	return &RecurringProcessor{
		periods:   periods,
		lifecycle: lifecycle,
	}
}

// ProcessRollover ensures the periods containing now and the month after,
// then runs the ledger repair pass over the current one. A failure on one
// period does not stop the others; all errors are returned joined.
func (p *RecurringProcessor) ProcessRollover(ctx context.Context, now time.Time) (RolloverResult, error) {
	if p.periods == nil || p.lifecycle == nil {
		return RolloverResult{}, fmt.Errorf("processor not properly initialized")
	}

	current := core.PeriodOf(now.UTC())
	targets := []core.PeriodKey{current, current.Next()}

	var (
		result RolloverResult
		errs   []error
	)
	for _, period := range targets {
		if _, err := p.periods.EnsureExpensePeriod(ctx, period); err != nil {
			slog.ErrorContext(ctx, "Failed to ensure expense period", "period", period, "error", err)
			errs = append(errs, fmt.Errorf("expense %s: %w", period, err))
			continue
		}
		if _, err := p.periods.EnsureIncomePeriod(ctx, period); err != nil {
			slog.ErrorContext(ctx, "Failed to ensure income period", "period", period, "error", err)
			errs = append(errs, fmt.Errorf("income %s: %w", period, err))
			continue
		}
		result.Periods = append(result.Periods, period)
	}

	report, err := p.lifecycle.RepairPeriod(ctx, current)
	if err != nil {
		slog.ErrorContext(ctx, "Repair pass failed", "period", current, "error", err)
		errs = append(errs, fmt.Errorf("repair %s: %w", current, err))
	}
	for _, n := range report.Repaired {
		result.Repaired += n
	}

	slog.InfoContext(ctx, "Period rollover complete",
		"periods", result.Periods,
		"repaired", result.Repaired,
		"processing_date", now.Format("2006-01-02"))

	return result, errors.Join(errs...)
}
