package core

import "github.com/shopspring/decimal"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// PeriodSummary is a compact overview of one side of a period.
type PeriodSummary struct {
	Period     PeriodKey        `json:"period"`
	Side       Side             `json:"side"`
	Total      decimal.Decimal  `json:"total"`
	Settled    decimal.Decimal  `json:"settled"` // paid or received
	Pending    decimal.Decimal  `json:"pending"`
	Skipped    decimal.Decimal  `json:"skipped"`
	Extras     decimal.Decimal  `json:"extras"`
	ByCategory []CategoryAmount `json:"byCategory"`
}

// SummarizeExpenses totals an expense period by status and category.
func SummarizeExpenses(p ExpensePeriod) PeriodSummary {
	s := PeriodSummary{Period: p.Period, Side: SideExpense}
	byCat := newCategoryTotals()
	for _, it := range p.Items {
		switch it.Status {
		case ExpensePaid:
			s.Settled = s.Settled.Add(it.Amount)
		case ExpenseSkipped:
			s.Skipped = s.Skipped.Add(it.Amount)
			continue
		default:
			s.Pending = s.Pending.Add(it.Amount)
		}
		s.Total = s.Total.Add(it.Amount)
		byCat.add(it.Category, it.Amount)
	}
	s.ByCategory = byCat.list()
	return s
}

// SummarizeIncome totals an income period, extras included.
func SummarizeIncome(p IncomePeriod) PeriodSummary {
	s := PeriodSummary{Period: p.Period, Side: SideIncome}
	byCat := newCategoryTotals()
	for _, it := range p.Items {
		if it.Status == IncomeReceived {
			s.Settled = s.Settled.Add(it.Amount)
		} else {
			s.Pending = s.Pending.Add(it.Amount)
		}
		s.Total = s.Total.Add(it.Amount)
		byCat.add(it.Category, it.Amount)
	}
	for _, ex := range p.Extras {
		s.Extras = s.Extras.Add(ex.Amount)
		s.Total = s.Total.Add(ex.Amount)
	}
	s.ByCategory = byCat.list()
	return s
}

type categoryTotals struct {
	order  []string
	totals map[string]decimal.Decimal
}

func newCategoryTotals() *categoryTotals {
	return &categoryTotals{totals: map[string]decimal.Decimal{}}
}

func (c *categoryTotals) add(name string, amount decimal.Decimal) {
	if name == "" {
		name = "(uncategorized)"
	}
	if _, seen := c.totals[name]; !seen {
		c.order = append(c.order, name)
	}
	c.totals[name] = c.totals[name].Add(amount)
}

// list preserves first-seen order
func (c *categoryTotals) list() []CategoryAmount {
	out := make([]CategoryAmount, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, CategoryAmount{Name: name, Amount: c.totals[name]})
	}
	return out
}
