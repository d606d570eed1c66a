package core

import (
	"fmt"
	"time"
)

const periodLayout = "2006-01"

// PeriodKey identifies one calendar month as "YYYY-MM".
type PeriodKey string

// ParsePeriod validates s and returns it as a PeriodKey.
func ParsePeriod(s string) (PeriodKey, error) {
	t, err := time.Parse(periodLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return PeriodKey(t.Format(periodLayout)), nil
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) PeriodKey {
	return PeriodKey(t.Format(periodLayout))
}

func (p PeriodKey) Validate() error {
	_, err := ParsePeriod(string(p))
	return err
}

// Start returns midnight UTC of the first day of the period.
func (p PeriodKey) Start() time.Time {
	t, err := time.Parse(periodLayout, string(p))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// End returns the last instant of the period.
func (p PeriodKey) End() time.Time {
	return p.Start().AddDate(0, 1, 0).Add(-time.Nanosecond)
}

func (p PeriodKey) Year() int {
	return p.Start().Year()
}

func (p PeriodKey) Month() time.Month {
	return p.Start().Month()
}

// DaysIn returns the number of days in the period.
func (p PeriodKey) DaysIn() int {
	return p.Start().AddDate(0, 1, -1).Day()
}

func (p PeriodKey) Next() PeriodKey {
	return PeriodOf(p.Start().AddDate(0, 1, 0))
}

func (p PeriodKey) Prev() PeriodKey {
	return PeriodOf(p.Start().AddDate(0, -1, 0))
}

func (p PeriodKey) String() string {
	return string(p)
}
