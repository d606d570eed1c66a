package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Weekly  Cadence = "weekly"
	Monthly Cadence = "monthly"
	Yearly  Cadence = "yearly"
)

const (
	SideExpense Side = "expense"
	SideIncome  Side = "income"
)

type (
	// Cadence is how often a template recurs.
	Cadence string

	// Side separates money going out from money coming in.
	Side string

	// Template is a user-declared recurring item definition.
	Template struct {
		ID            string          `json:"id"`
		Side          Side            `json:"side"`
		DisplayName   string          `json:"displayName"`
		DefaultAmount decimal.Decimal `json:"defaultAmount"`
		Category      string          `json:"category"`
		Active        bool            `json:"active"`
		Cadence       Cadence         `json:"cadence"`
		AnchorDay     int             `json:"anchorDay"` // day of month, or weekday 1-7 for weekly
		CreatedAt     time.Time       `json:"createdAt"`
		UpdatedAt     time.Time       `json:"updatedAt"`
	}

	// Item is the period-scoped part shared by expense and income items.
	Item struct {
		ID                  string          `json:"id"`
		TemplateID          string          `json:"templateId"`
		NameSnapshot        string          `json:"nameSnapshot"`
		Category            string          `json:"category"`
		Amount              decimal.Decimal `json:"amount"`
		DueDate             time.Time       `json:"dueDate"`
		StatusChangedAt     *time.Time      `json:"statusChangedAt,omitempty"`
		LinkedTransactionID *string         `json:"linkedTransactionId,omitempty"`
	}

	ExpenseItem struct {
		Item
		Status ExpenseStatus `json:"status"`
	}

	IncomeItem struct {
		Item
		Status     IncomeStatus `json:"status"`
		ReceivedAt *time.Time   `json:"receivedAt,omitempty"`
	}

	// ExtraEntry is an ad hoc income amount not tied to any template.
	ExtraEntry struct {
		ID          string          `json:"id"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Date        time.Time       `json:"date"`
		CreatedAt   time.Time       `json:"createdAt"`
	}

	ExpensePeriod struct {
		Period        PeriodKey     `json:"period"`
		Items         []ExpenseItem `json:"items"`
		InitializedAt time.Time     `json:"initializedAt"`
	}

	IncomePeriod struct {
		Period        PeriodKey    `json:"period"`
		Items         []IncomeItem `json:"items"`
		Extras        []ExtraEntry `json:"extras"`
		InitializedAt time.Time    `json:"initializedAt"`
	}

	// LedgerTransaction is the durable record of an actual money movement.
	LedgerTransaction struct {
		ID          string          `json:"id"`
		Side        Side            `json:"side"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		Description string          `json:"description"`
		Date        time.Time       `json:"date"`
		TemplateID  string          `json:"templateId,omitempty"`
		ItemID      string          `json:"itemId,omitempty"`
		Period      PeriodKey       `json:"period,omitempty"`
		CreatedAt   time.Time       `json:"createdAt"`

		// Legacy history only.
		Recurring bool    `json:"recurring,omitempty"`
		Cadence   Cadence `json:"cadence,omitempty"`
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidPeriod     = errors.New("invalid period")
	ErrInvalidCadence    = errors.New("invalid cadence")
	ErrInvalidSide       = errors.New("invalid side")
	ErrInvalidAnchorDay  = errors.New("invalid anchor day")
	ErrEmptyName         = errors.New("empty name")
	ErrEmptyDescription  = errors.New("empty description")
	ErrNameTooLong       = errors.New("name too long (max 200 characters)")
	ErrMissingDate       = errors.New("date cannot be zero")
	ErrTemplateNotFound  = errors.New("template not found")
	ErrItemNotFound      = errors.New("item not found")
	ErrExtraNotFound     = errors.New("extra entry not found")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotLinked         = errors.New("item has no linked transaction")
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	ErrNotAuthenticated  = errors.New("missing authentication context")
)

func (c Cadence) Validate() error {
	switch c {
	case Weekly, Monthly, Yearly:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCadence, string(c))
	}
}

func (s Side) Validate() error {
	switch s {
	case SideExpense, SideIncome:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSide, string(s))
	}
}

// TemplatesCollection returns the store collection holding templates for the side.
func (s Side) TemplatesCollection() string {
	return string(s) + "_templates"
}

// PeriodsCollection returns the store collection holding period documents for the side.
func (s Side) PeriodsCollection() string {
	return string(s) + "_periods"
}

func (t Template) Validate() error {
	if err := t.Side.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.DisplayName)) == 0 {
		return ErrEmptyName
	}
	if len(t.DisplayName) > 200 {
		return ErrNameTooLong
	}
	if t.DefaultAmount.IsNegative() {
		return ErrInvalidAmount
	}
	if err := t.Cadence.Validate(); err != nil {
		return err
	}
	maxDay := 31
	if t.Cadence == Weekly {
		maxDay = 7
	}
	// zero means "first day of the period"
	if t.AnchorDay < 0 || t.AnchorDay > maxDay {
		return ErrInvalidAnchorDay
	}
	return nil
}

func (e ExtraEntry) Validate() error {
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if e.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if e.Date.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// ItemID derives the idempotency key of the item materialized from templateID in period.
func ItemID(templateID string, period PeriodKey) string {
	return templateID + "_" + string(period)
}

// FindItem returns the index of the item with the given id, or -1.
func (p *ExpensePeriod) FindItem(id string) int {
	for i := range p.Items {
		if p.Items[i].ID == id {
			return i
		}
	}
	return -1
}

func (p *IncomePeriod) FindItem(id string) int {
	for i := range p.Items {
		if p.Items[i].ID == id {
			return i
		}
	}
	return -1
}

func (p *IncomePeriod) FindExtra(id string) int {
	for i := range p.Extras {
		if p.Extras[i].ID == id {
			return i
		}
	}
	return -1
}

// NormalizeName lowercases s and collapses every run of whitespace to one space.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
