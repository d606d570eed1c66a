package sheets

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fisse/internal/core"
)

// Column layout of the ledger tab.
const (
	colID = iota
	colDate
	colSide
	colDescription
	colAmount
	colCategory
	colTemplateID
	colItemID
	colPeriod
	colRecurring
	colCadence
	colCreatedAt
	numColumns
)

const lastColumn = "L"

const dateLayout = "2006-01-02"

func formatRow(tx core.LedgerTransaction) []any {
	row := make([]any, numColumns)
	row[colID] = tx.ID
	row[colDate] = tx.Date.UTC().Format(dateLayout)
	row[colSide] = string(tx.Side)
	row[colDescription] = tx.Description
	row[colAmount] = tx.Amount.StringFixed(2)
	row[colCategory] = tx.Category
	row[colTemplateID] = tx.TemplateID
	row[colItemID] = tx.ItemID
	row[colPeriod] = string(tx.Period)
	row[colRecurring] = strconv.FormatBool(tx.Recurring)
	row[colCadence] = string(tx.Cadence)
	created := ""
	if !tx.CreatedAt.IsZero() {
		created = tx.CreatedAt.UTC().Format(time.RFC3339)
	}
	row[colCreatedAt] = created
	return row
}

// parseRow reads one row. Header rows, blanked rows and rows without a
// valid date or amount are rejected.
func parseRow(cols []string) (core.LedgerTransaction, bool) {
	if len(cols) <= colAmount || cols[colID] == "" {
		return core.LedgerTransaction{}, false
	}
	date, err := time.Parse(dateLayout, cols[colDate])
	if err != nil {
		return core.LedgerTransaction{}, false
	}
	amount, err := parseAmount(cols[colAmount])
	if err != nil {
		return core.LedgerTransaction{}, false
	}
	tx := core.LedgerTransaction{
		ID:          cols[colID],
		Side:        core.Side(safeGet(cols, colSide)),
		Description: safeGet(cols, colDescription),
		Amount:      amount,
		Date:        date,
		Category:    safeGet(cols, colCategory),
		TemplateID:  safeGet(cols, colTemplateID),
		ItemID:      safeGet(cols, colItemID),
		Period:      core.PeriodKey(safeGet(cols, colPeriod)),
		Cadence:     core.Cadence(safeGet(cols, colCadence)),
	}
	tx.Recurring, _ = strconv.ParseBool(safeGet(cols, colRecurring))
	if created := safeGet(cols, colCreatedAt); created != "" {
		tx.CreatedAt, _ = time.Parse(time.RFC3339, created)
	}
	return tx, true
}

// parseAmount accepts both "12.34" and the "12,34" a localized sheet renders.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	return decimal.NewFromString(s)
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
