package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fisse/internal/core"
	"fisse/internal/ledger"
)

// fakeValues stores the tab in memory the way the Sheets API returns it.
type fakeValues struct {
	rows    [][]any
	getErr  error
	cleared []string
}

func (f *fakeValues) get(_ context.Context, _ string) ([][]any, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.rows, nil
}

func (f *fakeValues) append(_ context.Context, _ string, rows [][]any) error {
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeValues) clear(_ context.Context, rng string) error {
	f.cleared = append(f.cleared, rng)
	var row int
	_, err := fmt.Sscanf(rng[strings.Index(rng, "!A")+2:], "%d", &row)
	if err != nil {
		return err
	}
	f.rows[row-1] = []any{}
	return nil
}

func newTestClient() (*Client, *fakeValues) {
	api := &fakeValues{rows: [][]any{
		{"ID", "Date", "Side", "Description", "Amount", "Category", "Template", "Item", "Period", "Recurring", "Cadence", "Created"},
	}}
	return &Client{api: api, sheet: "Transactions"}, api
}

func TestParseRow(t *testing.T) {
	tests := []struct {
		name   string
		cols   []string
		ok     bool
		amount string
	}{
		{"header", []string{"ID", "Date", "Side", "Description", "Amount"}, false, ""},
		{"blanked", []string{}, false, ""},
		{"dot decimal", []string{"t1", "2025-03-01", "expense", "Rent", "800.50"}, true, "800.5"},
		{"comma decimal", []string{"t2", "2025-03-01", "expense", "Rent", "800,50"}, true, "800.5"},
		{"bad amount", []string{"t3", "2025-03-01", "expense", "Rent", "abc"}, false, ""},
		{"bad date", []string{"t4", "01/03/2025", "expense", "Rent", "1"}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, ok := parseRow(tt.cols)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tx.Amount.Equal(decimal.RequireFromString(tt.amount)), "got %s", tx.Amount)
			}
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	in := core.LedgerTransaction{
		ID:          "t1",
		Side:        core.SideIncome,
		Amount:      decimal.RequireFromString("2500"),
		Category:    "Work",
		Description: "Salary",
		Date:        time.Date(2025, 3, 27, 0, 0, 0, 0, time.UTC),
		TemplateID:  "salary",
		ItemID:      "salary_2025-03",
		Period:      "2025-03",
		CreatedAt:   time.Date(2025, 3, 27, 9, 0, 0, 0, time.UTC),
	}
	out, ok := parseRow(toStrings(formatRow(in)))
	require.True(t, ok)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.ItemID, out.ItemID)
	assert.Equal(t, in.Period, out.Period)
	assert.True(t, in.Date.Equal(out.Date))
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.True(t, in.Amount.Equal(out.Amount))
}

func TestClientCreateFindDelete(t *testing.T) {
	ctx := context.Background()
	c, api := newTestClient()

	id, err := c.Create(ctx, core.LedgerTransaction{
		Side:        core.SideExpense,
		Amount:      decimal.NewFromInt(800),
		Description: "Rent",
		Date:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		ItemID:      "rent_2025-03",
		Period:      "2025-03",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	found, err := c.FindByItem(ctx, "2025-03", "rent_2025-03")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, id, found.ID)

	require.NoError(t, c.Delete(ctx, id))
	assert.Equal(t, []string{"Transactions!A2:L2"}, api.cleared)

	found, err = c.FindByItem(ctx, "2025-03", "rent_2025-03")
	require.NoError(t, err)
	assert.Nil(t, found)

	err = c.Delete(ctx, id)
	assert.True(t, errors.Is(err, ledger.ErrTransactionNotFound))
}

func TestClientListLegacy(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient()

	for _, tx := range []core.LedgerTransaction{
		{ID: "b", Description: "Netflix", Amount: decimal.NewFromInt(12), Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Recurring: true, Cadence: core.Monthly},
		{ID: "a", Description: "Netflix", Amount: decimal.NewFromInt(12), Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Recurring: true, Cadence: core.Monthly},
		{ID: "c", Description: "Rent", Amount: decimal.NewFromInt(800), Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), ItemID: "rent_2025-01", Period: "2025-01"},
	} {
		_, err := c.Create(ctx, tx)
		require.NoError(t, err)
	}

	got, err := c.ListLegacy(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.True(t, got[0].Recurring)
	assert.Equal(t, core.Monthly, got[0].Cadence)
	assert.Equal(t, "b", got[1].ID)
}

func TestClientReadError(t *testing.T) {
	c, api := newTestClient()
	api.getErr = errors.New("quota exceeded")

	_, err := c.FindByItem(context.Background(), "2025-03", "x")
	assert.ErrorContains(t, err, "quota exceeded")
}
