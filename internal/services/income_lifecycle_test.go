package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fisse/internal/core"
)

func TestItemLifecycle_ToggleReceived(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, nil)
	s.addTemplate(t, core.SideIncome, "Salary", "2500")
	p, err := s.periods.EnsureIncomePeriod(ctx, "2025-03")
	require.NoError(t, err)
	itemID := p.Items[0].ID

	require.NoError(t, s.lifecycle.ToggleReceived(ctx, "2025-03", itemID, core.IncomeReceived))
	got, _, err := s.periods.LoadIncomePeriod(ctx, "2025-03")
	require.NoError(t, err)
	assert.Equal(t, core.IncomeReceived, got.Items[0].Status)
	require.NotNil(t, got.Items[0].ReceivedAt)
	assert.Equal(t, testNow, *got.Items[0].ReceivedAt)

	require.NoError(t, s.lifecycle.ToggleReceived(ctx, "2025-03", itemID, core.IncomePending))
	got, _, err = s.periods.LoadIncomePeriod(ctx, "2025-03")
	require.NoError(t, err)
	assert.Equal(t, core.IncomePending, got.Items[0].Status)
	assert.Nil(t, got.Items[0].ReceivedAt)

	assert.NoError(t, s.lifecycle.ToggleReceived(ctx, "2025-03", "missing_2025-03", core.IncomeReceived))
	assert.NoError(t, s.lifecycle.ToggleReceived(ctx, "2025-03", itemID, core.IncomePending))
}

func TestItemLifecycle_UpdateIncomeAmount(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, nil)
	salary := s.addTemplate(t, core.SideIncome, "Salary", "2500")
	p, err := s.periods.EnsureIncomePeriod(ctx, "2025-03")
	require.NoError(t, err)

	item, err := s.lifecycle.UpdateIncomeAmount(ctx, "2025-03", p.Items[0].ID, dec("2600"), true)
	require.NoError(t, err)
	assert.True(t, item.Amount.Equal(dec("2600")))

	tpl, err := s.templates.Get(ctx, core.SideIncome, salary.ID)
	require.NoError(t, err)
	assert.True(t, tpl.DefaultAmount.Equal(dec("2600")))

	_, err = s.lifecycle.UpdateIncomeAmount(ctx, "2025-03", "missing", dec("1"), false)
	assert.ErrorIs(t, err, core.ErrItemNotFound)
	_, err = s.lifecycle.UpdateIncomeAmount(ctx, "2025-03", p.Items[0].ID, dec("-1"), false)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	require.NoError(t, s.templates.Delete(ctx, core.SideIncome, salary.ID))
	_, err = s.lifecycle.UpdateIncomeAmount(ctx, "2025-03", p.Items[0].ID, dec("2700"), true)
	assert.ErrorIs(t, err, core.ErrTemplateNotFound)
	after, _, err := s.periods.LoadIncomePeriod(ctx, "2025-03")
	require.NoError(t, err)
	assert.True(t, after.Items[0].Amount.Equal(dec("2600")))
}

func TestItemLifecycle_Extras(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, nil)

	added, err := s.lifecycle.AddExtra(ctx, "2025-03", core.ExtraEntry{
		Description: " Refund ",
		Amount:      dec("42.50"),
		Date:        time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, "Refund", added.Description)
	assert.Equal(t, testNow, added.CreatedAt)

	_, err = s.lifecycle.AddExtra(ctx, "2025-03", core.ExtraEntry{Description: "", Amount: dec("1")})
	assert.ErrorIs(t, err, core.ErrEmptyDescription)

	added.Amount = dec("40")
	added.Description = "Partial refund"
	edited, err := s.lifecycle.EditExtra(ctx, "2025-03", added)
	require.NoError(t, err)
	assert.Equal(t, testNow, edited.CreatedAt)

	p, _, err := s.periods.LoadIncomePeriod(ctx, "2025-03")
	require.NoError(t, err)
	require.Len(t, p.Extras, 1)
	assert.Equal(t, "Partial refund", p.Extras[0].Description)
	assert.True(t, p.Extras[0].Amount.Equal(dec("40")))

	_, err = s.lifecycle.EditExtra(ctx, "2025-03", core.ExtraEntry{ID: "nope", Description: "x", Amount: dec("1"), Date: testNow})
	assert.ErrorIs(t, err, core.ErrExtraNotFound)

	require.NoError(t, s.lifecycle.DeleteExtra(ctx, "2025-03", "nope"))
	require.NoError(t, s.lifecycle.DeleteExtra(ctx, "2025-03", added.ID))
	p, _, err = s.periods.LoadIncomePeriod(ctx, "2025-03")
	require.NoError(t, err)
	assert.Empty(t, p.Extras)
}
