package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fisse/internal/backend"
	"fisse/internal/core"
	"fisse/internal/services"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	b, err := backend.NewFactory(nil).CreateBackend(ctx, backend.Config{
		SQLiteDBPath: filepath.Join(t.TempDir(), "fisse.db"),
		Remote:       backend.MemoryRemote,
		Ledger:       backend.DocstoreLedger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Cleanup() })

	svc := backend.NewServices(b, services.DefaultSyncProcessorConfig())
	srv := NewServer(":0", svc, b.Ledger, b.Store.Reachable, Options{RequestsPerMinute: 1000})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func createTemplate(t *testing.T, srv *Server, side core.Side, name, amount string) core.Template {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/api/v1/templates/"+string(side), map[string]any{
		"displayName":   name,
		"defaultAmount": amount,
		"category":      "Housing",
		"cadence":       "monthly",
		"anchorDay":     5,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[core.Template](t, rr)
}

func TestHealthReadyAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = do(t, srv, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	ready := decode[map[string]any](t, rr)
	assert.Equal(t, "ready", ready["status"])
	assert.Equal(t, true, ready["remoteReachable"])

	rr = do(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestTemplateCRUD(t *testing.T) {
	srv := newTestServer(t)
	tpl := createTemplate(t, srv, core.SideExpense, "  Rent ", "900")
	assert.Equal(t, "Rent", tpl.DisplayName)
	assert.True(t, tpl.Active)

	rr := do(t, srv, http.MethodGet, "/api/v1/templates/expense", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]core.Template](t, rr), 1)

	rr = do(t, srv, http.MethodPut, "/api/v1/templates/expense/"+tpl.ID, map[string]any{
		"displayName":   "Rent",
		"defaultAmount": "950",
		"cadence":       "monthly",
		"anchorDay":     1,
		"active":        false,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[core.Template](t, rr)
	assert.False(t, updated.Active)
	assert.True(t, updated.DefaultAmount.Equal(decimal.RequireFromString("950")))
	assert.Equal(t, tpl.CreatedAt.UTC(), updated.CreatedAt.UTC())

	rr = do(t, srv, http.MethodGet, "/api/v1/templates/expense/"+tpl.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, srv, http.MethodDelete, "/api/v1/templates/expense/"+tpl.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, srv, http.MethodGet, "/api/v1/templates/expense/"+tpl.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodPut, "/api/v1/templates/expense/missing", map[string]any{"displayName": "x"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTemplateValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		path string
		body map[string]any
		want int
	}{
		{name: "unknown side", path: "/api/v1/templates/savings", body: map[string]any{"displayName": "x"}, want: http.StatusBadRequest},
		{name: "empty name", path: "/api/v1/templates/expense", body: map[string]any{"displayName": " "}, want: http.StatusBadRequest},
		{name: "negative amount", path: "/api/v1/templates/expense", body: map[string]any{"displayName": "x", "defaultAmount": "-1"}, want: http.StatusBadRequest},
		{name: "bad cadence", path: "/api/v1/templates/expense", body: map[string]any{"displayName": "x", "cadence": "daily"}, want: http.StatusBadRequest},
		{name: "bad anchor", path: "/api/v1/templates/expense", body: map[string]any{"displayName": "x", "cadence": "weekly", "anchorDay": 9}, want: http.StatusBadRequest},
		{name: "unknown field", path: "/api/v1/templates/expense", body: map[string]any{"displayName": "x", "colour": "red"}, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/templates/expense", bytes.NewBufferString("displayName=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
}

func TestExpenseItemFlow(t *testing.T) {
	srv := newTestServer(t)
	tpl := createTemplate(t, srv, core.SideExpense, "Rent", "900")
	itemID := core.ItemID(tpl.ID, "2025-03")
	base := "/api/v1/periods/2025-03/expenses"

	rr := do(t, srv, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	period := decode[expensePeriodResponse](t, rr)
	require.Len(t, period.Items, 1)
	assert.Equal(t, itemID, period.Items[0].ID)
	assert.True(t, period.Summary.Pending.Equal(decimal.RequireFromString("900")))

	rr = do(t, srv, http.MethodPost, base+"/"+itemID+"/pay", map[string]any{"amount": "875.50"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	paid := decode[core.ExpenseItem](t, rr)
	assert.Equal(t, core.ExpensePaid, paid.Status)
	require.NotNil(t, paid.LinkedTransactionID)

	rr = do(t, srv, http.MethodPost, base+"/"+itemID+"/skip", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, srv, http.MethodPost, base+"/"+itemID+"/undo", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, core.ExpensePending, decode[core.ExpenseItem](t, rr).Status)

	rr = do(t, srv, http.MethodPut, base+"/"+itemID+"/amount", map[string]any{"amount": "910", "persistAsDefault": true})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, decode[core.ExpenseItem](t, rr).Amount.Equal(decimal.RequireFromString("910")))

	rr = do(t, srv, http.MethodGet, "/api/v1/templates/expense/"+tpl.ID, nil)
	assert.True(t, decode[core.Template](t, rr).DefaultAmount.Equal(decimal.RequireFromString("910")))

	rr = do(t, srv, http.MethodPost, base+"/"+itemID+"/skip", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, srv, http.MethodPost, base+"/"+itemID+"/pay", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, srv, http.MethodPost, base+"/unknown_2025-03/pay", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodPut, base+"/"+itemID+"/amount", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRegenerateExpensePeriod(t *testing.T) {
	srv := newTestServer(t)
	base := "/api/v1/periods/2025-04/expenses"

	rr := do(t, srv, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[expensePeriodResponse](t, rr).Items)

	createTemplate(t, srv, core.SideExpense, "Gym", "40")

	rr = do(t, srv, http.MethodPost, base+"/regenerate", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[expensePeriodResponse](t, rr).Items, "existing period is kept without force")

	rr = do(t, srv, http.MethodPost, base+"/regenerate?force=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[expensePeriodResponse](t, rr).Items, 1)

	rr = do(t, srv, http.MethodPost, base+"/regenerate?force=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestIncomeFlow(t *testing.T) {
	srv := newTestServer(t)
	tpl := createTemplate(t, srv, core.SideIncome, "Salary", "2500")
	itemID := core.ItemID(tpl.ID, "2025-03")
	base := "/api/v1/periods/2025-03/income"

	rr := do(t, srv, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decode[incomePeriodResponse](t, rr).Items, 1)

	rr = do(t, srv, http.MethodPut, base+"/"+itemID+"/received", map[string]any{"received": true})
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, srv, http.MethodPost, base+"/extras", map[string]any{"description": "Bonus", "amount": "300", "date": "2025-03-15"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	extra := decode[core.ExtraEntry](t, rr)
	assert.NotEmpty(t, extra.ID)

	rr = do(t, srv, http.MethodPut, base+"/extras/"+extra.ID, map[string]any{"description": "Bonus Q1", "amount": "350"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	edited := decode[core.ExtraEntry](t, rr)
	assert.Equal(t, "Bonus Q1", edited.Description)
	assert.Equal(t, extra.Date.UTC(), edited.Date.UTC())

	rr = do(t, srv, http.MethodGet, base, nil)
	period := decode[incomePeriodResponse](t, rr)
	assert.Equal(t, core.IncomeReceived, period.Items[0].Status)
	assert.True(t, period.Summary.Total.Equal(decimal.RequireFromString("2850")))

	rr = do(t, srv, http.MethodPut, base+"/extras/missing", map[string]any{"description": "x", "amount": "1"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodPost, base+"/extras", map[string]any{"description": "x", "amount": "1", "date": "15/03/2025"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, srv, http.MethodDelete, base+"/extras/"+extra.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, srv, http.MethodDelete, base+"/extras/"+extra.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestInvalidPeriod(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{
		"/api/v1/periods/2025-13/expenses",
		"/api/v1/periods/march/income",
	} {
		rr := do(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
	}
	rr := do(t, srv, http.MethodPost, "/api/v1/periods/2025-3/repair", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdminEndpoints(t *testing.T) {
	srv := newTestServer(t)
	createTemplate(t, srv, core.SideExpense, "Rent", "900")

	rr := do(t, srv, http.MethodPost, "/api/v1/admin/rollover", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, decode[services.RolloverResult](t, rr).Periods, 2)

	current := core.PeriodOf(time.Now().UTC())
	rr = do(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/periods/%s/repair", current), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decode[services.RepairReport](t, rr).Checked)

	rr = do(t, srv, http.MethodPost, "/api/v1/admin/migrate", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 0, decode[services.MigrationReport](t, rr).Scanned)

	rr = do(t, srv, http.MethodGet, "/api/v1/admin/outbox", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "pending")

	rr = do(t, srv, http.MethodPost, "/api/v1/admin/outbox/retry", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t)
	limited := NewServer(":0", srv.svc, nil, nil, Options{RequestsPerMinute: 1})
	t.Cleanup(func() { _ = limited.Shutdown(context.Background()) })

	rr := do(t, limited, http.MethodGet, "/api/v1/templates/expense", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, limited, http.MethodGet, "/api/v1/templates/expense", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rr.Body.String())

	rr = do(t, limited, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code, "health checks are not rate limited")

	rr = do(t, limited, http.MethodPost, "/api/v1/admin/migrate", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", core.ErrInvalidAmount), http.StatusBadRequest},
		{fmt.Errorf("%w: x", errBadRequest), http.StatusBadRequest},
		{core.ErrMissingDate, http.StatusBadRequest},
		{fmt.Errorf("%w: id", core.ErrItemNotFound), http.StatusNotFound},
		{core.ErrExtraNotFound, http.StatusNotFound},
		{core.ErrInvalidTransition, http.StatusConflict},
		{core.ErrNotLinked, http.StatusConflict},
		{fmt.Errorf("read: %w", core.ErrRemoteUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
