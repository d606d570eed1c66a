package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fisse/internal/core"
)

type expensePeriodResponse struct {
	core.ExpensePeriod
	Summary core.PeriodSummary `json:"summary"`
}

// handleGetExpensePeriod materializes the period on first access.
func (s *Server) handleGetExpensePeriod(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := s.svc.Periods.EnsureExpensePeriod(r.Context(), period)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, expensePeriodResponse{ExpensePeriod: p, Summary: core.SummarizeExpenses(p)})
}

// handleRegenerateExpensePeriod rebuilds the period from the current
// templates. Without ?force=true an existing period is returned unchanged.
func (s *Server) handleRegenerateExpensePeriod(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	force, err := forceParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	templates, err := s.svc.Templates.List(r.Context(), core.SideExpense)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := s.svc.Periods.RegenerateExpensePeriod(r.Context(), period, templates, force)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, expensePeriodResponse{ExpensePeriod: p, Summary: core.SummarizeExpenses(p)})
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req payRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	item, err := s.svc.Lifecycle.Pay(r.Context(), period, chi.URLParam(r, "itemID"), req.Amount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, item)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	item, err := s.svc.Lifecycle.Undo(r.Context(), period, chi.URLParam(r, "itemID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, item)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := s.svc.Lifecycle.Skip(r.Context(), period, chi.URLParam(r, "itemID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateExpenseAmount(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Amount == nil {
		writeError(w, r, http.StatusBadRequest, "amount is required")
		return
	}
	item, err := s.svc.Lifecycle.UpdateExpenseAmount(r.Context(), period, chi.URLParam(r, "itemID"), *req.Amount, req.PersistAsDefault)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, item)
}

func forceParam(r *http.Request) (bool, error) {
	v := r.URL.Query().Get("force")
	if v == "" {
		return false, nil
	}
	force, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: force=%q", errBadRequest, v)
	}
	return force, nil
}
