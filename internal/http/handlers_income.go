package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fisse/internal/core"
)

type incomePeriodResponse struct {
	core.IncomePeriod
	Summary core.PeriodSummary `json:"summary"`
}

func (s *Server) handleGetIncomePeriod(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := s.svc.Periods.EnsureIncomePeriod(r.Context(), period)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, incomePeriodResponse{IncomePeriod: p, Summary: core.SummarizeIncome(p)})
}

func (s *Server) handleRegenerateIncomePeriod(w http.ResponseWriter, r *http.Request) {
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
	templates, err := s.svc.Templates.List(r.Context(), core.SideIncome)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := s.svc.Periods.RegenerateIncomePeriod(r.Context(), period, templates, force)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, incomePeriodResponse{IncomePeriod: p, Summary: core.SummarizeIncome(p)})
}

func (s *Server) handleToggleReceived(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req receivedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	status := core.IncomePending
	if req.Received {
		status = core.IncomeReceived
	}
	if err := s.svc.Lifecycle.ToggleReceived(r.Context(), period, chi.URLParam(r, "itemID"), status); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateIncomeAmount(w http.ResponseWriter, r *http.Request) {
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
	item, err := s.svc.Lifecycle.UpdateIncomeAmount(r.Context(), period, chi.URLParam(r, "itemID"), *req.Amount, req.PersistAsDefault)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, item)
}

func (s *Server) handleAddExtra(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req extraRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	entry, err := req.toEntry("")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	entry, err = s.svc.Lifecycle.AddExtra(r.Context(), period, entry)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, entry)
}

func (s *Server) handleEditExtra(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req extraRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	entry, err := req.toEntry(chi.URLParam(r, "extraID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	entry, err = s.svc.Lifecycle.EditExtra(r.Context(), period, entry)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, entry)
}

func (s *Server) handleDeleteExtra(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := s.svc.Lifecycle.DeleteExtra(r.Context(), period, chi.URLParam(r, "extraID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
