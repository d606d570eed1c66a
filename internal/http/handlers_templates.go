package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	side, err := sideParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	templates, err := s.svc.Templates.List(r.Context(), side)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, templates)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	side, err := sideParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	t, err := s.svc.Templates.Get(r.Context(), side, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	side, err := sideParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	t, err := s.svc.Templates.Upsert(r.Context(), req.toTemplate(side, ""))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, t)
}

// handleUpdateTemplate replaces an existing template. Unknown ids are 404
// rather than an implicit create.
func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	side, err := sideParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	existing, err := s.svc.Templates.Get(r.Context(), side, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	t := req.toTemplate(side, id)
	t.CreatedAt = existing.CreatedAt
	t, err = s.svc.Templates.Upsert(r.Context(), t)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	side, err := sideParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := s.svc.Templates.Delete(r.Context(), side, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
