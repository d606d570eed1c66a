package http

import (
	"net/http"
	"time"
)

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports whether the remote tier answers. The engine keeps
// serving from the local tier either way, so this only informs the caller.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	remote := s.reachable == nil || s.reachable(r.Context())
	status := "ready"
	if !remote {
		status = "degraded"
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":          status,
		"remoteReachable": remote,
		"time":            time.Now().UTC(),
	})
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, r, http.StatusNotImplemented, "no history source configured")
		return
	}
	report, err := s.svc.Migration.Run(r.Context(), s.history)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleRollover(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Rollover.ProcessRollover(r.Context(), time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleRepairPeriod(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	report, err := s.svc.Lifecycle.RepairPeriod(r.Context(), period)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleOutboxStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Sync.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

func (s *Server) handleOutboxRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Sync.RetryFailed(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
