package web

import (
	"context"
	"net/http"
	"time"
)

// handleHealth is the liveness probe. It never touches dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady is the readiness probe: it pings the store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.service.Ping(ctx); err != nil {
		s.respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"activeJobs": s.service.ActiveJobs(),
	})
}
