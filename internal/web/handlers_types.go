package web

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListTypes lists every import type with its fields and accepted
// header spellings.
func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"types":       s.service.Types(),
		"maxFileSize": s.service.MaxFileSize(),
	})
}

// handleDownloadTemplate serves a CSV holding only the header row of an
// import type.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	importType := chi.URLParam(r, "importType")

	header, err := s.service.Template(importType)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="plantilla_%s.csv"`, importType))

	cw := csv.NewWriter(w)
	cw.Write(header)
	cw.Flush()
}

// handleLimiterStatus reports how many import slots are in use.
func (s *Server) handleLimiterStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.LimiterStatus())
}
