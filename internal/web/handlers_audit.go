package web

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/stockimport/internal/core"
)

// auditEntryResponse is one row outcome in the audit endpoint.
type auditEntryResponse struct {
	Line      int             `json:"fila"`
	Decision  core.Decision   `json:"decision"`
	Target    core.EntityRef  `json:"entidad"`
	Reference *core.EntityRef `json:"referencia,omitempty"`
	IPAddress string          `json:"ip,omitempty"`
	UserAgent string          `json:"userAgent,omitempty"`
	At        time.Time       `json:"fecha"`
}

// handleJobAudit lists the recorded row decisions of a job, oldest first.
// ?format=csv downloads them instead; ?limit= caps the result.
func (s *Server) handleJobAudit(w http.ResponseWriter, r *http.Request) {
	job, err := s.tenantJob(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.service.AuditLog(r.Context(), job.ID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		writeAuditCSV(w, job, entries)
		return
	}

	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			Line:      e.Line,
			Decision:  e.Decision,
			Target:    e.Target,
			Reference: e.Reference,
			IPAddress: e.IPAddress,
			UserAgent: e.UserAgent,
			At:        e.At,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobId": job.ID, "entries": out})
}

func writeAuditCSV(w http.ResponseWriter, job *core.Job, entries []core.AuditEntry) {
	filename := fmt.Sprintf("auditoria_%s_%s.csv", job.ImportType, time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	cw := csv.NewWriter(w)
	cw.Write([]string{"fila", "decision", "tipo", "entidad", "referencia", "ip", "fecha"})
	for _, e := range entries {
		ref := ""
		if e.Reference != nil {
			ref = e.Reference.ID
		}
		cw.Write([]string{
			strconv.Itoa(e.Line),
			string(e.Decision),
			string(e.Target.Kind),
			e.Target.ID,
			ref,
			e.IPAddress,
			e.At.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
}
