package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/stockimport/internal/core"
	"github.com/JonMunkholm/stockimport/internal/logging"
)

// heartbeatInterval keeps idle event streams open through proxies.
const heartbeatInterval = 15 * time.Second

// tenantJob loads the job named in the URL. A job of another tenant is
// reported as not found.
func (s *Server) tenantJob(r *http.Request) (*core.Job, error) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.service.Status(r.Context(), jobID)
	if err != nil {
		return nil, err
	}
	if job.Tenant != s.tenant(r) {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, jobID)
	}
	return job, nil
}

// handleJobStatus returns the current status payload of a job.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.tenantJob(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, core.SnapshotOf(job, time.Now()))
}

// handleCancelJob stops a running job.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.tenantJob(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.Cancel(r.Context(), job.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "jobId": job.ID, "status": "cancelling"})
}

// handleExportErrors downloads the job's sampled row errors as CSV.
func (s *Server) handleExportErrors(w http.ResponseWriter, r *http.Request) {
	job, err := s.tenantJob(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	filename := fmt.Sprintf("errores_%s_%s.csv", job.ImportType, time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	if err := s.service.WriteErrorsCSV(r.Context(), job.ID, w); err != nil {
		logging.FromContext(r.Context()).Error("error export failed", "job_id", job.ID, "error", err)
	}
}

// handleJobEvents streams job snapshots as Server-Sent Events.
//
// The current snapshot is sent first, so a client that connects late or
// reconnects never waits for the next change. Each event id is the
// snapshot sequence; snapshots at or below Last-Event-ID are skipped. The
// stream ends after the terminal snapshot, sent as event "complete".
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	job, err := s.tenantJob(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.fail(w, r, errors.New("streaming not supported"))
		return
	}

	lastSeq := lastEventID(r)

	// Subscribe before reading the current state so no update falls in
	// between.
	updates, unsubscribe, err := s.service.Subscribe(r.Context(), job.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer unsubscribe()

	current, err := s.service.Snapshot(r.Context(), job.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(snap core.Snapshot) bool {
		if snap.Seq <= lastSeq && !snap.Terminal {
			return false
		}
		if snap.Seq > lastSeq {
			lastSeq = snap.Seq
		}
		if err := writeEvent(w, snap); err != nil {
			return true
		}
		flusher.Flush()
		return snap.Terminal
	}

	if send(current) {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				// Subscription dropped without a terminal event; send
				// whatever the job store holds last.
				if final, err := s.service.Snapshot(r.Context(), job.ID); err == nil {
					send(final)
				}
				return
			}
			if send(snap) {
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// writeEvent writes one SSE frame.
func writeEvent(w http.ResponseWriter, snap core.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	event := "progress"
	if snap.Terminal {
		event = "complete"
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", snap.Seq, event, data)
	return err
}

// lastEventID reads the resume point from the Last-Event-ID header, or the
// lastEventId query parameter for EventSource polyfills. It returns -1 when
// absent or invalid.
func lastEventID(r *http.Request) int64 {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		v = r.URL.Query().Get("lastEventId")
	}
	seq, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || seq < 0 {
		return -1
	}
	return seq
}
