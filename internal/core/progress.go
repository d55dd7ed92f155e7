package core

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/JonMunkholm/stockimport/internal/headers"
)

// Snapshot is the status payload served to polling clients and pushed to
// subscribers. Field names follow the client contract.
type Snapshot struct {
	JobID         string            `json:"jobId"`
	Seq           int64             `json:"secuencia"`
	Status        JobStatus         `json:"estado"`
	Percent       int               `json:"progreso"`
	TotalRows     int               `json:"totalRegistros"`
	ProcessedRows int               `json:"registrosProcesados"`
	SuccessCount  int               `json:"registrosExitosos"`
	ErrorCount    int               `json:"registrosConError"`
	SkippedCount  int               `json:"registrosOmitidos"`
	Decisions     map[Decision]int  `json:"decisiones"`
	Errors        []FieldError      `json:"erroresDetallados"`
	ErrorsTotal   int               `json:"totalErrores"`
	Warnings      []headers.Warning `json:"advertencias"`
	Mode          Mode              `json:"modo"`
	Error         string            `json:"error,omitempty"`
	ErrorCode     string            `json:"codigoError,omitempty"`
	ElapsedMs     int64             `json:"transcurridoMs"`
	EtaMs         int64             `json:"restanteMs,omitempty"`
	Terminal      bool              `json:"finalizado"`
	UpdatedAt     time.Time         `json:"actualizado"`
}

// SnapshotOf builds the status payload for job.
func SnapshotOf(job *Job, now time.Time) Snapshot {
	s := Snapshot{
		JobID:         job.ID,
		Seq:           job.Seq,
		Status:        job.Status,
		Percent:       job.Percent(),
		TotalRows:     job.TotalRows,
		ProcessedRows: job.ProcessedRows,
		SuccessCount:  job.SuccessCount,
		ErrorCount:    job.ErrorCount,
		SkippedCount:  job.SkippedCount,
		Decisions:     make(map[Decision]int, len(job.Decisions)),
		Errors:        job.Errors.List(),
		ErrorsTotal:   job.Errors.Total,
		Warnings:      append([]headers.Warning{}, job.Warnings...),
		Mode:          job.Mode,
		Error:         job.Error,
		ErrorCode:     job.ErrorCode,
		Terminal:      job.Status.Terminal(),
		UpdatedAt:     job.UpdatedAt,
	}
	for k, v := range job.Decisions {
		s.Decisions[k] = v
	}

	elapsed := job.Elapsed(now)
	s.ElapsedMs = elapsed.Milliseconds()
	if !s.Terminal && job.ProcessedRows > 0 && job.TotalRows > job.ProcessedRows {
		perRow := elapsed / time.Duration(job.ProcessedRows)
		s.EtaMs = (perRow * time.Duration(job.TotalRows-job.ProcessedRows)).Milliseconds()
	}
	return s
}

// Reporter saves job state and pushes snapshots.
//
// The JobStore is the source of truth: every publish saves first, then
// pushes on the bus. A lost push is never a lost update because the next
// poll reads the store.
type Reporter struct {
	jobs     JobStore
	bus      Bus
	every    int
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewReporter coalesces row updates to one publish per every rows or per
// interval, whichever comes first.
func NewReporter(jobs JobStore, bus Bus, every int, interval time.Duration, logger *slog.Logger) *Reporter {
	if every <= 0 {
		every = 100
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{jobs: jobs, bus: bus, every: every, interval: interval, logger: logger, now: time.Now}
}

// Publish saves job and pushes its snapshot. Only a save failure is
// returned; push failures are logged.
func (r *Reporter) Publish(ctx context.Context, job *Job) error {
	job.Seq++
	job.UpdatedAt = r.now()

	if err := r.jobs.Save(ctx, job.Clone()); err != nil {
		r.logger.Error("save job state failed", "job_id", job.ID, "status", job.Status, "error", err)
		return err
	}

	if r.bus != nil {
		if err := r.bus.Publish(ctx, SnapshotOf(job, r.now())); err != nil {
			r.logger.Warn("publish progress failed", "job_id", job.ID, "seq", job.Seq, "error", err)
		}
	}
	return nil
}

// Track returns a per-job tracker.
func (r *Reporter) Track() *Tracker {
	return &Tracker{
		r: r,
		sometimes: &rate.Sometimes{
			First:    1,
			Every:    r.every,
			Interval: r.interval,
		},
	}
}

// Tracker rate-limits row progress for one job.
type Tracker struct {
	r         *Reporter
	sometimes *rate.Sometimes
}

// Row publishes after a processed row, coalescing bursts. It returns the
// save error of a publish that ran, nil when the row was coalesced.
func (t *Tracker) Row(ctx context.Context, job *Job) error {
	var err error
	t.sometimes.Do(func() {
		err = t.r.Publish(ctx, job)
	})
	return err
}

// Transition publishes a status change. Never coalesced.
func (t *Tracker) Transition(ctx context.Context, job *Job) error {
	return t.r.Publish(ctx, job)
}
