package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/stockimport/internal/headers"
	"github.com/JonMunkholm/stockimport/internal/logging"
)

// ImportRequest is one uploaded file.
type ImportRequest struct {
	Tenant     string `validate:"required,max=64"`
	ImportType string `validate:"required"`
	FileName   string `validate:"required,max=255"`
	Data       []byte
	Options    Options
}

// StartResult is returned as soon as the job is accepted.
type StartResult struct {
	JobID           string   `json:"jobId"`
	RecommendedMode Mode     `json:"recommendedMode"`
	Estimate        Estimate `json:"estimate"`
}

// StartImport validates the request, reserves a slot and runs the job in
// the background. It returns before any row is read.
//
// Returns ErrTooManyImports if no slot frees up within the wait period.
func (s *Service) StartImport(ctx context.Context, req ImportRequest) (*StartResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid import request: %w", err)
	}

	def, dict, err := s.registry.Get(req.ImportType)
	if err != nil {
		return nil, err
	}

	size := int64(len(req.Data))
	if size == 0 {
		return nil, ErrNoFile
	}
	if size > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, size, s.cfg.MaxFileSize)
	}

	head := req.Data[:min(len(req.Data), 512)]
	format, err := DetectFormat(req.FileName, head)
	if err != nil {
		return nil, err
	}

	// Acquire import slot (blocks until available or timeout)
	if err := s.limiter.Acquire(ctx, req.Tenant); err != nil {
		return nil, err
	}

	est := s.estimator.Estimate(size, format, def.Complexity)

	job := NewJob(uuid.NewString(), req.Tenant, def.Key, req.FileName, size, req.Options, s.now())
	job.Mode = est.RecommendedMode
	job.Estimate = est

	if err := s.reporter.Publish(context.WithoutCancel(ctx), job); err != nil {
		s.limiter.Release(req.Tenant)
		return nil, Systemic("save job", err)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	aj := &activeJob{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.active[job.ID] = aj
	s.mu.Unlock()

	client := clientInfo{ip: IPAddressFromContext(ctx), userAgent: UserAgentFromContext(ctx)}
	logger := logging.WithFields(ctx,
		"job_id", job.ID,
		"tenant", job.Tenant,
		"import_type", job.ImportType,
	)
	logger.Info("import accepted",
		"file", req.FileName,
		"size", size,
		"mode", job.Mode,
		"estimated_rows", est.EstimatedRows,
		"client_ip", client.ip,
	)

	// Process in background with panic recovery to ensure limiter release
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.limiter.Release(job.Tenant)
		defer close(aj.done)
		defer cancel()
		defer s.cleanup(job.ID, s.cfg.JobRetention)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in import", "panic", r)
				if !job.Status.Terminal() {
					s.terminate(jobCtx, job, s.reporter.Track(), logger, fmt.Errorf("internal error: %v", r))
				}
			}
		}()
		s.run(jobCtx, job, def, dict, req.Data, client, logger)
	}()

	return &StartResult{JobID: job.ID, RecommendedMode: est.RecommendedMode, Estimate: est}, nil
}

// clientInfo identifies who started a job, for the audit trail.
type clientInfo struct {
	ip        string
	userAgent string
}

// run drives one job through its lifecycle. Only this goroutine touches job.
func (s *Service) run(ctx context.Context, job *Job, def Definition, dict *headers.Dictionary, data []byte, client clientInfo, logger *slog.Logger) {
	tracker := s.reporter.Track()
	saveCtx := context.WithoutCancel(ctx)

	if ctx.Err() != nil {
		s.terminate(ctx, job, tracker, logger, ErrCancelled)
		return
	}
	if err := job.transition(StatusValidating, s.now()); err != nil {
		logger.Error("invalid transition", "error", err)
		return
	}
	if err := tracker.Transition(saveCtx, job); err != nil {
		s.terminate(ctx, job, tracker, logger, storeError("save job", err))
		return
	}

	sheet, err := ReadSheet(data, job.FileName)
	if err != nil {
		s.terminate(ctx, job, tracker, logger, Systemic("read file", err))
		return
	}

	hdr, ok := LocateHeader(sheet.Rows, dict)
	if !ok {
		s.terminate(ctx, job, tracker, logger, Systemic("locate header", ErrNoDataRows))
		return
	}
	job.HeaderLine = hdr.Line
	job.Warnings = append(hdr.Warnings, headers.MissingColumns(hdr.Columns, def.Rules.Required())...)

	rows := sheet.Rows[hdr.Index+1:]
	if len(rows) == 0 {
		s.terminate(ctx, job, tracker, logger, Systemic("read rows", ErrNoDataRows))
		return
	}
	for _, w := range job.Warnings {
		logger.Warn("column mapping warning", "kind", w.Kind, "column", w.Column, "header", w.Header)
	}

	job.TotalRows = len(rows)
	if err := job.transition(StatusProcessing, s.now()); err != nil {
		logger.Error("invalid transition", "error", err)
		return
	}
	if err := tracker.Transition(saveCtx, job); err != nil {
		s.terminate(ctx, job, tracker, logger, storeError("save job", err))
		return
	}
	logger.Info("import processing",
		"format", sheet.Format,
		"header_line", job.HeaderLine,
		"rows", job.TotalRows,
		"mapped_columns", hdr.Columns.MappedCount(),
	)

	resolver := NewResolver(s.store, def, ResolverOptions{
		Tenant:    job.Tenant,
		Overwrite: job.Options.Overwrite,
		DryRun:    job.Options.ValidateOnly,
	})

	for _, raw := range rows {
		if ctx.Err() != nil {
			s.terminate(ctx, job, tracker, logger, ErrCancelled)
			return
		}

		row := Coerce(raw, hdr.Columns, def.Rules, s.now())
		if row.Valid() && def.Check != nil {
			row.Errors = checkRow(def, row, hdr.Columns)
		}
		if !row.Valid() {
			job.recordRejected(row.Errors, s.now())
			if err := tracker.Row(saveCtx, job); err != nil {
				s.terminate(ctx, job, tracker, logger, storeError("save job", err))
				return
			}
			continue
		}

		res, err := resolver.Resolve(ctx, row)
		if err != nil {
			if ctx.Err() != nil {
				err = ErrCancelled
			}
			s.terminate(ctx, job, tracker, logger, err)
			return
		}
		job.recordResolved(res, s.now())

		if !job.Options.ValidateOnly {
			s.audit.Record(saveCtx, AuditEntry{
				JobID:      job.ID,
				Tenant:     job.Tenant,
				ImportType: job.ImportType,
				Line:       row.RowNumber,
				Decision:   res.Decision,
				Target:     res.Target,
				Reference:  res.Reference,
				IPAddress:  client.ip,
				UserAgent:  client.userAgent,
				At:         s.now(),
			})
		}
		if err := tracker.Row(saveCtx, job); err != nil {
			s.terminate(ctx, job, tracker, logger, storeError("save job", err))
			return
		}
	}

	if err := job.finish(s.now()); err != nil {
		logger.Error("invalid transition", "error", err)
		return
	}
	s.saveFinal(saveCtx, job, tracker, logger)
	s.finished(job, logger)
}

// checkRow runs the definition's cross-field rules and fills in the row
// number and column label of every error.
func checkRow(def Definition, row TypedRow, cm headers.ColumnMap) []FieldError {
	errs := def.Check(row)
	for i := range errs {
		errs[i].Row = row.RowNumber
		if errs[i].Column == "" {
			errs[i].Column = errs[i].Field
			if h := cm.Header(errs[i].Field); h != "" {
				errs[i].Column = h
			}
		}
	}
	return errs
}

// terminate ends the job as CANCELLED when cause is ErrCancelled and as
// FAILED otherwise.
func (s *Service) terminate(ctx context.Context, job *Job, tracker *Tracker, logger *slog.Logger, cause error) {
	saveCtx := context.WithoutCancel(ctx)
	now := s.now()

	var err error
	if errors.Is(cause, ErrCancelled) {
		job.Error = ErrCancelled.Error()
		job.ErrorCode = MapError(ErrCancelled).Code
		err = job.transition(StatusCancelled, now)
	} else {
		err = job.fail(cause, now)
	}
	if err != nil {
		logger.Error("invalid transition", "error", err, "cause", cause)
		return
	}

	s.saveFinal(saveCtx, job, tracker, logger)
	s.finished(job, logger)
}

const finalSaveAttempts = 3

const finalSaveBackoff = 200 * time.Millisecond

// saveFinal saves a job that just reached a terminal state, retrying with
// linear backoff.
func (s *Service) saveFinal(ctx context.Context, job *Job, tracker *Tracker, logger *slog.Logger) {
	var err error
	for attempt := 1; attempt <= finalSaveAttempts; attempt++ {
		if err = tracker.Transition(ctx, job); err == nil {
			return
		}
		if attempt < finalSaveAttempts {
			logger.Warn("retrying final job save", "attempt", attempt, "status", job.Status, "error", err)
			time.Sleep(time.Duration(attempt) * finalSaveBackoff)
		}
	}
	logger.Error("final job save failed", "status", job.Status, "attempts", finalSaveAttempts, "error", err)
}

// finished logs the outcome and fires the completion notification.
func (s *Service) finished(job *Job, logger *slog.Logger) {
	attrs := []any{
		"status", job.Status,
		"total", job.TotalRows,
		"processed", job.ProcessedRows,
		"success", job.SuccessCount,
		"errors", job.ErrorCount,
		"skipped", job.SkippedCount,
		"duration_ms", job.Elapsed(s.now()).Milliseconds(),
	}
	switch job.Status {
	case StatusFailed:
		logger.Error("import failed", append(attrs, "error", job.Error, "code", job.ErrorCode)...)
	case StatusCancelled:
		logger.Warn("import cancelled", attrs...)
	default:
		logger.Info("import completed", attrs...)
	}

	if !job.Options.NotifyOnComplete || s.notifier == nil {
		return
	}

	summary := SnapshotOf(job, s.now())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.notifier.NotifyJobComplete(ctx, job.ID, summary); err != nil {
			logger.Warn("completion notification failed", "error", err)
		}
	}()
}
