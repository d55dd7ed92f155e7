package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default limits used when Config leaves a field unset.
const (
	DefaultMaxFileSize      = 50 << 20
	DefaultProgressEvery    = 100
	DefaultProgressInterval = 500 * time.Millisecond
	DefaultJobRetention     = 5 * time.Minute
)

// Config holds the Service tunables.
type Config struct {
	MaxFileSize      int64
	MaxConcurrent    int
	MaxPerTenant     int
	MaxWait          time.Duration
	ProgressEvery    int
	ProgressInterval time.Duration
	JobRetention     time.Duration // How long a finished job stays cancellable/waitable in memory
	Estimator        EstimatorConfig
}

// Deps are the collaborators the Service drives. Registry, Store and Jobs
// are required.
type Deps struct {
	Registry *Registry
	Store    Store
	Jobs     JobStore
	Bus      Bus
	Notifier Notifier
	Audit    AuditSink
	Logger   *slog.Logger
}

// Service runs import jobs.
type Service struct {
	registry  *Registry
	store     Store
	jobs      JobStore
	bus       Bus
	notifier  Notifier
	audit     AuditSink
	limiter   *ImportLimiter
	estimator *Estimator
	reporter  *Reporter
	validate  *validator.Validate
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	active map[string]*activeJob

	wg sync.WaitGroup
}

type activeJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new Service instance.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if deps.Registry == nil || deps.Store == nil || deps.Jobs == nil {
		return nil, errors.New("core: registry, store and job store are required")
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if cfg.JobRetention <= 0 {
		cfg.JobRetention = DefaultJobRetention
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	audit := deps.Audit
	if audit == nil {
		audit = nopAudit{}
	}

	return &Service{
		registry:  deps.Registry,
		store:     deps.Store,
		jobs:      deps.Jobs,
		bus:       deps.Bus,
		notifier:  deps.Notifier,
		audit:     audit,
		limiter:   NewImportLimiter(cfg.MaxConcurrent, cfg.MaxPerTenant, cfg.MaxWait),
		estimator: NewEstimator(cfg.Estimator),
		reporter:  NewReporter(deps.Jobs, deps.Bus, cfg.ProgressEvery, cfg.ProgressInterval, logger),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		active:    make(map[string]*activeJob),
	}, nil
}

// Types returns every import type with its fields and accepted headers.
func (s *Service) Types() []ImportType {
	return s.registry.Types()
}

// Template returns the header row for an import type.
func (s *Service) Template(importType string) ([]string, error) {
	return s.registry.Template(importType)
}

// MaxFileSize returns the upload size limit in bytes.
func (s *Service) MaxFileSize() int64 {
	return s.cfg.MaxFileSize
}

// Estimate recommends a transport mode before the file is uploaded.
// complexity may name an import type or be one of simple/medium/complex.
func (s *Service) Estimate(fileSize int64, fileName, complexity string) (Estimate, error) {
	if fileSize < 0 {
		return Estimate{}, fmt.Errorf("invalid file size %d", fileSize)
	}
	format := FormatCSV
	if fileName != "" {
		f, err := DetectFormat(fileName, nil)
		if err != nil {
			return Estimate{}, err
		}
		format = f
	}

	base, ok := ParseComplexity(complexity)
	if !ok {
		if complexity == "" {
			base = ComplexitySimple
		} else {
			def, _, err := s.registry.Get(complexity)
			if err != nil {
				return Estimate{}, err
			}
			base = def.Complexity
		}
	}
	return s.estimator.Estimate(fileSize, format, base), nil
}

// Status returns the latest saved state of a job.
func (s *Service) Status(ctx context.Context, jobID string) (*Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, nil
}

// Snapshot returns the status payload for a job.
func (s *Service) Snapshot(ctx context.Context, jobID string) (Snapshot, error) {
	job, err := s.Status(ctx, jobID)
	if err != nil {
		return Snapshot{}, err
	}
	return SnapshotOf(job, s.now()), nil
}

// Subscribe returns a channel of snapshots for a job. Call the returned
// function to unsubscribe.
func (s *Service) Subscribe(ctx context.Context, jobID string) (<-chan Snapshot, func(), error) {
	if _, err := s.Status(ctx, jobID); err != nil {
		return nil, nil, err
	}
	if s.bus == nil {
		return nil, nil, errors.New("push updates are not configured")
	}
	return s.bus.Subscribe(ctx, jobID)
}

// Cancel stops a running job. Rows already persisted stay.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	s.mu.RLock()
	aj, ok := s.active[jobID]
	s.mu.RUnlock()

	if ok {
		select {
		case <-aj.done:
		default:
			aj.cancel()
			return nil
		}
	}

	job, err := s.Status(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrJobTerminal, job.Status)
	}
	return fmt.Errorf("%w: %s is not running on this instance", ErrJobNotFound, jobID)
}

// Wait blocks until the job reaches a terminal state or ctx ends, then
// returns its final state.
func (s *Service) Wait(ctx context.Context, jobID string) (*Job, error) {
	s.mu.RLock()
	aj, ok := s.active[jobID]
	s.mu.RUnlock()

	if ok {
		select {
		case <-aj.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.Status(ctx, jobID)
}

// WaitForImports blocks until every job and pending notification finished
// or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelAll cancels every running job. Used on shutdown.
func (s *Service) CancelAll() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, aj := range s.active {
		select {
		case <-aj.done:
		default:
			aj.cancel()
			n++
		}
	}
	return n
}

// ActiveJobs returns how many jobs this instance is running.
func (s *Service) ActiveJobs() int {
	return s.limiter.ActiveCount()
}

// LimiterStatus returns the current concurrency state.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// DefaultAuditLimit caps AuditLog results when no limit is given.
const DefaultAuditLimit = 500

// AuditLog returns the recorded row outcomes of a job, oldest first.
func (s *Service) AuditLog(ctx context.Context, jobID string, limit int) ([]AuditEntry, error) {
	if _, err := s.Status(ctx, jobID); err != nil {
		return nil, err
	}
	reader, ok := s.audit.(AuditReader)
	if !ok {
		return nil, ErrAuditUnavailable
	}
	if limit <= 0 || limit > DefaultAuditLimit {
		limit = DefaultAuditLimit
	}
	return reader.AuditEntries(ctx, jobID, limit)
}

// errorsCSVHeader is the header row of the error export.
var errorsCSVHeader = []string{"fila", "columna", "campo", "valor", "mensaje"}

// WriteErrorsCSV writes the job's sampled row errors as CSV.
func (s *Service) WriteErrorsCSV(ctx context.Context, jobID string, w io.Writer) error {
	job, err := s.Status(ctx, jobID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(errorsCSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range job.Errors.List() {
		record := []string{strconv.Itoa(e.Row), e.Column, e.Field, e.Value, e.Message}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// cleanup removes the job from in-memory tracking after a delay. The
// JobStore keeps its state.
func (s *Service) cleanup(jobID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.active, jobID)
		s.mu.Unlock()
	})
}
