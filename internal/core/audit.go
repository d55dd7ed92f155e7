package core

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "low"
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// determineSeverity returns the appropriate severity for a decision.
func determineSeverity(d Decision) AuditSeverity {
	switch d {
	case DecisionOverwritten, DecisionAutoCreatedReference:
		return SeverityHigh
	case DecisionNew:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// LogAudit writes row decisions to a structured logger.
type LogAudit struct {
	logger *slog.Logger
}

// NewLogAudit returns a sink writing to logger, or slog.Default when nil.
func NewLogAudit(logger *slog.Logger) *LogAudit {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAudit{logger: logger}
}

// Record implements AuditSink.
func (a *LogAudit) Record(ctx context.Context, e AuditEntry) {
	severity := determineSeverity(e.Decision)
	level := slog.LevelDebug
	if severity == SeverityHigh {
		level = slog.LevelInfo
	}

	args := []any{
		"job_id", e.JobID,
		"tenant", e.Tenant,
		"import_type", e.ImportType,
		"line", e.Line,
		"decision", e.Decision,
		"severity", severity,
		"entity_kind", e.Target.Kind,
		"entity_id", e.Target.ID,
	}
	if e.Reference != nil {
		args = append(args, "reference_kind", e.Reference.Kind, "reference_id", e.Reference.ID)
	}
	if e.IPAddress != "" {
		args = append(args, "client_ip", e.IPAddress)
	}
	a.logger.Log(ctx, level, "import row audited", args...)
}

// MultiAudit fans an entry out to several sinks.
type MultiAudit []AuditSink

// Record implements AuditSink.
func (m MultiAudit) Record(ctx context.Context, e AuditEntry) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, e)
		}
	}
}

// MemoryAudit keeps entries in memory. Used by tests and the in-process
// store profile.
type MemoryAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record implements AuditSink.
func (m *MemoryAudit) Record(_ context.Context, e AuditEntry) {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
}

// Entries returns a copy of the recorded entries, optionally filtered by job.
func (m *MemoryAudit) Entries(jobID string) []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AuditEntry, 0, len(m.entries))
	for _, e := range m.entries {
		if jobID == "" || e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out
}

// AuditEntries implements AuditReader.
func (m *MemoryAudit) AuditEntries(_ context.Context, jobID string, limit int) ([]AuditEntry, error) {
	out := m.Entries(jobID)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Sweep drops entries recorded before cutoff.
func (m *MemoryAudit) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	for _, e := range m.entries {
		if !e.At.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	n := len(m.entries) - len(kept)
	clear(m.entries[len(kept):])
	m.entries = kept
	return n, nil
}

// MultiAudit queries the first sink that can answer.
func (m MultiAudit) AuditEntries(ctx context.Context, jobID string, limit int) ([]AuditEntry, error) {
	for _, s := range m {
		if r, ok := s.(AuditReader); ok {
			return r.AuditEntries(ctx, jobID, limit)
		}
	}
	return nil, ErrAuditUnavailable
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, AuditEntry) {}
