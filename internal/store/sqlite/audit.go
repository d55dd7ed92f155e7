package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/stockimport/internal/core"
)

// Record implements core.AuditSink. Write failures are logged; the audit
// trail never fails an import.
func (s *Store) Record(ctx context.Context, e core.AuditEntry) {
	var refKind, refID string
	if e.Reference != nil {
		refKind, refID = string(e.Reference.Kind), e.Reference.ID
	}
	at := e.At
	if at.IsZero() {
		at = s.now()
	}

	_, err := s.db.ExecContext(context.WithoutCancel(ctx),
		`INSERT INTO audit_entries
			(job_id, tenant, import_type, line, decision, target_kind, target_id,
			 reference_kind, reference_id, ip_address, user_agent, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.JobID, e.Tenant, e.ImportType, e.Line, string(e.Decision),
		string(e.Target.Kind), e.Target.ID, refKind, refID,
		e.IPAddress, e.UserAgent, at.UnixNano(),
	)
	if err != nil {
		s.logger.Error("failed to write audit entry",
			"job_id", e.JobID,
			"line", e.Line,
			"error", err,
		)
	}
}

// AuditEntries implements core.AuditReader.
func (s *Store) AuditEntries(ctx context.Context, jobID string, limit int) ([]core.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant, import_type, line, decision, target_kind, target_id,
		        reference_kind, reference_id, ip_address, user_agent, at
		 FROM audit_entries WHERE job_id = ? ORDER BY id LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []core.AuditEntry
	for rows.Next() {
		var (
			e                    core.AuditEntry
			decision, targetKind string
			refKind, refID       string
			at                   int64
		)
		if err := rows.Scan(&e.Tenant, &e.ImportType, &e.Line, &decision, &targetKind, &e.Target.ID,
			&refKind, &refID, &e.IPAddress, &e.UserAgent, &at); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.JobID = jobID
		e.Decision = core.Decision(decision)
		e.Target.Tenant = e.Tenant
		e.Target.Kind = core.EntityKind(targetKind)
		if refID != "" {
			e.Reference = &core.EntityRef{Tenant: e.Tenant, Kind: core.EntityKind(refKind), ID: refID}
		}
		e.At = time.Unix(0, at)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

// Sweep deletes audit entries recorded before cutoff.
func (s *Store) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_entries WHERE at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweep audit entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep audit entries: %w", err)
	}
	return int(n), nil
}
