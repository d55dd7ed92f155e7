package postgres

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/stockimport/internal/core"
)

// Record implements core.AuditSink. Write failures are logged; the audit
// trail never fails an import.
func (s *Store) Record(ctx context.Context, e core.AuditEntry) {
	var refKind, refID pgtype.Text
	if e.Reference != nil {
		refKind = pgtype.Text{String: string(e.Reference.Kind), Valid: true}
		refID = pgtype.Text{String: e.Reference.ID, Valid: true}
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err := s.pool.Exec(context.WithoutCancel(ctx),
		`INSERT INTO import_audit
			(job_id, tenant, import_type, line, decision, target_kind, target_id,
			 reference_kind, reference_id, ip_address, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.JobID, e.Tenant, e.ImportType, e.Line, string(e.Decision),
		string(e.Target.Kind), e.Target.ID, refKind, refID,
		parseIP(e.IPAddress), optionalText(e.UserAgent), at,
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
	rows, err := s.pool.Query(ctx,
		`SELECT tenant, import_type, line, decision, target_kind, target_id,
		        reference_kind, reference_id, ip_address, user_agent, created_at
		 FROM import_audit WHERE job_id = $1 ORDER BY id LIMIT $2`,
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
			refKind, refID       pgtype.Text
			ipAddress            *netip.Addr
			userAgent            pgtype.Text
		)
		if err := rows.Scan(&e.Tenant, &e.ImportType, &e.Line, &decision, &targetKind, &e.Target.ID,
			&refKind, &refID, &ipAddress, &userAgent, &e.At); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.JobID = jobID
		e.Decision = core.Decision(decision)
		e.Target.Tenant = e.Tenant
		e.Target.Kind = core.EntityKind(targetKind)
		if refID.Valid {
			e.Reference = &core.EntityRef{Tenant: e.Tenant, Kind: core.EntityKind(refKind.String), ID: refID.String}
		}
		if ipAddress != nil {
			e.IPAddress = ipAddress.String()
		}
		e.UserAgent = userAgent.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

// Sweep deletes audit entries recorded before cutoff.
func (s *Store) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM import_audit WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep audit entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// parseIP returns nil for anything that is not an address, so the column
// stays NULL. A trailing port is stripped.
func parseIP(raw string) *netip.Addr {
	if raw == "" {
		return nil
	}
	host := raw
	if h, _, err := net.SplitHostPort(raw); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	return &addr
}

func optionalText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
