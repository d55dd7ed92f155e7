package core

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestDetermineSeverity(t *testing.T) {
	tests := []struct {
		decision Decision
		want     AuditSeverity
	}{
		{DecisionOverwritten, SeverityHigh},
		{DecisionAutoCreatedReference, SeverityHigh},
		{DecisionNew, SeverityMedium},
		{DecisionSkippedDuplicate, SeverityLow},
	}
	for _, tt := range tests {
		if got := determineSeverity(tt.decision); got != tt.want {
			t.Errorf("determineSeverity(%s) = %s, want %s", tt.decision, got, tt.want)
		}
	}
}

func TestLogAudit(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	a := NewLogAudit(logger)
	ctx := context.Background()

	a.Record(ctx, AuditEntry{JobID: "j1", Decision: DecisionNew, Line: 3})
	if buf.Len() != 0 {
		t.Errorf("medium severity logged at info: %s", buf.String())
	}

	ref := EntityRef{Kind: KindProvider, ID: "p9"}
	a.Record(ctx, AuditEntry{JobID: "j1", Decision: DecisionAutoCreatedReference, Line: 4, Reference: &ref})
	out := buf.String()
	for _, want := range []string{"import row audited", "job_id=j1", "severity=high", "reference_id=p9"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestMultiAudit(t *testing.T) {
	a, b := &MemoryAudit{}, &MemoryAudit{}
	m := MultiAudit{a, nil, b}

	m.Record(context.Background(), AuditEntry{JobID: "j1"})
	m.Record(context.Background(), AuditEntry{JobID: "j2"})

	if len(a.Entries("")) != 2 || len(b.Entries("")) != 2 {
		t.Errorf("entries a=%d b=%d, want 2 each", len(a.Entries("")), len(b.Entries("")))
	}
	if got := a.Entries("j2"); len(got) != 1 || got[0].JobID != "j2" {
		t.Errorf("Entries(j2) = %v", got)
	}
}

func TestMemoryAudit_Sweep(t *testing.T) {
	now := time.Now()
	m := &MemoryAudit{}
	ctx := context.Background()
	m.Record(ctx, AuditEntry{JobID: "old", At: now.Add(-2 * time.Hour)})
	m.Record(ctx, AuditEntry{JobID: "new", At: now})
	m.Record(ctx, AuditEntry{JobID: "old", At: now.Add(-3 * time.Hour)})

	n, err := m.Sweep(ctx, now.Add(-time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("Sweep() = %d, %v; want 2", n, err)
	}
	if got := m.Entries(""); len(got) != 1 || got[0].JobID != "new" {
		t.Errorf("entries after sweep = %v", got)
	}
}
