// Package sqlite persists inventory entities, the row audit trail and job
// state in a single SQLite file.
//
// Fields are stored as a JSON object per entity; natural keys live in their
// own table so the (tenant, kind, field, value) uniqueness is enforced by
// the database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/JonMunkholm/stockimport/internal/core"
)

// Store is a core.Store, core.AuditSink and core.AuditReader backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{db: db, logger: slog.Default(), now: time.Now}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	tenant TEXT NOT NULL,
	kind TEXT NOT NULL,
	fields TEXT NOT NULL,
	auto_created INTEGER NOT NULL DEFAULT 0,
	tags TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS entities_tenant_kind ON entities (tenant, kind);

CREATE TABLE IF NOT EXISTS entity_keys (
	tenant TEXT NOT NULL,
	kind TEXT NOT NULL,
	field TEXT NOT NULL,
	value TEXT NOT NULL,
	entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	PRIMARY KEY (tenant, kind, field, value)
);

CREATE TABLE IF NOT EXISTS audit_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL,
	tenant TEXT NOT NULL,
	import_type TEXT NOT NULL,
	line INTEGER NOT NULL,
	decision TEXT NOT NULL,
	target_kind TEXT NOT NULL,
	target_id TEXT NOT NULL,
	reference_kind TEXT NOT NULL DEFAULT '',
	reference_id TEXT NOT NULL DEFAULT '',
	ip_address TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_entries_job ON audit_entries (job_id, id);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	tenant TEXT NOT NULL,
	status TEXT NOT NULL,
	terminal INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	data TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// FindByNaturalKey implements core.Store.
func (s *Store) FindByNaturalKey(ctx context.Context, tenant string, kind core.EntityKind, key core.NaturalKey) (core.EntityRef, bool, error) {
	k := key.Normalized()

	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT entity_id FROM entity_keys WHERE tenant = ? AND kind = ? AND field = ? AND value = ?`,
		tenant, string(kind), k.Field, k.Value,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.EntityRef{}, false, nil
	}
	if err != nil {
		return core.EntityRef{}, false, fmt.Errorf("find %s by %s: %w", kind, k.Field, err)
	}
	return core.EntityRef{Tenant: tenant, Kind: kind, ID: id}, true, nil
}

// Create implements core.Store. A natural key already taken fails with
// core.ErrDuplicateKey.
func (s *Store) Create(ctx context.Context, tenant string, rec core.Record) (core.EntityRef, error) {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return core.EntityRef{}, fmt.Errorf("marshal %s fields: %w", rec.Kind, err)
	}
	tags, err := json.Marshal(nonNil(rec.Tags))
	if err != nil {
		return core.EntityRef{}, fmt.Errorf("marshal %s tags: %w", rec.Kind, err)
	}

	ref := core.EntityRef{Tenant: tenant, Kind: rec.Kind, ID: uuid.NewString()}
	now := s.now().UnixNano()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entities (id, tenant, kind, fields, auto_created, tags, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ref.ID, tenant, string(rec.Kind), string(fields), rec.AutoCreated, string(tags), now, now,
		); err != nil {
			return fmt.Errorf("insert %s: %w", rec.Kind, err)
		}
		for _, k := range rec.Keys {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO entity_keys (tenant, kind, field, value, entity_id) VALUES (?, ?, ?, ?, ?)`,
				tenant, string(rec.Kind), k.Field, k.Value, ref.ID,
			); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: %s for %s", core.ErrDuplicateKey, k, rec.Kind)
				}
				return fmt.Errorf("index %s key %s: %w", rec.Kind, k, err)
			}
		}
		return nil
	})
	if err != nil {
		return core.EntityRef{}, err
	}
	return ref, nil
}

// Update implements core.Store. An overwritten placeholder stops being
// auto-created; keys held by another entity are left alone.
func (s *Store) Update(ctx context.Context, ref core.EntityRef, rec core.Record) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		fields, err := loadFields(ctx, tx, ref)
		if err != nil {
			return err
		}
		for k, v := range rec.Fields {
			fields[k] = v
		}
		if err := saveFields(ctx, tx, ref, fields, s.now(), `, auto_created = 0`); err != nil {
			return err
		}
		for _, k := range rec.Keys {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO entity_keys (tenant, kind, field, value, entity_id) VALUES (?, ?, ?, ?, ?)`,
				ref.Tenant, string(ref.Kind), k.Field, k.Value, ref.ID,
			); err != nil {
				return fmt.Errorf("index %s key %s: %w", ref.Kind, k, err)
			}
		}
		return nil
	})
}

// AdjustDerived implements core.Store.
func (s *Store) AdjustDerived(ctx context.Context, ref core.EntityRef, field string, delta float64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		fields, err := loadFields(ctx, tx, ref)
		if err != nil {
			return err
		}
		current, _ := fields[field].(float64)
		fields[field] = current + delta
		return saveFields(ctx, tx, ref, fields, s.now(), "")
	})
}

// Ping implements core.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements core.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Jobs returns a job store sharing this database.
func (s *Store) Jobs() *JobStore {
	return &JobStore{db: s.db}
}

// Entity is a stored row as read back for inspection. Numbers in Fields
// come back as float64 and times as RFC 3339 strings.
type Entity struct {
	Ref         core.EntityRef
	Fields      map[string]any
	AutoCreated bool
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Get returns one entity by ID.
func (s *Store) Get(ctx context.Context, id string) (Entity, bool, error) {
	var (
		e                    Entity
		kind, fields, tags   string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT tenant, kind, fields, auto_created, tags, created_at, updated_at FROM entities WHERE id = ?`, id,
	).Scan(&e.Ref.Tenant, &kind, &fields, &e.AutoCreated, &tags, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entity{}, false, nil
	}
	if err != nil {
		return Entity{}, false, fmt.Errorf("get entity %s: %w", id, err)
	}
	e.Ref.ID = id
	e.Ref.Kind = core.EntityKind(kind)
	if err := json.Unmarshal([]byte(fields), &e.Fields); err != nil {
		return Entity{}, false, fmt.Errorf("decode entity %s fields: %w", id, err)
	}
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return Entity{}, false, fmt.Errorf("decode entity %s tags: %w", id, err)
	}
	e.CreatedAt = time.Unix(0, createdAt)
	e.UpdatedAt = time.Unix(0, updatedAt)
	return e, true, nil
}

// Count returns how many entities of kind tenant has.
func (s *Store) Count(ctx context.Context, tenant string, kind core.EntityKind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entities WHERE tenant = ? AND kind = ?`, tenant, string(kind),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func loadFields(ctx context.Context, tx *sql.Tx, ref core.EntityRef) (map[string]any, error) {
	var raw string
	err := tx.QueryRowContext(ctx,
		`SELECT fields FROM entities WHERE id = ? AND tenant = ?`, ref.ID, ref.Tenant,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s not found", ref.Kind, ref.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", ref.Kind, ref.ID, err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("decode %s %s fields: %w", ref.Kind, ref.ID, err)
	}
	return fields, nil
}

func saveFields(ctx context.Context, tx *sql.Tx, ref core.EntityRef, fields map[string]any, now time.Time, extraSet string) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal %s fields: %w", ref.Kind, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE entities SET fields = ?, updated_at = ?`+extraSet+` WHERE id = ?`,
		string(data), now.UnixNano(), ref.ID,
	); err != nil {
		return fmt.Errorf("update %s %s: %w", ref.Kind, ref.ID, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// Extended result codes off.
		msg := se.Error()
		return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY constraint failed")
	}
	return false
}
