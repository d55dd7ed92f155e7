// Package postgres persists inventory entities, the row audit trail and job
// state in PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/stockimport/internal/core"
)

//go:embed schema.sql
var schema string

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store is a core.Store, core.AuditSink and core.AuditReader backed by
// PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a pool for url, verifies it and applies the schema.
func Connect(ctx context.Context, url string, cfg PoolConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. The caller owns the schema.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, logger: slog.Default()}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// FindByNaturalKey implements core.Store.
func (s *Store) FindByNaturalKey(ctx context.Context, tenant string, kind core.EntityKind, key core.NaturalKey) (core.EntityRef, bool, error) {
	k := key.Normalized()

	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT entity_id::text FROM entity_keys
		 WHERE tenant = $1 AND kind = $2 AND field = $3 AND value = $4`,
		tenant, string(kind), k.Field, k.Value,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
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
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}

	ref := core.EntityRef{Tenant: tenant, Kind: rec.Kind, ID: uuid.NewString()}
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO entities (id, tenant, kind, fields, auto_created, tags)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			ref.ID, tenant, string(rec.Kind), fields, rec.AutoCreated, tags,
		); err != nil {
			return fmt.Errorf("insert %s: %w", rec.Kind, err)
		}
		for _, k := range rec.Keys {
			if _, err := tx.Exec(ctx,
				`INSERT INTO entity_keys (tenant, kind, field, value, entity_id) VALUES ($1, $2, $3, $4, $5)`,
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

// Update implements core.Store. Fields are merged with the JSONB ||
// operator; keys held by another entity are left alone.
func (s *Store) Update(ctx context.Context, ref core.EntityRef, rec core.Record) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshal %s fields: %w", ref.Kind, err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE entities
			 SET fields = fields || $1::jsonb, auto_created = FALSE, updated_at = now()
			 WHERE id = $2 AND tenant = $3`,
			fields, ref.ID, ref.Tenant,
		)
		if err != nil {
			return fmt.Errorf("update %s %s: %w", ref.Kind, ref.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%s %s not found", ref.Kind, ref.ID)
		}
		for _, k := range rec.Keys {
			if _, err := tx.Exec(ctx,
				`INSERT INTO entity_keys (tenant, kind, field, value, entity_id)
				 VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
				ref.Tenant, string(ref.Kind), k.Field, k.Value, ref.ID,
			); err != nil {
				return fmt.Errorf("index %s key %s: %w", ref.Kind, k, err)
			}
		}
		return nil
	})
}

// AdjustDerived implements core.Store. The addition happens in a single
// statement so concurrent jobs never lose an update.
func (s *Store) AdjustDerived(ctx context.Context, ref core.EntityRef, field string, delta float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE entities
		 SET fields = jsonb_set(fields, ARRAY[$1::text],
		         to_jsonb(COALESCE((fields->>$1::text)::numeric, 0) + $2::numeric)),
		     updated_at = now()
		 WHERE id = $3 AND tenant = $4`,
		field, delta, ref.ID, ref.Tenant,
	)
	if err != nil {
		return fmt.Errorf("adjust %s of %s %s: %w", field, ref.Kind, ref.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s not found", ref.Kind, ref.ID)
	}
	return nil
}

// Ping implements core.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements core.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Jobs returns a job store sharing this pool.
func (s *Store) Jobs() *JobStore {
	return &JobStore{pool: s.pool}
}

// Fields returns the stored fields of an entity.
func (s *Store) Fields(ctx context.Context, ref core.EntityRef) (map[string]any, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT fields FROM entities WHERE id = $1 AND tenant = $2`, ref.ID, ref.Tenant,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s %s not found", ref.Kind, ref.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", ref.Kind, ref.ID, err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode %s %s fields: %w", ref.Kind, ref.ID, err)
	}
	return fields, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
