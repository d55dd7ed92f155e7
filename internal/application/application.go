// Package application assembles the import service from configuration. The
// HTTP server and the command-line importer share it so both run against
// the same stores.
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/stockimport/internal/config"
	"github.com/JonMunkholm/stockimport/internal/core"
	"github.com/JonMunkholm/stockimport/internal/core/imports"
	"github.com/JonMunkholm/stockimport/internal/headers"
	"github.com/JonMunkholm/stockimport/internal/notify"
	"github.com/JonMunkholm/stockimport/internal/pubsub"
	"github.com/JonMunkholm/stockimport/internal/store/memory"
	"github.com/JonMunkholm/stockimport/internal/store/postgres"
	"github.com/JonMunkholm/stockimport/internal/store/redisjobs"
	"github.com/JonMunkholm/stockimport/internal/store/sqlite"
)

// App is a configured Service with the collaborators it runs on.
type App struct {
	Service  *core.Service
	Registry *core.Registry
	Sweepers map[string]core.Sweeper

	store   core.Store
	jobs    core.JobStore
	audit   core.AuditSink
	bus     core.Bus
	closers []func() error
}

// New opens the stores selected by cfg and builds the Service.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.Registry, err = LoadRegistry(cfg.Headers.AliasFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	slog.Info("import types registered", "count", a.Registry.Len())

	notifier, err := NewNotifier(ctx, cfg.Notify)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Service, err = core.NewService(cfg.ServiceConfig(), core.Deps{
		Registry: a.Registry,
		Store:    a.store,
		Jobs:     a.jobs,
		Bus:      a.bus,
		Notifier: notifier,
		Audit:    core.MultiAudit{core.NewLogAudit(slog.Default()), a.audit},
		Logger:   slog.Default(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openBackend connects the entity store selected by DB_DRIVER. When
// REDIS_URL is set, job state and progress fan-out move to Redis so every
// instance sees every job.
func openBackend(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Sweepers: make(map[string]core.Sweeper)}

	switch cfg.Database.Driver {
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.store, a.jobs, a.audit = s, s.Jobs(), s
		a.Sweepers["jobs"] = s.Jobs()
		a.Sweepers["audit"] = s
		a.closers = append(a.closers, s.Close)
		slog.Info("using sqlite store", "path", cfg.Database.SQLitePath)

	case config.DriverPostgres:
		s, err := postgres.Connect(ctx, cfg.Database.URL, postgres.PoolConfig{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		a.store, a.jobs, a.audit = s, s.Jobs(), s
		a.Sweepers["jobs"] = s.Jobs()
		a.Sweepers["audit"] = s
		a.closers = append(a.closers, s.Close)
		slog.Info("using postgres store")

	default:
		jobs := memory.NewJobStore()
		audit := &core.MemoryAudit{}
		a.store, a.jobs, a.audit = memory.NewStore(), jobs, audit
		a.Sweepers["jobs"] = jobs
		a.Sweepers["audit"] = audit
		slog.Warn("using in-memory store; data is lost on restart")
	}

	if cfg.Redis.URL == "" {
		a.bus = pubsub.NewBroker(pubsub.DefaultBuffer)
		return a, nil
	}

	rdb, err := redisjobs.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)
	a.useRedis(rdb, cfg.Redis)
	slog.Info("using redis for job state and progress", "job_ttl", cfg.Redis.JobTTL)
	return a, nil
}

// useRedis replaces the job store and bus. Redis expires jobs itself, so
// the job sweeper is dropped.
func (a *App) useRedis(rdb *redis.Client, cfg config.RedisConfig) {
	a.jobs = redisjobs.New(rdb, "", cfg.JobTTL)
	a.bus = pubsub.NewRedisBus(rdb, cfg.ChannelPrefix, slog.Default())
	delete(a.Sweepers, "jobs")
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// NewNotifier returns the completion notifier selected by NOTIFY_DRIVER,
// or nil when notifications are off.
func NewNotifier(ctx context.Context, cfg config.NotifyConfig) (core.Notifier, error) {
	switch cfg.Driver {
	case config.NotifyNone:
		return nil, nil
	case config.NotifySNS:
		n, err := notify.NewSNSNotifier(ctx, cfg.TopicARN, cfg.Region)
		if err != nil {
			return nil, fmt.Errorf("sns notifier: %w", err)
		}
		slog.Info("notifications via sns", "topic", cfg.TopicARN)
		return n, nil
	default:
		return notify.NewLogNotifier(slog.Default()), nil
	}
}

// LoadRegistry builds the import types, merging the alias file when set.
func LoadRegistry(aliasFile string) (*core.Registry, error) {
	var file *headers.AliasFile
	if aliasFile != "" {
		f, err := headers.LoadFile(aliasFile)
		if err != nil {
			return nil, err
		}
		file = f
		slog.Info("header alias file loaded", "path", aliasFile)
	}
	return core.NewRegistry(imports.Default(), file)
}
