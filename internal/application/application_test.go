package application

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/JonMunkholm/stockimport/internal/config"
	"github.com/JonMunkholm/stockimport/internal/core"
	"github.com/JonMunkholm/stockimport/internal/core/imports"
	"github.com/JonMunkholm/stockimport/internal/notify"
	"github.com/JonMunkholm/stockimport/internal/pubsub"
	"github.com/JonMunkholm/stockimport/internal/store/sqlite"
)

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.DatabaseConfig{
			Driver:     driver,
			SQLitePath: filepath.Join(t.TempDir(), "stock.db"),
		},
		Notify: config.NotifyConfig{Driver: config.NotifyNone},
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		driver string
	}{
		{"memory", config.DriverMemory},
		{"sqlite", config.DriverSQLite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(context.Background(), testConfig(t, tt.driver))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer a.Close()

			if err := a.Service.Ping(context.Background()); err != nil {
				t.Errorf("Ping() error = %v", err)
			}
			if _, ok := a.bus.(*pubsub.Broker); !ok {
				t.Errorf("bus = %T, want in-process broker without REDIS_URL", a.bus)
			}
			for _, name := range []string{"jobs", "audit"} {
				if a.Sweepers[name] == nil {
					t.Errorf("missing %s sweeper", name)
				}
			}
			if tt.driver == config.DriverSQLite {
				if _, ok := a.store.(*sqlite.Store); !ok {
					t.Errorf("store = %T, want *sqlite.Store", a.store)
				}
			}
		})
	}
}

func TestNew_ImportAndAudit(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, config.DriverSQLite))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	res, err := a.Service.StartImport(context.Background(), core.ImportRequest{
		Tenant:     "acme",
		ImportType: imports.Providers,
		FileName:   "proveedores.csv",
		Data:       []byte("Nombre,CUIT\nFerretería Sur,20-12345678-9\n"),
	})
	if err != nil {
		t.Fatalf("StartImport() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := a.Service.Wait(ctx, res.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.SuccessCount != 1 {
		t.Fatalf("job = %s with %d successes (error %q)", job.Status, job.SuccessCount, job.Error)
	}

	// The log sink comes first in the audit chain; the store still answers.
	entries, err := a.Service.AuditLog(context.Background(), job.ID, 0)
	if err != nil {
		t.Fatalf("AuditLog() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("audit entries = %d, want 1", len(entries))
	}
}

func TestNew_BadRedisURL(t *testing.T) {
	cfg := testConfig(t, config.DriverMemory)
	cfg.Redis.URL = "http://not-redis"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("New() should fail on an invalid redis url")
	}
}

func TestNewNotifier(t *testing.T) {
	n, err := NewNotifier(context.Background(), config.NotifyConfig{Driver: config.NotifyNone})
	if err != nil || n != nil {
		t.Errorf("none driver = %v, %v; want nil notifier", n, err)
	}

	n, err = NewNotifier(context.Background(), config.NotifyConfig{Driver: config.NotifyLog})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := n.(*notify.LogNotifier); !ok {
		t.Errorf("log driver = %T", n)
	}

	if _, err := NewNotifier(context.Background(), config.NotifyConfig{Driver: config.NotifySNS}); err == nil {
		t.Error("sns driver without a topic should fail")
	}
}

func TestLoadRegistry(t *testing.T) {
	reg, err := LoadRegistry("")
	if err != nil {
		t.Fatal(err)
	}
	if reg.Len() != 3 {
		t.Errorf("Len() = %d, want 3", reg.Len())
	}
	if _, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadRegistry() should fail on a missing alias file")
	}
}
