package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/stockimport/internal/application"
	"github.com/JonMunkholm/stockimport/internal/config"
	"github.com/JonMunkholm/stockimport/internal/core"
	"github.com/JonMunkholm/stockimport/internal/logging"
	"github.com/JonMunkholm/stockimport/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists; real environment variables win.
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := application.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	service := app.Service

	server := web.NewServer(service, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		core.RunRetention(gctx, cfg.RetentionConfig(), app.Sweepers)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")
		shutdown(service, server, cfg)
		return nil
	})

	return g.Wait()
}

// shutdown stops accepting requests, then gives running imports until the
// shutdown timeout to finish before cancelling them.
func shutdown(service *core.Service, server *web.Server, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	if active := service.ActiveJobs(); active > 0 {
		slog.Info("waiting for imports to complete", "active", active)
	}
	if err := service.WaitForImports(ctx); err != nil {
		n := service.CancelAll()
		slog.Warn("imports did not complete in time, cancelled", "cancelled", n, "error", err)

		// Cancelled jobs still save their final state.
		drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer drainCancel()
		if err := service.WaitForImports(drainCtx); err != nil {
			slog.Error("imports still running at exit", "error", err)
		}
		return
	}
	slog.Info("all imports completed")
}
