package core

// scheduler.go runs retention sweeps in the background.
//
// Finished jobs and their audit rows pile up in whatever store keeps them.
// The scheduler asks every registered Sweeper to drop records older than
// the retention window. Individual sweep failures are logged and never stop
// the loop.

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper deletes records last updated before cutoff.
type Sweeper interface {
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// RetentionConfig holds configuration for the retention scheduler.
type RetentionConfig struct {
	MaxAge        time.Duration // Records older than this are dropped (default: 24h)
	CheckInterval time.Duration // How often to run (default: 1h)
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.MaxAge <= 0 {
		c.MaxAge = 24 * time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Hour
	}
	return c
}

// RunRetention sweeps immediately, then every CheckInterval, until ctx is
// cancelled.
func RunRetention(ctx context.Context, cfg RetentionConfig, sweepers map[string]Sweeper) {
	cfg = cfg.withDefaults()
	slog.Info("retention scheduler started",
		"max_age", cfg.MaxAge.String(),
		"interval", cfg.CheckInterval.String(),
		"sweepers", len(sweepers),
	)

	sweepOnce(ctx, cfg, sweepers, time.Now())

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention scheduler stopped")
			return
		case now := <-ticker.C:
			sweepOnce(ctx, cfg, sweepers, now)
		}
	}
}

// SweepNow runs a single pass and returns how many records were removed.
func SweepNow(ctx context.Context, cfg RetentionConfig, sweepers map[string]Sweeper) int {
	return sweepOnce(ctx, cfg.withDefaults(), sweepers, time.Now())
}

// sweepOnce performs one pass over every sweeper.
func sweepOnce(ctx context.Context, cfg RetentionConfig, sweepers map[string]Sweeper, now time.Time) int {
	cutoff := now.Add(-cfg.MaxAge)
	total := 0
	for name, s := range sweepers {
		start := time.Now()
		n, err := s.Sweep(ctx, cutoff)
		if err != nil {
			slog.Error("retention sweep failed", "sweeper", name, "error", err)
			continue
		}
		total += n
		slog.Debug("retention sweep completed",
			"sweeper", name,
			"removed", n,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return total
}
