// Package main is the entry point for the herald retention archiver.
//
// The archiver exports terminal ledger records older than the retention
// window to zstd-compressed NDJSON files and prunes them from the store.
// It runs the sweep either once (-once, for cron-from-outside or manual
// backfill) or on its own internal cron schedule (ARCHIVE_CRON).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"herald/internal/config"
	"herald/internal/db"
	"herald/internal/scheduler"
)

// sweepTimeout bounds one scheduled sweep. A wedged store must not hold the
// cron entry forever.
const sweepTimeout = 30 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("herald archiver starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"ledger_driver", cfg.Ledger.Driver,
		"archive_dir", cfg.Archive.Dir,
		"retention", cfg.Archive.Retention.String(),
	)

	store, cleanup, err := openStore(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	svc := scheduler.NewRetentionService(store, cfg.Archive.Dir, logger)

	if *once {
		return sweep(context.Background(), svc, cfg, logger)
	}

	return runSchedule(svc, cfg, logger)
}

// openStore opens the ledger store selected by LEDGER_DRIVER.
func openStore(ctx context.Context, cfg *config.Config) (scheduler.RetentionStore, func(), error) {
	switch cfg.Ledger.Driver {
	case "sqlite":
		store, err := db.OpenSQLite(cfg.Ledger.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite ledger: %w", err)
		}
		return store, func() { _ = store.Close() }, nil

	default: // postgres
		pool, err := db.NewPool(ctx, &cfg.Ledger)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return db.NewMessageRepo(pool), pool.Close, nil
	}
}

// sweep runs one retention pass with a bounded context.
func sweep(ctx context.Context, svc *scheduler.RetentionService, cfg *config.Config, logger *slog.Logger) error {
	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	total, err := svc.Sweep(sweepCtx, time.Now().UTC(), cfg.Archive.Retention, cfg.Archive.BatchSize)
	if err != nil {
		return fmt.Errorf("retention sweep: %w", err)
	}

	logger.Info("retention sweep complete", "pruned", total)
	return nil
}

// runSchedule registers the sweep on the configured cron expression and
// blocks until SIGINT/SIGTERM. A running sweep finishes before exit.
func runSchedule(svc *scheduler.RetentionService, cfg *config.Config, logger *slog.Logger) error {
	c := cron.New(cron.WithLocation(time.UTC))

	_, err := c.AddFunc(cfg.Archive.Cron, func() {
		if err := sweep(context.Background(), svc, cfg, logger); err != nil {
			logger.Error("retention sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cfg.Archive.Cron, err)
	}

	c.Start()
	logger.Info("archiver schedule started", "cron", cfg.Archive.Cron)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutdown signal received")
	<-c.Stop().Done()

	logger.Info("archiver stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
