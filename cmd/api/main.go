// Package main is the entry point for the herald API server.
//
// It loads configuration, builds the credential index from the caller
// registry, opens the message ledger store, wires the dispatch pipeline and
// the HTTP chassis, and serves until a shutdown signal arrives.
//
// A migrate subcommand applies Postgres schema migrations and exits:
//
//	herald-api migrate up
//	herald-api migrate force 2
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	migrations "herald/db"
	"herald/internal/api/handlers"
	"herald/internal/auth"
	"herald/internal/channels"
	"herald/internal/config"
	"herald/internal/core"
	"herald/internal/db"
	"herald/internal/dispatch"
	"herald/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		return runMigrations(cfg, logger, os.Args[2:])
	}

	logger.Info("herald API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"ledger_driver", cfg.Ledger.Driver,
	)

	callers, err := config.LoadCallers(cfg.Auth.CallersFile)
	if err != nil {
		return fmt.Errorf("loading caller registry: %w", err)
	}

	index, err := auth.NewIndex(cfg.Auth.AdminSecret, callers, logger)
	if err != nil {
		return fmt.Errorf("building credential index: %w", err)
	}
	logger.Info("caller registry loaded", "callers", len(callers))

	ledger, ping, cleanup, err := openLedger(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := buildServer(cfg, logger, index, ledger, ping)
	if err != nil {
		return err
	}

	return serveHTTP(srv, cfg, logger)
}

// openLedger selects the ledger store by driver. The returned ping feeds the
// health endpoint; cleanup releases whatever srv.Shutdown does not own (the
// Postgres pool sits behind the repo, so the server cannot close it).
func openLedger(ctx context.Context, cfg *config.Config) (types.MessageLedger, func(context.Context) error, func(), error) {
	switch cfg.Ledger.Driver {
	case "sqlite":
		store, err := db.OpenSQLite(cfg.Ledger.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening sqlite ledger: %w", err)
		}
		return store, store.Ping, func() {}, nil

	default: // postgres
		pool, err := db.NewPool(ctx, &cfg.Ledger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return db.NewMessageRepo(pool), pool.Ping, pool.Close, nil
	}
}

// buildServer wires the dispatch pipeline and mounts all routes. The notify
// route carries no auth middleware (the pipeline resolves the secret itself);
// the ledger read routes sit behind RequireSecret.
func buildServer(cfg *config.Config, logger *slog.Logger, index *auth.Index, ledger types.MessageLedger, ping func(context.Context) error) (*core.Server, error) {
	sender, err := channels.NewSender(&cfg.Webhook, logger)
	if err != nil {
		return nil, fmt.Errorf("creating webhook sender: %w", err)
	}
	registry := channels.NewRegistry(sender)
	pipeline := dispatch.NewPipeline(index, registry, ledger, cfg.Webhook.Timeout, logger)

	srv, err := core.NewServer(cfg, ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Auth = index

	notifyHandler := handlers.NewNotifyHandler(pipeline, logger)
	messagesHandler := handlers.NewMessagesHandler(ledger, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		notifyHandler.RegisterRoutes,
		func(r chi.Router) {
			r.Group(func(g chi.Router) {
				g.Use(srv.RequireSecret)
				messagesHandler.RegisterRoutes(g)
			})
		},
	)
	srv.HealthProbes = append(srv.HealthProbes, core.NewPingProbe("ledger", ping))

	srv.MountRoutes()
	return srv, nil
}

// serveHTTP runs the server until SIGINT/SIGTERM, then drains connections
// within the configured shutdown window.
func serveHTTP(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped cleanly")
	return nil
}

// runMigrations applies Postgres schema migrations from the embedded FS.
func runMigrations(cfg *config.Config, logger *slog.Logger, args []string) error {
	if cfg.Ledger.Driver != "postgres" {
		return fmt.Errorf("migrations apply to the postgres ledger only (driver is %q)", cfg.Ledger.Driver)
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: migrate <up|down|version|force N>")
	}

	migrationsFS, err := fs.Sub(migrations.MigrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("embedded migrations: %w", err)
	}

	return db.RunMigrate(logger, cfg.Ledger.URL.Unmask(), migrationsFS, args[0], args[1:])
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
